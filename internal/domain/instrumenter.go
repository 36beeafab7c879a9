// Package domain contains the profiling workflow: instrumenting a module,
// running it and turning the collected snapshot into reports.
package domain

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"path"
	"sort"
	"strconv"
	"strings"

	"zeitdieb.dev/pkg/zeitdieb/internal/adapter"
	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
)

const (
	// ProbeDir is the module-relative directory of the generated probe package.
	ProbeDir = "internal/zeitdiebprobe"
	// ProbePackage is the name the probe is imported under.
	ProbePackage = "zeitdiebprobe"

	frameVar = "__zdf"
)

// ErrNothingToTrace is returned when a file has no traceable callables.
var ErrNothingToTrace = errors.New("no traceable functions")

// InstrumentOptions locate a file inside the module being instrumented.
type InstrumentOptions struct {
	ModulePath string
	// RelFile is the module-relative, slash separated file name.
	RelFile string
	// FileIndex makes the generated identifiers unique within a package.
	FileIndex int
}

// InstrumentedFile is the outcome of instrumenting one file.
type InstrumentedFile struct {
	// Source is the rewritten file, or the original bytes when Skipped is set.
	Source []byte
	Funcs  []m.Func
	// Skipped tells why the file was left untouched.
	Skipped string
}

// Instrumenter rewrites Go sources so every traceable callable reports its
// line events to the probe package.
type Instrumenter interface {
	Instrument(ctx context.Context, src []byte, opts InstrumentOptions) (*InstrumentedFile, error)
}

type instrumenter struct {
	goFile adapter.GoFileAdapter
}

// NewInstrumenter creates an Instrumenter backed by goFile.
func NewInstrumenter(goFile adapter.GoFileAdapter) Instrumenter {
	return &instrumenter{goFile: goFile}
}

// Instrument adds to every callable of src a prologue that opens a frame
// and, in front of each statement, a line event carrying the statement's
// line. Only insertions are made and none of them contains a newline, so
// every original line keeps its number.
func (in *instrumenter) Instrument(ctx context.Context, src []byte, opts InstrumentOptions) (*InstrumentedFile, error) {
	if in.goFile == nil {
		return nil, fmt.Errorf("missing go file adapter")
	}

	fset := token.NewFileSet()

	file, err := in.goFile.Parse(ctx, fset, opts.RelFile, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", opts.RelFile, err)
	}

	if in.goFile.ImportsC(file) {
		return &InstrumentedFile{Source: src, Skipped: "cgo"}, nil
	}

	isMain := file.Name.Name == "main"
	pkgID := in.goFile.PackageID(opts.ModulePath, path.Dir(opts.RelFile), file.Name.Name)
	tf := fset.File(file.Pos())
	edits := &sourceEdit{}

	var funcs []m.Func

	in.goFile.WalkFuncs(fset, file, pkgID, opts.RelFile, func(node ast.Node, body *ast.BlockStmt, fn m.Func) {
		varName := fmt.Sprintf("zeitdiebFn_%d_%d", opts.FileIndex, len(funcs))
		funcs = append(funcs, fn)

		var prologue strings.Builder
		if decl, ok := node.(*ast.FuncDecl); ok && isMain && decl.Recv == nil && decl.Name.Name == "main" {
			prologue.WriteString("defer " + ProbePackage + ".Flush();")
		}

		fmt.Fprintf(&prologue, "%s := %s.Enter(%s);defer %s.Exit();", frameVar, ProbePackage, varName, frameVar)
		edits.Insert(tf.Offset(body.Lbrace)+1, prologue.String())

		for _, stmt := range lineStatements(fset, body) {
			line := fset.Position(stmt.Pos()).Line
			edits.Insert(tf.Offset(stmt.Pos()), frameVar+".Line("+strconv.Itoa(line)+");")
		}
	})

	if len(funcs) == 0 {
		return &InstrumentedFile{Source: src, Skipped: ErrNothingToTrace.Error()}, nil
	}

	importPath := path.Join(opts.ModulePath, ProbeDir)
	edits.Insert(tf.Offset(file.Name.End()), fmt.Sprintf(";import %s %q", ProbePackage, importPath))
	edits.Insert(len(src), funcInfoVars(opts.FileIndex, funcs))

	return &InstrumentedFile{Source: edits.Apply(src), Funcs: funcs}, nil
}

// lineStatements returns the statements of body that get a line event: the
// elements of every statement list, outside nested function literals, the
// first one of each line only.
func lineStatements(fset *token.FileSet, body *ast.BlockStmt) []ast.Stmt {
	var stmts []ast.Stmt

	seen := make(map[int]bool)

	add := func(list []ast.Stmt) {
		for _, stmt := range list {
			switch stmt.(type) {
			case *ast.EmptyStmt, *ast.CaseClause, *ast.CommClause:
				continue
			}

			line := fset.Position(stmt.Pos()).Line
			if seen[line] {
				continue
			}

			seen[line] = true
			stmts = append(stmts, stmt)
		}
	}

	ast.Inspect(body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.BlockStmt:
			add(n.List)
		case *ast.CaseClause:
			add(n.Body)
		case *ast.CommClause:
			add(n.Body)
		}

		return true
	})

	return stmts
}

func funcInfoVars(fileIndex int, funcs []m.Func) string {
	var b strings.Builder

	b.WriteString("\nvar (\n")

	for i, fn := range funcs {
		fmt.Fprintf(&b, "\tzeitdiebFn_%d_%d = &%s.FuncInfo{Name: %q, File: %q, StartLine: %d, EndLine: %d}\n",
			fileIndex, i, ProbePackage, fn.Name, fn.File, fn.StartLine, fn.EndLine)
	}

	b.WriteString(")\n")

	return b.String()
}

type insertion struct {
	offset int
	text   string
	seq    int
}

// sourceEdit collects insertions into a byte buffer. Insertions at the same
// offset keep the order they were added in.
type sourceEdit struct {
	inserts []insertion
}

func (e *sourceEdit) Insert(offset int, text string) {
	e.inserts = append(e.inserts, insertion{offset: offset, text: text, seq: len(e.inserts)})
}

func (e *sourceEdit) Apply(src []byte) []byte {
	sort.SliceStable(e.inserts, func(i, j int) bool {
		if e.inserts[i].offset != e.inserts[j].offset {
			return e.inserts[i].offset < e.inserts[j].offset
		}

		return e.inserts[i].seq < e.inserts[j].seq
	})

	size := len(src)
	for _, ins := range e.inserts {
		size += len(ins.text)
	}

	out := make([]byte, 0, size)
	last := 0

	for _, ins := range e.inserts {
		out = append(out, src[last:ins.offset]...)
		out = append(out, ins.text...)
		last = ins.offset
	}

	return append(out, src[last:]...)
}
