package adapter

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"strconv"

	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
)

// FuncVisitor receives every traceable callable of a file: its node
// (*ast.FuncDecl or *ast.FuncLit), its body and its description.
type FuncVisitor func(node ast.Node, body *ast.BlockStmt, fn m.Func)

// GoFileAdapter encapsulates Go-specific parsing and naming so the domain
// layer can focus on instrumentation.
type GoFileAdapter interface {
	// Parse builds an AST using the provided file set and source bytes.
	Parse(ctx context.Context, fileSet *token.FileSet, filename string, src []byte) (*ast.File, error)

	// PackageID returns the package part of target names for a package
	// named pkgName in relDir of the module.
	PackageID(modulePath, relDir, pkgName string) string

	// WalkFuncs visits the traceable callables of file in source order.
	// relFile is the module-relative path recorded in each Func.
	WalkFuncs(fileSet *token.FileSet, file *ast.File, pkgID, relFile string, visit FuncVisitor)

	// ExtractFuncs lists the traceable callables of file.
	ExtractFuncs(fileSet *token.FileSet, file *ast.File, pkgID, relFile string) []m.Func

	// HasTestMain reports whether file declares TestMain.
	HasTestMain(file *ast.File) bool

	// ImportsC reports whether file uses cgo.
	ImportsC(file *ast.File) bool
}

// LocalGoFileAdapter provides a concrete GoFileAdapter backed by go/parser.
type LocalGoFileAdapter struct{}

// NewLocalGoFileAdapter constructs a LocalGoFileAdapter.
func NewLocalGoFileAdapter() *LocalGoFileAdapter {
	return &LocalGoFileAdapter{}
}

// Parse builds an AST for the provided filename/source pair.
func (a *LocalGoFileAdapter) Parse(ctx context.Context, fileSet *token.FileSet, filename string, src []byte) (*ast.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return parser.ParseFile(fileSet, filename, src, parser.ParseComments|parser.SkipObjectResolution)
}

// PackageID names commands "main", like the runtime does, and every other
// package by its import path.
func (a *LocalGoFileAdapter) PackageID(modulePath, relDir, pkgName string) string {
	if pkgName == "main" {
		return "main"
	}

	if relDir == "" || relDir == "." {
		return modulePath
	}

	return path.Join(modulePath, relDir)
}

// WalkFuncs visits functions and methods, then the closures inside each of
// them. Closures are named after their enclosing callable the way the
// runtime names them: "f.func1", and "f.func1.1" when nested. init
// functions and package-level function literals are not traceable.
func (a *LocalGoFileAdapter) WalkFuncs(fileSet *token.FileSet, file *ast.File, pkgID, relFile string, visit FuncVisitor) {
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Body == nil || fd.Name == nil || fd.Name.Name == "_" {
			continue
		}

		if fd.Recv == nil && fd.Name.Name == "init" {
			continue
		}

		callable, kind := fd.Name.Name, m.KindFunc
		if recv := receiverName(fd); recv != "" {
			callable, kind = recv+"."+fd.Name.Name, m.KindMethod
		}

		fn := m.Func{
			Name:      pkgID + ":" + callable,
			Kind:      kind,
			File:      relFile,
			StartLine: fileSet.Position(fd.Pos()).Line,
			EndLine:   fileSet.Position(fd.End()).Line,
		}

		visit(fd, fd.Body, fn)
		walkClosures(fileSet, fd.Body, fn.Name, false, relFile, visit)
	}
}

func walkClosures(fileSet *token.FileSet, body ast.Node, parent string, nested bool, relFile string, visit FuncVisitor) {
	count := 0

	ast.Inspect(body, func(n ast.Node) bool {
		lit, ok := n.(*ast.FuncLit)
		if !ok {
			return true
		}

		count++

		suffix := ".func" + strconv.Itoa(count)
		if nested {
			suffix = "." + strconv.Itoa(count)
		}

		fn := m.Func{
			Name:      parent + suffix,
			Kind:      m.KindClosure,
			File:      relFile,
			StartLine: fileSet.Position(lit.Pos()).Line,
			EndLine:   fileSet.Position(lit.End()).Line,
		}

		visit(lit, lit.Body, fn)
		walkClosures(fileSet, lit.Body, fn.Name, true, relFile, visit)

		return false
	})
}

// receiverName returns the receiver type name without pointer or type
// parameters, or "" for plain functions.
func receiverName(fd *ast.FuncDecl) string {
	if fd.Recv == nil || len(fd.Recv.List) == 0 {
		return ""
	}

	expr := fd.Recv.List[0].Type

	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.ParenExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}

// ExtractFuncs lists the traceable callables of file.
func (a *LocalGoFileAdapter) ExtractFuncs(fileSet *token.FileSet, file *ast.File, pkgID, relFile string) []m.Func {
	var funcs []m.Func

	a.WalkFuncs(fileSet, file, pkgID, relFile, func(_ ast.Node, _ *ast.BlockStmt, fn m.Func) {
		funcs = append(funcs, fn)
	})

	return funcs
}

// HasTestMain reports whether file declares TestMain.
func (a *LocalGoFileAdapter) HasTestMain(file *ast.File) bool {
	for _, decl := range file.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok && fd.Recv == nil && fd.Name.Name == "TestMain" {
			return true
		}
	}

	return false
}

// ImportsC reports whether file uses cgo.
func (a *LocalGoFileAdapter) ImportsC(file *ast.File) bool {
	for _, imp := range file.Imports {
		if imp.Path != nil && imp.Path.Value == `"C"` {
			return true
		}
	}

	return false
}
