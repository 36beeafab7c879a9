package domain

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"go/format"
	"go/token"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"golang.org/x/sync/errgroup"

	"zeitdieb.dev/pkg/zeitdieb/internal/adapter"
	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
	"zeitdieb.dev/pkg/zeitdieb/pkg/trace"
	"zeitdieb.dev/pkg/zeitdieb/pkg/zeitdieb"
)

// ProfileEnv names the variable that tells the probe where to write its snapshot.
const ProfileEnv = "ZEITDIEB_PROFILE"

const testMainFile = "zeitdieb_main_test.go"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// ErrTestMainExists is returned when tests of a package that declares its
// own TestMain are profiled.
var ErrTestMainExists = errors.New("package declares TestMain")

// ErrNoProfile is returned when the profiled process exited without writing
// its snapshot.
var ErrNoProfile = errors.New("the program did not write a profile (did it call os.Exit?)")

// Module is the result of scanning a Go module.
type Module struct {
	Root     m.Path
	Path     string
	Packages []m.Package
}

// Funcs lists the traceable callables of every package.
func (mod *Module) Funcs() []m.Func {
	var funcs []m.Func
	for _, pkg := range mod.Packages {
		funcs = append(funcs, pkg.Funcs...)
	}

	return funcs
}

// Package returns the package in the module-relative directory rel.
func (mod *Module) Package(rel string) (m.Package, bool) {
	for _, pkg := range mod.Packages {
		if pkg.Dir == m.Path(rel) {
			return pkg, true
		}
	}

	return m.Package{}, false
}

// RunRequest describes one profiled execution.
type RunRequest struct {
	// Dir is the directory of the package to run.
	Dir     m.Path
	Args    []string
	Targets zeitdieb.TargetSelector
	// Test runs the package's tests instead of the program.
	Test bool
	// Keep leaves the instrumented workspace on disk.
	Keep bool
	// Parallel bounds the files instrumented at once; 0 means GOMAXPROCS.
	Parallel int

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// RunResult is the outcome of a profiled execution.
type RunResult struct {
	Profile *m.Profile
	// TargetErr joins one TargetError per target that names no callable.
	TargetErr error
	// Workspace is the instrumented copy, set when the request asked to keep it.
	Workspace m.Path
}

// Orchestrator stages an instrumented copy of a module and runs it.
type Orchestrator interface {
	Scan(ctx context.Context, dir m.Path) (*Module, error)
	Profile(ctx context.Context, req RunRequest) (*RunResult, error)
}

type orchestrator struct {
	fsAdapter    adapter.SourceFSAdapter
	goFile       adapter.GoFileAdapter
	runner       adapter.GoRunnerAdapter
	instrumenter Instrumenter
	threads      int
}

// NewOrchestrator constructs an Orchestrator backed by the provided
// filesystem, parser and go tool adapters.
func NewOrchestrator(fsAdapter adapter.SourceFSAdapter, goFile adapter.GoFileAdapter, runner adapter.GoRunnerAdapter) Orchestrator {
	return &orchestrator{
		fsAdapter:    fsAdapter,
		goFile:       goFile,
		runner:       runner,
		instrumenter: NewInstrumenter(goFile),
		threads:      runtime.GOMAXPROCS(0),
	}
}

// Scan lists the packages of the module containing dir together with their
// traceable callables.
func (o *orchestrator) Scan(ctx context.Context, dir m.Path) (*Module, error) {
	root, err := o.fsAdapter.FindProjectRoot(ctx, dir)
	if err != nil {
		slog.Error("Failed to find project root", "dir", dir, "error", err)
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}

	modulePath, err := o.fsAdapter.ModulePath(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to read module path: %w", err)
	}

	files, err := o.moduleFiles(ctx, root)
	if err != nil {
		return nil, err
	}

	packages := make(map[string]*m.Package)

	for _, file := range files {
		if err := o.scanFile(ctx, modulePath, file, packages); err != nil {
			return nil, err
		}
	}

	mod := &Module{Root: root, Path: modulePath}
	for _, pkg := range packages {
		mod.Packages = append(mod.Packages, *pkg)
	}

	sort.Slice(mod.Packages, func(i, j int) bool {
		return mod.Packages[i].Dir < mod.Packages[j].Dir
	})

	return mod, nil
}

func (o *orchestrator) scanFile(ctx context.Context, modulePath string, file m.File, packages map[string]*m.Package) error {
	src, err := o.fsAdapter.ReadFile(ctx, file.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file.Rel, err)
	}

	fset := token.NewFileSet()

	parsed, err := o.goFile.Parse(ctx, fset, file.Rel, src)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", file.Rel, err)
	}

	dir := path.Dir(file.Rel)

	pkg := packages[dir]
	if pkg == nil {
		pkg = &m.Package{Dir: m.Path(dir)}
		packages[dir] = pkg
	}

	if isTestFile(file.Rel) {
		pkg.HasTestMain = pkg.HasTestMain || o.goFile.HasTestMain(parsed)
		return nil
	}

	pkg.Name = parsed.Name.Name
	pkg.ID = o.goFile.PackageID(modulePath, dir, pkg.Name)
	pkg.Files = append(pkg.Files, file)
	pkg.Funcs = append(pkg.Funcs, o.goFile.ExtractFuncs(fset, parsed, pkg.ID, file.Rel)...)

	return nil
}

// moduleFiles lists the Go files of the module rooted at root, skipping
// testdata, vendor, hidden directories and nested modules.
func (o *orchestrator) moduleFiles(ctx context.Context, root m.Path) ([]m.File, error) {
	var files []m.File

	err := o.fsAdapter.Walk(ctx, root, true, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if p == string(root) {
				return nil
			}

			name := info.Name()
			if name == "testdata" || name == "vendor" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}

			if _, statErr := o.fsAdapter.FileInfo(ctx, m.Path(filepath.Join(p, "go.mod"))); statErr == nil {
				return filepath.SkipDir
			}

			return nil
		}

		if filepath.Ext(p) != ".go" {
			return nil
		}

		rel, err := o.fsAdapter.RelPath(ctx, root, m.Path(p))
		if err != nil {
			return err
		}

		relSlash := filepath.ToSlash(string(rel))
		if strings.HasPrefix(relSlash, ProbeDir+"/") {
			return nil
		}

		files = append(files, m.File{Path: m.Path(p), Rel: relSlash})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list module files: %w", err)
	}

	return files, nil
}

// Profile instruments the module containing req.Dir in a temporary copy,
// runs the package and returns what the probe recorded.
func (o *orchestrator) Profile(ctx context.Context, req RunRequest) (*RunResult, error) {
	absDir, err := filepath.Abs(string(req.Dir))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", req.Dir, err)
	}

	mod, err := o.Scan(ctx, m.Path(absDir))
	if err != nil {
		return nil, err
	}

	relDir, err := o.fsAdapter.RelPath(ctx, mod.Root, m.Path(absDir))
	if err != nil {
		return nil, fmt.Errorf("failed to locate package: %w", err)
	}

	pkgDir := filepath.ToSlash(string(relDir))

	pkg, ok := mod.Package(pkgDir)
	if !ok || pkg.Name == "" {
		return nil, fmt.Errorf("no Go package in %s", req.Dir)
	}

	if req.Test && pkg.HasTestMain {
		return nil, fmt.Errorf("%s: %w", pkg.ID, ErrTestMainExists)
	}

	result := &RunResult{}
	known := make(map[string]bool)

	for _, fn := range mod.Funcs() {
		known[fn.Name] = true
	}

	targets, targetErr := req.Targets.Resolve(func(name string) bool { return known[name] })
	if targetErr != nil {
		result.TargetErr = targetErr
		if targets.Empty() && !req.Targets.Empty() {
			return result, fmt.Errorf("none of the targets exist: %w", targetErr)
		}
	}

	tmpDir, err := o.prepareWorkspace(ctx, mod.Root)
	if tmpDir != "" {
		if req.Keep {
			result.Workspace = tmpDir
		} else {
			defer o.cleanupTempDir(ctx, tmpDir)
		}
	}

	if err != nil {
		return result, err
	}

	if err := o.instrumentModule(ctx, mod, tmpDir, req.Parallel); err != nil {
		return result, err
	}

	if err := o.writeProbe(ctx, mod.Path, tmpDir, targets); err != nil {
		return result, err
	}

	if req.Test {
		if err := o.writeTestMain(ctx, mod.Path, tmpDir, pkg); err != nil {
			return result, err
		}
	}

	profilePath := o.fsAdapter.JoinPath(ctx, string(tmpDir), ".zeitdieb-profile.json")
	exitCode := o.run(ctx, req, tmpDir, pkgDir, profilePath)

	snap, err := o.readSnapshot(ctx, profilePath)
	if err != nil {
		return result, err
	}

	sources, hashes, err := o.collectSources(ctx, mod.Root, snap)
	if err != nil {
		return result, err
	}

	command := []string{"./" + pkgDir}
	if pkgDir == "." {
		command[0] = "."
	}

	result.Profile = &m.Profile{
		Version:   m.ProfileVersion,
		CreatedAt: time.Now().UTC(),
		Root:      string(mod.Root),
		Command:   append(command, req.Args...),
		Targets:   targets,
		Snapshot:  snap,
		Sources:   sources,
		Hashes:    hashes,
		ExitCode:  exitCode,
	}

	return result, nil
}

func (o *orchestrator) prepareWorkspace(ctx context.Context, root m.Path) (m.Path, error) {
	tmpDir, err := o.fsAdapter.CreateTempDir(ctx, "zeitdieb-run-*")
	if err != nil {
		slog.Error("Failed to create temp dir", "error", err)
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	if err := o.fsAdapter.CopyDir(ctx, root, tmpDir); err != nil {
		slog.Error("Failed to copy project to temp dir", "projectRoot", root, "tmpDir", tmpDir, "error", err)
		return tmpDir, fmt.Errorf("failed to copy project: %w", err)
	}

	return tmpDir, nil
}

// instrumentModule rewrites every non-test file of mod inside tmpDir.
func (o *orchestrator) instrumentModule(ctx context.Context, mod *Module, tmpDir m.Path, parallel int) error {
	if parallel <= 0 {
		parallel = o.threads
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	index := 0

	for _, pkg := range mod.Packages {
		for _, file := range pkg.Files {
			fileIndex := index
			index++

			g.Go(func() error {
				return o.instrumentFile(ctx, mod.Path, tmpDir, file, fileIndex)
			})
		}
	}

	return g.Wait()
}

func (o *orchestrator) instrumentFile(ctx context.Context, modulePath string, tmpDir m.Path, file m.File, fileIndex int) error {
	src, err := o.fsAdapter.ReadFile(ctx, file.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file.Rel, err)
	}

	out, err := o.instrumenter.Instrument(ctx, src, InstrumentOptions{
		ModulePath: modulePath,
		RelFile:    file.Rel,
		FileIndex:  fileIndex,
	})
	if err != nil {
		return err
	}

	if out.Skipped != "" {
		slog.Debug("Left file uninstrumented", "file", file.Rel, "reason", out.Skipped)
		return nil
	}

	dst := o.fsAdapter.JoinPath(ctx, string(tmpDir), filepath.FromSlash(file.Rel))
	if err := o.fsAdapter.WriteFile(ctx, dst, out.Source, 0o600); err != nil {
		slog.Error("Failed to write instrumented file", "path", dst, "error", err)
		return fmt.Errorf("failed to write instrumented file: %w", err)
	}

	return nil
}

// writeProbe copies the trace runtime into the workspace and generates the
// probe package around it.
func (o *orchestrator) writeProbe(ctx context.Context, modulePath string, tmpDir m.Path, targets zeitdieb.TargetSelector) error {
	probeDir := filepath.Join(string(tmpDir), filepath.FromSlash(ProbeDir))

	for _, name := range trace.SourceFiles {
		content, err := trace.Sources.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read probe runtime: %w", err)
		}

		if err := o.fsAdapter.WriteFile(ctx, m.Path(filepath.Join(probeDir, "trace", name)), content, 0o600); err != nil {
			return fmt.Errorf("failed to write probe runtime: %w", err)
		}
	}

	content, err := renderTemplate("probe.go.tmpl", probeData{
		ImportPath: path.Join(modulePath, ProbeDir),
		Targets:    targets,
		EnvVar:     ProfileEnv,
	})
	if err != nil {
		return err
	}

	return o.fsAdapter.WriteFile(ctx, m.Path(filepath.Join(probeDir, "probe.go")), content, 0o600)
}

func (o *orchestrator) writeTestMain(ctx context.Context, modulePath string, tmpDir m.Path, pkg m.Package) error {
	content, err := renderTemplate("testmain.go.tmpl", testMainData{
		Package:     pkg.Name,
		ProbeName:   ProbePackage,
		ProbeImport: path.Join(modulePath, ProbeDir),
	})
	if err != nil {
		return err
	}

	dst := filepath.Join(string(tmpDir), filepath.FromSlash(string(pkg.Dir)), testMainFile)

	return o.fsAdapter.WriteFile(ctx, m.Path(dst), content, 0o600)
}

// run executes the instrumented package and returns its exit code. A
// failing program still leaves a profile behind when main returned or the
// tests finished.
func (o *orchestrator) run(ctx context.Context, req RunRequest, tmpDir m.Path, pkgDir string, profilePath m.Path) int {
	verb := "run"
	if req.Test {
		verb = "test"
	}

	target := "./" + pkgDir
	if pkgDir == "." {
		target = "."
	}

	args := append([]string{verb, target}, req.Args...)

	exitCode, err := o.runner.Run(ctx, adapter.RunSpec{
		Dir:    string(tmpDir),
		Args:   args,
		Env:    []string{ProfileEnv + "=" + string(profilePath)},
		Stdin:  req.Stdin,
		Stdout: req.Stdout,
		Stderr: req.Stderr,
	})
	if err != nil {
		slog.Warn("Profiled program failed", "args", args, "exitCode", exitCode, "error", err)
	}

	return exitCode
}

func (o *orchestrator) readSnapshot(ctx context.Context, profilePath m.Path) (trace.Snapshot, error) {
	var snap trace.Snapshot

	data, err := o.fsAdapter.ReadFile(ctx, profilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snap, ErrNoProfile
		}

		return snap, fmt.Errorf("failed to read profile: %w", err)
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to decode profile: %w", err)
	}

	return snap, nil
}

// collectSources reads the original lines and the hash of every file in snap.
func (o *orchestrator) collectSources(ctx context.Context, root m.Path, snap trace.Snapshot) (map[string][]string, map[string]string, error) {
	var (
		mu      sync.Mutex
		sources = make(map[string][]string)
		hashes  = make(map[string]string)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.threads)

	seen := make(map[string]bool)

	for _, fn := range snap.Funcs {
		if fn.File == "" || seen[fn.File] {
			continue
		}

		seen[fn.File] = true
		file := fn.File

		g.Go(func() error {
			full := o.fsAdapter.JoinPath(ctx, string(root), filepath.FromSlash(file))

			data, err := o.fsAdapter.ReadFile(ctx, full)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			hash, err := o.fsAdapter.HashFile(ctx, full)
			if err != nil {
				return fmt.Errorf("failed to hash %s: %w", file, err)
			}

			lines, err := zeitdieb.SplitLines(data)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			mu.Lock()
			sources[file] = lines
			hashes[file] = hash
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return sources, hashes, nil
}

// cleanupTempDir removes the temporary directory, logging errors if cleanup fails.
func (o *orchestrator) cleanupTempDir(ctx context.Context, tmpDir m.Path) {
	if err := o.fsAdapter.RemoveAll(ctx, tmpDir); err != nil {
		slog.Error("Failed to cleanup temp dir", "tmpDir", tmpDir, "error", err)
	}
}

type probeData struct {
	ImportPath string
	Targets    []string
	EnvVar     string
}

type testMainData struct {
	Package     string
	ProbeName   string
	ProbeImport string
}

func renderTemplate(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}

	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to format %s: %w", name, err)
	}

	return out, nil
}

func isTestFile(rel string) bool {
	return strings.HasSuffix(rel, "_test.go")
}
