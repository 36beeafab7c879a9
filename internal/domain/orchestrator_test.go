package domain

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zeitdieb.dev/pkg/zeitdieb/internal/adapter"
	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
	"zeitdieb.dev/pkg/zeitdieb/pkg/trace"
	"zeitdieb.dev/pkg/zeitdieb/pkg/zeitdieb"
)

// fakeRunner stands in for the go tool: it records the invocation and
// writes snap where the probe would.
type fakeRunner struct {
	spec     adapter.RunSpec
	snap     *trace.Snapshot
	exitCode int
	staged   map[string]string
}

func (r *fakeRunner) Run(_ context.Context, spec adapter.RunSpec) (int, error) {
	r.spec = spec
	r.staged = make(map[string]string)

	_ = filepath.Walk(spec.Dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(p) != ".go" {
			return err
		}

		rel, _ := filepath.Rel(spec.Dir, p)
		data, _ := os.ReadFile(p)
		r.staged[filepath.ToSlash(rel)] = string(data)

		return nil
	})

	if r.snap != nil {
		path := strings.TrimPrefix(spec.Env[0], ProfileEnv+"=")

		data, err := json.Marshal(r.snap)
		if err != nil {
			return -1, err
		}

		if err := os.WriteFile(path, data, 0o600); err != nil {
			return -1, err
		}
	}

	if r.exitCode != 0 {
		return r.exitCode, errors.New("exit status")
	}

	return 0, nil
}

func examplesDir(t *testing.T, name string) m.Path {
	t.Helper()

	dir, err := filepath.Abs(filepath.Join("..", "..", "examples", name))
	require.NoError(t, err)

	return m.Path(dir)
}

func workSnapshot() *trace.Snapshot {
	return &trace.Snapshot{
		Funcs: []trace.FuncInfo{{Name: "main:work", File: "main.go", StartLine: 15, EndLine: 27}},
		Entries: []trace.Entry{
			{Key: trace.LineKey{Func: "main:work", File: "main.go", Line: 16}, Stat: trace.LineStat{Hits: 1, Total: time.Millisecond}},
			{Key: trace.LineKey{Func: "main:work", File: "main.go", Line: 20}, Stat: trace.LineStat{Hits: 1, Total: 10 * time.Millisecond}},
		},
	}
}

func newTestOrchestrator(runner adapter.GoRunnerAdapter) Orchestrator {
	return NewOrchestrator(adapter.NewLocalSourceFSAdapter(), adapter.NewLocalGoFileAdapter(), runner)
}

func TestOrchestrator_Scan(t *testing.T) {
	orch := newTestOrchestrator(&fakeRunner{})

	mod, err := orch.Scan(context.Background(), examplesDir(t, "basic"))
	require.NoError(t, err)

	assert.Equal(t, "example.com/basic", mod.Path)
	require.Len(t, mod.Packages, 2)

	mainPkg := mod.Packages[0]
	assert.Equal(t, m.Path("."), mainPkg.Dir)
	assert.Equal(t, "main", mainPkg.ID)

	var names []string
	for _, fn := range mod.Funcs() {
		names = append(names, fn.Name)
	}

	assert.Equal(t, []string{
		"main:main",
		"main:work",
		"main:work.func1",
		"example.com/basic/store:New",
		"example.com/basic/store:Store.Put",
		"example.com/basic/store:Store.Len",
	}, names)

	store, ok := mod.Package("store")
	require.True(t, ok)
	assert.Equal(t, "store", store.Name)
	assert.False(t, store.HasTestMain)
	assert.Len(t, store.Files, 1)
}

func TestOrchestrator_Profile(t *testing.T) {
	runner := &fakeRunner{snap: workSnapshot()}
	orch := newTestOrchestrator(runner)

	targets, err := zeitdieb.ParseTargets("main:work,main:nope")
	require.NoError(t, err)

	result, err := orch.Profile(context.Background(), RunRequest{
		Dir:     examplesDir(t, "basic"),
		Args:    []string{"-v"},
		Targets: targets,
		Keep:    true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(string(result.Workspace)) })

	var targetErr *zeitdieb.TargetError
	require.ErrorAs(t, result.TargetErr, &targetErr)
	assert.Equal(t, "main:nope", targetErr.Target)

	assert.Equal(t, []string{"run", ".", "-v"}, runner.spec.Args)
	assert.Equal(t, string(result.Workspace), runner.spec.Dir)

	assert.Contains(t, runner.staged["main.go"], "\t__zdf.Line(11);total := work(3)")
	assert.Contains(t, runner.staged["store/store.go"], `import zeitdiebprobe "example.com/basic/internal/zeitdiebprobe"`)
	assert.NotContains(t, runner.staged["store/store_test.go"], "zeitdiebprobe")
	assert.Contains(t, runner.staged[ProbeDir+"/probe.go"], `trace.WithTargets("main:work")`)
	assert.Contains(t, runner.staged[ProbeDir+"/trace/tracer.go"], "func NewTracer(")

	profile := result.Profile
	require.NotNil(t, profile)
	assert.Equal(t, m.ProfileVersion, profile.Version)
	assert.Equal(t, []string{".", "-v"}, profile.Command)
	assert.Equal(t, []string{"main:work"}, profile.Targets)
	assert.Equal(t, *workSnapshot(), profile.Snapshot)
	assert.Equal(t, "\ttotal := work(3)", profile.Sources["main.go"][10])
	assert.Len(t, profile.Hashes["main.go"], 64)
}

func TestOrchestrator_ProfileCleansUp(t *testing.T) {
	runner := &fakeRunner{snap: workSnapshot()}
	orch := newTestOrchestrator(runner)

	result, err := orch.Profile(context.Background(), RunRequest{Dir: examplesDir(t, "basic")})
	require.NoError(t, err)
	assert.Empty(t, result.Workspace)

	_, statErr := os.Stat(runner.spec.Dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOrchestrator_ProfileTests(t *testing.T) {
	runner := &fakeRunner{snap: &trace.Snapshot{}, exitCode: 1}
	orch := newTestOrchestrator(runner)

	result, err := orch.Profile(context.Background(), RunRequest{
		Dir:  m.Path(filepath.Join(string(examplesDir(t, "basic")), "store")),
		Test: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"test", "./store"}, runner.spec.Args)
	assert.Contains(t, runner.staged["store/"+testMainFile], "zeitdiebprobe.Flush()")
	assert.Contains(t, runner.staged["store/"+testMainFile], "package store")
	assert.Equal(t, 1, result.Profile.ExitCode)
	assert.True(t, result.Profile.Snapshot.Empty())
}

func TestOrchestrator_ProfileErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) RunRequest
		snap    *trace.Snapshot
		wantErr error
		errText string
	}{
		{
			name: "existing TestMain",
			req: func(t *testing.T) RunRequest {
				return RunRequest{Dir: examplesDir(t, "testmain"), Test: true}
			},
			wantErr: ErrTestMainExists,
		},
		{
			name: "no profile written",
			req: func(t *testing.T) RunRequest {
				return RunRequest{Dir: examplesDir(t, "basic")}
			},
			wantErr: ErrNoProfile,
		},
		{
			name: "only unknown targets",
			req: func(t *testing.T) RunRequest {
				return RunRequest{Dir: examplesDir(t, "basic"), Targets: zeitdieb.TargetSelector{"main:nope"}}
			},
			snap:    workSnapshot(),
			wantErr: zeitdieb.ErrUnknownTarget,
		},
		{
			name: "not a package",
			req: func(t *testing.T) RunRequest {
				return RunRequest{Dir: m.Path(t.TempDir())}
			},
			errText: "go.mod not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := newTestOrchestrator(&fakeRunner{snap: tt.snap})

			_, err := orch.Profile(context.Background(), tt.req(t))
			require.Error(t, err)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}

			if tt.errText != "" {
				assert.Contains(t, err.Error(), tt.errText)
			}
		})
	}
}

func TestRenderTemplate_Probe(t *testing.T) {
	out, err := renderTemplate("probe.go.tmpl", probeData{
		ImportPath: "example.com/x/internal/zeitdiebprobe",
		Targets:    []string{"main:a", "main:b"},
		EnvVar:     ProfileEnv,
	})
	require.NoError(t, err)

	src := string(out)
	assert.Contains(t, src, `"example.com/x/internal/zeitdiebprobe/trace"`)
	assert.Contains(t, src, `trace.WithTargets("main:a", "main:b")`)
	assert.Contains(t, src, `os.Getenv("ZEITDIEB_PROFILE")`)

	out, err = renderTemplate("probe.go.tmpl", probeData{ImportPath: "x/internal/zeitdiebprobe", EnvVar: ProfileEnv})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "WithTargets")
}
