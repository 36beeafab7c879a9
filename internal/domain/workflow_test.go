package domain_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"zeitdieb.dev/pkg/zeitdieb/internal/adapter"
	"zeitdieb.dev/pkg/zeitdieb/internal/controller"
	"zeitdieb.dev/pkg/zeitdieb/internal/domain"
	domainmocks "zeitdieb.dev/pkg/zeitdieb/internal/domain/mocks"
	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
	"zeitdieb.dev/pkg/zeitdieb/pkg/trace"
	"zeitdieb.dev/pkg/zeitdieb/pkg/zeitdieb"
)

type workflowFixture struct {
	workflow     domain.Workflow
	orchestrator *domainmocks.MockOrchestrator
	store        adapter.ProfileStore
	out          *bytes.Buffer
	errOut       *bytes.Buffer
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()

	cmd := &cobra.Command{}
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	fsAdapter := adapter.NewLocalSourceFSAdapter()
	store := adapter.NewProfileStore()
	orch := domainmocks.NewMockOrchestrator(t)

	return &workflowFixture{
		workflow: domain.NewWorkflow(
			fsAdapter,
			store,
			controller.NewSimpleUI(cmd),
			nil,
			orch,
			domain.NewInstrumenter(adapter.NewLocalGoFileAdapter()),
		),
		orchestrator: orch,
		store:        store,
		out:          out,
		errOut:       errOut,
	}
}

func sampleProfile() *m.Profile {
	return &m.Profile{
		Version: m.ProfileVersion,
		Command: []string{"./app"},
		Targets: []string{"main:work"},
		Snapshot: trace.Snapshot{
			Funcs: []trace.FuncInfo{{Name: "main:work", File: "main.go", StartLine: 1, EndLine: 3}},
			Entries: []trace.Entry{
				{Key: trace.LineKey{Func: "main:work", File: "main.go", Line: 2}, Stat: trace.LineStat{Hits: 2, Total: 400 * time.Millisecond}},
			},
		},
		Sources: map[string][]string{"main.go": {"func work() {", "\tslow()", "}"}},
	}
}

const sampleReport = "Timings in main:work:\n" +
	"      1 func work() {\n" +
	"0.400 2     slow()\n" +
	"      3 }\n" +
	"─────\n" +
	"0.400\n"

func TestWorkflow_Run(t *testing.T) {
	fx := newWorkflowFixture(t)
	savePath := m.Path(filepath.Join(t.TempDir(), "run.zdb"))
	unknown := &zeitdieb.TargetError{Target: "main:gone", Err: zeitdieb.ErrUnknownTarget}

	fx.orchestrator.On("Profile", mock.Anything, mock.MatchedBy(func(req domain.RunRequest) bool {
		return req.Dir == "./app" &&
			len(req.Targets) == 2 &&
			req.Targets[0] == "main:work" &&
			req.Targets[1] == "main:gone" &&
			req.Parallel == 2 &&
			len(req.Args) == 1 && req.Args[0] == "-n"
	})).Return(&domain.RunResult{Profile: sampleProfile(), TargetErr: unknown}, nil)

	err := fx.workflow.Run(context.Background(), domain.RunArgs{
		Dir:      "./app",
		Args:     []string{"-n"},
		Targets:  "main:{work,gone}",
		Parallel: 2,
		Save:     savePath,
	})
	require.NoError(t, err)

	assert.Equal(t, sampleReport, fx.out.String())
	assert.Contains(t, fx.errOut.String(), `warning: zeitdieb: target "main:gone": no such callable`)
	assert.Contains(t, fx.errOut.String(), "saved profile to "+string(savePath))

	saved, err := fx.store.LoadProfile(context.Background(), savePath)
	require.NoError(t, err)
	assert.Equal(t, sampleProfile().Snapshot, saved.Snapshot)
}

func TestWorkflow_RunStatsAndFormat(t *testing.T) {
	fx := newWorkflowFixture(t)

	fx.orchestrator.On("Profile", mock.Anything, mock.Anything).
		Return(&domain.RunResult{Profile: sampleProfile()}, nil)

	err := fx.workflow.Run(context.Background(), domain.RunArgs{
		Dir:         ".",
		DisplayArgs: domain.DisplayArgs{Format: "3b", Stats: true},
	})
	require.NoError(t, err)

	assert.Contains(t, fx.out.String(), "███ 2     slow()")
	assert.Contains(t, fx.out.String(), "TOTAL LINES 1")
}

func TestWorkflow_RunProgramFailed(t *testing.T) {
	fx := newWorkflowFixture(t)

	profile := sampleProfile()
	profile.ExitCode = 3
	fx.orchestrator.On("Profile", mock.Anything, mock.Anything).Return(&domain.RunResult{Profile: profile}, nil)

	err := fx.workflow.Run(context.Background(), domain.RunArgs{Dir: "."})

	var exitErr *domain.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, sampleReport, fx.out.String(), "the report is shown before failing")
}

func TestWorkflow_RunErrors(t *testing.T) {
	t.Run("bad format", func(t *testing.T) {
		fx := newWorkflowFixture(t)

		err := fx.workflow.Run(context.Background(), domain.RunArgs{Dir: ".", DisplayArgs: domain.DisplayArgs{Format: "5x"}})

		var formatErr *zeitdieb.FormatError
		require.ErrorAs(t, err, &formatErr)
		fx.orchestrator.AssertNotCalled(t, "Profile", mock.Anything, mock.Anything)
	})

	t.Run("only malformed targets", func(t *testing.T) {
		fx := newWorkflowFixture(t)

		err := fx.workflow.Run(context.Background(), domain.RunArgs{Dir: ".", Targets: "nocolon"})
		require.ErrorIs(t, err, zeitdieb.ErrMalformedTarget)
	})

	t.Run("some malformed targets", func(t *testing.T) {
		fx := newWorkflowFixture(t)

		fx.orchestrator.On("Profile", mock.Anything, mock.MatchedBy(func(req domain.RunRequest) bool {
			return len(req.Targets) == 1 && req.Targets[0] == "main:work"
		})).Return(&domain.RunResult{Profile: sampleProfile()}, nil)

		err := fx.workflow.Run(context.Background(), domain.RunArgs{Dir: ".", Targets: "nocolon,main:work"})
		require.NoError(t, err)
		assert.Contains(t, fx.errOut.String(), `target "nocolon"`)
	})

	t.Run("malformed braces keep valid targets", func(t *testing.T) {
		fx := newWorkflowFixture(t)

		fx.orchestrator.On("Profile", mock.Anything, mock.MatchedBy(func(req domain.RunRequest) bool {
			return len(req.Targets) == 1 && req.Targets[0] == "main:work"
		})).Return(&domain.RunResult{Profile: sampleProfile()}, nil)

		err := fx.workflow.Run(context.Background(), domain.RunArgs{Dir: ".", Targets: "main:work,main:{a,b"})
		require.NoError(t, err)
		assert.Equal(t, sampleReport, fx.out.String())
		assert.Contains(t, fx.errOut.String(), `target "main:{a,b"`)
	})

	t.Run("only malformed braces", func(t *testing.T) {
		fx := newWorkflowFixture(t)

		err := fx.workflow.Run(context.Background(), domain.RunArgs{Dir: ".", Targets: "main:{a,b"})

		var targetErr *zeitdieb.TargetError
		require.ErrorAs(t, err, &targetErr)
		assert.Equal(t, "main:{a,b", targetErr.Target)
		fx.orchestrator.AssertNotCalled(t, "Profile", mock.Anything, mock.Anything)
	})

	t.Run("profiling fails", func(t *testing.T) {
		fx := newWorkflowFixture(t)

		fx.orchestrator.On("Profile", mock.Anything, mock.Anything).
			Return(&domain.RunResult{Workspace: "/tmp/zeitdieb-run-1"}, domain.ErrNoProfile)

		err := fx.workflow.Run(context.Background(), domain.RunArgs{Dir: "./app", Keep: true})
		require.ErrorIs(t, err, domain.ErrNoProfile)
		assert.Contains(t, err.Error(), "profile ./app")
		assert.Contains(t, fx.errOut.String(), "instrumented workspace kept at /tmp/zeitdieb-run-1")
	})
}

func TestWorkflow_View(t *testing.T) {
	fx := newWorkflowFixture(t)
	ctx := context.Background()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o600))

	profile := sampleProfile()
	profile.Root = root
	profile.Hashes = map[string]string{"main.go": "0000", "gone.go": "1111"}

	path := m.Path(filepath.Join(t.TempDir(), "view.zdb"))
	require.NoError(t, fx.store.SaveProfile(ctx, path, profile))

	require.NoError(t, fx.workflow.View(ctx, domain.ViewArgs{Profile: path}))

	assert.Equal(t, sampleReport, fx.out.String())
	assert.Equal(t, "changed since profiling, showing recorded source: main.go\n", fx.errOut.String())
}

func TestWorkflow_ViewMissingProfile(t *testing.T) {
	fx := newWorkflowFixture(t)

	err := fx.workflow.View(context.Background(), domain.ViewArgs{Profile: m.Path(filepath.Join(t.TempDir(), "none.zdb"))})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWorkflow_List(t *testing.T) {
	fx := newWorkflowFixture(t)

	fx.orchestrator.On("Scan", mock.Anything, m.Path(".")).Return(&domain.Module{
		Path: "example.com/basic",
		Packages: []m.Package{
			{ID: "main", Funcs: []m.Func{{Name: "main:main", Kind: m.KindFunc, File: "main.go", StartLine: 10, EndLine: 13}}},
			{ID: "example.com/basic/store", Funcs: []m.Func{{Name: "example.com/basic/store:New", Kind: m.KindFunc, File: "store/store.go", StartLine: 10, EndLine: 12}}},
		},
	}, nil)

	require.NoError(t, fx.workflow.List(context.Background(), domain.ListArgs{Dir: ".", Filter: "store"}))

	assert.Contains(t, fx.out.String(), "example.com/basic/store:New")
	assert.NotContains(t, fx.out.String(), "main:main")
	assert.Contains(t, fx.out.String(), "TOTAL FUNCTIONS 1")
}

func TestWorkflow_Instrument(t *testing.T) {
	file := m.Path(filepath.Join("..", "..", "examples", "basic", "main.go"))

	t.Run("source", func(t *testing.T) {
		fx := newWorkflowFixture(t)

		require.NoError(t, fx.workflow.Instrument(context.Background(), domain.InstrumentArgs{File: file}))
		assert.Contains(t, fx.out.String(), "func main() {defer zeitdiebprobe.Flush();")
	})

	t.Run("diff", func(t *testing.T) {
		fx := newWorkflowFixture(t)

		require.NoError(t, fx.workflow.Instrument(context.Background(), domain.InstrumentArgs{File: file, Diff: true}))

		diff := fx.out.String()
		assert.Contains(t, diff, "--- a/main.go\n+++ b/main.go\n")
		assert.Contains(t, diff, "-\ttotal := work(3)\n")
		assert.Contains(t, diff, "+\t__zdf.Line(11);total := work(3)\n")
		assert.NotContains(t, diff, "-import (", "unchanged lines stay out of the diff")
	})
}
