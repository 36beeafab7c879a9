package domain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fortio.org/safecast"
	"github.com/pmezard/go-difflib/difflib"

	"zeitdieb.dev/pkg/zeitdieb/internal/adapter"
	"zeitdieb.dev/pkg/zeitdieb/internal/controller"
	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
	"zeitdieb.dev/pkg/zeitdieb/pkg/zeitdieb"
)

// ExitError reports that the profiled program exited unsuccessfully. Its
// report has been shown already.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("profiled program exited with status %d", e.Code)
}

// DisplayArgs control how a report is shown.
type DisplayArgs struct {
	Format string
	Color  bool
	// Stats adds the per-line statistics table.
	Stats bool
	// Interactive opens the report in the pager.
	Interactive bool
}

// RunArgs contains the arguments for profiling a package.
type RunArgs struct {
	DisplayArgs

	// Dir is the package directory.
	Dir  m.Path
	Args []string
	// Targets is a comma separated target list, braces allowed.
	Targets  string
	Test     bool
	Keep     bool
	Save     m.Path
	Parallel uint
	Timeout  time.Duration

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// ViewArgs contains the arguments for re-rendering a saved profile.
type ViewArgs struct {
	DisplayArgs

	Profile m.Path
}

// ListArgs contains the arguments for listing traceable callables.
type ListArgs struct {
	Dir m.Path
	// Filter keeps the callables whose target name contains it.
	Filter string
}

// InstrumentArgs contains the arguments for showing an instrumented file.
type InstrumentArgs struct {
	File m.Path
	// Diff prints a unified diff against the original instead of the source.
	Diff bool
}

// Workflow defines the use cases of the zeitdieb CLI.
type Workflow interface {
	Run(ctx context.Context, args RunArgs) error
	View(ctx context.Context, args ViewArgs) error
	List(ctx context.Context, args ListArgs) error
	Instrument(ctx context.Context, args InstrumentArgs) error
}

type workflow struct {
	adapter.SourceFSAdapter
	adapter.ProfileStore
	Orchestrator

	instrumenter Instrumenter
	ui           controller.UI
	pager        controller.UI
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
// pager shows interactive reports; it may be nil.
func NewWorkflow(
	fsAdapter adapter.SourceFSAdapter,
	profileStore adapter.ProfileStore,
	ui controller.UI,
	pager controller.UI,
	orchestrator Orchestrator,
	instrumenter Instrumenter,
) Workflow {
	return &workflow{
		SourceFSAdapter: fsAdapter,
		ProfileStore:    profileStore,
		Orchestrator:    orchestrator,
		instrumenter:    instrumenter,
		ui:              ui,
		pager:           pager,
	}
}

// Run profiles a package, shows its report and optionally saves it.
func (w *workflow) Run(ctx context.Context, args RunArgs) error {
	spec, err := zeitdieb.ParseFormat(args.Format)
	if err != nil {
		return err
	}

	targets, err := w.parseTargets(ctx, args.Targets)
	if err != nil {
		return err
	}

	parallel, err := safecast.Conv[int](args.Parallel)
	if err != nil {
		return fmt.Errorf("invalid parallelism %d: %w", args.Parallel, err)
	}

	if args.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, args.Timeout)
		defer cancel()
	}

	result, err := w.Profile(ctx, RunRequest{
		Dir:      args.Dir,
		Args:     args.Args,
		Targets:  targets,
		Test:     args.Test,
		Keep:     args.Keep,
		Parallel: parallel,
		Stdin:    args.Stdin,
		Stdout:   args.Stdout,
		Stderr:   args.Stderr,
	})
	if result != nil && result.Workspace != "" {
		w.ui.DisplayNotice(ctx, "instrumented workspace kept at %s", result.Workspace)
	}

	if err != nil {
		slog.Error("Profiling failed", "dir", args.Dir, "error", err)
		return fmt.Errorf("profile %s: %w", args.Dir, err)
	}

	if result.TargetErr != nil {
		w.ui.DisplayWarning(ctx, result.TargetErr)
	}

	profile := result.Profile

	if args.Save != "" {
		if err := w.SaveProfile(ctx, args.Save, profile); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}

		w.ui.DisplayNotice(ctx, "saved profile to %s", args.Save)
	}

	if err := w.display(ctx, profile, spec, args.DisplayArgs); err != nil {
		return err
	}

	if profile.ExitCode != 0 {
		return &ExitError{Code: profile.ExitCode}
	}

	return nil
}

// parseTargets reports malformed targets as warnings. It fails only when
// targets were given and none of them is usable.
func (w *workflow) parseTargets(ctx context.Context, text string) (zeitdieb.TargetSelector, error) {
	targets, err := zeitdieb.ParseTargets(text)
	if err == nil {
		return targets, nil
	}

	if targets.Empty() {
		return nil, fmt.Errorf("invalid targets: %w", err)
	}

	w.ui.DisplayWarning(ctx, err)

	return targets, nil
}

// View re-renders a saved profile.
func (w *workflow) View(ctx context.Context, args ViewArgs) error {
	spec, err := zeitdieb.ParseFormat(args.Format)
	if err != nil {
		return err
	}

	profile, err := w.LoadProfile(ctx, args.Profile)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	if changed := w.changedFiles(ctx, profile); len(changed) > 0 {
		w.ui.DisplayNotice(ctx, "changed since profiling, showing recorded source: %s", strings.Join(changed, ", "))
	}

	return w.display(ctx, profile, spec, args.DisplayArgs)
}

// changedFiles lists the profiled files whose content differs from the
// recorded hash. Files that cannot be read are skipped.
func (w *workflow) changedFiles(ctx context.Context, profile *m.Profile) []string {
	if profile.Root == "" {
		return nil
	}

	var changed []string

	for file, recorded := range profile.Hashes {
		hash, err := w.HashFile(ctx, w.JoinPath(ctx, profile.Root, filepath.FromSlash(file)))
		if err != nil {
			slog.Debug("Cannot check profiled file", "file", file, "error", err)
			continue
		}

		if hash != recorded {
			changed = append(changed, file)
		}
	}

	sort.Strings(changed)

	return changed
}

func (w *workflow) display(ctx context.Context, profile *m.Profile, spec zeitdieb.FormatSpec, args DisplayArgs) error {
	report := controller.Report{
		Title:    strings.Join(profile.Command, " "),
		Snapshot: profile.Snapshot,
		Source:   zeitdieb.MapSource(profile.Sources),
		Format:   spec,
		Color:    args.Color,
	}

	ui := w.ui
	if args.Interactive && w.pager != nil {
		ui = w.pager
	}

	if err := ui.DisplayReport(ctx, report); err != nil {
		return fmt.Errorf("display report: %w", err)
	}

	if args.Stats && !profile.Snapshot.Empty() {
		return w.ui.DisplayStats(ctx, profile.Snapshot)
	}

	return nil
}

// List shows the traceable callables of the module containing args.Dir.
func (w *workflow) List(ctx context.Context, args ListArgs) error {
	mod, err := w.Scan(ctx, args.Dir)
	if err != nil {
		return err
	}

	funcs := mod.Funcs()

	if args.Filter != "" {
		kept := funcs[:0]

		for _, fn := range funcs {
			if strings.Contains(fn.Name, args.Filter) {
				kept = append(kept, fn)
			}
		}

		funcs = kept
	}

	return w.ui.DisplayFuncs(ctx, funcs)
}

// Instrument shows how a file is rewritten for profiling.
func (w *workflow) Instrument(ctx context.Context, args InstrumentArgs) error {
	absFile, err := filepath.Abs(string(args.File))
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", args.File, err)
	}

	root, err := w.FindProjectRoot(ctx, m.Path(absFile))
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	modulePath, err := w.ModulePath(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to read module path: %w", err)
	}

	rel, err := w.RelPath(ctx, root, m.Path(absFile))
	if err != nil {
		return err
	}

	src, err := w.ReadFile(ctx, m.Path(absFile))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args.File, err)
	}

	relFile := filepath.ToSlash(string(rel))

	out, err := w.instrumenter.Instrument(ctx, src, InstrumentOptions{ModulePath: modulePath, RelFile: relFile})
	if err != nil {
		return err
	}

	if out.Skipped != "" {
		return fmt.Errorf("%s is not instrumented: %s", relFile, out.Skipped)
	}

	if !args.Diff {
		return w.ui.DisplayText(ctx, string(out.Source))
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(src)),
		B:        difflib.SplitLines(string(out.Source)),
		FromFile: "a/" + relFile,
		ToFile:   "b/" + relFile,
		Context:  1,
	})
	if err != nil {
		return fmt.Errorf("diff %s: %w", relFile, err)
	}

	return w.ui.DisplayText(ctx, diff)
}
