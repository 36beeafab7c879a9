// Package zeitdieb measures how long each source line of a code scope takes.
//
// A StopWatch owns one tracer and one aggregator for the duration of a
// scope. Code under measurement reports its lines through frames:
//
//	sw := zeitdieb.New()
//	err := sw.Measure(func() error {
//		f := sw.Enter()
//		defer f.Exit()
//
//		f.Mark()
//		step()
//		f.Mark()
//		return other()
//	})
//	out, err := sw.Render("7b:0.3,0.1")
package zeitdieb

import (
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"zeitdieb.dev/pkg/zeitdieb/pkg/trace"
)

// State is the lifecycle stage of a StopWatch.
type State int

// StopWatch states.
const (
	Idle State = iota
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Finished:
		return "finished"
	}

	return "unknown"
}

// Option configures a StopWatch.
type Option func(*StopWatch)

// WithTargets restricts tracing to the selected callables and their callees.
func WithTargets(sel TargetSelector) Option {
	return func(sw *StopWatch) {
		sw.targets = sel
	}
}

// WithFormat sets the format used by String and by Render("").
func WithFormat(text string) Option {
	return func(sw *StopWatch) {
		sw.format = text
	}
}

// WithSource sets where rendered source text comes from.
func WithSource(src SourceProvider) Option {
	return func(sw *StopWatch) {
		sw.source = src
	}
}

// WithPalette sets the palette used for rendering.
func WithPalette(p Palette) Option {
	return func(sw *StopWatch) {
		sw.palette = p
	}
}

// WithClock replaces the time source.
func WithClock(c trace.Clock) Option {
	return func(sw *StopWatch) {
		sw.clock = c
	}
}

// WithAnyGoroutine traces frames entered on any goroutine instead of only
// the goroutine that called Start.
func WithAnyGoroutine() Option {
	return func(sw *StopWatch) {
		sw.anyGoroutine = true
	}
}

// StopWatch measures one scope. It is started once, finished once and can
// then be rendered any number of times.
type StopWatch struct {
	targets      TargetSelector
	format       string
	source       SourceProvider
	palette      Palette
	clock        trace.Clock
	anyGoroutine bool

	mu       sync.Mutex
	state    State
	agg      *trace.Aggregator
	tracer   *trace.Tracer
	snapshot trace.Snapshot
	funcs    map[uintptr]*trace.FuncInfo
}

// New returns an idle StopWatch.
func New(opts ...Option) *StopWatch {
	sw := &StopWatch{
		source:  NewFileSource(""),
		palette: PlainPalette{},
		clock:   trace.SystemClock,
		funcs:   make(map[uintptr]*trace.FuncInfo),
	}

	for _, opt := range opts {
		opt(sw)
	}

	return sw
}

// State returns the lifecycle stage.
func (sw *StopWatch) State() State {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	return sw.state
}

// Targets returns the target selector.
func (sw *StopWatch) Targets() TargetSelector {
	return sw.targets
}

// Start installs the tracer on the calling goroutine.
func (sw *StopWatch) Start() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.state != Idle {
		return &UsageError{Op: "start", State: sw.state}
	}

	opts := []trace.Option{trace.WithTargets(sw.targets...), trace.WithClock(sw.clock)}
	if sw.anyGoroutine {
		opts = append(opts, trace.AnyGoroutine())
	}

	sw.agg = trace.NewAggregator()
	sw.tracer = trace.NewTracer(sw.agg, opts...)
	sw.state = Running

	slog.Debug("stopwatch started", "targets", sw.targets.String())

	return nil
}

// Finish uninstalls the tracer and freezes the statistics. Finishing a
// finished StopWatch does nothing, so Finish is safe in deferred cleanup.
func (sw *StopWatch) Finish() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	switch sw.state {
	case Idle:
		return &UsageError{Op: "finish", State: sw.state}
	case Finished:
		return nil
	case Running:
	}

	sw.tracer.Close()
	sw.snapshot = sw.agg.Snapshot()
	sw.state = Finished

	slog.Debug("stopwatch finished", "lines", len(sw.snapshot.Entries))

	return nil
}

// Measure runs fn between Start and Finish. Finish runs on every exit path;
// errors and panics from fn reach the caller unchanged.
func (sw *StopWatch) Measure(fn func() error) (err error) {
	if err := sw.Start(); err != nil {
		return err
	}

	defer func() {
		if finishErr := sw.Finish(); finishErr != nil && err == nil {
			err = finishErr
		}
	}()

	return fn()
}

// Enter opens a frame for the calling function. It returns nil (a valid
// no-op frame) when sw is nil, not running, or the caller is out of scope.
func (sw *StopWatch) Enter() *trace.Frame {
	if sw == nil {
		return nil
	}

	pc, file, _, ok := runtime.Caller(1)
	if !ok {
		return nil
	}

	return sw.EnterFunc(sw.funcInfo(pc, file))
}

// EnterFunc opens a frame for fn.
func (sw *StopWatch) EnterFunc(fn *trace.FuncInfo) *trace.Frame {
	if sw == nil {
		return nil
	}

	sw.mu.Lock()
	tracer := sw.tracer
	running := sw.state == Running
	sw.mu.Unlock()

	if !running {
		return nil
	}

	return tracer.Enter(fn)
}

func (sw *StopWatch) funcInfo(pc uintptr, file string) *trace.FuncInfo {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return &trace.FuncInfo{Name: "unknown:unknown", File: file}
	}

	entry := fn.Entry()

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if info, ok := sw.funcs[entry]; ok {
		return info
	}

	_, start := fn.FileLine(entry)
	info := &trace.FuncInfo{
		Name:      FuncIdentity(fn.Name()),
		File:      file,
		StartLine: start,
	}
	sw.funcs[entry] = info

	return info
}

// Snapshot returns the frozen statistics of a finished StopWatch.
func (sw *StopWatch) Snapshot() (trace.Snapshot, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.state != Finished {
		return trace.Snapshot{}, &UsageError{Op: "snapshot", State: sw.state}
	}

	return sw.snapshot, nil
}

// Render renders the finished StopWatch with format text; "" selects the
// StopWatch's default format. Rendering never re-runs measured code.
func (sw *StopWatch) Render(format string) (string, error) {
	if strings.TrimSpace(format) == "" {
		format = sw.format
	}

	spec, err := ParseFormat(format)
	if err != nil {
		return "", err
	}

	return sw.RenderSpec(spec)
}

// RenderSpec renders the finished StopWatch with a parsed spec.
func (sw *StopWatch) RenderSpec(spec FormatSpec) (string, error) {
	snap, err := sw.Snapshot()
	if err != nil {
		return "", &UsageError{Op: "render", State: sw.State()}
	}

	r := Renderer{Source: sw.source, Palette: sw.palette}

	return r.Render(snap, spec), nil
}

// String renders with the default format.
func (sw *StopWatch) String() string {
	if sw.State() != Finished {
		return "<StopWatch (unfinished)>"
	}

	out, err := sw.Render("")
	if err != nil {
		return "<StopWatch (" + err.Error() + ")>"
	}

	return out
}

// FuncIdentity converts a runtime function name such as
// "example.com/x/store.(*DB).Get" into the target form
// "example.com/x/store:DB.Get".
func FuncIdentity(runtimeName string) string {
	slash := strings.LastIndexByte(runtimeName, '/')

	dot := strings.IndexByte(runtimeName[slash+1:], '.')
	if dot < 0 {
		return runtimeName
	}

	dot += slash + 1
	module, callable := runtimeName[:dot], runtimeName[dot+1:]

	callable = strings.TrimSuffix(callable, "-fm")
	callable = strings.ReplaceAll(callable, "(*", "")
	callable = strings.ReplaceAll(callable, ")", "")

	if open := strings.IndexByte(callable, '['); open >= 0 {
		if end := strings.LastIndexByte(callable, ']'); end > open {
			callable = callable[:open] + callable[end+1:]
		}
	}

	return module + ":" + callable
}
