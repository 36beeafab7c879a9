package trace

import "sync"

// Option configures a Tracer.
type Option func(*options)

type options struct {
	targets   map[string]struct{}
	clock     Clock
	goroutine uint64
	bound     bool
	any       bool
}

// WithTargets restricts tracing to frames of the named callables and the
// calls they make. No targets means every entered frame is traced.
func WithTargets(names ...string) Option {
	return func(o *options) {
		for _, name := range names {
			if name == "" {
				continue
			}

			o.targets[name] = struct{}{}
		}
	}
}

// WithClock replaces the time source.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithGoroutine binds the tracer to one goroutine. Frames entered on other
// goroutines are not traced. By default the tracer binds to the goroutine
// that created it.
func WithGoroutine(id uint64) Option {
	return func(o *options) {
		o.goroutine = id
		o.bound = true
		o.any = false
	}
}

// AnyGoroutine traces every goroutine. Each goroutine keeps its own scope.
func AnyGoroutine() Option {
	return func(o *options) {
		o.any = true
	}
}

// scope is the per-goroutine tracing state.
type scope struct {
	// depth counts open frames per target, so recursive calls into a
	// target do not end the scope when the inner call returns.
	depth  map[string]int
	active int
	frames int
}

// Tracer hands out frames for entered callables and routes the time of
// their lines to a Recorder. A Tracer is installed from creation until Close.
type Tracer struct {
	mu     sync.Mutex
	rec    Recorder
	opts   options
	closed bool
	scopes map[uint64]*scope
	open   []*Frame
}

// NewTracer installs a tracer that reports to rec. A nil rec gets a fresh
// Aggregator.
func NewTracer(rec Recorder, opts ...Option) *Tracer {
	o := options{
		targets: make(map[string]struct{}),
		clock:   SystemClock,
	}

	for _, opt := range opts {
		opt(&o)
	}

	if !o.any && !o.bound {
		o.goroutine = CurrentGoroutine()
	}

	if rec == nil {
		rec = NewAggregator()
	}

	return &Tracer{
		rec:    rec,
		opts:   o,
		scopes: make(map[uint64]*scope),
	}
}

// Recorder returns the Recorder the tracer reports to.
func (t *Tracer) Recorder() Recorder {
	return t.rec
}

// Targets returns the configured target names.
func (t *Tracer) Targets() []string {
	names := make([]string, 0, len(t.opts.targets))
	for name := range t.opts.targets {
		names = append(names, name)
	}

	return names
}

// Enter opens a frame for fn on the calling goroutine. It returns nil when
// the frame is out of scope or the tracer is closed; every Frame method
// accepts a nil receiver.
func (t *Tracer) Enter(fn *FuncInfo) *Frame {
	if t == nil || fn == nil {
		return nil
	}

	gid := CurrentGoroutine()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	if !t.opts.any && gid != t.opts.goroutine {
		return nil
	}

	sc := t.scopes[gid]
	if sc == nil {
		sc = &scope{depth: make(map[string]int)}
	}

	target := false

	if len(t.opts.targets) > 0 {
		if _, ok := t.opts.targets[fn.Name]; ok {
			target = true
		} else if sc.active == 0 {
			return nil
		}
	}

	if target {
		sc.depth[fn.Name]++
		sc.active++
	}

	sc.frames++
	t.scopes[gid] = sc

	f := &Frame{
		tracer: t,
		fn:     fn,
		gid:    gid,
		target: target,
		clock:  NewLineClock(t.opts.clock),
	}
	t.open = append(t.open, f)

	return f
}

// exit must be called with t.mu held.
func (t *Tracer) exit(f *Frame) {
	f.flush()

	for i := len(t.open) - 1; i >= 0; i-- {
		if t.open[i] == f {
			t.open = append(t.open[:i], t.open[i+1:]...)
			break
		}
	}

	sc := t.scopes[f.gid]
	if sc == nil {
		return
	}

	if f.target {
		sc.depth[f.fn.Name]--
		if sc.depth[f.fn.Name] <= 0 {
			delete(sc.depth, f.fn.Name)
		}

		sc.active--
	}

	sc.frames--
	if sc.frames <= 0 {
		delete(t.scopes, f.gid)
	}
}

// Close uninstalls the tracer. Frames still open have their current line
// closed at the time of the call. Close reports whether this call
// uninstalled the tracer; later calls do nothing.
func (t *Tracer) Close() bool {
	if t == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	for _, f := range t.open {
		f.flush()
	}

	t.open = nil
	t.scopes = make(map[uint64]*scope)
	t.closed = true

	return true
}

// Closed reports whether Close has been called.
func (t *Tracer) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closed
}

// OpenFrames returns the number of frames entered and not yet exited.
func (t *Tracer) OpenFrames() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.open)
}
