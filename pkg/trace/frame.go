package trace

import "runtime"

// Frame is one traced call of a callable. A Frame belongs to the goroutine
// that entered it.
type Frame struct {
	tracer *Tracer
	fn     *FuncInfo
	gid    uint64
	target bool
	clock  LineClock
	line   int
	done   bool
}

// Line reports that line n of the frame's callable is about to execute.
// The time since the previous line event is attributed to that previous line.
func (f *Frame) Line(n int) {
	if f == nil {
		return
	}

	t := f.tracer

	t.mu.Lock()
	defer t.mu.Unlock()

	if f.done || t.closed {
		return
	}

	elapsed, ok := f.clock.Tick()
	if ok && f.line > 0 {
		t.rec.Record(f.fn, f.line, elapsed)
	}

	f.line = n
}

// Mark is Line for the caller's source line.
func (f *Frame) Mark() {
	if f == nil {
		return
	}

	_, _, line, ok := runtime.Caller(1)
	if !ok {
		return
	}

	f.Line(line)
}

// Exit closes the frame. The time since the last line event goes to that line.
func (f *Frame) Exit() {
	if f == nil {
		return
	}

	t := f.tracer

	t.mu.Lock()
	defer t.mu.Unlock()

	if f.done || t.closed {
		return
	}

	t.exit(f)
}

// Func returns the callable the frame belongs to.
func (f *Frame) Func() *FuncInfo {
	if f == nil {
		return nil
	}

	return f.fn
}

// flush attributes the pending interval to the current line and marks the
// frame done. Callers hold f.tracer.mu.
func (f *Frame) flush() {
	if f.done {
		return
	}

	if f.line > 0 && f.clock.Armed() {
		elapsed, _ := f.clock.Tick()
		f.tracer.rec.Record(f.fn, f.line, elapsed)
	}

	f.done = true
}
