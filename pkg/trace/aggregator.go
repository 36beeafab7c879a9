package trace

import (
	"sync"
	"time"
)

// Recorder receives the time attributed to one execution of a line.
type Recorder interface {
	Record(fn *FuncInfo, line int, elapsed time.Duration)
}

// Aggregator accumulates per-line statistics in the order lines are first
// recorded, which is when their first interval closes.
type Aggregator struct {
	mu      sync.Mutex
	funcs   []FuncInfo
	seen    map[string]int
	index   map[LineKey]int
	entries []Entry
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		seen:  make(map[string]int),
		index: make(map[LineKey]int),
	}
}

// Record implements Recorder.
func (a *Aggregator) Record(fn *FuncInfo, line int, elapsed time.Duration) {
	if fn == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if i, ok := a.seen[fn.Name]; !ok {
		a.seen[fn.Name] = len(a.funcs)
		a.funcs = append(a.funcs, *fn)
	} else if fn.EndLine > a.funcs[i].EndLine {
		a.funcs[i].EndLine = fn.EndLine
	}

	key := LineKey{Func: fn.Name, File: fn.File, Line: line}

	i, ok := a.index[key]
	if !ok {
		i = len(a.entries)
		a.index[key] = i
		a.entries = append(a.entries, Entry{Key: key})
	}

	a.entries[i].Stat.add(elapsed)
}

// Len returns the number of distinct lines recorded.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.entries)
}

// Snapshot returns a copy of the statistics that later Records do not affect.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Funcs:   make([]FuncInfo, len(a.funcs)),
		Entries: make([]Entry, len(a.entries)),
	}
	copy(snap.Funcs, a.funcs)
	copy(snap.Entries, a.entries)

	return snap
}
