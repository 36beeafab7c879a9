// Package trace attributes wall-clock time to source lines.
//
// The package has no dependencies outside the standard library: the CLI
// copies its sources into instrumented programs as their probe runtime.
package trace

import "time"

// FuncInfo describes a traced callable.
type FuncInfo struct {
	// Name is the "module-path:Callable" identity, e.g. "main:foo" or
	// "example.com/x/store:(*DB).Get" normalized to "example.com/x/store:DB.Get".
	Name string `json:"name" msgpack:"name"`
	// File is the source file, relative to the module root when known.
	File string `json:"file" msgpack:"file"`
	// StartLine and EndLine bound the callable's source. EndLine is 0 when
	// unknown (hand instrumentation).
	StartLine int `json:"start_line" msgpack:"start_line"`
	EndLine   int `json:"end_line" msgpack:"end_line"`
}

// LineKey identifies a traced source line.
type LineKey struct {
	Func string `json:"func" msgpack:"func"`
	File string `json:"file" msgpack:"file"`
	Line int    `json:"line" msgpack:"line"`
}

// LineStat accumulates the executions of one line.
type LineStat struct {
	Hits  int           `json:"hits" msgpack:"hits"`
	Total time.Duration `json:"total" msgpack:"total"`
	Min   time.Duration `json:"min" msgpack:"min"`
	Max   time.Duration `json:"max" msgpack:"max"`
	Last  time.Duration `json:"last" msgpack:"last"`
}

func (s *LineStat) add(elapsed time.Duration) {
	if s.Hits == 0 || elapsed < s.Min {
		s.Min = elapsed
	}

	if elapsed > s.Max {
		s.Max = elapsed
	}

	s.Hits++
	s.Total += elapsed
	s.Last = elapsed
}

// Mean returns the average time per hit.
func (s LineStat) Mean() time.Duration {
	if s.Hits == 0 {
		return 0
	}

	return s.Total / time.Duration(s.Hits)
}

// Entry pairs a line with its statistics.
type Entry struct {
	Key  LineKey  `json:"key" msgpack:"key"`
	Stat LineStat `json:"stat" msgpack:"stat"`
}

// Snapshot is an ordered, read-only copy of aggregated statistics. Funcs
// and Entries are both in first-recorded order: a line enters when its
// first interval closes, and a callable with its first recorded line. A
// caller line stays open while its callees run, so callees usually come
// before their caller, and reports list callables in this order.
type Snapshot struct {
	Funcs   []FuncInfo `json:"funcs" msgpack:"funcs"`
	Entries []Entry    `json:"entries" msgpack:"entries"`
}

// Func returns the FuncInfo with the given name.
func (s Snapshot) Func(name string) (FuncInfo, bool) {
	for _, fn := range s.Funcs {
		if fn.Name == name {
			return fn, true
		}
	}

	return FuncInfo{}, false
}

// EntriesFor returns the entries recorded for one callable, in first-recorded order.
func (s Snapshot) EntriesFor(name string) []Entry {
	var entries []Entry

	for _, e := range s.Entries {
		if e.Key.Func == name {
			entries = append(entries, e)
		}
	}

	return entries
}

// Total sums the time of every entry.
func (s Snapshot) Total() time.Duration {
	var total time.Duration
	for _, e := range s.Entries {
		total += e.Stat.Total
	}

	return total
}

// Empty reports whether nothing was recorded.
func (s Snapshot) Empty() bool {
	return len(s.Entries) == 0
}
