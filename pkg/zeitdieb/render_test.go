package zeitdieb

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zeitdieb.dev/pkg/zeitdieb/pkg/trace"
)

var fooSource = MapSource{
	"main.go": {
		"package main",
		"",
		"func foo() {",
		"\ttime.Sleep(500 * time.Millisecond)",
		"\tbar()",
		"}",
	},
}

func fooSnapshot() trace.Snapshot {
	return trace.Snapshot{
		Funcs: []trace.FuncInfo{{Name: "main:foo", File: "main.go", StartLine: 3, EndLine: 6}},
		Entries: []trace.Entry{
			{Key: trace.LineKey{Func: "main:foo", File: "main.go", Line: 4}, Stat: trace.LineStat{Hits: 1, Total: 500 * time.Millisecond}},
			{Key: trace.LineKey{Func: "main:foo", File: "main.go", Line: 5}, Stat: trace.LineStat{Hits: 1, Total: 250 * time.Millisecond}},
		},
	}
}

func TestRenderer_Numbers(t *testing.T) {
	r := Renderer{Source: fooSource}

	got := r.Render(fooSnapshot(), DefaultFormat())

	want := strings.Join([]string{
		"Timings in main:foo:",
		"      3 func foo() {",
		"0.500 4     time.Sleep(500 * time.Millisecond)",
		"0.250 5     bar()",
		"      6 }",
		"─────",
		"0.750",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestRenderer_IsIdempotent(t *testing.T) {
	r := Renderer{Source: fooSource}
	snap := fooSnapshot()
	spec := MustParseFormat("6b:0.3")

	assert.Equal(t, r.Render(snap, spec), r.Render(snap, spec))
}

func TestRenderer_Bars(t *testing.T) {
	r := Renderer{Source: fooSource}

	lines := strings.Split(r.Render(fooSnapshot(), MustParseFormat("4b")), "\n")
	require.Len(t, lines, 7)

	assert.Equal(t, "████ 4     time.Sleep(500 * time.Millisecond)", lines[2])
	assert.Equal(t, "██   5     bar()", lines[3])
	assert.Equal(t, "────", lines[5])
	assert.Equal(t, "0.75", lines[6], "totals are always numbers")
}

func TestRenderer_LogScaleTitle(t *testing.T) {
	out := Renderer{Source: fooSource}.Render(fooSnapshot(), MustParseFormat("4bl"))
	assert.True(t, strings.HasPrefix(out, "Timings in main:foo (log scale):\n"))
}

func TestRenderer_Thresholds(t *testing.T) {
	r := Renderer{Source: fooSource, Palette: MarkerPalette{}}

	out := r.Render(fooSnapshot(), MustParseFormat("5:0.4,0.1"))

	assert.Contains(t, out, "[critical]0.500 4 ")
	assert.Contains(t, out, "[warning]0.250 5 ")
	assert.Contains(t, out, "\n[critical]0.750")
}

func TestRenderer_ANSIPalette(t *testing.T) {
	r := Renderer{Source: fooSource, Palette: NewANSIPalette()}

	out := r.Render(fooSnapshot(), MustParseFormat("5:0.4,0.1"))

	assert.Contains(t, out, "\x1b[38;2;255;0;0m")
	assert.Contains(t, out, "\x1b[38;2;255;215;0m")
	assert.Contains(t, out, "\x1b[38;2;0;255;255")
}

func TestRenderer_WithoutSource(t *testing.T) {
	snap := fooSnapshot()
	snap.Funcs[0].File = "missing.go"

	out := Renderer{Source: fooSource}.Render(snap, DefaultFormat())

	want := strings.Join([]string{
		"Timings in main:foo:",
		"0.500 4",
		"0.250 5",
		"─────",
		"0.750",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestRenderer_PrecisionFollowsGlobalMax(t *testing.T) {
	snap := fooSnapshot()
	snap.Funcs = append(snap.Funcs, trace.FuncInfo{Name: "main:slow", File: "slow.go", StartLine: 1})
	snap.Entries = append(snap.Entries, trace.Entry{
		Key:  trace.LineKey{Func: "main:slow", File: "slow.go", Line: 2},
		Stat: trace.LineStat{Hits: 1, Total: 12 * time.Second},
	})

	out := Renderer{}.Render(snap, DefaultFormat())

	assert.Contains(t, out, "\n 0.50 4\n")
	assert.Contains(t, out, "\n12.00 2\n")
	assert.Contains(t, out, "\n\nTimings in main:slow:\n")
}

func TestRenderer_EmptySnapshot(t *testing.T) {
	assert.Empty(t, Renderer{}.Render(trace.Snapshot{}, DefaultFormat()))
}

func TestRenderer_TruncatesLongLines(t *testing.T) {
	r := Renderer{Source: fooSource, MaxLineWidth: 10}

	out := r.Render(fooSnapshot(), DefaultFormat())

	assert.Contains(t, out, "0.500 4     time.…")
}
