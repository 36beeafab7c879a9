package zeitdieb

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"zeitdieb.dev/pkg/zeitdieb/pkg/trace"
)

const tabWidth = 4

var eighths = []string{"", "▏", "▎", "▍", "▌", "▋", "▊", "▉"}

// cellWidth measures block elements as one cell regardless of locale.
var cellWidth = func() *runewidth.Condition {
	c := runewidth.NewCondition()
	c.EastAsianWidth = false

	return c
}()

// Renderer turns a snapshot into a text report.
type Renderer struct {
	// Source supplies source text. Without it rows show line numbers only.
	Source SourceProvider
	// Palette decorates cells; nil means PlainPalette.
	Palette Palette
	// MaxLineWidth truncates source text to this many cells when positive.
	MaxLineWidth int
}

type row struct {
	line  int
	text  string
	stat  trace.LineStat
	timed bool
}

// Render formats snap according to spec. It returns "" for an empty snapshot.
func (r Renderer) Render(snap trace.Snapshot, spec FormatSpec) string {
	if snap.Empty() {
		return ""
	}

	if spec.Width <= 0 {
		spec.Width = DefaultWidth
	}

	palette := r.Palette
	if palette == nil {
		palette = PlainPalette{}
	}

	maxSeconds := 0.0
	for _, e := range snap.Entries {
		maxSeconds = math.Max(maxSeconds, e.Stat.Total.Seconds())
	}

	cells := cellFormatter{spec: spec, max: maxSeconds}
	tiers := len(spec.Thresholds)

	var b strings.Builder

	for _, fn := range snap.Funcs {
		rows := r.rows(snap, fn)
		if len(rows) == 0 {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n")
		}

		b.WriteString("Timings in " + palette.Title(fn.Name))

		if spec.Bar && spec.Log {
			b.WriteString(" (log scale)")
		}

		b.WriteString(":\n")

		linenoWidth := 1

		for _, rw := range rows {
			linenoWidth = max(linenoWidth, len(strconv.Itoa(rw.line)))
		}

		var total time.Duration

		for _, rw := range rows {
			cell := strings.Repeat(" ", spec.Width)

			if rw.timed {
				seconds := rw.stat.Total.Seconds()
				cell = palette.Cell(cells.format(seconds), spec.Classify(seconds), tiers)
				total += rw.stat.Total
			}

			line := fmt.Sprintf("%s %*d %s", cell, linenoWidth, rw.line, rw.text)
			b.WriteString(strings.TrimRight(line, " ") + "\n")
		}

		b.WriteString(strings.Repeat("─", spec.Width) + "\n")

		seconds := total.Seconds()
		b.WriteString(palette.Total(cells.number(seconds), spec.Classify(seconds), tiers) + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// rows lists the report rows of one callable: its full source span when the
// source is available, otherwise its traced lines in first-recorded order.
func (r Renderer) rows(snap trace.Snapshot, fn trace.FuncInfo) []row {
	entries := snap.EntriesFor(fn.Name)
	if len(entries) == 0 {
		return nil
	}

	byLine := make(map[int]trace.LineStat, len(entries))
	first, last := fn.StartLine, fn.EndLine

	for _, e := range entries {
		byLine[e.Key.Line] = e.Stat

		if first <= 0 || e.Key.Line < first {
			first = e.Key.Line
		}

		last = max(last, e.Key.Line)
	}

	var lines []string

	if r.Source != nil && fn.File != "" {
		if src, err := r.Source.Lines(fn.File); err == nil && last <= len(src) {
			lines = src
		}
	}

	if lines == nil {
		rows := make([]row, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, row{line: e.Key.Line, stat: e.Stat, timed: true})
		}

		return rows
	}

	span := lines[first-1 : last]
	texts := r.displayLines(span)

	rows := make([]row, 0, len(span))

	for i, text := range texts {
		n := first + i
		stat, timed := byLine[n]
		rows = append(rows, row{line: n, text: text, stat: stat, timed: timed})
	}

	return rows
}

// displayLines removes the common indentation, expands tabs and truncates.
func (r Renderer) displayLines(lines []string) []string {
	indent := ""
	found := false

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		lead := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if !found {
			indent, found = lead, true

			continue
		}

		indent = commonPrefix(indent, lead)
	}

	out := make([]string, len(lines))

	for i, line := range lines {
		line = strings.TrimPrefix(line, indent)
		line = strings.ReplaceAll(line, "\t", strings.Repeat(" ", tabWidth))

		if r.MaxLineWidth > 0 && cellWidth.StringWidth(line) > r.MaxLineWidth {
			line = cellWidth.Truncate(line, r.MaxLineWidth, "…")
		}

		out[i] = line
	}

	return out
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))

	i := 0
	for i < n && a[i] == b[i] {
		i++
	}

	return a[:i]
}

// cellFormatter renders one time value into a fixed-width cell. Bars and
// decimals are scaled against the largest value of the whole snapshot.
type cellFormatter struct {
	spec FormatSpec
	max  float64
}

func (c cellFormatter) format(seconds float64) string {
	if c.spec.Bar {
		return c.bar(seconds)
	}

	return c.number(seconds)
}

func (c cellFormatter) precision() int {
	digits := len(strconv.Itoa(int(c.max)))
	return max(c.spec.Width-(digits+1), 1)
}

func (c cellFormatter) number(seconds float64) string {
	if seconds == 0 {
		return strings.Repeat(" ", c.spec.Width)
	}

	return fmt.Sprintf("%*.*f", c.spec.Width, c.precision(), seconds)
}

func (c cellFormatter) bar(seconds float64) string {
	if c.max <= 0 || seconds <= 0 {
		return strings.Repeat(" ", c.spec.Width)
	}

	ratio := seconds / c.max
	if c.spec.Log {
		ratio = math.Log1p(seconds) / math.Log1p(c.max)
	}

	size := int(ratio * float64(c.spec.Width*8))
	size = min(max(size, 0), c.spec.Width*8)

	full, part := size/8, size%8
	blocks := strings.Repeat("█", full) + eighths[part]

	return cellWidth.FillRight(blocks, c.spec.Width)
}
