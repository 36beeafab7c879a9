// Package controller provides output adapters for displaying profiling results.
package controller

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
	"zeitdieb.dev/pkg/zeitdieb/pkg/trace"
	"zeitdieb.dev/pkg/zeitdieb/pkg/zeitdieb"
)

// Report is a rendered-on-demand timing report.
type Report struct {
	// Title names what was profiled, e.g. the command line.
	Title    string
	Snapshot trace.Snapshot
	Source   zeitdieb.SourceProvider
	Format   zeitdieb.FormatSpec
	Color    bool
}

// Renderer returns the zeitdieb.Renderer for the report. maxWidth bounds the
// source column when positive.
func (r Report) Renderer(maxWidth int) zeitdieb.Renderer {
	var palette zeitdieb.Palette = zeitdieb.PlainPalette{}
	if r.Color {
		palette = zeitdieb.NewANSIPalette()
	}

	return zeitdieb.Renderer{Source: r.Source, Palette: palette, MaxLineWidth: maxWidth}
}

// Render renders the report with its own format.
func (r Report) Render(maxWidth int) string {
	return r.Renderer(maxWidth).Render(r.Snapshot, r.Format)
}

// UI defines how workflow results reach the user. Implementations can use
// different output methods (simple text, TUI).
type UI interface {
	DisplayReport(ctx context.Context, report Report) error
	DisplayStats(ctx context.Context, snap trace.Snapshot) error
	DisplayFuncs(ctx context.Context, funcs []m.Func) error
	DisplayText(ctx context.Context, text string) error
	DisplayWarning(ctx context.Context, err error)
	DisplayNotice(ctx context.Context, format string, args ...any)
}

// NewUI returns an interactive UI when interactive is set, a plain one otherwise.
func NewUI(cmd *cobra.Command, interactive bool) UI {
	simple := NewSimpleUI(cmd)
	if !interactive {
		return simple
	}

	return NewTUI(cmd, simple)
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}
