package controller

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
	"zeitdieb.dev/pkg/zeitdieb/pkg/trace"
)

// SimpleUI implements UI using cobra Command's output streams.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// DisplayReport prints the rendered report.
func (s *SimpleUI) DisplayReport(ctx context.Context, report Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if report.Snapshot.Empty() {
		s.printf("No timings recorded.\n")
		return nil
	}

	s.printf("%s\n", report.Render(0))

	return nil
}

// DisplayStats prints one table row per traced line.
func (s *SimpleUI) DisplayStats(ctx context.Context, snap trace.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("\n%s", renderStatsTable(snap))

	return nil
}

func renderStatsTable(snap trace.Snapshot) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Function", "Line", "Hits", "Total", "Mean", "Min", "Max"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})

	hits := 0

	for _, e := range snap.Entries {
		table.Append([]string{
			e.Key.Func,
			strconv.Itoa(e.Key.Line),
			strconv.Itoa(e.Stat.Hits),
			formatDuration(e.Stat.Total),
			formatDuration(e.Stat.Mean()),
			formatDuration(e.Stat.Min),
			formatDuration(e.Stat.Max),
		})

		hits += e.Stat.Hits
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Lines %d", len(snap.Entries)), "",
		strconv.Itoa(hits), formatDuration(snap.Total()), "", "", "",
	})

	table.Render()

	return tableBuffer.String()
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Millisecond:
		return d.Round(time.Microsecond).String()
	case d >= time.Microsecond:
		return d.Round(10 * time.Nanosecond).String()
	default:
		return d.String()
	}
}

// DisplayFuncs prints the traceable callables as a table of target names.
func (s *SimpleUI) DisplayFuncs(ctx context.Context, funcs []m.Func) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("\n%s", renderFuncsTable(funcs))

	return nil
}

func renderFuncsTable(funcs []m.Func) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Target", "Kind", "Location"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_LEFT})

	for _, fn := range funcs {
		table.Append([]string{fn.Name, string(fn.Kind), fmt.Sprintf("%s:%d-%d", fn.File, fn.StartLine, fn.EndLine)})
	}

	table.SetFooter([]string{fmt.Sprintf("Total Functions %d", len(funcs)), "", ""})
	table.Render()

	return tableBuffer.String()
}

// DisplayText prints text as is, e.g. a diff or generated source.
func (s *SimpleUI) DisplayText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("%s", text)

	return nil
}

// DisplayWarning prints err to the error stream.
func (s *SimpleUI) DisplayWarning(ctx context.Context, err error) {
	if ctx.Err() != nil || err == nil {
		return
	}

	_, _ = fmt.Fprintf(s.cmd.ErrOrStderr(), "warning: %v\n", err)
}

// DisplayNotice prints an informational line to the error stream, keeping
// stdout for reports.
func (s *SimpleUI) DisplayNotice(ctx context.Context, format string, args ...any) {
	if ctx.Err() != nil {
		return
	}

	_, _ = fmt.Fprintf(s.cmd.ErrOrStderr(), format+"\n", args...)
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
