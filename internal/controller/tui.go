package controller

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"zeitdieb.dev/pkg/zeitdieb/pkg/zeitdieb"
)

const (
	defaultPagerWidth  = 80
	defaultPagerHeight = 24
	// header and footer lines around the viewport.
	pagerChrome = 2
	// cells taken by the line number column and separators.
	lineNoCells = 7
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	footerStyle = lipgloss.NewStyle().Faint(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// TUI shows reports in a Bubble Tea pager where the format can be changed
// with single keys. Everything else is printed by the wrapped SimpleUI.
type TUI struct {
	*SimpleUI
	cmd *cobra.Command
	run func(ctx context.Context, model tea.Model) error
}

// NewTUI creates a new TUI.
func NewTUI(cmd *cobra.Command, simple *SimpleUI) *TUI {
	t := &TUI{SimpleUI: simple, cmd: cmd}
	t.run = t.runProgram

	return t
}

// DisplayReport opens the pager on report and blocks until it is closed.
func (p *TUI) DisplayReport(ctx context.Context, report Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if report.Snapshot.Empty() {
		return p.SimpleUI.DisplayReport(ctx, report)
	}

	width, height := defaultPagerWidth, defaultPagerHeight

	if f, ok := p.cmd.OutOrStdout().(*os.File); ok {
		if w, h, err := term.GetSize(int(f.Fd())); err == nil {
			width, height = w, h
		}
	}

	return p.run(ctx, newPagerModel(report, width, height))
}

func (p *TUI) runProgram(ctx context.Context, model tea.Model) error {
	program := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(p.cmd.InOrStdin()),
		tea.WithOutput(p.cmd.OutOrStdout()),
		tea.WithAltScreen(),
	)

	_, err := program.Run()

	return err
}

type pagerModel struct {
	report   Report
	viewport viewport.Model
	width    int
	status   string
}

func newPagerModel(report Report, width, height int) pagerModel {
	pm := pagerModel{
		report:   report,
		viewport: viewport.New(width, max(height-pagerChrome, 1)),
		width:    width,
	}
	pm.refresh()

	return pm
}

func (pm pagerModel) Init() tea.Cmd {
	return nil
}

func (pm pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		pm.width = msg.Width
		pm.viewport.Width = msg.Width
		pm.viewport.Height = max(msg.Height-pagerChrome, 1)
		pm.refresh()

		return pm, nil
	case tea.KeyMsg:
		if next, handled := pm.handleKeyPress(msg); handled {
			return next, keyCmd(msg)
		}
	}

	var cmd tea.Cmd

	pm.viewport, cmd = pm.viewport.Update(msg)

	return pm, cmd
}

func keyCmd(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return tea.Quit
	default:
		return nil
	}
}

// handleKeyPress applies format keys. It reports false for keys the
// viewport should handle.
func (pm pagerModel) handleKeyPress(msg tea.KeyMsg) (pagerModel, bool) {
	spec := pm.report.Format
	pm.status = ""

	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return pm, true
	case "b":
		spec.Bar = !spec.Bar
		spec.Log = spec.Log && spec.Bar
	case "l":
		if !spec.Bar {
			pm.status = "log scale needs bar mode (b)"
			return pm, true
		}

		spec.Log = !spec.Log
	case "+", "=":
		if spec.Width >= zeitdieb.MaxWidth {
			pm.status = fmt.Sprintf("width is at most %d", zeitdieb.MaxWidth)
			return pm, true
		}

		spec.Width++
	case "-":
		if spec.Width <= 1 {
			return pm, true
		}

		spec.Width--
	case "c":
		pm.report.Color = !pm.report.Color
	default:
		return pm, false
	}

	pm.report.Format = spec
	pm.refresh()

	return pm, true
}

func (pm *pagerModel) refresh() {
	maxWidth := pm.width - pm.report.Format.Width - lineNoCells
	if maxWidth < 1 {
		maxWidth = 0
	}

	pm.viewport.SetContent(pm.report.Render(maxWidth))
}

func (pm pagerModel) View() string {
	var b strings.Builder

	title := pm.report.Title
	if title == "" {
		title = "zeitdieb"
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("%s  [format %s]", title, pm.report.Format)))
	b.WriteString("\n")
	b.WriteString(pm.viewport.View())
	b.WriteString("\n")

	footer := fmt.Sprintf("b bars  l log  +/- width  c color  q quit  %3.0f%%", pm.viewport.ScrollPercent()*100)
	if pm.status != "" {
		b.WriteString(statusStyle.Render(pm.status) + "  ")
	}

	b.WriteString(footerStyle.Render(footer))

	return b.String()
}
