// Package tui is an interactive control panel for starting, stopping and
// clearing runs while watching their progress.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/observastack/loadpanel/internal/config"
	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/metrics"
)

const (
	tickInterval = 250 * time.Millisecond
	sparkPoints  = 40
	batchRows    = 5
)

// Controller is the run surface the panel drives. *driver.Driver satisfies it.
type Controller interface {
	Run(ctx context.Context, cfg driver.RunConfig) (metrics.RunSummary, error)
	Stop()
	ClearResults() error
	State() driver.RunState
	Stats() metrics.Stats
	ChartPoints() []metrics.ChartPoint
}

type tickMsg time.Time

type runDoneMsg struct {
	summary metrics.RunSummary
	err     error
}

// Model is the bubbletea model of the control panel.
type Model struct {
	ctrl     Controller
	base     config.Config
	body     []byte
	form     form
	progress progress.Model

	state   driver.RunState
	stats   metrics.Stats
	chart   []metrics.ChartPoint
	summary *metrics.RunSummary
	pending bool
	notice  string
	err     error

	width    int
	quitting bool
}

// New builds a panel whose form starts from cfg. body is sent with every
// request of a run started from the panel.
func New(ctrl Controller, cfg config.Config, body []byte) Model {
	return Model{
		ctrl:     ctrl,
		base:     cfg,
		body:     body,
		form:     newForm(cfg),
		progress: progress.New(progress.WithDefaultGradient()),
		state:    ctrl.State(),
	}
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(msg.Width-8, 10)
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case runDoneMsg:
		m.pending = false
		m.refresh()
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		s := msg.summary
		m.summary = &s
		m.notice = fmt.Sprintf("run %s %s", s.RunID, finishedWord(s.Stopped))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	busy := m.pending || m.state.Running()

	switch msg.String() {
	case "ctrl+c":
		if busy {
			m.ctrl.Stop()
		}
		m.quitting = true
		return m, tea.Quit
	case "esc", "ctrl+x":
		if busy {
			m.ctrl.Stop()
			m.notice = "stopping after the current batch"
		}
		return m, nil
	case "ctrl+l":
		if busy {
			m.err = errors.New("cannot clear results while a run is active")
			return m, nil
		}
		if err := m.ctrl.ClearResults(); err != nil {
			m.err = err
			return m, nil
		}
		m.summary = nil
		m.err = nil
		m.notice = "results cleared"
		m.refresh()
		return m, nil
	case "enter", "ctrl+r":
		if busy {
			return m, nil
		}
		cfg, err := m.form.apply(m.base)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.base = cfg
		m.err = nil
		m.summary = nil
		m.pending = true
		m.notice = "starting run"
		return m, startRun(m.ctrl, cfg.RunConfig(m.body))
	case "tab", "down":
		m.form.next()
		return m, nil
	case "shift+tab", "up":
		m.form.prev()
		return m, nil
	}

	if busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.form, cmd = m.form.update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	m.state = m.ctrl.State()
	m.stats = m.ctrl.Stats()
	m.chart = m.ctrl.ChartPoints()
	if m.state.Running() {
		m.pending = false
	}
}

func (m Model) View() string {
	if m.quitting {
		return "Bye.\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("loadpanel"))
	s.WriteString("  ")
	s.WriteString(subtleStyle.Render(m.statusLine()))
	s.WriteString("\n\n")

	s.WriteString(panelStyle.Render(m.form.view()))
	s.WriteString("\n\n")

	s.WriteString(m.progress.ViewAs(progressRatio(m.state.Progress)))
	s.WriteString(fmt.Sprintf("  %d/%d\n\n", m.state.Progress.Completed, m.state.Progress.Total))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(32).Render(m.countersView()),
		lipgloss.NewStyle().Width(32).Render(m.latencyView()),
	))
	s.WriteString("\n\n")

	points := metrics.Downsample(m.chart, sparkPoints)
	rps := make([]float64, len(points))
	p90 := make([]float64, len(points))
	for i, p := range points {
		rps[i] = p.BatchRPS
		p90[i] = metrics.Millis(p.P90)
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("RPS"), activeStyle.Render(sparkline(rps))))
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("P90 (ms)"), warnStyle.Render(sparkline(p90))))
	if rows := recentBatches(m.chart, batchRows); rows != "" {
		s.WriteString("\n")
		s.WriteString(rows)
	}

	if m.summary != nil {
		s.WriteString("\n")
		s.WriteString(summaryView(*m.summary))
	}

	s.WriteString("\n")
	if m.err != nil {
		s.WriteString(errStyle.Render("error: " + m.err.Error()))
		s.WriteString("\n")
	} else if m.notice != "" {
		s.WriteString(activeStyle.Render(m.notice))
		s.WriteString("\n")
	}
	s.WriteString(subtleStyle.Render("enter start • esc stop • ctrl+l clear • tab next field • ctrl+c quit"))
	s.WriteString("\n")
	return s.String()
}

func (m Model) statusLine() string {
	phase := string(m.state.Phase)
	if m.pending {
		phase = "starting"
	}
	if m.state.CancellationRequested && m.state.Running() {
		phase += " (stopping)"
	}
	line := "phase: " + phase
	if m.state.RunID != "" {
		line += " | run: " + m.state.RunID
	}
	if m.state.Batches > 0 {
		line += fmt.Sprintf(" | batches: %d", m.state.Batches)
	}
	return line
}

func (m Model) countersView() string {
	return fmt.Sprintf("Successes:   %d\nFailures:    %d\nRPS:         %.2f\nConcurrency: %d / %d",
		m.stats.Successes,
		m.stats.Failures,
		m.stats.RequestsPerSec,
		m.state.Concurrency,
		m.state.RequestedConcurrency,
	)
}

func (m Model) latencyView() string {
	return fmt.Sprintf("P50: %.1fms\nP90: %.1fms\nP99: %.1fms\nMax: %.1fms",
		m.stats.P50LatencyMs,
		m.stats.P90LatencyMs,
		m.stats.P99LatencyMs,
		m.stats.MaxLatencyMs,
	)
}

func recentBatches(points []metrics.ChartPoint, limit int) string {
	if len(points) == 0 {
		return ""
	}
	if len(points) > limit {
		points = points[len(points)-limit:]
	}
	var b strings.Builder
	for i := len(points) - 1; i >= 0; i-- {
		p := points[i]
		fmt.Fprintf(&b, "batch %-4d conc %-3d ok %-3d err %-3d rps %7.1f\n",
			p.Batch, p.Concurrency, p.BatchSuccesses, p.BatchFailures, p.BatchRPS)
	}
	return subtleStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func summaryView(s metrics.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary (%s)\n", finishedWord(s.Stopped))
	fmt.Fprintf(&b, "Total: %d | Successful: %d | Failed: %d\n", s.Total, s.Successful, s.Failed)
	fmt.Fprintf(&b, "Average: %.2fms | Duration: %s | RPS: %.2f\n",
		metrics.Millis(s.AverageResponse), s.Duration.Round(time.Millisecond), s.RequestsPerSecond)
	for _, bucket := range s.Statuses {
		fmt.Fprintf(&b, "  %s: %d\n", metrics.FriendlyStatus(bucket.Code), bucket.Count)
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func finishedWord(stopped bool) string {
	if stopped {
		return "stopped"
	}
	return "completed"
}

func progressRatio(p driver.Progress) float64 {
	if p.Total <= 0 {
		return 0
	}
	r := float64(p.Completed) / float64(p.Total)
	if r > 1 {
		r = 1
	}
	return r
}

func startRun(ctrl Controller, cfg driver.RunConfig) tea.Cmd {
	return func() tea.Msg {
		summary, err := ctrl.Run(context.Background(), cfg)
		return runDoneMsg{summary: summary, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run opens the panel on the terminal and blocks until the operator quits.
func Run(ctx context.Context, ctrl Controller, cfg config.Config, body []byte) error {
	p := tea.NewProgram(New(ctrl, cfg, body), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
