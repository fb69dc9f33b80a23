package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/metrics"
)

const (
	refreshInterval = 500 * time.Millisecond
	plotPoints      = 60
	recentBatches   = 8
)

// Source is the run whose progress is drawn. *driver.Driver satisfies it.
type Source interface {
	State() driver.RunState
	Stats() metrics.Stats
	ChartPoints() []metrics.ChartPoint
}

// TestConfig holds run parameters for display.
type TestConfig struct {
	TargetURL   string
	Method      string
	Total       int
	Concurrency int
	Delay       time.Duration
	Adaptive    bool
	Timeout     time.Duration
	ConfigFile  string
}

// Dashboard renders a live terminal UI for a run.
type Dashboard struct {
	source       Source
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex
	testConfig   TestConfig

	// Widgets
	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	progressGauge  *widgets.Gauge
	rpsPlot        *widgets.Plot
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	errorList      *widgets.List
	batchList      *widgets.List
}

// New creates a new Dashboard. shutdownFunc runs when the operator presses
// q or Ctrl-C; it usually stops the driver.
func New(source Source, cfg TestConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		source:       source,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		testConfig:   cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Progress"
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.rpsPlot = widgets.NewPlot()
	d.rpsPlot.Title = "RPS (cumulative / batch)"
	d.rpsPlot.Data = [][]float64{{0, 0}, {0, 0}}
	d.rpsPlot.LineColors = []ui.Color{ui.ColorGreen, ui.ColorYellow}
	d.rpsPlot.AxesColor = ui.ColorWhite
	d.rpsPlot.BorderStyle.Fg = ui.ColorCyan

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Batch P90 (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Response Time"
	d.latencyPara.Text = "Waiting for data..."
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Errors"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.batchList = widgets.NewList()
	d.batchList.Title = "Recent Batches"
	d.batchList.Rows = []string{"Awaiting data"}
	d.batchList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.batchList.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(0.6, d.summaryPara),
			ui.NewCol(0.4, d.progressGauge),
		),
		ui.NewRow(0.32,
			ui.NewCol(1.0, d.rpsPlot),
		),
		ui.NewRow(0.24,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.28,
			ui.NewCol(0.6, d.batchList),
			ui.NewCol(0.4, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.update()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Keep drawing until Stop cancels the context.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the source.
func (d *Dashboard) update() {
	st := d.source.State()
	stats := d.source.Stats()
	points := metrics.Downsample(d.source.ChartPoints(), plotPoints)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.summaryPara.Text = formatSummary(d.testConfig, st)
	d.progressGauge.Percent = progressPercent(st.Progress)
	d.progressGauge.Label = fmt.Sprintf("%d / %d", st.Progress.Completed, st.Progress.Total)

	cumulative, batch := rpsSeries(points)
	d.rpsPlot.Data = [][]float64{cumulative, batch}
	d.latencySparkle.Sparklines[0].Data = p90Series(points)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms\nRPS:  %.2f",
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P99LatencyMs,
		stats.RequestsPerSec,
	)

	d.errorList.Rows = formatErrorRows(stats)
	d.batchList.Rows = formatBatchRows(d.source.ChartPoints(), recentBatches)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func formatSummary(cfg TestConfig, st driver.RunState) string {
	params := []string{fmt.Sprintf("Method: %s", firstNonEmpty(cfg.Method, "GET"))}
	if st.RequestedConcurrency > 0 {
		params = append(params, fmt.Sprintf("Concurrency: %d (requested %d)", st.Concurrency, st.RequestedConcurrency))
	}
	if cfg.Adaptive {
		params = append(params, "Adaptive")
	}
	if cfg.Delay > 0 {
		params = append(params, fmt.Sprintf("Delay: %s", cfg.Delay))
	}
	if cfg.Timeout > 0 {
		params = append(params, fmt.Sprintf("Timeout: %s", cfg.Timeout))
	}
	if cfg.ConfigFile != "" {
		params = append(params, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}

	phase := string(st.Phase)
	if st.CancellationRequested && st.Running() {
		phase += " (stopping)"
	}
	var elapsed time.Duration
	switch {
	case st.StartedAt.IsZero():
	case st.FinishedAt.IsZero():
		elapsed = time.Since(st.StartedAt)
	default:
		elapsed = st.FinishedAt.Sub(st.StartedAt)
	}
	return fmt.Sprintf("Target: %s\n%s\nPhase: %s | Batches: %d | Elapsed: %s | q to stop",
		cfg.TargetURL,
		strings.Join(params, " | "),
		phase,
		st.Batches,
		elapsed.Round(100*time.Millisecond),
	)
}

func progressPercent(p driver.Progress) int {
	if p.Total <= 0 {
		return 0
	}
	pct := p.Completed * 100 / p.Total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// rpsSeries returns the plot lines. The plot cannot draw fewer than two
// points, so short series are padded with a leading zero.
func rpsSeries(points []metrics.ChartPoint) ([]float64, []float64) {
	cumulative := make([]float64, 0, len(points)+1)
	batch := make([]float64, 0, len(points)+1)
	if len(points) < 2 {
		cumulative = append(cumulative, 0)
		batch = append(batch, 0)
	}
	for _, p := range points {
		cumulative = append(cumulative, p.CumulativeRPS)
		batch = append(batch, p.BatchRPS)
	}
	if len(cumulative) < 2 {
		cumulative = append(cumulative, 0)
		batch = append(batch, 0)
	}
	return cumulative, batch
}

func p90Series(points []metrics.ChartPoint) []float64 {
	if len(points) == 0 {
		return []float64{0}
	}
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = metrics.Millis(p.P90)
	}
	return out
}

func formatErrorRows(stats metrics.Stats) []string {
	if len(stats.Errors) == 0 {
		if stats.Failures > 0 {
			return []string{fmt.Sprintf("[Non-2xx responses](fg:red) %d", stats.Failures)}
		}
		return []string{"[No failures](fg:green)"}
	}
	kinds := make([]metrics.ErrorKind, 0, len(stats.Errors))
	for k := range stats.Errors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if stats.Errors[kinds[i]] == stats.Errors[kinds[j]] {
			return kinds[i] < kinds[j]
		}
		return stats.Errors[kinds[i]] > stats.Errors[kinds[j]]
	})
	rows := make([]string, 0, len(kinds)+1)
	classified := 0
	for _, k := range kinds {
		classified += stats.Errors[k]
		rows = append(rows, fmt.Sprintf("[%s](fg:red) %d", k.Label(), stats.Errors[k]))
	}
	if rest := int(stats.Failures) - classified; rest > 0 {
		rows = append(rows, fmt.Sprintf("[Non-2xx responses](fg:red) %d", rest))
	}
	return rows
}

func formatBatchRows(points []metrics.ChartPoint, limit int) []string {
	if len(points) == 0 {
		return []string{"Awaiting data"}
	}
	if len(points) > limit {
		points = points[len(points)-limit:]
	}
	rows := make([]string, 0, len(points))
	for i := len(points) - 1; i >= 0; i-- {
		p := points[i]
		rows = append(rows, fmt.Sprintf("#%-4d conc %-3d | ok %-3d err %-3d | RPS %6.1f | P90 %7.1fms | err %5.1f%%",
			p.Batch,
			p.Concurrency,
			p.BatchSuccesses,
			p.BatchFailures,
			p.BatchRPS,
			metrics.Millis(p.P90),
			p.ErrorRatePercent,
		))
	}
	return rows
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
