package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/metrics"
)

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		progress driver.Progress
		want     int
	}{
		{driver.Progress{}, 0},
		{driver.Progress{Completed: 25, Total: 100}, 25},
		{driver.Progress{Completed: 3, Total: 7}, 42},
		{driver.Progress{Completed: 10, Total: 10}, 100},
	}
	for _, tt := range tests {
		if got := progressPercent(tt.progress); got != tt.want {
			t.Errorf("progressPercent(%+v) = %d, want %d", tt.progress, got, tt.want)
		}
	}
}

func TestRPSSeriesPadsShortInput(t *testing.T) {
	cumulative, batch := rpsSeries(nil)
	if len(cumulative) != 2 || len(batch) != 2 {
		t.Fatalf("empty input should give 2 points, got %d/%d", len(cumulative), len(batch))
	}

	cumulative, _ = rpsSeries([]metrics.ChartPoint{{CumulativeRPS: 5, BatchRPS: 7}})
	if len(cumulative) != 2 || cumulative[1] != 5 {
		t.Errorf("single point series = %v", cumulative)
	}

	cumulative, batch = rpsSeries([]metrics.ChartPoint{{CumulativeRPS: 1, BatchRPS: 2}, {CumulativeRPS: 3, BatchRPS: 4}})
	if len(cumulative) != 2 || cumulative[0] != 1 || batch[1] != 4 {
		t.Errorf("series = %v / %v", cumulative, batch)
	}
}

func TestP90Series(t *testing.T) {
	if got := p90Series(nil); len(got) != 1 || got[0] != 0 {
		t.Errorf("p90Series(nil) = %v", got)
	}
	got := p90Series([]metrics.ChartPoint{{P90: 20 * time.Millisecond}, {P90: 35 * time.Millisecond}})
	if len(got) != 2 || got[0] != 20 || got[1] != 35 {
		t.Errorf("p90Series() = %v", got)
	}
}

func TestFormatErrorRows(t *testing.T) {
	rows := formatErrorRows(metrics.Stats{})
	if len(rows) != 1 || !strings.Contains(rows[0], "No failures") {
		t.Errorf("no failures rows = %v", rows)
	}

	rows = formatErrorRows(metrics.Stats{
		Failures: 9,
		Errors: map[metrics.ErrorKind]int{
			metrics.ErrorNetwork: 2,
			metrics.ErrorTimeout: 5,
		},
	})
	if len(rows) != 3 {
		t.Fatalf("rows = %v", rows)
	}
	if !strings.Contains(rows[0], "Request timeout") || !strings.Contains(rows[0], "5") {
		t.Errorf("highest count should come first, got %q", rows[0])
	}
	if !strings.Contains(rows[2], "Non-2xx responses") || !strings.HasSuffix(rows[2], " 2") {
		t.Errorf("unclassified failures row = %q", rows[2])
	}
}

func TestFormatBatchRowsNewestFirst(t *testing.T) {
	points := make([]metrics.ChartPoint, 12)
	for i := range points {
		points[i] = metrics.ChartPoint{Batch: i + 1, Concurrency: 4}
	}
	rows := formatBatchRows(points, 5)
	if len(rows) != 5 {
		t.Fatalf("len(rows) = %d, want 5", len(rows))
	}
	if !strings.HasPrefix(rows[0], "#12") || !strings.HasPrefix(rows[4], "#8") {
		t.Errorf("rows = %v", rows)
	}
	if got := formatBatchRows(nil, 5); got[0] != "Awaiting data" {
		t.Errorf("empty rows = %v", got)
	}
}

func TestFormatSummary(t *testing.T) {
	st := driver.RunState{
		Phase:                 driver.PhaseRunning,
		Concurrency:           6,
		RequestedConcurrency:  10,
		Batches:               3,
		CancellationRequested: true,
		StartedAt:             time.Now().Add(-2 * time.Second),
	}
	cfg := TestConfig{TargetURL: "http://localhost:8080/api", Method: "POST", Adaptive: true, Delay: 50 * time.Millisecond}

	text := formatSummary(cfg, st)
	for _, want := range []string{
		"Target: http://localhost:8080/api",
		"Method: POST",
		"Concurrency: 6 (requested 10)",
		"Adaptive",
		"Delay: 50ms",
		"Phase: running (stopping)",
		"Batches: 3",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}
