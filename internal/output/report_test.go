package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/observastack/loadpanel/internal/config"
	"github.com/observastack/loadpanel/internal/metrics"
	"github.com/observastack/loadpanel/internal/threshold"
)

func sampleReport() Report {
	summary := metrics.RunSummary{
		RunID:             "01HZXTEST",
		Total:             100,
		Successful:        95,
		Failed:            5,
		Duration:          2 * time.Second,
		AverageResponse:   80 * time.Millisecond,
		RequestsPerSecond: 47.5,
		Batches:           10,
		FinalConcurrency:  10,
		Errors:            map[metrics.ErrorKind]int{metrics.ErrorTimeout: 2},
		Statuses: []metrics.StatusBucket{
			{Code: "503", Count: 3},
			{Code: "timeout", Count: 2},
		},
	}
	summary.FillMillis()
	chart := make([]metrics.ChartPoint, 0, 10)
	for i := 1; i <= 10; i++ {
		chart = append(chart, metrics.ChartPoint{Batch: i, Concurrency: 10, CumulativeRPS: float64(i)})
	}
	results := []threshold.Result{{Pass: true, Message: "✓ error_rate < 10: 5.00 < 10.00"}}
	return NewReport(summary, metrics.Stats{P90Latency: 120 * time.Millisecond}, chart, results)
}

func TestPrintReportBasic(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleReport())

	output := buf.String()
	for _, want := range []string{
		"Total Requests:    100",
		"Successful:        95",
		"Requests/sec:      47.50",
		"P90:             120ms",
		"HTTP 503:",
		"Request timeout:",
		"Thresholds:",
		"error_rate < 10",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "(stopped)") {
		t.Errorf("completed run should not be marked stopped")
	}
}

func TestPrintReportStopped(t *testing.T) {
	r := sampleReport()
	r.Summary.Stopped = true
	var buf bytes.Buffer
	PrintReport(&buf, r)
	if !strings.Contains(buf.String(), "Load Test Results (stopped)") {
		t.Errorf("expected stopped marker, got:\n%s", buf.String())
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleReport()); err != nil {
		t.Fatalf("PrintJSONReport failed: %v", err)
	}

	var decoded struct {
		Summary struct {
			Total  int            `json:"total"`
			Errors map[string]int `json:"errors"`
		} `json:"summary"`
		Chart      []map[string]any `json:"chart"`
		Thresholds []map[string]any `json:"thresholds"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Summary.Total != 100 || decoded.Summary.Errors["timeout"] != 2 {
		t.Errorf("summary = %+v", decoded.Summary)
	}
	if len(decoded.Chart) != 10 || len(decoded.Thresholds) != 1 {
		t.Errorf("chart=%d thresholds=%d", len(decoded.Chart), len(decoded.Thresholds))
	}
}

func TestPrintYAMLReport(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, config.OutputYAML, sampleReport()); err != nil {
		t.Fatalf("Write(yaml) error = %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	summary, ok := decoded["summary"].(map[string]any)
	if !ok || summary["run_id"] != "01HZXTEST" {
		t.Errorf("summary = %#v", decoded["summary"])
	}
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, "xml", sampleReport()); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewReportDownsamplesChart(t *testing.T) {
	chart := make([]metrics.ChartPoint, 200)
	for i := range chart {
		chart[i] = metrics.ChartPoint{Batch: i + 1, CumulativeRPS: float64(i % 7)}
	}
	r := NewReport(metrics.RunSummary{}, metrics.Stats{}, chart, nil)
	if len(r.Chart) > metrics.DefaultDownsampleTarget+1 {
		t.Errorf("chart has %d points, want at most %d", len(r.Chart), metrics.DefaultDownsampleTarget+1)
	}
	if r.Chart[len(r.Chart)-1].Batch != 200 {
		t.Errorf("last point should be retained")
	}
	if len(chart) != 200 || chart[0].Batch != 1 {
		t.Errorf("input chart mutated")
	}
}
