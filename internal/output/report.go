package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/observastack/loadpanel/internal/config"
	"github.com/observastack/loadpanel/internal/metrics"
	"github.com/observastack/loadpanel/internal/threshold"
)

// Report is everything printed at the end of a run.
type Report struct {
	Summary    metrics.RunSummary   `json:"summary" yaml:"summary"`
	Cumulative metrics.Stats        `json:"cumulative" yaml:"cumulative"`
	Chart      []metrics.ChartPoint `json:"chart,omitempty" yaml:"chart,omitempty"`
	Thresholds []threshold.Result   `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// NewReport assembles a Report. The chart is downsampled for display and
// the input slice is left untouched.
func NewReport(summary metrics.RunSummary, stats metrics.Stats, chart []metrics.ChartPoint, results []threshold.Result) Report {
	return Report{
		Summary:    summary,
		Cumulative: stats,
		Chart:      metrics.Downsample(chart, metrics.DefaultDownsampleTarget),
		Thresholds: results,
	}
}

// Write renders the report in the requested format.
func Write(w io.Writer, format config.OutputFormat, r Report) error {
	switch format {
	case config.OutputJSON:
		return PrintJSONReport(w, r)
	case config.OutputYAML:
		return PrintYAMLReport(w, r)
	case config.OutputText, "":
		PrintReport(w, r)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	s := r.Summary
	title := "Load Test Results"
	if s.Stopped {
		title += " (stopped)"
	}
	fmt.Fprintf(w, "\n--- %s ---\n", title)
	if s.RunID != "" {
		fmt.Fprintf(w, "Run:               %s\n", s.RunID)
	}
	fmt.Fprintf(w, "Total Requests:    %d\n", s.Total)
	fmt.Fprintf(w, "Successful:        %d\n", s.Successful)
	fmt.Fprintf(w, "Failed:            %d\n", s.Failed)
	fmt.Fprintf(w, "Duration:          %s\n", s.Duration)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", s.RequestsPerSecond)
	fmt.Fprintf(w, "Batches:           %d (final concurrency %d)\n", s.Batches, s.FinalConcurrency)

	fmt.Fprintln(w, "\nResponse Time:")
	fmt.Fprintf(w, "  Min:             %s\n", s.MinResponse)
	fmt.Fprintf(w, "  Max:             %s\n", s.MaxResponse)
	fmt.Fprintf(w, "  Mean:            %s\n", s.AverageResponse)
	fmt.Fprintf(w, "  P50:             %s\n", r.Cumulative.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", r.Cumulative.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", r.Cumulative.P99Latency)

	fmt.Fprintln(w, "\nQueue Time:")
	fmt.Fprintf(w, "  Mean:            %s\n", s.AverageQueue)
	fmt.Fprintf(w, "  Max:             %s\n", s.MaxQueue)

	if len(s.Statuses) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		writeStatusBuckets(w, s.Statuses, "  ")
	}

	if len(r.Chart) > 0 {
		fmt.Fprintln(w, "\nBatches:")
		fmt.Fprintf(w, "  %6s %8s %5s %9s %8s %10s %10s\n", "batch", "elapsed", "conc", "rps", "errors", "p50", "p90")
		for _, p := range r.Chart {
			fmt.Fprintf(w, "  %6d %8s %5d %9.2f %7.1f%% %10s %10s\n",
				p.Batch,
				p.Elapsed.Round(time.Millisecond),
				p.Concurrency,
				p.CumulativeRPS,
				p.ErrorRatePercent,
				p.P50,
				p.P90,
			)
		}
	}

	if len(r.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, res := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func writeStatusBuckets(w io.Writer, rows []metrics.StatusBucket, indent string) {
	for _, row := range rows {
		fmt.Fprintf(
			w,
			"%s%-24s %d\n",
			indent,
			strings.TrimSpace(metrics.FriendlyStatus(row.Code))+":",
			row.Count,
		)
	}
}
