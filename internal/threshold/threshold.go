package threshold

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/observastack/loadpanel/internal/metrics"
)

// Threshold represents a pass/fail assertion on a finished run. Aggregate
// is empty for scalar metrics. Value is in milliseconds for timings and in
// percent for error_rate.
type Threshold struct {
	Metric    string  `json:"metric" yaml:"metric"`
	Aggregate string  `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
	Operator  string  `json:"operator" yaml:"operator"`
	Value     float64 `json:"value" yaml:"value"`
	Raw       string  `json:"raw" yaml:"raw"`
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

// Evaluator evaluates thresholds against a run summary and the cumulative
// collector statistics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds. Percentiles come from stats, everything
// else from the summary.
func (e *Evaluator) Evaluate(summary metrics.RunSummary, stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, summary, stats))
	}
	return results
}

func evaluateOne(t Threshold, summary metrics.RunSummary, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, summary, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+)(?::([a-z0-9]+))?\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string. Supported forms:
//
//	error_rate < 5                  percent of failed requests
//	response_time:p90 < 800         ms; avg, min, max, p50, p90, p99
//	queue_time:max < 200            ms; avg, max
//	rps > 20                        successful requests per second
//	total >= 100                    outcomes recorded
//	failed == 0                     failed outcomes
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric[:aggregate] operator value, e.g. 'response_time:p90 < 800')", s)
	}

	metric, aggregate, operator, valueStr := matches[1], matches[2], matches[3], matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	allowed, ok := metricAggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: error_rate, response_time, queue_time, rps, total, failed)", metric)
	}
	if len(allowed) == 0 && aggregate != "" {
		return Threshold{}, fmt.Errorf("metric %q takes no aggregate", metric)
	}
	if len(allowed) > 0 {
		if aggregate == "" {
			aggregate = "avg"
		}
		if !slices.Contains(allowed, aggregate) {
			return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(allowed, ", "))
		}
	}

	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

var metricAggregates = map[string][]string{
	"error_rate":    nil,
	"response_time": {"avg", "min", "max", "p50", "p90", "p99"},
	"queue_time":    {"avg", "max"},
	"rps":           nil,
	"total":         nil,
	"failed":        nil,
}

func isValidOperator(operator string) bool {
	switch operator {
	case "<", "<=", ">", ">=", "==":
		return true
	}
	return false
}

func extractMetricValue(t Threshold, summary metrics.RunSummary, stats metrics.Stats) (float64, error) {
	switch t.Metric {
	case "error_rate":
		if summary.Total == 0 {
			return 0, nil
		}
		return float64(summary.Failed) / float64(summary.Total) * 100, nil
	case "response_time":
		return extractResponseMetric(t.Aggregate, summary, stats)
	case "queue_time":
		if t.Aggregate == "max" {
			return metrics.Millis(summary.MaxQueue), nil
		}
		return metrics.Millis(summary.AverageQueue), nil
	case "rps":
		return summary.RequestsPerSecond, nil
	case "total":
		return float64(summary.Total), nil
	case "failed":
		return float64(summary.Failed), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractResponseMetric(aggregate string, summary metrics.RunSummary, stats metrics.Stats) (float64, error) {
	switch aggregate {
	case "avg":
		return metrics.Millis(summary.AverageResponse), nil
	case "min":
		return metrics.Millis(summary.MinResponse), nil
	case "max":
		return metrics.Millis(summary.MaxResponse), nil
	case "p50":
		return stats.P50LatencyMs, nil
	case "p90":
		return stats.P90LatencyMs, nil
	case "p99":
		return stats.P99LatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for response_time", aggregate)
	}
}

func compareValues(actual float64, operator string, threshold float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold+epsilon
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold-epsilon
	case "==":
		return math.Abs(actual-threshold) < epsilon
	default:
		return false
	}
}
