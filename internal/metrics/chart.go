package metrics

import "time"

// ChartPoint is the roll-up of one completed batch.
type ChartPoint struct {
	Batch               int           `json:"batch" yaml:"batch"`
	Elapsed             time.Duration `json:"-" yaml:"-"`
	WallClock           time.Time     `json:"wall_clock" yaml:"wall_clock"`
	Concurrency         int           `json:"concurrency" yaml:"concurrency"`
	CumulativeRPS       float64       `json:"cumulative_rps" yaml:"cumulative_rps"`
	BatchRPS            float64       `json:"batch_rps" yaml:"batch_rps"`
	ErrorRatePercent    float64       `json:"error_rate_percent" yaml:"error_rate_percent"`
	BatchSuccesses      int           `json:"batch_successes" yaml:"batch_successes"`
	BatchFailures       int           `json:"batch_failures" yaml:"batch_failures"`
	CumulativeSuccesses int           `json:"cumulative_successes" yaml:"cumulative_successes"`
	CumulativeFailures  int           `json:"cumulative_failures" yaml:"cumulative_failures"`
	P50                 time.Duration `json:"-" yaml:"-"`
	P90                 time.Duration `json:"-" yaml:"-"`
	P99                 time.Duration `json:"-" yaml:"-"`
	Mean                time.Duration `json:"-" yaml:"-"`
	Min                 time.Duration `json:"-" yaml:"-"`
	Max                 time.Duration `json:"-" yaml:"-"`

	// JSON-friendly millisecond fields.
	ElapsedMs float64 `json:"elapsed_ms" yaml:"elapsed_ms"`
	P50Ms     float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms     float64 `json:"p90_ms" yaml:"p90_ms"`
	P99Ms     float64 `json:"p99_ms" yaml:"p99_ms"`
	MeanMs    float64 `json:"mean_ms" yaml:"mean_ms"`
	MinMs     float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs     float64 `json:"max_ms" yaml:"max_ms"`
}

// BatchInput is everything BuildChartPoint needs about one batch.
type BatchInput struct {
	Batch int
	// Outcomes of this batch only, in issuance order.
	Outcomes []RequestOutcome
	// Elapsed is measured from run start to the end of this batch.
	Elapsed       time.Duration
	WallClock     time.Time
	BatchDuration time.Duration
	Concurrency   int
	// Cumulative totals including this batch.
	CumulativeSuccesses int
	CumulativeFailures  int
}

// BuildChartPoint rolls one batch up into a ChartPoint. Latency statistics
// use the network durations of successful outcomes of this batch that are
// greater than zero.
func BuildChartPoint(in BatchInput) ChartPoint {
	p := ChartPoint{
		Batch:               in.Batch,
		Elapsed:             in.Elapsed,
		WallClock:           in.WallClock,
		Concurrency:         in.Concurrency,
		CumulativeSuccesses: in.CumulativeSuccesses,
		CumulativeFailures:  in.CumulativeFailures,
	}

	latencies := make([]time.Duration, 0, len(in.Outcomes))
	for _, o := range in.Outcomes {
		if o.Success {
			p.BatchSuccesses++
			if o.NetworkDuration > 0 {
				latencies = append(latencies, o.NetworkDuration)
			}
		} else {
			p.BatchFailures++
		}
	}

	if len(latencies) > 0 {
		sorted := SortedDurations(latencies)
		p.P50 = NearestRank(sorted, 0.50)
		p.P90 = NearestRank(sorted, 0.90)
		p.P99 = NearestRank(sorted, 0.99)
		p.Min = sorted[0]
		p.Max = sorted[len(sorted)-1]
		var sum time.Duration
		for _, d := range sorted {
			sum += d
		}
		p.Mean = sum / time.Duration(len(sorted))
	}

	if in.BatchDuration > 0 {
		p.BatchRPS = float64(len(in.Outcomes)) / in.BatchDuration.Seconds()
	}
	total := in.CumulativeSuccesses + in.CumulativeFailures
	if in.Elapsed > 0 {
		p.CumulativeRPS = float64(total) / in.Elapsed.Seconds()
	}
	if total > 0 {
		p.ErrorRatePercent = float64(in.CumulativeFailures) / float64(total) * 100
	}

	p.FillMillis()
	return p
}

// FillMillis populates the millisecond mirrors from the duration fields.
func (p *ChartPoint) FillMillis() {
	p.ElapsedMs = Millis(p.Elapsed)
	p.P50Ms = Millis(p.P50)
	p.P90Ms = Millis(p.P90)
	p.P99Ms = Millis(p.P99)
	p.MeanMs = Millis(p.Mean)
	p.MinMs = Millis(p.Min)
	p.MaxMs = Millis(p.Max)
}
