package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector records cumulative outcome metrics in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	successes    int64
	failures     int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	latencyCount int64
	errorsByKind map[ErrorKind]int64
}

// Stats represents cumulative metrics across all recorded outcomes.
type Stats struct {
	Total          int64         `json:"total" yaml:"total"`
	Successes      int64         `json:"successes" yaml:"successes"`
	Failures       int64         `json:"failures" yaml:"failures"`
	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	MeanLatency    time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	Duration       time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64           `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64           `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64           `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64           `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64           `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P99LatencyMs  float64           `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64           `json:"duration_ms" yaml:"duration_ms"`
	Errors        map[ErrorKind]int `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:         h,
		errorsByKind: make(map[ErrorKind]int64),
	}
}

// Record adds one outcome. Only successful outcomes with a non-zero network
// duration contribute to latency statistics.
func (c *Collector) Record(o RequestOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.ErrorKind != ErrorNone {
		c.errorsByKind[o.ErrorKind]++
	}
	if !o.Success {
		c.failures++
		return
	}
	c.successes++

	latency := o.NetworkDuration
	if latency <= 0 {
		return
	}
	us := latency.Microseconds()
	if us < c.hist.LowestTrackableValue() {
		us = c.hist.LowestTrackableValue()
	}
	if us > c.hist.HighestTrackableValue() {
		us = c.hist.HighestTrackableValue()
	}
	_ = c.hist.RecordValue(us)
	c.sumLatency += latency
	c.latencyCount++

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}

	if c.latencyCount > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / c.latencyCount)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = Millis(stats.MinLatency)
	stats.MaxLatencyMs = Millis(stats.MaxLatency)
	stats.MeanLatencyMs = Millis(stats.MeanLatency)
	stats.P50LatencyMs = Millis(stats.P50Latency)
	stats.P90LatencyMs = Millis(stats.P90Latency)
	stats.P99LatencyMs = Millis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = Millis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.errorsByKind) > 0 {
		stats.Errors = make(map[ErrorKind]int, len(c.errorsByKind))
		for k, v := range c.errorsByKind {
			stats.Errors[k] = int(v)
		}
	}

	return stats
}

// Reset discards everything recorded so far.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hist.Reset()
	c.successes = 0
	c.failures = 0
	c.minLatency = 0
	c.maxLatency = 0
	c.sumLatency = 0
	c.latencyCount = 0
	c.errorsByKind = make(map[ErrorKind]int64)
}
