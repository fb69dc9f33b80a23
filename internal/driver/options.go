package driver

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/observastack/loadpanel/internal/metrics"
)

const (
	MaxTotalRequests = 10000
	MaxConcurrency   = 20
)

// RunConfig describes one run. It is copied when the run starts.
type RunConfig struct {
	TargetURL     string            `json:"target_url"`
	Method        string            `json:"method,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          []byte            `json:"body,omitempty"`
	TotalRequests int               `json:"total_requests"`
	Concurrency   int               `json:"concurrency"`
	Delay         time.Duration     `json:"delay"`
	Adaptive      bool              `json:"adaptive"`
}

func (c RunConfig) normalize() (RunConfig, error) {
	if strings.TrimSpace(c.TargetURL) == "" {
		return c, fmt.Errorf("%w: target url is required", ErrInvalidConfig)
	}
	c.TotalRequests = clamp(c.TotalRequests, 1, MaxTotalRequests)
	c.Concurrency = clamp(c.Concurrency, 1, MaxConcurrency)
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.Method == "" {
		c.Method = "GET"
	}
	c.Method = strings.ToUpper(c.Method)
	if len(c.Headers) > 0 {
		h := make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			h[k] = v
		}
		c.Headers = h
	}
	if len(c.Body) > 0 {
		c.Body = append([]byte(nil), c.Body...)
	}
	return c, nil
}

// Policy holds the tunable constants of the adaptive loop.
type Policy struct {
	RequestTimeout time.Duration

	// Reduction is triggered when the cumulative resource-error ratio exceeds
	// ResourceErrorRatio or the cumulative count exceeds ResourceErrorCount.
	ResourceErrorRatio float64
	ResourceErrorCount int
	ReductionFactor    float64
	MinConcurrency     int

	// Growth requires a resource-error ratio below IncreaseErrorRatio and a
	// batch mean below FastResponse. It never exceeds IncreaseLimit times
	// the requested concurrency.
	IncreaseErrorRatio float64
	IncreaseStep       int
	IncreaseLimit      float64
	FastResponse       time.Duration

	// The delay floors apply to the gap before the next batch. A negative
	// value turns the floor off.
	SlowResponse       time.Duration
	MinDelay           time.Duration
	ResourceErrorDelay time.Duration
	SlowResponseDelay  time.Duration

	// HostCeiling bounds the adaptive starting concurrency together with
	// the available parallelism.
	HostCeiling int

	// Snapshots are emitted every SnapshotEvery batches or when
	// SnapshotInterval has passed since the last one. A negative interval
	// disables the time trigger.
	SnapshotEvery    int
	SnapshotInterval time.Duration
}

// DefaultPolicy returns the stock adaptive policy.
func DefaultPolicy() Policy {
	return Policy{
		RequestTimeout:     15 * time.Second,
		ResourceErrorRatio: 0.10,
		ResourceErrorCount: 5,
		ReductionFactor:    0.7,
		MinConcurrency:     2,
		IncreaseErrorRatio: 0.05,
		IncreaseStep:       2,
		IncreaseLimit:      1.5,
		FastResponse:       1000 * time.Millisecond,
		SlowResponse:       2000 * time.Millisecond,
		MinDelay:           25 * time.Millisecond,
		ResourceErrorDelay: 200 * time.Millisecond,
		SlowResponseDelay:  100 * time.Millisecond,
		HostCeiling:        16,
		SnapshotEvery:      3,
		SnapshotInterval:   250 * time.Millisecond,
	}
}

// normalize fills zero fields from DefaultPolicy.
func (p Policy) normalize() Policy {
	def := DefaultPolicy()
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = def.RequestTimeout
	}
	if p.ResourceErrorRatio <= 0 {
		p.ResourceErrorRatio = def.ResourceErrorRatio
	}
	if p.ResourceErrorCount <= 0 {
		p.ResourceErrorCount = def.ResourceErrorCount
	}
	if p.ReductionFactor <= 0 || p.ReductionFactor >= 1 {
		p.ReductionFactor = def.ReductionFactor
	}
	if p.MinConcurrency <= 0 {
		p.MinConcurrency = def.MinConcurrency
	}
	if p.IncreaseErrorRatio <= 0 {
		p.IncreaseErrorRatio = def.IncreaseErrorRatio
	}
	if p.IncreaseStep <= 0 {
		p.IncreaseStep = def.IncreaseStep
	}
	if p.IncreaseLimit < 1 {
		p.IncreaseLimit = def.IncreaseLimit
	}
	if p.FastResponse <= 0 {
		p.FastResponse = def.FastResponse
	}
	if p.SlowResponse <= 0 {
		p.SlowResponse = def.SlowResponse
	}
	p.MinDelay = durationOrDefault(p.MinDelay, def.MinDelay)
	p.ResourceErrorDelay = durationOrDefault(p.ResourceErrorDelay, def.ResourceErrorDelay)
	p.SlowResponseDelay = durationOrDefault(p.SlowResponseDelay, def.SlowResponseDelay)
	p.SnapshotInterval = durationOrDefault(p.SnapshotInterval, def.SnapshotInterval)
	if p.HostCeiling <= 0 {
		p.HostCeiling = def.HostCeiling
	}
	if p.SnapshotEvery <= 0 {
		p.SnapshotEvery = def.SnapshotEvery
	}
	return p
}

// durationOrDefault maps zero to def and a negative value to an explicit zero.
func durationOrDefault(v, def time.Duration) time.Duration {
	switch {
	case v == 0:
		return def
	case v < 0:
		return 0
	}
	return v
}

// Option configures a Driver.
type Option func(*Driver)

// WithPolicy overrides the adaptive policy. Zero fields take the values
// from DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(d *Driver) { d.policy = p.normalize() }
}

// WithSink sets the receiver of progress, snapshots and summaries.
func WithSink(s Sink) Option {
	return func(d *Driver) {
		if s != nil {
			d.sink = s
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithCollector sets the cumulative collector fed with every outcome.
func WithCollector(c *metrics.Collector) Option {
	return func(d *Driver) {
		if c != nil {
			d.collector = c
		}
	}
}

// WithParallelism overrides the hardware parallelism hint used for the
// adaptive starting concurrency.
func WithParallelism(f func() int) Option {
	return func(d *Driver) {
		if f != nil {
			d.parallelism = f
		}
	}
}

func defaultParallelism() int { return runtime.NumCPU() }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
