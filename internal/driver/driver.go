package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/observastack/loadpanel/internal/metrics"
)

// Request is what an Issuer receives for one exchange.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
}

// Exchange is a completed HTTP exchange. NetworkDuration covers the network
// call only. TotalDuration adds body read and decode.
type Exchange struct {
	StatusCode      int
	StatusText      string
	Body            any
	NetworkDuration time.Duration
	TotalDuration   time.Duration
}

// Issuer performs a single request.
type Issuer interface {
	Issue(ctx context.Context, req Request) (Exchange, error)
}

// IssuerFunc adapts a function to Issuer.
type IssuerFunc func(ctx context.Context, req Request) (Exchange, error)

func (f IssuerFunc) Issue(ctx context.Context, req Request) (Exchange, error) { return f(ctx, req) }

// run is the state scoped to one Run call.
type run struct {
	cancelled atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func (r *run) stop() {
	r.stopOnce.Do(func() {
		r.cancelled.Store(true)
		close(r.stopCh)
	})
}

// Driver executes load runs, one at a time.
type Driver struct {
	issuer      Issuer
	policy      Policy
	sink        Sink
	logger      *zap.Logger
	collector   *metrics.Collector
	parallelism func() int

	active atomic.Bool

	mu          sync.RWMutex
	current     *run
	pendingStop bool // Stop arrived before current was installed
	state       RunState
	outcomes    []metrics.RequestOutcome
	chart       []metrics.ChartPoint
	summary     *metrics.RunSummary
}

// New creates a Driver around issuer.
func New(issuer Issuer, opts ...Option) *Driver {
	d := &Driver{
		issuer:      issuer,
		policy:      DefaultPolicy(),
		sink:        NopSink{},
		logger:      zap.NewNop(),
		collector:   metrics.NewCollector(),
		parallelism: defaultParallelism,
		state:       RunState{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Policy returns the effective adaptive policy.
func (d *Driver) Policy() Policy { return d.policy }

// Run executes cfg and returns its summary. It returns ErrRunActive when
// another run is in progress and ErrInvalidConfig for configs that cannot
// be clamped into range. Cancelling ctx ends the run like Stop.
func (d *Driver) Run(ctx context.Context, cfg RunConfig) (metrics.RunSummary, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return metrics.RunSummary{}, err
	}
	if !d.active.CompareAndSwap(false, true) {
		return metrics.RunSummary{}, ErrRunActive
	}
	defer func() {
		d.mu.Lock()
		d.pendingStop = false
		d.active.Store(false)
		d.mu.Unlock()
	}()

	r := &run{stopCh: make(chan struct{})}
	start := time.Now()
	dynamic := d.policy.StartConcurrency(cfg.Concurrency, cfg.Adaptive, d.parallelism())
	runID := ulid.Make().String()
	log := d.logger.With(zap.String("run_id", runID))

	d.mu.Lock()
	d.current = r
	d.outcomes = make([]metrics.RequestOutcome, 0, cfg.TotalRequests)
	d.chart = nil
	d.summary = nil
	d.state = RunState{
		RunID:                runID,
		Phase:                PhaseRunning,
		Progress:             Progress{Total: cfg.TotalRequests},
		Concurrency:          dynamic,
		RequestedConcurrency: cfg.Concurrency,
		StartedAt:            start,
	}
	if d.pendingStop {
		r.stop()
		d.state.CancellationRequested = true
		d.pendingStop = false
	}
	d.mu.Unlock()
	d.collector.Reset()

	log.Info("run started",
		zap.String("target", cfg.TargetURL),
		zap.Int("total", cfg.TotalRequests),
		zap.Int("requested_concurrency", cfg.Concurrency),
		zap.Int("start_concurrency", dynamic),
		zap.Bool("adaptive", cfg.Adaptive),
	)
	d.sink.OnProgress(d.State())

	snapshots := &rate.Sometimes{Every: d.policy.SnapshotEvery, Interval: d.policy.SnapshotInterval}
	var (
		completed      int
		successes      int
		failures       int
		resourceErrors int
		batch          int
	)

	for completed < cfg.TotalRequests && !d.shouldStop(ctx, r) {
		size := min(dynamic, cfg.TotalRequests-completed)
		batchStart := time.Now()
		outcomes := d.runBatch(ctx, cfg, completed+1, size)
		batchDuration := time.Since(batchStart)

		completed += size
		batch++
		for _, o := range outcomes {
			if o.Success {
				successes++
			} else {
				failures++
			}
			if o.ErrorKind == metrics.ErrorResourceExhaustion {
				resourceErrors++
			}
			d.collector.Record(o)
		}

		now := time.Now()
		point := metrics.BuildChartPoint(metrics.BatchInput{
			Batch:               batch,
			Outcomes:            outcomes,
			Elapsed:             now.Sub(start),
			WallClock:           now,
			BatchDuration:       batchDuration,
			Concurrency:         size,
			CumulativeSuccesses: successes,
			CumulativeFailures:  failures,
		})

		signals := BatchSignals{
			Completed:      completed,
			ResourceErrors: resourceErrors,
			BatchMean:      batchDuration / time.Duration(size),
		}
		next := d.policy.NextConcurrency(dynamic, cfg.Concurrency, signals)
		switch {
		case next < dynamic:
			log.Warn("reduced concurrency",
				zap.Int("batch", batch),
				zap.Int("from", dynamic),
				zap.Int("to", next),
				zap.Int("resource_errors", resourceErrors),
			)
		case next > dynamic:
			log.Debug("increased concurrency", zap.Int("batch", batch), zap.Int("from", dynamic), zap.Int("to", next))
		}
		dynamic = next

		d.mu.Lock()
		d.outcomes = append(d.outcomes, outcomes...)
		d.chart = append(d.chart, point)
		d.state.Progress.Completed = completed
		d.state.Concurrency = dynamic
		d.state.Batches = batch
		d.mu.Unlock()

		log.Debug("batch settled",
			zap.Int("batch", batch),
			zap.Int("size", size),
			zap.Duration("duration", batchDuration),
			zap.Int("completed", completed),
		)

		d.sink.OnProgress(d.State())
		if completed >= cfg.TotalRequests {
			break
		}
		snapshots.Do(d.emitSnapshot)

		if d.shouldStop(ctx, r) {
			break
		}
		if !r.sleep(ctx, d.policy.NextDelay(cfg.Delay, signals)) {
			break
		}
	}

	duration := time.Since(start)
	stopped := r.cancelled.Load() || ctx.Err() != nil

	d.mu.Lock()
	summary := metrics.Summarize(runID, d.outcomes, duration, stopped)
	summary.Batches = batch
	summary.FinalConcurrency = dynamic
	d.summary = &summary
	d.state.FinishedAt = time.Now()
	if stopped {
		d.state.Phase = PhaseStopped
	} else {
		d.state.Phase = PhaseCompleted
	}
	d.state.CancellationRequested = stopped
	d.current = nil
	d.mu.Unlock()

	d.emitSnapshot()
	d.sink.OnProgress(d.State())
	d.sink.OnComplete(summary)

	log.Info("run finished",
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Bool("stopped", summary.Stopped),
		zap.Duration("duration", duration),
	)
	return summary, nil
}

// Stop requests cooperative cancellation of the active run. The in-flight
// batch settles before the loop exits. Stop is a no-op when idle.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		d.pendingStop = d.active.Load()
		return
	}
	d.current.stop()
	d.state.CancellationRequested = true
}

// ClearResults discards outcomes, chart points, progress and the last
// summary. It returns ErrRunActive while a run is in progress.
func (d *Driver) ClearResults() error {
	if d.active.Load() {
		return ErrRunActive
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		return ErrRunActive
	}
	d.outcomes = nil
	d.chart = nil
	d.summary = nil
	d.state = RunState{Phase: PhaseIdle}
	d.collector.Reset()
	return nil
}

// State returns a copy of the run state.
func (d *Driver) State() RunState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Outcomes returns a copy of the outcome sequence.
func (d *Driver) Outcomes() []metrics.RequestOutcome {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]metrics.RequestOutcome(nil), d.outcomes...)
}

// ChartPoints returns a copy of the chart-point sequence.
func (d *Driver) ChartPoints() []metrics.ChartPoint {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]metrics.ChartPoint(nil), d.chart...)
}

// LastSummary returns the summary of the last finished run.
func (d *Driver) LastSummary() (metrics.RunSummary, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.summary == nil {
		return metrics.RunSummary{}, false
	}
	s := *d.summary
	if s.Errors != nil {
		errs := make(map[metrics.ErrorKind]int, len(s.Errors))
		for k, v := range s.Errors {
			errs[k] = v
		}
		s.Errors = errs
	}
	s.Statuses = append([]metrics.StatusBucket(nil), s.Statuses...)
	return s, true
}

// Stats returns cumulative collector statistics for the current or last run.
func (d *Driver) Stats() metrics.Stats {
	st := d.State()
	var elapsed time.Duration
	switch {
	case st.StartedAt.IsZero():
	case st.FinishedAt.IsZero():
		elapsed = time.Since(st.StartedAt)
	default:
		elapsed = st.FinishedAt.Sub(st.StartedAt)
	}
	return d.collector.Stats(elapsed)
}

// Snapshot returns a copy of the current progressive results.
func (d *Driver) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{
		State:    d.state,
		Outcomes: append([]metrics.RequestOutcome(nil), d.outcomes...),
		Chart:    append([]metrics.ChartPoint(nil), d.chart...),
	}
}

func (d *Driver) emitSnapshot() {
	d.sink.OnSnapshot(d.Snapshot())
}

func (d *Driver) shouldStop(ctx context.Context, r *run) bool {
	return r.cancelled.Load() || ctx.Err() != nil
}

// sleep waits for delay and reports false if ctx ended or Stop was called
// first.
func (r *run) sleep(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil && !r.cancelled.Load()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-r.stopCh:
		return false
	}
}
