// Package promsink exports run progress as Prometheus metrics.
package promsink

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/metrics"
)

const namespace = "loadpanel"

// Sink is a driver.Sink that keeps Prometheus collectors current.
type Sink struct {
	runActive            prometheus.Gauge
	concurrency          prometheus.Gauge
	requestedConcurrency prometheus.Gauge
	completed            prometheus.Gauge
	planned              prometheus.Gauge
	batches              prometheus.Gauge
	requests             *prometheus.CounterVec
	requestDuration      prometheus.Histogram
	queueDelay           prometheus.Histogram
	runs                 *prometheus.CounterVec
	runDuration          prometheus.Histogram
	lastRPS              prometheus.Gauge
	lastAverage          prometheus.Gauge

	mu       sync.Mutex
	runID    string
	observed int
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Sink {
	f := promauto.With(reg)
	return &Sink{
		runActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_active",
			Help:      "1 while a run is in progress",
		}),
		concurrency: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "concurrency",
			Help:      "Current batch size of the active run",
		}),
		requestedConcurrency: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requested_concurrency",
			Help:      "Concurrency requested for the active run",
		}),
		completed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_completed",
			Help:      "Settled requests of the current run",
		}),
		planned: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_planned",
			Help:      "Total requests planned for the current run",
		}),
		batches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches",
			Help:      "Batches completed in the current run",
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Issued requests by outcome",
		}, []string{"outcome"}),
		requestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Total duration of successful requests",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		queueDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_delay_seconds",
			Help:      "Time requests waited between scheduling and dispatch",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by result",
		}, []string{"result"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of finished runs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		lastRPS: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_requests_per_second",
			Help:      "Requests per second of the last finished run",
		}),
		lastAverage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_average_response_seconds",
			Help:      "Average response time of the last finished run",
		}),
	}
}

func (s *Sink) OnProgress(st driver.RunState) {
	if st.Running() {
		s.runActive.Set(1)
	} else {
		s.runActive.Set(0)
	}
	s.concurrency.Set(float64(st.Concurrency))
	s.requestedConcurrency.Set(float64(st.RequestedConcurrency))
	s.completed.Set(float64(st.Progress.Completed))
	s.planned.Set(float64(st.Progress.Total))
	s.batches.Set(float64(st.Batches))
}

// OnSnapshot counts the outcomes not seen in earlier snapshots of the run.
func (s *Sink) OnSnapshot(snap driver.Snapshot) {
	s.OnProgress(snap.State)

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.State.RunID != s.runID {
		s.runID = snap.State.RunID
		s.observed = 0
	}
	if s.observed > len(snap.Outcomes) {
		s.observed = 0
	}
	for _, o := range snap.Outcomes[s.observed:] {
		s.requests.WithLabelValues(outcomeLabel(o)).Inc()
		if o.Success {
			s.requestDuration.Observe(o.TotalDuration.Seconds())
		}
		if o.QueueDelay > 0 {
			s.queueDelay.Observe(o.QueueDelay.Seconds())
		}
	}
	s.observed = len(snap.Outcomes)
}

func (s *Sink) OnComplete(sum metrics.RunSummary) {
	s.runActive.Set(0)
	result := "completed"
	if sum.Stopped {
		result = "stopped"
	}
	s.runs.WithLabelValues(result).Inc()
	s.runDuration.Observe(sum.Duration.Seconds())
	s.lastRPS.Set(sum.RequestsPerSecond)
	s.lastAverage.Set(sum.AverageResponse.Seconds())
}

func outcomeLabel(o metrics.RequestOutcome) string {
	switch {
	case o.Success:
		return "success"
	case o.ErrorKind != metrics.ErrorNone:
		return string(o.ErrorKind)
	default:
		return "http_error"
	}
}
