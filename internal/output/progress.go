package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/metrics"
)

// ProgressSource is what the progress line reads from. *driver.Driver
// satisfies it.
type ProgressSource interface {
	State() driver.RunState
	Stats() metrics.Stats
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   ProgressSource
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source ProgressSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and prints one final line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprint(p.writer, ProgressLine(p.source.State(), p.source.Stats()))
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, ProgressLine(p.source.State(), p.source.Stats()))
		case <-p.done:
			return
		}
	}
}

// ProgressLine formats one carriage-return prefixed status line.
func ProgressLine(st driver.RunState, stats metrics.Stats) string {
	line := fmt.Sprintf("\rRequests: %d/%d | Successes: %d | Failures: %d | RPS: %.1f | Concurrency: %d",
		st.Progress.Completed, st.Progress.Total, stats.Successes, stats.Failures, stats.RequestsPerSec, st.Concurrency)
	if stats.P90Latency > 0 {
		line += fmt.Sprintf(" | P90 %.1fms", stats.P90LatencyMs)
	}
	if st.CancellationRequested && st.Running() {
		line += " | stopping"
	}
	return line
}
