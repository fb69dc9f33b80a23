package driver

import "github.com/observastack/loadpanel/internal/metrics"

// Snapshot is a point-in-time copy of a run's progressive results.
type Snapshot struct {
	State    RunState                 `json:"state"`
	Outcomes []metrics.RequestOutcome `json:"outcomes"`
	Chart    []metrics.ChartPoint     `json:"chart"`
}

// Sink consumes what a run emits. Calls come from the driver loop goroutine
// and must not block for long.
type Sink interface {
	OnProgress(RunState)
	OnSnapshot(Snapshot)
	OnComplete(metrics.RunSummary)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) OnProgress(RunState)           {}
func (NopSink) OnSnapshot(Snapshot)           {}
func (NopSink) OnComplete(metrics.RunSummary) {}

// MultiSink fans out to every member in order.
type MultiSink []Sink

func (m MultiSink) OnProgress(s RunState) {
	for _, sink := range m {
		sink.OnProgress(s)
	}
}

func (m MultiSink) OnSnapshot(s Snapshot) {
	for _, sink := range m {
		sink.OnSnapshot(s)
	}
}

func (m MultiSink) OnComplete(s metrics.RunSummary) {
	for _, sink := range m {
		sink.OnComplete(s)
	}
}

// EventKind tags the payload of an Event.
type EventKind int

const (
	EventProgress EventKind = iota
	EventSnapshot
	EventComplete
)

// Event is what ChannelSink delivers.
type Event struct {
	Kind     EventKind
	State    RunState
	Snapshot Snapshot
	Summary  metrics.RunSummary
}

// ChannelSink forwards events to a buffered channel. Sends never block:
// when the buffer is full the event is dropped.
type ChannelSink struct {
	C chan Event
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{C: make(chan Event, buffer)}
}

func (c *ChannelSink) send(ev Event) {
	select {
	case c.C <- ev:
	default:
	}
}

func (c *ChannelSink) OnProgress(s RunState) {
	c.send(Event{Kind: EventProgress, State: s})
}

func (c *ChannelSink) OnSnapshot(s Snapshot) {
	c.send(Event{Kind: EventSnapshot, State: s.State, Snapshot: s})
}

func (c *ChannelSink) OnComplete(s metrics.RunSummary) {
	c.send(Event{Kind: EventComplete, Summary: s})
}
