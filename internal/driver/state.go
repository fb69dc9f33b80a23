package driver

import "time"

// Phase is the lifecycle stage of a driver.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseStopped   Phase = "stopped"
	PhaseCompleted Phase = "completed"
)

// Progress counts settled requests against the configured total.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// RunState is the observable state of the current or last run.
type RunState struct {
	RunID                 string    `json:"run_id,omitempty"`
	Phase                 Phase     `json:"phase"`
	Progress              Progress  `json:"progress"`
	CancellationRequested bool      `json:"cancellation_requested"`
	Concurrency           int       `json:"concurrency"`
	RequestedConcurrency  int       `json:"requested_concurrency"`
	Batches               int       `json:"batches"`
	StartedAt             time.Time `json:"started_at,omitempty"`
	FinishedAt            time.Time `json:"finished_at,omitempty"`
}

// Running reports whether the phase is PhaseRunning.
func (s RunState) Running() bool { return s.Phase == PhaseRunning }
