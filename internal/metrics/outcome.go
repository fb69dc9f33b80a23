package metrics

import "time"

// ErrorKind classifies why a request exchange could not complete.
// A completed exchange with a non-2xx status has no ErrorKind.
type ErrorKind string

const (
	ErrorNone               ErrorKind = ""
	ErrorTimeout            ErrorKind = "timeout"
	ErrorResourceExhaustion ErrorKind = "resource_exhaustion"
	ErrorNetwork            ErrorKind = "network"
	ErrorUnexpected         ErrorKind = "unexpected"
)

// RequestOutcome is the immutable record of one issued request.
type RequestOutcome struct {
	SequenceID      int           `json:"sequence_id" yaml:"sequence_id"`
	Success         bool          `json:"success" yaml:"success"`
	StatusCode      int           `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	StatusText      string        `json:"status_text,omitempty" yaml:"status_text,omitempty"`
	Body            any           `json:"body,omitempty" yaml:"body,omitempty"`
	TotalDuration   time.Duration `json:"-" yaml:"-"`
	NetworkDuration time.Duration `json:"-" yaml:"-"`
	QueueDelay      time.Duration `json:"-" yaml:"-"`
	ErrorKind       ErrorKind     `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error           string        `json:"error,omitempty" yaml:"error,omitempty"`
	CompletedAt     time.Time     `json:"completed_at" yaml:"completed_at"`

	// JSON-friendly millisecond fields.
	TotalDurationMs   float64 `json:"total_duration_ms" yaml:"total_duration_ms"`
	NetworkDurationMs float64 `json:"network_duration_ms" yaml:"network_duration_ms"`
	QueueDelayMs      float64 `json:"queue_delay_ms" yaml:"queue_delay_ms"`
}

// Failed reports whether the exchange itself could not complete.
func (o RequestOutcome) Failed() bool {
	return o.ErrorKind != ErrorNone
}

// FillMillis populates the millisecond mirrors from the duration fields.
func (o *RequestOutcome) FillMillis() {
	o.TotalDurationMs = Millis(o.TotalDuration)
	o.NetworkDurationMs = Millis(o.NetworkDuration)
	o.QueueDelayMs = Millis(o.QueueDelay)
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
