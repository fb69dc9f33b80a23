package metrics

import "time"

// RunSummary is computed once at run end from the full outcome sequence.
type RunSummary struct {
	RunID             string            `json:"run_id" yaml:"run_id"`
	Total             int               `json:"total" yaml:"total"`
	Successful        int               `json:"successful" yaml:"successful"`
	Failed            int               `json:"failed" yaml:"failed"`
	Duration          time.Duration     `json:"-" yaml:"-"`
	AverageResponse   time.Duration     `json:"-" yaml:"-"`
	MinResponse       time.Duration     `json:"-" yaml:"-"`
	MaxResponse       time.Duration     `json:"-" yaml:"-"`
	AverageQueue      time.Duration     `json:"-" yaml:"-"`
	MaxQueue          time.Duration     `json:"-" yaml:"-"`
	RequestsPerSecond float64           `json:"requests_per_second" yaml:"requests_per_second"`
	Stopped           bool              `json:"stopped" yaml:"stopped"`
	Batches           int               `json:"batches" yaml:"batches"`
	FinalConcurrency  int               `json:"final_concurrency" yaml:"final_concurrency"`
	Errors            map[ErrorKind]int `json:"errors,omitempty" yaml:"errors,omitempty"`
	Statuses          []StatusBucket    `json:"failed_statuses,omitempty" yaml:"failed_statuses,omitempty"`

	// JSON-friendly millisecond fields.
	DurationMs        float64 `json:"duration_ms" yaml:"duration_ms"`
	AverageResponseMs float64 `json:"average_response_ms" yaml:"average_response_ms"`
	MinResponseMs     float64 `json:"min_response_ms" yaml:"min_response_ms"`
	MaxResponseMs     float64 `json:"max_response_ms" yaml:"max_response_ms"`
	AverageQueueMs    float64 `json:"average_queue_ms" yaml:"average_queue_ms"`
	MaxQueueMs        float64 `json:"max_queue_ms" yaml:"max_queue_ms"`
}

// Summarize computes a RunSummary. Response statistics cover successful
// outcomes with a non-zero network duration; queue statistics cover
// successful outcomes with a non-zero queue delay.
func Summarize(runID string, outcomes []RequestOutcome, duration time.Duration, stopped bool) RunSummary {
	s := RunSummary{
		RunID:    runID,
		Total:    len(outcomes),
		Duration: duration,
		Stopped:  stopped,
	}

	var netSum, queueSum time.Duration
	var netN, queueN int
	for _, o := range outcomes {
		if o.ErrorKind != ErrorNone {
			if s.Errors == nil {
				s.Errors = make(map[ErrorKind]int)
			}
			s.Errors[o.ErrorKind]++
		}
		if !o.Success {
			s.Failed++
			continue
		}
		s.Successful++
		if d := o.NetworkDuration; d > 0 {
			netSum += d
			netN++
			if s.MinResponse == 0 || d < s.MinResponse {
				s.MinResponse = d
			}
			if d > s.MaxResponse {
				s.MaxResponse = d
			}
		}
		if q := o.QueueDelay; q > 0 {
			queueSum += q
			queueN++
			if q > s.MaxQueue {
				s.MaxQueue = q
			}
		}
	}
	if netN > 0 {
		s.AverageResponse = netSum / time.Duration(netN)
	}
	if queueN > 0 {
		s.AverageQueue = queueSum / time.Duration(queueN)
	}
	if duration > 0 && s.Successful > 0 {
		s.RequestsPerSecond = float64(s.Successful) / duration.Seconds()
	}
	s.Statuses = FailedStatuses(outcomes)

	s.FillMillis()
	return s
}

// FillMillis populates the millisecond mirrors from the duration fields.
func (s *RunSummary) FillMillis() {
	s.DurationMs = Millis(s.Duration)
	s.AverageResponseMs = Millis(s.AverageResponse)
	s.MinResponseMs = Millis(s.MinResponse)
	s.MaxResponseMs = Millis(s.MaxResponse)
	s.AverageQueueMs = Millis(s.AverageQueue)
	s.MaxQueueMs = Millis(s.MaxQueue)
}
