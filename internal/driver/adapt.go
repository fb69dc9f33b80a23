package driver

import (
	"math"
	"time"
)

// BatchSignals are the observations the policy adapts on after a batch.
type BatchSignals struct {
	// Completed and ResourceErrors are cumulative over the run.
	Completed      int
	ResourceErrors int
	// BatchMean is the batch wall time divided by the batch size.
	BatchMean time.Duration
}

func (s BatchSignals) resourceRatio() float64 {
	if s.Completed <= 0 {
		return 0
	}
	return float64(s.ResourceErrors) / float64(s.Completed)
}

// StartConcurrency returns the concurrency the batch loop starts with.
func (p Policy) StartConcurrency(requested int, adaptive bool, parallelism int) int {
	start := requested
	if adaptive {
		hint := parallelism * 2
		if hint < p.HostCeiling {
			hint = p.HostCeiling
		}
		if hint < start {
			start = hint
		}
	}
	if start < 1 {
		start = 1
	}
	return start
}

// Ceiling is the largest concurrency the loop may grow to.
func (p Policy) Ceiling(requested int) int {
	ceiling := int(math.Floor(float64(requested) * p.IncreaseLimit))
	if ceiling < 1 {
		ceiling = 1
	}
	return ceiling
}

// floor is the smallest concurrency a reduction may produce.
func (p Policy) floor(requested int) int {
	if c := p.Ceiling(requested); c < p.MinConcurrency {
		return c
	}
	return p.MinConcurrency
}

// NextConcurrency adapts the dynamic concurrency after a batch.
func (p Policy) NextConcurrency(current, requested int, s BatchSignals) int {
	ratio := s.resourceRatio()
	ceiling := p.Ceiling(requested)

	switch {
	case ratio > p.ResourceErrorRatio || s.ResourceErrors > p.ResourceErrorCount:
		next := int(math.Floor(float64(current) * p.ReductionFactor))
		if lo := p.floor(requested); next < lo {
			next = lo
		}
		return next
	case ratio < p.IncreaseErrorRatio && s.BatchMean < p.FastResponse && current < ceiling:
		next := current + p.IncreaseStep
		if next > ceiling {
			next = ceiling
		}
		return next
	default:
		return current
	}
}

// NextDelay is the pause before the next batch.
func (p Policy) NextDelay(configured time.Duration, s BatchSignals) time.Duration {
	var lower time.Duration
	switch {
	case s.ResourceErrors > 0:
		lower = p.ResourceErrorDelay
	case s.BatchMean > p.SlowResponse:
		lower = p.SlowResponseDelay
	default:
		lower = p.MinDelay
	}
	return max(configured, lower)
}
