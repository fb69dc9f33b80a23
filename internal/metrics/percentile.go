package metrics

import (
	"math"
	"sort"
	"time"
)

// NearestRank returns the element of sorted at index floor(q*len), clamped to
// the last element. sorted must be in ascending order. An empty slice yields 0.
func NearestRank(sorted []time.Duration, q float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	idx := int(math.Floor(q * float64(n)))
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// SortedDurations returns an ascending copy of in.
func SortedDurations(in []time.Duration) []time.Duration {
	out := make([]time.Duration, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
