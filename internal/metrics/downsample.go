package metrics

// DefaultDownsampleTarget is the display point budget for chart sequences.
const DefaultDownsampleTarget = 50

// Downsample reduces points to about target entries keyed on CumulativeRPS.
func Downsample(points []ChartPoint, target int) []ChartPoint {
	return DownsampleBy(points, target, func(p ChartPoint) float64 { return p.CumulativeRPS })
}

// DownsampleBy splits points into chunks of ceil(len/target) and keeps the
// point with the largest key from each chunk. The final input point is
// always retained. The result is a new slice and never longer than points.
func DownsampleBy(points []ChartPoint, target int, key func(ChartPoint) float64) []ChartPoint {
	if target <= 0 {
		target = DefaultDownsampleTarget
	}
	n := len(points)
	if n <= target {
		out := make([]ChartPoint, n)
		copy(out, points)
		return out
	}

	step := (n + target - 1) / target
	out := make([]ChartPoint, 0, target+1)
	lastKept := -1
	for start := 0; start < n; start += step {
		end := start + step
		if end > n {
			end = n
		}
		best := start
		for i := start + 1; i < end; i++ {
			if key(points[i]) > key(points[best]) {
				best = i
			}
		}
		out = append(out, points[best])
		lastKept = best
	}
	if lastKept != n-1 {
		out = append(out, points[n-1])
	}
	return out
}
