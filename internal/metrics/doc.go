// Package metrics holds the result types of a load run and the pure
// functions that roll request outcomes up into chart points and summaries.
//
// # Outcomes
//
// Every issued request produces one [RequestOutcome]. Outcomes carry three
// timings measured on the same monotonic clock:
//   - network time around the HTTP exchange only
//   - total time, which adds body read and decode
//   - queue delay, the time the caller lost to its own scheduling
//
// # Chart Points
//
// A driver batch rolls up into one [ChartPoint] via [BuildChartPoint].
// Percentiles on a chart point are nearest-rank over the successful network
// durations of that batch alone:
//
//	point := metrics.BuildChartPoint(metrics.BatchInput{
//		Batch:    3,
//		Outcomes: batchOutcomes,
//		Elapsed:  time.Since(start),
//		Totals:   cumulative,
//	})
//
// # Summaries
//
// [Summarize] computes the final [RunSummary] from the full outcome sequence.
//
// # Downsampling
//
// [Downsample] reduces a chart-point sequence for display by keeping the
// point with the highest cumulative RPS in each chunk. The input slice is
// never modified and the last point is always kept.
//
// # Collector
//
// [Collector] keeps a cumulative hdrhistogram of network latency for live
// progress lines and the final report. It is safe for concurrent use.
package metrics
