package metrics

import (
	"sort"
	"strconv"
)

// StatusBucket is the number of failed outcomes sharing one status label.
// The label is the HTTP status code when the exchange completed, or the
// error kind when it did not.
type StatusBucket struct {
	Code  string `json:"code" yaml:"code"`
	Count int    `json:"count" yaml:"count"`
}

// FailedStatuses groups failed outcomes into buckets sorted by descending
// count, then by code for stability.
func FailedStatuses(outcomes []RequestOutcome) []StatusBucket {
	counts := make(map[string]int)
	for _, o := range outcomes {
		if o.Success {
			continue
		}
		counts[statusLabel(o)]++
	}
	return FlattenStatusBuckets(counts)
}

// FlattenStatusBuckets converts a code->count map into sorted rows.
func FlattenStatusBuckets(buckets map[string]int) []StatusBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0, len(buckets))
	for code, count := range buckets {
		rows = append(rows, StatusBucket{Code: code, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Code < rows[j].Code
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

func statusLabel(o RequestOutcome) string {
	if o.ErrorKind != ErrorNone {
		return string(o.ErrorKind)
	}
	if o.StatusCode > 0 {
		return strconv.Itoa(o.StatusCode)
	}
	return "unknown"
}
