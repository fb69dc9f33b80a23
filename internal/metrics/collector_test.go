package metrics_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/observastack/loadpanel/internal/metrics"
)

func okOutcome(latency time.Duration) metrics.RequestOutcome {
	return metrics.RequestOutcome{Success: true, StatusCode: 200, NetworkDuration: latency, TotalDuration: latency}
}

func TestCollectorLatencyStats(t *testing.T) {
	c := metrics.NewCollector()

	c.Record(okOutcome(10 * time.Millisecond))
	c.Record(okOutcome(20 * time.Millisecond))
	c.Record(okOutcome(30 * time.Millisecond))
	c.Record(okOutcome(40 * time.Millisecond))
	c.Record(okOutcome(50 * time.Millisecond))

	stats := c.Stats(0)

	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
	if stats.Successes != 5 {
		t.Errorf("expected successes 5, got %d", stats.Successes)
	}
	if stats.Failures != 0 {
		t.Errorf("expected failures 0, got %d", stats.Failures)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", stats.MeanLatency)
	}
}

func TestCollectorPercentiles(t *testing.T) {
	c := metrics.NewCollector()
	for i := 1; i <= 100; i++ {
		c.Record(okOutcome(time.Duration(i) * time.Millisecond))
	}

	stats := c.Stats(0)

	if stats.P50Latency < 49*time.Millisecond || stats.P50Latency > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", stats.P50Latency)
	}
	if stats.P90Latency < 89*time.Millisecond || stats.P90Latency > 91*time.Millisecond {
		t.Errorf("expected P90 ~90ms, got %s", stats.P90Latency)
	}
	if stats.P99Latency < 98*time.Millisecond || stats.P99Latency > 101*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", stats.P99Latency)
	}
}

func TestCollectorFailuresExcludedFromLatency(t *testing.T) {
	c := metrics.NewCollector()
	c.Record(okOutcome(10 * time.Millisecond))
	c.Record(metrics.RequestOutcome{ErrorKind: metrics.ErrorTimeout, TotalDuration: 15 * time.Second, QueueDelay: 15 * time.Second})
	c.Record(metrics.RequestOutcome{StatusCode: 500, NetworkDuration: 900 * time.Millisecond})

	stats := c.Stats(time.Second)
	if stats.Failures != 2 {
		t.Errorf("expected failures 2, got %d", stats.Failures)
	}
	if stats.MaxLatency != 10*time.Millisecond {
		t.Errorf("expected max latency 10ms, got %s", stats.MaxLatency)
	}
	if stats.Errors[metrics.ErrorTimeout] != 1 {
		t.Errorf("expected 1 timeout, got %d", stats.Errors[metrics.ErrorTimeout])
	}
	if len(stats.Errors) != 1 {
		t.Errorf("expected only timeout in error breakdown, got %v", stats.Errors)
	}
	if stats.RequestsPerSec != 3 {
		t.Errorf("expected 3 rps, got %f", stats.RequestsPerSec)
	}
}

func TestCollectorReset(t *testing.T) {
	c := metrics.NewCollector()
	c.Record(okOutcome(10 * time.Millisecond))
	c.Record(metrics.RequestOutcome{ErrorKind: metrics.ErrorNetwork})
	c.Reset()

	stats := c.Stats(0)
	if stats.Total != 0 || stats.P50Latency != 0 || stats.Errors != nil {
		t.Errorf("expected empty stats after reset, got %+v", stats)
	}
}

func TestCollectorConcurrentRecord(t *testing.T) {
	c := metrics.NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Record(okOutcome(time.Millisecond))
			}
		}()
	}
	wg.Wait()
	if got := c.Stats(0).Total; got != 800 {
		t.Errorf("expected total 800, got %d", got)
	}
}

func TestStatsJSONSchema(t *testing.T) {
	c := metrics.NewCollector()
	c.Record(okOutcome(15 * time.Millisecond))
	c.Record(okOutcome(25 * time.Millisecond))

	data, err := json.Marshal(c.Stats(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("failed to marshal stats: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	for _, field := range []string{"total", "successes", "failures", "p50_latency_ms", "p99_latency_ms", "duration_ms", "requests_per_sec"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("missing field %q in JSON output", field)
		}
	}
	if _, ok := decoded["MinLatency"]; ok {
		t.Errorf("raw duration fields should not be serialized")
	}
}
