package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/observastack/loadpanel/internal/catalog"
	"github.com/observastack/loadpanel/internal/config"
	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/runlock"
	"github.com/observastack/loadpanel/internal/tracing"
)

const testSchema = `{
  "openapi": "3.0.0",
  "paths": {
    "/hello/delay/{delay}": {
      "get": {"summary": "Delayed hello"}
    }
  }
}`

type jsonReport struct {
	Summary struct {
		RunID      string `json:"run_id"`
		Total      int    `json:"total"`
		Successful int    `json:"successful"`
		Failed     int    `json:"failed"`
	} `json:"summary"`
	Thresholds []struct {
		Pass bool `json:"pass"`
	} `json:"thresholds"`
}

func newTarget(t *testing.T, status int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var stdout, stderr bytes.Buffer
	err := execute(ctx, args, &stdout, &stderr)
	return stdout.String(), err
}

func decodeReport(t *testing.T, out string) jsonReport {
	t.Helper()
	var r jsonReport
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	return r
}

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openapi.json")
	if err := os.WriteFile(path, []byte(testSchema), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCommandWritesJSONReport(t *testing.T) {
	target, hits := newTarget(t, http.StatusOK)

	out, err := runCLI(t, "run", "--target", target.URL, "-n", "6", "-c", "2", "--output", "json", "--log-level", "error")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	r := decodeReport(t, out)
	if r.Summary.Total != 6 || r.Summary.Successful != 6 || r.Summary.Failed != 0 {
		t.Errorf("summary = %+v", r.Summary)
	}
	if r.Summary.RunID == "" {
		t.Error("run id missing from report")
	}
	if hits.Load() != 6 {
		t.Errorf("target hits = %d, want 6", hits.Load())
	}
}

func TestRootWithTargetRuns(t *testing.T) {
	target, _ := newTarget(t, http.StatusOK)
	out, err := runCLI(t, "--target", target.URL, "-n", "2", "-c", "1", "--json-output", "--log-level", "error")
	if err != nil {
		t.Fatalf("root run: %v", err)
	}
	if r := decodeReport(t, out); r.Summary.Total != 2 {
		t.Errorf("total = %d, want 2", r.Summary.Total)
	}
}

func TestFailedRequestsDoNotFailProcess(t *testing.T) {
	target, _ := newTarget(t, http.StatusInternalServerError)
	out, err := runCLI(t, "run", "--target", target.URL, "-n", "3", "-c", "3", "-o", "json", "--log-level", "error")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if r := decodeReport(t, out); r.Summary.Failed != 3 {
		t.Errorf("failed = %d, want 3", r.Summary.Failed)
	}
}

func TestRunCommandFailsOnThreshold(t *testing.T) {
	target, _ := newTarget(t, http.StatusOK)
	out, err := runCLI(t, "run", "--target", target.URL, "-n", "4", "-c", "2", "-o", "json",
		"--log-level", "error", "--threshold", "total > 100", "--threshold", "failed == 0")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 thresholds failed") {
		t.Fatalf("err = %v, want threshold failure", err)
	}
	r := decodeReport(t, out)
	if len(r.Thresholds) != 2 || r.Thresholds[0].Pass || !r.Thresholds[1].Pass {
		t.Errorf("thresholds = %+v", r.Thresholds)
	}
}

func TestRunCommandValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing target", []string{"run"}, "target is required"},
		{"bad concurrency", []string{"run", "--target", "http://localhost:1", "-c", "50"}, "concurrency must be between"},
		{"bad threshold", []string{"run", "--target", "http://localhost:1", "--threshold", "latency < 1"}, "unsupported metric"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRunCommandRespectsLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	held, err := runlock.Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer held.Release()

	_, err = runCLI(t, "run", "--target", "http://localhost:1", "-n", "1", "--lock-file", path, "--log-level", "error")
	if !errors.Is(err, runlock.ErrLocked) {
		t.Fatalf("err = %v, want ErrLocked", err)
	}
}

func TestEndpointsCommand(t *testing.T) {
	schema := writeSchema(t)

	out, err := runCLI(t, "endpoints", "--schema", schema, "--service", "api", "-o", "json")
	if err != nil {
		t.Fatalf("endpoints: %v", err)
	}
	var endpoints []catalog.Endpoint
	if err := json.Unmarshal([]byte(out), &endpoints); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(endpoints) != 1 || endpoints[0].Key != "API__HELLO_DELAY_DELAY" || endpoints[0].Path != "/api/hello/delay/{delay}" {
		t.Errorf("endpoints = %+v", endpoints)
	}

	out, err = runCLI(t, "endpoints", "--schema", schema)
	if err != nil {
		t.Fatalf("endpoints text: %v", err)
	}
	for _, want := range []string{"KEY", "API__HELLO_DELAY_DELAY", "Delayed hello", "delay=100"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestEndpointsRequiresSource(t *testing.T) {
	_, err := runCLI(t, "endpoints")
	if err == nil || !strings.Contains(err.Error(), "no schema given") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewServerServesCatalogAndMetrics(t *testing.T) {
	cfg := config.Defaults()
	cfg.BaseURL = "http://svc.local"
	cfg.Catalog = []config.CatalogSource{
		{Service: "api", Schema: writeSchema(t)},
		{Service: "missing", Schema: filepath.Join(t.TempDir(), "nope.json")},
	}

	srv := newServer(context.Background(), cfg, &tracing.Provider{}, zap.NewNop(), prometheus.NewRegistry())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Shutdown()

	resp, err := http.Get(ts.URL + "/api/endpoints")
	if err != nil {
		t.Fatal(err)
	}
	var endpoints []catalog.Endpoint
	err = json.NewDecoder(resp.Body).Decode(&endpoints)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode endpoints: %v", err)
	}
	if len(endpoints) != 1 || endpoints[0].Key != "API__HELLO_DELAY_DELAY" {
		t.Errorf("endpoints = %+v", endpoints)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"loadpanel_run_active", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics missing %s", want)
		}
	}
}

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		off     zapcore.Level
	}{
		{"debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"info", zapcore.InfoLevel, zapcore.DebugLevel},
		{"", zapcore.InfoLevel, zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := newLogger(tt.level)
			if err != nil {
				t.Fatalf("newLogger: %v", err)
			}
			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("%v should be enabled", tt.enabled)
			}
			if logger.Core().Enabled(tt.off) {
				t.Errorf("%v should be disabled", tt.off)
			}
		})
	}

	if _, err := newLogger("verbose"); err == nil {
		t.Error("unknown level should fail")
	}
}

func TestFailureLoggingIssuer(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	responses := []struct {
		ex  driver.Exchange
		err error
	}{
		{driver.Exchange{StatusCode: 200}, nil},
		{driver.Exchange{StatusCode: 503}, nil},
		{driver.Exchange{}, context.DeadlineExceeded},
	}
	var call int
	next := driver.IssuerFunc(func(ctx context.Context, req driver.Request) (driver.Exchange, error) {
		r := responses[call]
		call++
		return r.ex, r.err
	})
	issuer := withFailureLogging(next, zap.New(core))

	req := driver.Request{URL: "http://svc.local/x", Method: http.MethodGet}
	for range responses {
		_, _ = issuer.Issue(context.Background(), req)
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries, want 2", len(entries))
	}
	if entries[0].Message != "request returned non-success status" || entries[0].ContextMap()["status"] != int64(503) {
		t.Errorf("first entry = %s %v", entries[0].Message, entries[0].ContextMap())
	}
	if entries[1].Message != "request failed" || entries[1].ContextMap()["kind"] != "timeout" {
		t.Errorf("second entry = %s %v", entries[1].Message, entries[1].ContextMap())
	}
}
