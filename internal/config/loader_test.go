package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // int treated as seconds
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsFloat64(t *testing.T) {
	tests := []struct {
		input interface{}
		want  float64
	}{
		{0.25, 0.25},
		{2, 2},
		{"0.5", 0.5},
		{"5%", 5},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asFloat64(tt.input)
		if err != nil {
			t.Errorf("asFloat64(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asFloat64(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := &Config{}
	settings := map[string]interface{}{
		"target":      "http://example.com",
		"method":      "POST",
		"concurrency": 10,
		"timeout":     "5s",
		"delay":       "100ms",
		"adaptive":    true,
		"headers": map[string]interface{}{
			"content-type": "application/json",
		},
		"policy": map[string]interface{}{
			"reduction_factor":     0.5,
			"host_ceiling":         8,
			"fast_response":        "500ms",
			"increase_limit":       1.25,
			"min_delay":            "40ms",
			"resource_error_delay": 1,
			"slow_response_delay":  "150ms",
		},
		"tracing": map[string]interface{}{
			"endpoint":  "localhost:4317",
			"propagate": false,
		},
		"catalog": []interface{}{
			map[string]interface{}{"service": "api", "schema": "api.json"},
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.TargetURL != "http://example.com" {
		t.Errorf("TargetURL = %q, want http://example.com", cfg.TargetURL)
	}
	if cfg.Method != "POST" {
		t.Errorf("Method = %q, want POST", cfg.Method)
	}
	if cfg.Concurrency != 10 {
		t.Errorf("Concurrency = %d, want 10", cfg.Concurrency)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.Delay != 100*time.Millisecond || !cfg.Adaptive {
		t.Errorf("Delay/Adaptive = %v/%v", cfg.Delay, cfg.Adaptive)
	}
	if cfg.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers[Content-Type] = %q, want application/json", cfg.Headers["Content-Type"])
	}
	if cfg.Policy.ReductionFactor != 0.5 || cfg.Policy.HostCeiling != 8 || cfg.Policy.FastResponse != 500*time.Millisecond {
		t.Errorf("Policy = %+v", cfg.Policy)
	}
	if cfg.Policy.IncreaseLimit != 1.25 || cfg.Policy.MinDelay != 40*time.Millisecond ||
		cfg.Policy.ResourceErrorDelay != time.Second || cfg.Policy.SlowResponseDelay != 150*time.Millisecond {
		t.Errorf("Policy floors = %+v", cfg.Policy)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" || cfg.Tracing.ShouldPropagate() {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if len(cfg.Catalog) != 1 || cfg.Catalog[0].Service != "api" || cfg.Catalog[0].Schema != "api.json" {
		t.Errorf("Catalog = %+v", cfg.Catalog)
	}
}

func TestApplyConfigSettingsRejectsBadTypes(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]interface{}
	}{
		{"concurrency", map[string]interface{}{"concurrency": "many"}},
		{"delay", map[string]interface{}{"delay": "soon"}},
		{"policy", map[string]interface{}{"policy": "fast"}},
		{"catalog", map[string]interface{}{"catalog": "api.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := applyConfigSettings(Defaults(), tt.settings); err == nil {
				t.Errorf("applyConfigSettings(%v) error = nil, want error", tt.settings)
			}
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := &Config{
		Concurrency: 1,
		Method:      "GET",
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--concurrency=5",
		"--method=PUT",
		"--header=X-Test=123",
		"--yaml-output",
		"--catalog=api=schemas/api.json",
		"--tracing-sample-rate=0.25",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", cfg.Concurrency)
	}
	if cfg.Method != "PUT" {
		t.Errorf("Method = %q, want PUT", cfg.Method)
	}
	if cfg.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Headers["X-Test"])
	}
	if cfg.Output != OutputYAML {
		t.Errorf("Output = %q, want yaml", cfg.Output)
	}
	if len(cfg.Catalog) != 1 || cfg.Catalog[0].Schema != "schemas/api.json" {
		t.Errorf("Catalog = %+v", cfg.Catalog)
	}
	if cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("SampleRate = %v, want 0.25", cfg.Tracing.SampleRate)
	}
}

func TestApplyFlagOverridesBadHeader(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse([]string{"--header=NoEquals"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := applyFlagOverrides(Defaults(), fs); err == nil {
		t.Fatal("expected error for malformed header")
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"--target=http://example.com",
		"--concurrency=2",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "http://example.com" {
		t.Errorf("TargetURL = %q, want http://example.com", cfg.TargetURL)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Concurrency)
	}
}
