// Package config loads loadpanel settings from an optional JSON or YAML file
// and command-line flags. Flags that were set explicitly win over the file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/observastack/loadpanel/internal/driver"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

type Config struct {
	TargetURL     string            `mapstructure:"target"`
	Method        string            `mapstructure:"method"`
	Headers       map[string]string `mapstructure:"headers"`
	Body          string            `mapstructure:"body"`
	BodyFile      string            `mapstructure:"body_file"`
	Total         int               `mapstructure:"total"`
	Concurrency   int               `mapstructure:"concurrency"`
	Delay         time.Duration     `mapstructure:"delay"`
	Adaptive      bool              `mapstructure:"adaptive"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	DiscardBodies bool              `mapstructure:"discard_bodies"`
	Output        OutputFormat      `mapstructure:"output"`
	Dashboard     bool              `mapstructure:"dashboard"`
	LogLevel      string            `mapstructure:"log_level"`
	LogErrors     bool              `mapstructure:"log_errors"`
	Thresholds    []string          `mapstructure:"thresholds"`
	Listen        string            `mapstructure:"listen"`
	LockFile      string            `mapstructure:"lock_file"`
	BaseURL       string            `mapstructure:"base_url"`
	Catalog       []CatalogSource   `mapstructure:"catalog"`
	Policy        PolicyConfig      `mapstructure:"policy"`
	Tracing       TracingConfig     `mapstructure:"tracing"`
	ConfigFile    string            `mapstructure:"-"`
}

// CatalogSource names one OpenAPI document and the service it describes.
type CatalogSource struct {
	Service string `mapstructure:"service"`
	Schema  string `mapstructure:"schema"`
}

// PolicyConfig overrides adaptive policy constants. Zero values keep the
// driver defaults.
type PolicyConfig struct {
	ReductionFactor    float64       `mapstructure:"reduction_factor"`
	MinConcurrency     int           `mapstructure:"min_concurrency"`
	ResourceErrorRatio float64       `mapstructure:"resource_error_ratio"`
	ResourceErrorCount int           `mapstructure:"resource_error_count"`
	IncreaseErrorRatio float64       `mapstructure:"increase_error_ratio"`
	IncreaseStep       int           `mapstructure:"increase_step"`
	IncreaseLimit      float64       `mapstructure:"increase_limit"`
	FastResponse       time.Duration `mapstructure:"fast_response"`
	SlowResponse       time.Duration `mapstructure:"slow_response"`
	MinDelay           time.Duration `mapstructure:"min_delay"`
	ResourceErrorDelay time.Duration `mapstructure:"resource_error_delay"`
	SlowResponseDelay  time.Duration `mapstructure:"slow_response_delay"`
	HostCeiling        int           `mapstructure:"host_ceiling"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured, either here
// or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) != ""
}

// ShouldPropagate defaults to true when unset.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Propagate == nil || *t.Propagate
}

// RunConfig converts the request and load settings for the driver. The
// body must already be loaded.
func (c Config) RunConfig(body []byte) driver.RunConfig {
	return driver.RunConfig{
		TargetURL:     c.TargetURL,
		Method:        c.Method,
		Headers:       c.Headers,
		Body:          body,
		TotalRequests: c.Total,
		Concurrency:   c.Concurrency,
		Delay:         c.Delay,
		Adaptive:      c.Adaptive,
	}
}

// DriverPolicy merges the overrides into the default policy.
func (c Config) DriverPolicy() driver.Policy {
	p := driver.DefaultPolicy()
	if c.Timeout > 0 {
		p.RequestTimeout = c.Timeout
	}
	o := c.Policy
	if o.ReductionFactor > 0 {
		p.ReductionFactor = o.ReductionFactor
	}
	if o.MinConcurrency > 0 {
		p.MinConcurrency = o.MinConcurrency
	}
	if o.ResourceErrorRatio > 0 {
		p.ResourceErrorRatio = o.ResourceErrorRatio
	}
	if o.ResourceErrorCount > 0 {
		p.ResourceErrorCount = o.ResourceErrorCount
	}
	if o.IncreaseErrorRatio > 0 {
		p.IncreaseErrorRatio = o.IncreaseErrorRatio
	}
	if o.IncreaseStep > 0 {
		p.IncreaseStep = o.IncreaseStep
	}
	if o.IncreaseLimit >= 1 {
		p.IncreaseLimit = o.IncreaseLimit
	}
	if o.FastResponse > 0 {
		p.FastResponse = o.FastResponse
	}
	if o.SlowResponse > 0 {
		p.SlowResponse = o.SlowResponse
	}
	if o.MinDelay > 0 {
		p.MinDelay = o.MinDelay
	}
	if o.ResourceErrorDelay > 0 {
		p.ResourceErrorDelay = o.ResourceErrorDelay
	}
	if o.SlowResponseDelay > 0 {
		p.SlowResponseDelay = o.SlowResponseDelay
	}
	if o.HostCeiling > 0 {
		p.HostCeiling = o.HostCeiling
	}
	return p
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the settings used by `run`. Serve and tui take the
// target per run and use ValidateServe instead.
func (c Config) Validate() error {
	issues := c.commonIssues()
	if strings.TrimSpace(c.TargetURL) == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	} else if u, err := url.Parse(c.TargetURL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, fmt.Sprintf("target %q is not an absolute URL", c.TargetURL))
	}
	if c.Total < 0 {
		issues = append(issues, "total must be >= 0")
	} else if c.Total > driver.MaxTotalRequests {
		issues = append(issues, fmt.Sprintf("total must be <= %d", driver.MaxTotalRequests))
	}
	if c.Concurrency < 1 || c.Concurrency > driver.MaxConcurrency {
		issues = append(issues, fmt.Sprintf("concurrency must be between 1 and %d", driver.MaxConcurrency))
	}
	if c.Dashboard && c.Output != OutputText {
		issues = append(issues, "dashboard and structured output are mutually exclusive")
	}
	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func (c Config) ValidateServe() error {
	issues := c.commonIssues()
	if strings.TrimSpace(c.Listen) == "" {
		issues = append(issues, "listen address is required")
	}
	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func (c Config) commonIssues() []string {
	var issues []string
	if c.Delay < 0 {
		issues = append(issues, "delay must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if strings.TrimSpace(c.Body) != "" && strings.TrimSpace(c.BodyFile) != "" {
		issues = append(issues, "body and bodyFile are mutually exclusive")
	}
	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output format %q is not supported", c.Output))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log level %q is not supported", c.LogLevel))
	}
	for idx, src := range c.Catalog {
		if strings.TrimSpace(src.Service) == "" {
			issues = append(issues, fmt.Sprintf("catalog[%d]: service is required", idx))
		}
		if strings.TrimSpace(src.Schema) == "" {
			issues = append(issues, fmt.Sprintf("catalog[%d]: schema is required", idx))
		}
	}
	issues = append(issues, validatePolicy(c.Policy)...)
	issues = append(issues, validateTracing(c.Tracing)...)
	return issues
}

func validatePolicy(p PolicyConfig) []string {
	var issues []string
	if p.ReductionFactor < 0 || p.ReductionFactor >= 1 {
		issues = append(issues, "policy.reduction_factor must be in [0, 1)")
	}
	if p.ResourceErrorRatio < 0 || p.ResourceErrorRatio > 1 {
		issues = append(issues, "policy.resource_error_ratio must be in [0, 1]")
	}
	if p.IncreaseErrorRatio < 0 || p.IncreaseErrorRatio > 1 {
		issues = append(issues, "policy.increase_error_ratio must be in [0, 1]")
	}
	if p.MinConcurrency < 0 || p.ResourceErrorCount < 0 || p.IncreaseStep < 0 || p.HostCeiling < 0 {
		issues = append(issues, "policy counts must be >= 0")
	}
	if p.IncreaseLimit != 0 && p.IncreaseLimit < 1 {
		issues = append(issues, "policy.increase_limit must be >= 1")
	}
	if p.FastResponse < 0 || p.SlowResponse < 0 || p.MinDelay < 0 || p.ResourceErrorDelay < 0 || p.SlowResponseDelay < 0 {
		issues = append(issues, "policy durations must be >= 0")
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol %q is not supported (grpc or http)", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing.sample_rate must be in [0, 1]")
	}
	return issues
}
