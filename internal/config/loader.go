package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used before files and flags apply.
func Defaults() *Config {
	return &Config{
		Method:      http.MethodGet,
		Headers:     map[string]string{},
		Total:       100,
		Concurrency: 10,
		Timeout:     15 * time.Second,
		Output:      OutputText,
		LogLevel:    "info",
		Listen:      ":8090",
		Tracing:     TracingConfig{SampleRate: 1},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	return l.LoadFlags(flagSet)
}

// LoadFlags builds a Config from an already parsed flag set, reading the
// file named by --config first and letting changed flags override it.
func (Loader) LoadFlags(flagSet *pflag.FlagSet) (*Config, error) {
	var configPath string
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.BodyFile = strings.TrimSpace(cfg.BodyFile)
	cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(string(cfg.Output))))
	if cfg.Output == "" {
		cfg.Output = OutputText
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("method: %w", err)
		}
		if val != "" {
			cfg.Method = val
		}
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "body"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("body: %w", err)
		}
		cfg.Body = val
	}

	if raw, ok := lookupSetting(settings, "bodyfile", "body_file", "body-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("bodyFile: %w", err)
		}
		cfg.BodyFile = val
	}

	if raw, ok := lookupSetting(settings, "total"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("total: %w", err)
		}
		cfg.Total = val
	}

	if raw, ok := lookupSetting(settings, "concurrency"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("concurrency: %w", err)
		}
		cfg.Concurrency = val
	}

	if raw, ok := lookupSetting(settings, "delay"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("delay: %w", err)
		}
		cfg.Delay = dur
	}

	if raw, ok := lookupSetting(settings, "adaptive"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("adaptive: %w", err)
		}
		cfg.Adaptive = val
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "discardbodies", "discard_bodies", "discard-bodies"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("discardBodies: %w", err)
		}
		cfg.DiscardBodies = val
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = OutputFormat(val)
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "loglevel", "log_level", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("logLevel: %w", err)
		}
		cfg.LogLevel = val
	}

	if raw, ok := lookupSetting(settings, "logerrors", "log_errors", "log-errors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("logErrors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "listen"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		cfg.Listen = val
	}

	if raw, ok := lookupSetting(settings, "lockfile", "lock_file", "lock-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("lockFile: %w", err)
		}
		cfg.LockFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "baseurl", "base_url", "base-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("baseURL: %w", err)
		}
		cfg.BaseURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "catalog"); ok {
		sources, err := parseCatalog(raw)
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		cfg.Catalog = sources
	}

	if raw, ok := lookupSetting(settings, "policy"); ok {
		policy, err := parsePolicy(raw)
		if err != nil {
			return fmt.Errorf("policy: %w", err)
		}
		cfg.Policy = policy
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

func parseCatalog(value interface{}) ([]CatalogSource, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	sources := make([]CatalogSource, 0, len(items))
	for idx, item := range items {
		settings, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("catalog[%d]: %w", idx, err)
		}
		var src CatalogSource
		if raw, ok := settings["service"]; ok {
			if src.Service, err = asString(raw); err != nil {
				return nil, fmt.Errorf("catalog[%d].service: %w", idx, err)
			}
		}
		if raw, ok := settings["schema"]; ok {
			if src.Schema, err = asString(raw); err != nil {
				return nil, fmt.Errorf("catalog[%d].schema: %w", idx, err)
			}
		}
		src.Service = strings.TrimSpace(src.Service)
		src.Schema = strings.TrimSpace(src.Schema)
		sources = append(sources, src)
	}
	return sources, nil
}

func parsePolicy(value interface{}) (PolicyConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return PolicyConfig{}, err
	}
	var p PolicyConfig
	if raw, ok := lookupSetting(settings, "reduction_factor", "reductionfactor"); ok {
		if p.ReductionFactor, err = asFloat64(raw); err != nil {
			return p, fmt.Errorf("reduction_factor: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "min_concurrency", "minconcurrency"); ok {
		if p.MinConcurrency, err = asInt(raw); err != nil {
			return p, fmt.Errorf("min_concurrency: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "resource_error_ratio", "resourceerrorratio"); ok {
		if p.ResourceErrorRatio, err = asFloat64(raw); err != nil {
			return p, fmt.Errorf("resource_error_ratio: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "resource_error_count", "resourceerrorcount"); ok {
		if p.ResourceErrorCount, err = asInt(raw); err != nil {
			return p, fmt.Errorf("resource_error_count: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "increase_error_ratio", "increaseerrorratio"); ok {
		if p.IncreaseErrorRatio, err = asFloat64(raw); err != nil {
			return p, fmt.Errorf("increase_error_ratio: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "increase_step", "increasestep"); ok {
		if p.IncreaseStep, err = asInt(raw); err != nil {
			return p, fmt.Errorf("increase_step: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "increase_limit", "increaselimit"); ok {
		if p.IncreaseLimit, err = asFloat64(raw); err != nil {
			return p, fmt.Errorf("increase_limit: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "fast_response", "fastresponse"); ok {
		if p.FastResponse, err = asDuration(raw); err != nil {
			return p, fmt.Errorf("fast_response: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "slow_response", "slowresponse"); ok {
		if p.SlowResponse, err = asDuration(raw); err != nil {
			return p, fmt.Errorf("slow_response: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "min_delay", "mindelay"); ok {
		if p.MinDelay, err = asDuration(raw); err != nil {
			return p, fmt.Errorf("min_delay: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "resource_error_delay", "resourceerrordelay"); ok {
		if p.ResourceErrorDelay, err = asDuration(raw); err != nil {
			return p, fmt.Errorf("resource_error_delay: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "slow_response_delay", "slowresponsedelay"); ok {
		if p.SlowResponseDelay, err = asDuration(raw); err != nil {
			return p, fmt.Errorf("slow_response_delay: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "host_ceiling", "hostceiling"); ok {
		if p.HostCeiling, err = asInt(raw); err != nil {
			return p, fmt.Errorf("host_ceiling: %w", err)
		}
	}
	return p, nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return base, err
	}
	t := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		if t.Endpoint, err = asString(raw); err != nil {
			return t, fmt.Errorf("endpoint: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		if t.Protocol, err = asString(raw); err != nil {
			return t, fmt.Errorf("protocol: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename"); ok {
		if t.ServiceName, err = asString(raw); err != nil {
			return t, fmt.Errorf("service_name: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		if t.SampleRate, err = asFloat64(raw); err != nil {
			return t, fmt.Errorf("sample_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		if t.Insecure, err = asBool(raw); err != nil {
			return t, fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return t, fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return t, nil
}
