package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/observastack/loadpanel/internal/driver"
)

// newLogger builds the process logger. Debug uses the development encoder.
// Logs go to stderr so reports on stdout stay machine readable.
func newLogger(level string) (*zap.Logger, error) {
	var zapConfig zap.Config
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "", "info":
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return nil, fmt.Errorf("unsupported log level %q", level)
	}
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	zapConfig.DisableStacktrace = true
	zapConfig.Sampling = nil

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

type failureLoggingIssuer struct {
	next   driver.Issuer
	logger *zap.Logger
}

// withFailureLogging logs every exchange that errors or returns a non-2xx
// status. The exchange itself is passed through unchanged.
func withFailureLogging(next driver.Issuer, logger *zap.Logger) driver.Issuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &failureLoggingIssuer{next: next, logger: logger}
}

func (f *failureLoggingIssuer) Issue(ctx context.Context, req driver.Request) (driver.Exchange, error) {
	ex, err := f.next.Issue(ctx, req)
	switch {
	case err != nil:
		f.logger.Warn("request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.String("kind", string(driver.ClassifyError(err))),
			zap.Error(err),
		)
	case ex.StatusCode < 200 || ex.StatusCode > 299:
		f.logger.Warn("request returned non-success status",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Int("status", ex.StatusCode),
			zap.Duration("duration", ex.TotalDuration),
		)
	}
	return ex, err
}
