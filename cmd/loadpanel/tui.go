package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/tracing"
	"github.com/observastack/loadpanel/internal/tui"
)

// tuiCommand opens the control panel. Flags only prefill the form, so the
// target may be empty here. Logging is off because the panel owns the
// terminal.
func tuiCommand(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	body, err := loadBody(cfg)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	provider, err := tracing.Init(cmd.Context(), cfg.Tracing)
	if err != nil {
		return err
	}
	defer shutdownTracing(provider, logger)

	drv := driver.New(newIssuer(cfg, provider, logger),
		driver.WithLogger(logger),
		driver.WithPolicy(cfg.DriverPolicy()),
	)
	return tui.Run(cmd.Context(), drv, *cfg, body)
}
