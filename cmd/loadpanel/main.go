package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/observastack/loadpanel/internal/config"
	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/httpclient"
	"github.com/observastack/loadpanel/internal/tracing"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loadpanel",
		Short:         "Adaptive parallel HTTP load driver",
		SilenceErrors: true,
		SilenceUsage:  true,
		// A bare invocation with --target behaves like `run`.
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("target") && !cmd.Flags().Changed("config") {
				return cmd.Help()
			}
			return runCommand(cmd)
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run one load test and print the report",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd)
			},
		},
		&cobra.Command{
			Use:   "tui",
			Short: "Open the interactive control panel",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return tuiCommand(cmd)
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Expose the control API, websocket stream and metrics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return serveCommand(cmd)
			},
		},
		newEndpointsCmd(),
	)
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.NewLoader().LoadFlags(cmd.Flags())
}

// loadBody reads the inline body or body file once so every request of a
// run sends the same bytes.
func loadBody(cfg *config.Config) ([]byte, error) {
	src, err := httpclient.NewBodySource(cfg.Body, cfg.BodyFile)
	if err != nil {
		return nil, err
	}
	return httpclient.LoadBody(src)
}

// newIssuer builds the HTTP issuer for cfg. Failed exchanges are logged
// when --log-errors is set.
func newIssuer(cfg *config.Config, provider *tracing.Provider, logger *zap.Logger) driver.Issuer {
	var opts []httpclient.IssuerOption
	if cfg.Tracing.Enabled() {
		opts = append(opts, httpclient.WithTracer(provider.Tracer(), provider.ShouldPropagate()))
	}
	if cfg.DiscardBodies {
		opts = append(opts, httpclient.WithDiscardBody())
	}
	var issuer driver.Issuer = httpclient.NewIssuer(httpclient.NewClient(cfg.Timeout), opts...)
	if cfg.LogErrors {
		issuer = withFailureLogging(issuer, logger)
	}
	return issuer
}

func shutdownTracing(provider *tracing.Provider, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), tracingFlushTimeout)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		logger.Warn("flush traces", zap.Error(err))
	}
}
