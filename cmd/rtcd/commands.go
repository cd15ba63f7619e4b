package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenRTM/RTM-Tutorial-sub001/config"
)

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Run RT components connected through data ports",
		Long: `Run RT components connected through data ports.

rtcd loads layered configuration files, creates the configured components,
connects their ports and drives them from periodic execution contexts.
Without configured components it runs a demo pipeline: a sequence source,
a gain processor and a file sink.`,
		Example: `  # Run the demo pipeline over direct connections
  rtcd run --demo-interface direct --demo-dir /tmp/rtm

  # Run with a base and a site configuration
  rtcd run -c configs/base.yaml -c configs/site.json

  # Validate configuration only
  rtcd validate -c configs/site.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}
			slog.SetDefault(setupLogger(os.Stdout, opts.LogLevel, opts.LogFormat))
			return nil
		},
	}
	opts.bind(root)

	root.AddCommand(
		newRunCmd(opts),
		newValidateCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Create the configured components and run them until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runHost(ctx, cfg, slog.Default(), opts.ShutdownTimeout)
		},
	}
}

func newValidateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the merged configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			slog.Info("Configuration is valid",
				"components", len(cfg.Components),
				"execution_contexts", len(cfg.ExecutionContexts),
				"connections", len(cfg.Connections))
			shown := cfg.Clone()
			shown.NATS.Password, shown.NATS.Token = redact(shown.NATS.Password), redact(shown.NATS.Token)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), shown.String())
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build %s)\n", appName, Version, BuildTime)
		},
	}
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// loadConfig merges the configured layers and the environment, fills in the
// demo pipeline when no components are configured and validates the result
func loadConfig(opts *cliOptions) (*config.Config, error) {
	loader := config.NewLoader()
	for _, path := range opts.ConfigPaths {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg.ApplyDemo(opts.DemoRate, opts.DemoInterface, opts.DemoDirectory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runHost assembles the host and serves until ctx ends, then shuts it down
// within timeout
func runHost(ctx context.Context, cfg *config.Config, logger *slog.Logger, timeout time.Duration) error {
	logger.Info("Starting rtcd",
		"version", Version,
		"build_time", BuildTime,
		"instance", cfg.Platform.Instance)

	h, err := newHost(ctx, cfg, logger)
	if err != nil {
		return err
	}

	serveErr := h.serve(ctx)
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := h.shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if serveErr != nil {
		return serveErr
	}

	logger.Info("rtcd shutdown complete")
	return nil
}
