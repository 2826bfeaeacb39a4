package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"credserver/internal/config"
	"credserver/internal/logger"
	tracing "credserver/internal/otel"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "credserver",
		Short: "Serve and refresh Qwen OAuth credentials",
		Long: `credserver keeps a Qwen OAuth credential document fresh and serves it over HTTP
behind a shared API key.

The HTTP server and the background refresher can run as separate processes
sharing the credential file (serve + refresh) or together in one process (run).

Configuration comes from the environment; a .env file in the working directory
is loaded automatically.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newRefreshCmd(),
		newRunCmd(),
		newMigrateCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// bootstrap loads configuration and builds the root logger.
func bootstrap() (*config.AppConfig, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger.New(cfg.Log, cfg.Location()), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// withTracing runs fn with the global tracer provider installed and flushes it afterwards.
func withTracing(ctx context.Context, log zerolog.Logger, fn func() error) error {
	shutdown, err := tracing.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()
	return fn()
}
