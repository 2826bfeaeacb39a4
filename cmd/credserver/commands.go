package main

import (
	"errors"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"credserver/internal/database"
	"credserver/internal/database/migration"
	"credserver/internal/logger"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the credential document over HTTP",
		Long: `Serve the credential document over HTTP.

The document is produced by a refresher process sharing the same store
(see "credserver refresh"). With --prefork one child process per CPU
accepts connections on the shared socket.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host, _ = cmd.Flags().GetString("host")
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetString("port")
			}
			prefork, _ := cmd.Flags().GetBool("prefork")

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withTracing(ctx, log, func() error {
				a, err := newAppContext(ctx, cfg, log)
				if err != nil {
					return err
				}
				defer a.Close()
				a.watchStore(ctx)

				app, err := newServer(a, a.refresher(), prefork)
				if err != nil {
					return err
				}
				return listen(ctx, a, app, cfg.Addr())
			})
		},
	}

	cmd.Flags().String("host", "", "Address to bind (overrides HOST)")
	cmd.Flags().String("port", "", "Port to listen on (overrides PORT)")
	cmd.Flags().Bool("prefork", false, "Spawn one server process per CPU")
	return cmd
}

func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run the background token refresher",
		Long: `Seed the credential document from QWEN_ACCESS_TOKEN and QWEN_REFRESH_TOKEN
when it does not exist yet, then refresh the access token once per
REFRESH_INTERVAL_SEC. A failed attempt is logged and retried on the next tick.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			once, _ := cmd.Flags().GetBool("once")

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withTracing(ctx, log, func() error {
				a, err := newAppContext(ctx, cfg, log)
				if err != nil {
					return err
				}
				defer a.Close()

				refresher := a.refresher()
				if err := refresher.Initialize(ctx); err != nil {
					return err
				}
				if once {
					_, err := refresher.RefreshOnce(ctx)
					return err
				}
				return refresher.Run(ctx)
			})
		},
	}

	cmd.Flags().Bool("once", false, "Refresh a single time and exit non-zero on failure")
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the HTTP server and the refresher in one process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withTracing(ctx, log, func() error {
				a, err := newAppContext(ctx, cfg, log)
				if err != nil {
					return err
				}
				defer a.Close()
				a.watchStore(ctx)

				refresher := a.refresher()
				if err := refresher.Initialize(ctx); err != nil {
					return err
				}
				app, err := newServer(a, refresher, false)
				if err != nil {
					return err
				}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error { return refresher.Run(gctx) })
				g.Go(func() error { return listen(gctx, a, app, cfg.Addr()) })
				return g.Wait()
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the refresh audit schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled() {
				return errors.New("audit database is not configured (DB_HOST is empty)")
			}

			ctx := cmd.Context()
			db, err := database.OpenAudit(ctx, cfg.Database, logger.Component(log, "database"))
			if err != nil {
				return err
			}
			defer db.Close()

			return migration.EnsureMigrated(ctx, db, logger.Component(log, "migration"))
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := bootstrap()
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg.Redacted()); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			if err := enc.Close(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "# listen address: %s\n", net.JoinHostPort(cfg.Server.Host, cfg.Server.Port))
			return err
		},
	}
}
