package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/everydev1618/toolrunner"
	"github.com/everydev1618/toolrunner/internal/config"
	"github.com/everydev1618/toolrunner/internal/platform"
	"github.com/everydev1618/toolrunner/internal/storage"
	"github.com/everydev1618/toolrunner/serve"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr, dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API for running tool containers.

Endpoints:
  POST /v1/api/container/run          run a tool and return its result
  POST /v1/api/container/run-command  run a direct command (SPEC, PROPERTIES, ...)
  GET  /v1/api/events?channel=<id>    stream a channel's events (SSE)
  GET  /health, GET /ready`,
		Example: `  toolrunner serve
  toolrunner serve --addr :8080 --db /tmp/toolrunner.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from RUNNER_ADDR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file history path (default from RUNNER_DB_PATH)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := toolrunner.EnsureHome(); err != nil {
		return fmt.Errorf("create home: %w", err)
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	opts := []serve.Option{
		serve.WithRunnerOptions(rt.runnerOpts...),
		serve.WithReadinessCheck("docker", rt.client.Ping),
	}
	for _, p := range rt.publishers {
		opts = append(opts, serve.WithPublisher(p))
	}

	if check := storageCheck(cfg.StorageCredentials); check != nil {
		opts = append(opts, serve.WithReadinessCheck("storage", check))
	}

	if cfg.DatabaseURL != "" {
		orgs, err := platform.OpenOrganizations(ctx, platform.DefaultConfig(cfg.DatabaseURL, cfg.DBSchema))
		if err != nil {
			return fmt.Errorf("open platform database: %w", err)
		}
		defer orgs.Close()
		opts = append(opts,
			serve.WithOrganizations(orgs),
			serve.WithReadinessCheck("database", orgs.Ping),
		)
		slog.Info("platform key authentication enabled", "schema", cfg.DBSchema)
	}

	srv := serve.New(rt.client, serve.Config{Addr: cfg.Addr, DBPath: cfg.DBPath}, opts...)
	return srv.Start(ctx)
}

// storageCheck returns a readiness check for the file storage tools use, or
// nil when the credentials cannot be probed. Tools receive the blob
// unchanged either way.
func storageCheck(blob string) serve.ReadinessCheck {
	creds, err := storage.ParseCredentials(blob)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		slog.Info("file storage credentials not configured, skipping storage readiness check")
		return nil
	case err != nil:
		slog.Warn("file storage credentials cannot be probed, skipping storage readiness check", "error", err)
		return nil
	}
	return func(ctx context.Context) error {
		return storage.Probe(ctx, creds)
	}
}
