// Package main provides the toolrunner CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/everydev1618/toolrunner"
	"github.com/everydev1618/toolrunner/container"
	"github.com/everydev1618/toolrunner/internal/config"
	"github.com/everydev1618/toolrunner/internal/telemetry"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "toolrunner",
		Short: "Run workflow tools in Docker containers",
		Long: `toolrunner launches tool images in containers, streams their structured
output to messaging channels, and returns each run's single result.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file (environment variables take precedence)")

	root.AddCommand(
		newServeCmd(flags),
		newRunCmd(flags),
		newCommandCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "toolrunner %s\n", version)
		},
	}
}

// loadConfig reads configuration and installs the JSON logger.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	return cfg, nil
}

// runtime holds what every command needs to run tools.
type runtime struct {
	client     *container.Client
	publishers toolrunner.Publishers
	runnerOpts []toolrunner.RunnerOption
	shutdown   func(context.Context) error
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.Enabled = cfg.TracesEnabled
	tcfg.Endpoint = cfg.OTLPEndpoint
	tcfg.ServiceName = cfg.ServiceName
	tcfg.ServiceVersion = version
	shutdown, err := telemetry.InitProvider(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	client, err := container.NewClient(
		container.WithNetwork(cfg.DockerNetwork),
		container.WithRemoveOnExit(cfg.RemoveContainerOnExit),
	)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}

	rt := &runtime{
		client: client,
		runnerOpts: []toolrunner.RunnerOption{
			toolrunner.WithEnvConfig(cfg.EnvConfig()),
			toolrunner.WithLabels(cfg.ContainerLabels),
			toolrunner.WithDefaultTag(cfg.DefaultImageTag),
		},
		shutdown: shutdown,
	}
	if cfg.LogPublishURL != "" {
		rt.publishers = append(rt.publishers, toolrunner.NewHTTPPublisher(cfg.LogPublishURL))
	}
	return rt, nil
}

func (rt *runtime) Close(ctx context.Context) {
	if err := rt.client.Close(); err != nil {
		slog.Warn("docker client close failed", "error", err)
	}
	if err := rt.shutdown(ctx); err != nil {
		slog.Warn("telemetry shutdown failed", "error", err)
	}
}
