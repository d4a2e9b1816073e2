package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/everydev1618/toolrunner"
)

type runFlags struct {
	image, tag   string
	exec         toolrunner.ExecutionContext
	settings     string
	settingsFile string
	envs         []string
	eventsDir    string
}

func newRunCmd(root *rootFlags) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a tool once and print its result",
		Long: `Run a tool image with the RUN command and print the RunResult as JSON.

Events the tool emits are published to --channel: over HTTP when
LOG_PUBLISH_URL is set, and as files under --events-dir when given.`,
		Example: `  toolrunner run --image unstract/tool-classifier --tag 0.0.1 \
    --org org_1 --workflow wf_1 --execution exec_1 \
    --settings '{"tool_instance_id":"ti_1"}' --channel exec_1 --events-dir ./events`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := readSettings(f.settings, f.settingsFile)
			if err != nil {
				return err
			}
			envs, err := parseEnvFlags(f.envs)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			publishers := rt.publishers
			if f.eventsDir != "" {
				dir, err := toolrunner.NewDirPublisher(f.eventsDir)
				if err != nil {
					return err
				}
				publishers = append(publishers, dir)
			}

			opts := append(rt.runnerOpts, toolrunner.WithImage(f.image, f.tag))
			if len(publishers) > 0 {
				opts = append(opts, toolrunner.WithPublisher(publishers))
			}
			runner := toolrunner.NewRunner(rt.client, opts...)

			result := runner.RunContainer(ctx, f.exec, settings, envs)
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.Failed() {
				return errors.New("tool run failed")
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.image, "image", "", "Tool image name")
	fl.StringVar(&f.tag, "tag", "", "Tool image tag (default from TOOL_IMAGE_TAG_DEFAULT)")
	fl.StringVar(&f.exec.OrganizationID, "org", "", "Organization ID")
	fl.StringVar(&f.exec.WorkflowID, "workflow", "", "Workflow ID")
	fl.StringVar(&f.exec.ExecutionID, "execution", "", "Execution ID")
	fl.StringVar(&f.exec.FileExecutionID, "file-execution", "", "File execution ID")
	fl.StringVar(&f.exec.Channel, "channel", "", "Messaging channel for forwarded events")
	fl.StringVar(&f.exec.ContainerName, "name", "", "Container name (generated when empty)")
	fl.StringVar(&f.settings, "settings", "", "Tool settings as a JSON object")
	fl.StringVar(&f.settingsFile, "settings-file", "", "File containing tool settings JSON")
	fl.StringArrayVarP(&f.envs, "env", "e", nil, "Extra environment variable KEY=VALUE (repeatable)")
	fl.StringVar(&f.eventsDir, "events-dir", "", "Also write forwarded events as files under this directory")
	cmd.MarkFlagRequired("image")
	cmd.MarkFlagRequired("org")
	cmd.MarkFlagRequired("workflow")
	cmd.MarkFlagRequired("execution")
	cmd.MarkFlagsMutuallyExclusive("settings", "settings-file")
	return cmd
}

func newCommandCmd(root *rootFlags) *cobra.Command {
	var image, tag string

	cmd := &cobra.Command{
		Use:     "command <SPEC|PROPERTIES|VARIABLES|ICON>",
		Short:   "Run a direct tool command and print its payload",
		Example: `  toolrunner command SPEC --image unstract/tool-classifier --tag 0.0.1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			runner := toolrunner.NewRunner(rt.client, append(rt.runnerOpts, toolrunner.WithImage(image, tag))...)
			payload, ok := runner.RunCommand(ctx, args[0])
			if !ok {
				return fmt.Errorf("tool produced no %s output", strings.ToUpper(args[0]))
			}
			return printJSON(cmd.OutOrStdout(), payload)
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "Tool image name")
	cmd.Flags().StringVar(&tag, "tag", "", "Tool image tag (default from TOOL_IMAGE_TAG_DEFAULT)")
	cmd.MarkFlagRequired("image")
	return cmd
}

// readSettings decodes settings from an inline value or a file.
func readSettings(inline, path string) (map[string]any, error) {
	raw := inline
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}
		raw = string(data)
	}
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var settings map[string]any
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("settings must be a JSON object: %w", err)
	}
	return settings, nil
}

// parseEnvFlags turns KEY=VALUE pairs into a map.
func parseEnvFlags(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q, want KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
