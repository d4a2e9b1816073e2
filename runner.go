package toolrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"
)

// Command directives understood by tool images.
const (
	CommandRun      = "RUN"
	defaultLogLevel = "DEBUG"
)

// Runner launches tool containers and turns their output into a RunResult.
// A Runner holds only configuration; one Runner may serve concurrent runs.
type Runner struct {
	client     ContainerClient
	publisher  Publisher
	image      string
	tag        string
	defaultTag string
	env        EnvConfig
	labels     string
	now        func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithImage sets the tool image. An empty tag falls back to the default tag.
func WithImage(name, tag string) RunnerOption {
	return func(r *Runner) {
		r.image = name
		r.tag = tag
	}
}

// WithDefaultTag sets the tag used when WithImage gives none.
// It defaults to "latest".
func WithDefaultTag(tag string) RunnerOption {
	return func(r *Runner) {
		r.defaultTag = tag
	}
}

// WithPublisher sets where forwarded events go when a run names a channel.
func WithPublisher(p Publisher) RunnerOption {
	return func(r *Runner) {
		r.publisher = p
	}
}

// WithEnvConfig sets the operator-level environment inputs.
func WithEnvConfig(cfg EnvConfig) RunnerOption {
	return func(r *Runner) {
		r.env = cfg
	}
}

// WithLabels sets the raw TOOL_CONTAINER_LABELS value.
func WithLabels(raw string) RunnerOption {
	return func(r *Runner) {
		r.labels = raw
	}
}

// WithClock overrides the time source used for events without emitted_at.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a Runner backed by client.
func NewRunner(client ContainerClient, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:     client,
		defaultTag: "latest",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tag == "" {
		r.tag = r.defaultTag
	}
	if r.tag == "" {
		r.tag = "latest"
	}
	return r
}

// loopSignal tells the log loop whether to keep reading.
type loopSignal int

const (
	loopContinue loopSignal = iota
	loopFatal
	loopTerminal
)

// RunContainer runs the tool with the RUN command and blocks until it
// produces a RESULT, reports an error, or its output closes. Every failure
// is returned as RunResult.Error. The container is cleaned up once on every
// path after it has started.
func (r *Runner) RunContainer(ctx context.Context, ec ExecutionContext, settings map[string]any, envs map[string]string) RunResult {
	if r.image == "" {
		return errorResult(ErrNoImage.Error())
	}

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return errorResult(fmt.Sprintf("encode settings: %v", err))
	}

	cfg := r.client.RunConfig(RunOptions{
		Image: r.image,
		Tag:   r.tag,
		Command: []string{
			"--command", CommandRun,
			"--settings", string(settingsJSON),
			"--log-level", defaultLogLevel,
		},
		Env:             ComposeEnv(ctx, envs, ec, r.env),
		Name:            ec.ContainerName,
		FileExecutionID: ec.FileExecutionID,
	})
	r.attachLabels(&cfg)

	slog.Info("running tool container", "execution_id", ec.ExecutionID, "container", cfg.Name, "image", cfg.Image)

	container, err := r.client.Run(ctx, cfg)
	if err != nil {
		slog.Error("failed to run tool container", "container", cfg.Name, "error", err)
		return errorResult(err.Error())
	}
	defer r.cleanup(ctx, container)

	result := r.streamLogs(ctx, container, ec, toolInstanceID(settings))
	if result.Failed() {
		slog.Error("tool container run failed", "execution_id", ec.ExecutionID, "container", container.Name(), "error", result.Error)
	} else {
		slog.Info("tool container ran successfully", "execution_id", ec.ExecutionID, "container", container.Name())
	}
	return result
}

// streamLogs reads the container's output until a terminal or fatal line,
// a read or publish error, or the end of output.
func (r *Runner) streamLogs(ctx context.Context, c Container, ec ExecutionContext, toolInstanceID string) RunResult {
	name := c.Name()
	for line, err := range c.Logs(ctx) {
		if err != nil {
			return errorResult(err.Error())
		}
		slog.Debug(fmt.Sprintf("[%s] - %s", name, line))

		signal, result, err := r.processLine(ctx, line, ec, toolInstanceID)
		if err != nil {
			return errorResult(err.Error())
		}
		if signal != loopContinue {
			return result
		}
	}
	return emptyResult()
}

func (r *Runner) processLine(ctx context.Context, line string, ec ExecutionContext, toolInstanceID string) (loopSignal, RunResult, error) {
	c := ClassifyLine(line, toolInstanceID)
	switch c.Action {
	case ActionFatal:
		return loopFatal, errorResult(c.Message), nil
	case ActionTerminal:
		return loopTerminal, RunResult{Type: LogTypeResult, Result: c.Event[FieldResult]}, nil
	case ActionForward:
		if err := r.publish(ctx, c.Event, ec); err != nil {
			return loopContinue, RunResult{}, err
		}
	}
	return loopContinue, RunResult{}, nil
}

// publish enriches and delivers event. Runs without a channel, or runners
// without a publisher, skip delivery.
func (r *Runner) publish(ctx context.Context, event LogEvent, ec ExecutionContext) error {
	if ec.Channel == "" || r.publisher == nil {
		return nil
	}
	enriched, err := Enrich(event, ec, r.now())
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, ec.Channel, enriched)
}

func (r *Runner) attachLabels(cfg *RunConfig) {
	labels, err := ParseLabels(r.labels)
	if err != nil {
		slog.Info("invalid labels for logging", "error", err)
		return
	}
	if len(labels) == 0 {
		return
	}
	if cfg.Labels == nil {
		cfg.Labels = make(map[string]string, len(labels))
	}
	maps.Copy(cfg.Labels, labels)
}

func (r *Runner) cleanup(ctx context.Context, c Container) {
	if err := c.Cleanup(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("container cleanup failed", "container", c.Name(), "error", err)
	}
}

// RunCommand runs a direct command (SPEC, PROPERTIES, ...) in an
// auto-removed container and returns the first output line whose type
// matches the command. Failures are logged and reported as false.
func (r *Runner) RunCommand(ctx context.Context, command string) (LogEvent, bool) {
	command = strings.ToUpper(command)
	if r.image == "" {
		slog.Error("failed to run tool container", "command", command, "error", ErrNoImage)
		return nil, false
	}

	env := ParseAdditionalEnvs(r.env.AdditionalEnvs)
	addTraceEnv(ctx, env)

	cfg := r.client.RunConfig(RunOptions{
		Image:      r.image,
		Tag:        r.tag,
		Command:    []string{"--command", command},
		Env:        env,
		AutoRemove: true,
	})

	container, err := r.client.Run(ctx, cfg)
	if err != nil {
		slog.Error("failed to run tool container", "command", command, "error", err)
		return nil, false
	}
	defer r.cleanup(ctx, container)

	for line, err := range container.Logs(ctx) {
		if err != nil {
			slog.Error("failed to read tool container output", "container", container.Name(), "error", err)
			return nil, false
		}
		slog.Info(fmt.Sprintf("[%s] - %s", container.Name(), line))
		if event := DecodeLine(line); event != nil && event.Type() == LogType(command) {
			return event, true
		}
	}
	return nil, false
}

func toolInstanceID(settings map[string]any) string {
	v, ok := settings[SettingToolInstanceID]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
