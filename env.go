package toolrunner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"path"
	"slices"

	"go.opentelemetry.io/otel/trace"
)

// Environment variable names read by the runner or handed to tools.
const (
	EnvExecutionDataDir          = "EXECUTION_DATA_DIR"
	EnvExecutionDirPrefix        = "WORKFLOW_EXECUTION_DIR_PREFIX"
	EnvFileStorageCredentials    = "WORKFLOW_EXECUTION_FILE_STORAGE_CREDENTIALS"
	EnvToolAdditionalEnvs        = "TOOL_ADDITIONAL_ENVS"
	EnvToolContainerLabels       = "TOOL_CONTAINER_LABELS"
	EnvOtelPropagators           = "OTEL_PROPAGATORS"
	EnvOtelTraceID               = "OTEL_TRACE_ID"
	EnvOtelSpanID                = "OTEL_SPAN_ID"
	EnvOtelTraceFlags            = "OTEL_TRACE_FLAGS"
	defaultStorageCredentials    = "{}"
	traceContextPropagatorString = "tracecontext"
)

var errNoTraceContext = errors.New("no valid span context")

// EnvConfig holds the operator-level settings that feed every container
// environment.
type EnvConfig struct {
	// ExecutionDirPrefix is joined with org/workflow/execution ids to form
	// EXECUTION_DATA_DIR.
	ExecutionDirPrefix string

	// StorageCredentials is passed to the tool untouched. Defaults to "{}".
	StorageCredentials string

	// AdditionalEnvs is the raw TOOL_ADDITIONAL_ENVS JSON object.
	AdditionalEnvs string
}

// ComposeEnv builds the environment for one container run. base is copied,
// never modified.
func ComposeEnv(ctx context.Context, base map[string]string, ec ExecutionContext, cfg EnvConfig) map[string]string {
	env := make(map[string]string, len(base)+8)
	maps.Copy(env, base)

	env[EnvExecutionDataDir] = path.Join(cfg.ExecutionDirPrefix, ec.OrganizationID, ec.WorkflowID, ec.ExecutionID)

	creds := cfg.StorageCredentials
	if creds == "" {
		creds = defaultStorageCredentials
	}
	env[EnvFileStorageCredentials] = creds

	maps.Copy(env, ParseAdditionalEnvs(cfg.AdditionalEnvs))

	addTraceEnv(ctx, env)
	return env
}

// ParseAdditionalEnvs decodes a TOOL_ADDITIONAL_ENVS value. Malformed input
// is logged and yields an empty map.
func ParseAdditionalEnvs(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		slog.Warn("failed to parse "+EnvToolAdditionalEnvs, "error", err)
		return out
	}

	for k, v := range decoded {
		out[k] = envValue(v)
	}
	slog.Info("parsed additional environment variables", "keys", slices.Sorted(maps.Keys(out)))
	return out
}

func envValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// addTraceEnv injects W3C trace context variables when ctx carries a valid
// span. Existing keys win.
func addTraceEnv(ctx context.Context, env map[string]string) {
	vars, err := traceEnv(ctx)
	if err != nil {
		slog.Debug("skipping trace propagation", "error", err)
		return
	}
	for k, v := range vars {
		if _, ok := env[k]; !ok {
			env[k] = v
		}
	}
	slog.Debug("propagating trace context", "trace_id", vars[EnvOtelTraceID])
}

func traceEnv(ctx context.Context) (map[string]string, error) {
	if ctx == nil {
		return nil, errNoTraceContext
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil, errNoTraceContext
	}
	return map[string]string{
		EnvOtelPropagators: traceContextPropagatorString,
		EnvOtelTraceID:     sc.TraceID().String(),
		EnvOtelSpanID:      sc.SpanID().String(),
		EnvOtelTraceFlags:  sc.TraceFlags().String(),
	}, nil
}
