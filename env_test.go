package toolrunner

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestComposeEnv(t *testing.T) {
	base := map[string]string{"PLATFORM_HOST": "backend", "SHARED": "base"}
	cfg := EnvConfig{
		ExecutionDirPrefix: "unstract/execution",
		StorageCredentials: `{"provider":"minio"}`,
		AdditionalEnvs:     `{"SHARED":"extra","RETRIES":3,"DEBUG":true,"EMPTY":null}`,
	}

	env := ComposeEnv(context.Background(), base, testExec, cfg)

	want := map[string]string{
		"PLATFORM_HOST":           "backend",
		"SHARED":                  "extra",
		"RETRIES":                 "3",
		"DEBUG":                   "true",
		"EMPTY":                   "",
		EnvExecutionDataDir:       "unstract/execution/org_1/wf_1/exec_1",
		EnvFileStorageCredentials: `{"provider":"minio"}`,
	}
	for k, v := range want {
		if got, ok := env[k]; !ok || got != v {
			t.Errorf("env[%s] = %q (present=%v), want %q", k, got, ok, v)
		}
	}
	if base["SHARED"] != "base" || len(base) != 2 {
		t.Errorf("base env was modified: %v", base)
	}
	if _, ok := env[EnvOtelTraceID]; ok {
		t.Error("trace variables injected without a span context")
	}
}

func TestComposeEnvDefaults(t *testing.T) {
	env := ComposeEnv(context.Background(), nil, testExec, EnvConfig{})

	if got := env[EnvExecutionDataDir]; got != "org_1/wf_1/exec_1" {
		t.Errorf("%s = %q", EnvExecutionDataDir, got)
	}
	if got := env[EnvFileStorageCredentials]; got != "{}" {
		t.Errorf("%s = %q, want {}", EnvFileStorageCredentials, got)
	}
}

func TestParseAdditionalEnvsMalformed(t *testing.T) {
	tests := []string{
		"{not json",
		`["A=1"]`,
		`"just a string"`,
	}
	for _, raw := range tests {
		if got := ParseAdditionalEnvs(raw); len(got) != 0 {
			t.Errorf("ParseAdditionalEnvs(%q) = %v, want empty", raw, got)
		}
	}
}

func TestComposeEnvMalformedAdditionalEnvs(t *testing.T) {
	env := ComposeEnv(context.Background(), map[string]string{"A": "1"}, testExec, EnvConfig{AdditionalEnvs: "{oops"})

	if env["A"] != "1" {
		t.Errorf("base vars lost: %v", env)
	}
	if len(env) != 3 {
		t.Errorf("env = %v, want base plus the two derived vars", env)
	}
}

func testSpanContext(t *testing.T) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatal(err)
	}
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatal(err)
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

func TestComposeEnvTracePropagation(t *testing.T) {
	ctx := trace.ContextWithSpanContext(context.Background(), testSpanContext(t))

	env := ComposeEnv(ctx, nil, testExec, EnvConfig{})

	want := map[string]string{
		EnvOtelPropagators: "tracecontext",
		EnvOtelTraceID:     "4bf92f3577b34da6a3ce929d0e0e4736",
		EnvOtelSpanID:      "00f067aa0ba902b7",
		EnvOtelTraceFlags:  "01",
	}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("env[%s] = %q, want %q", k, env[k], v)
		}
	}
}

func TestComposeEnvTraceDoesNotOverride(t *testing.T) {
	ctx := trace.ContextWithSpanContext(context.Background(), testSpanContext(t))
	base := map[string]string{EnvOtelTraceID: "caller-owned"}

	env := ComposeEnv(ctx, base, testExec, EnvConfig{})

	if env[EnvOtelTraceID] != "caller-owned" {
		t.Errorf("%s = %q, want caller value kept", EnvOtelTraceID, env[EnvOtelTraceID])
	}
	if env[EnvOtelSpanID] != "00f067aa0ba902b7" {
		t.Errorf("%s = %q", EnvOtelSpanID, env[EnvOtelSpanID])
	}
}
