package toolrunner

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func TestEventTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		event LogEvent
		want  float64
	}{
		{"absent", LogEvent{}, float64(now.Unix())},
		{"rfc3339 utc", LogEvent{"emitted_at": "2024-01-02T03:04:05Z"}, 1704164645},
		{"offset", LogEvent{"emitted_at": "2024-01-02T03:04:05+01:00"}, 1704161045},
		{"python isoformat", LogEvent{"emitted_at": "2024-01-02T03:04:05.250000+00:00"}, 1704164645.25},
		{"space separator naive", LogEvent{"emitted_at": "2024-01-02 03:04:05.5"}, 1704164645.5},
		{"naive no fraction", LogEvent{"emitted_at": "2024-01-02T03:04:05"}, 1704164645},
		{"date only", LogEvent{"emitted_at": "2024-01-02"}, 1704153600},
		{"float epoch", LogEvent{"emitted_at": 1700000000.25}, 1700000000.25},
		{"int epoch", LogEvent{"emitted_at": 1700000000}, 1700000000},
		{"null", LogEvent{"emitted_at": nil}, float64(now.Unix())},
		{"bool", LogEvent{"emitted_at": true}, float64(now.Unix())},
		{"object", LogEvent{"emitted_at": map[string]any{}}, float64(now.Unix())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EventTimestamp(tt.event, now)
			if err != nil {
				t.Fatalf("EventTimestamp() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("EventTimestamp() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestEventTimestampInvalid(t *testing.T) {
	for _, raw := range []any{"yesterday", "2024-13-45T00:00:00Z", ""} {
		_, err := EventTimestamp(LogEvent{"emitted_at": raw}, time.Now())
		if !errors.Is(err, ErrInvalidTimestamp) {
			t.Errorf("EventTimestamp(%v) error = %v, want ErrInvalidTimestamp", raw, err)
		}
	}
}

func TestEventTimestampNow(t *testing.T) {
	before := float64(time.Now().UnixNano()) / 1e9
	got, err := EventTimestamp(LogEvent{"type": "LOG"}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if got < before || got-before > 1 {
		t.Errorf("EventTimestamp() = %f, want within 1s of %f", got, before)
	}
}

func TestEnrich(t *testing.T) {
	event := LogEvent{"type": "COST", "cost": 0.5}
	ec := ExecutionContext{OrganizationID: "org", ExecutionID: "exec", FileExecutionID: "file"}

	got, err := Enrich(event, ec, time.Unix(100, 0))
	if err != nil {
		t.Fatal(err)
	}

	want := PublishedEvent{
		"type":              "COST",
		"cost":              0.5,
		"execution_id":      "exec",
		"organization_id":   "org",
		"file_execution_id": "file",
		"timestamp":         float64(100),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Enrich() = %#v, want %#v", got, want)
	}
	if len(event) != 2 {
		t.Errorf("Enrich modified its input: %v", event)
	}
}

func TestPublishers(t *testing.T) {
	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("b failed")}
	c := &recordingPublisher{}

	err := Publishers{a, b, c}.Publish(context.Background(), "ch", PublishedEvent{"type": "LOG"})

	if err == nil || err.Error() != "b failed" {
		t.Errorf("Publish() error = %v, want b failed", err)
	}
	if len(a.published()) != 1 || len(c.published()) != 1 {
		t.Error("every publisher should be attempted")
	}
}

func TestPublisherFunc(t *testing.T) {
	var gotChannel string
	p := PublisherFunc(func(_ context.Context, channel string, _ PublishedEvent) error {
		gotChannel = channel
		return nil
	})
	if err := p.Publish(context.Background(), "ch9", nil); err != nil {
		t.Fatal(err)
	}
	if gotChannel != "ch9" {
		t.Errorf("channel = %q", gotChannel)
	}
}
