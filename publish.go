package toolrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"
)

// Publisher delivers enriched events to a named channel. Implementations
// must be safe for concurrent use by independent runs.
type Publisher interface {
	Publish(ctx context.Context, channel string, event PublishedEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, channel string, event PublishedEvent) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, channel string, event PublishedEvent) error {
	return f(ctx, channel, event)
}

// Publishers fans an event out to every publisher in order. All are
// attempted; the errors are joined.
type Publishers []Publisher

// Publish sends event to each publisher.
func (ps Publishers) Publish(ctx context.Context, channel string, event PublishedEvent) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, channel, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enrich copies event and adds the execution identifiers and a timestamp.
func Enrich(event LogEvent, ec ExecutionContext, now time.Time) (PublishedEvent, error) {
	ts, err := EventTimestamp(event, now)
	if err != nil {
		return nil, err
	}

	out := make(PublishedEvent, len(event)+4)
	maps.Copy(out, event)
	out[FieldExecutionID] = ec.ExecutionID
	out[FieldOrganizationID] = ec.OrganizationID
	out[FieldFileExecutionID] = ec.FileExecutionID
	out[FieldTimestamp] = ts
	return out, nil
}

// EventTimestamp resolves an event's time in epoch seconds: emitted_at as
// an ISO-8601 string or number, else now. Only a string that is not a
// timestamp is an error; null and other JSON types read as absent.
func EventTimestamp(event LogEvent, now time.Time) (float64, error) {
	raw, ok := event[FieldEmittedAt]
	if !ok || raw == nil {
		return epochSeconds(now), nil
	}

	switch v := raw.(type) {
	case string:
		t, err := ParseISOTime(v)
		if err != nil {
			return 0, err
		}
		return epochSeconds(t), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	slog.Debug("ignoring non-timestamp emitted_at", "type", fmt.Sprintf("%T", raw))
	return epochSeconds(now), nil
}

// isoLayouts covers RFC 3339 and the shapes produced by Python's
// datetime.isoformat, with either separator.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseISOTime parses an ISO-8601 timestamp. Values without an offset are
// read as UTC.
func ParseISOTime(s string) (time.Time, error) {
	value := strings.TrimSpace(s)
	if len(value) > 10 && value[10] == ' ' {
		value = value[:10] + "T" + value[11:]
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
