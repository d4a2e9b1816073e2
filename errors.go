package toolrunner

import "errors"

var (
	// ErrInvalidTimestamp is returned when a tool emits an emitted_at value
	// that cannot be read as an ISO-8601 string or epoch number.
	ErrInvalidTimestamp = errors.New("invalid emitted_at timestamp")

	// ErrNoImage is returned when a run is requested without a tool image.
	ErrNoImage = errors.New("tool image is required")

	// ErrStreamClosed is returned by publishers that have been shut down.
	ErrStreamClosed = errors.New("publisher closed")
)

// PublishError wraps a failure to deliver an event to a channel.
type PublishError struct {
	Channel string
	Err     error
}

func (e *PublishError) Error() string {
	return "publish to " + e.Channel + ": " + e.Err.Error()
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
