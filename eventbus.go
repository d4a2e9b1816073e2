package toolrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// channelMessage is the body an HTTPPublisher posts.
type channelMessage struct {
	Channel string         `json:"channel"`
	Event   PublishedEvent `json:"event"`
}

// HTTPPublisher posts events to an external pub/sub bridge, which relays
// them to the channel's real-time observers.
type HTTPPublisher struct {
	url        string
	httpClient *http.Client
}

// NewHTTPPublisher creates a publisher that POSTs to url.
//
// Example:
//
//	pub := toolrunner.NewHTTPPublisher("http://socket-bridge:3001/publish")
func NewHTTPPublisher(url string) *HTTPPublisher {
	return &HTTPPublisher{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Publish sends the event as JSON.
func (p *HTTPPublisher) Publish(ctx context.Context, channel string, event PublishedEvent) error {
	data, err := json.Marshal(channelMessage{Channel: channel, Event: event})
	if err != nil {
		return &PublishError{Channel: channel, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return &PublishError{Channel: channel, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &PublishError{Channel: channel, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &PublishError{Channel: channel, Err: fmt.Errorf("bridge responded %s", resp.Status)}
	}
	return nil
}

// DirPublisher writes each event as a JSON file under dir/<channel>/.
// Used by the one-shot CLI to keep a local record of a run's events.
type DirPublisher struct {
	dir string
}

// NewDirPublisher creates dir if needed and returns a publisher writing into it.
func NewDirPublisher(dir string) (*DirPublisher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}
	return &DirPublisher{dir: dir}, nil
}

// Publish writes the event to <dir>/<channel>/<unix-nanos>-<id>.event.
func (p *DirPublisher) Publish(_ context.Context, channel string, event PublishedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return &PublishError{Channel: channel, Err: err}
	}

	channelDir := filepath.Join(p.dir, filepath.Base(channel))
	if err := os.MkdirAll(channelDir, 0o755); err != nil {
		return &PublishError{Channel: channel, Err: err}
	}

	filename := fmt.Sprintf("%d-%s.event", time.Now().UnixNano(), uuid.NewString()[:8])
	if err := os.WriteFile(filepath.Join(channelDir, filename), data, 0o644); err != nil {
		return &PublishError{Channel: channel, Err: err}
	}
	return nil
}
