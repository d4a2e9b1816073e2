package toolrunner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestHTTPPublisher(t *testing.T) {
	var got channelMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	pub := NewHTTPPublisher(srv.URL)
	err := pub.Publish(context.Background(), "exec_1", PublishedEvent{"type": "UPDATE", "component": "t1"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if got.Channel != "exec_1" {
		t.Errorf("channel = %q, want exec_1", got.Channel)
	}
	if got.Event["component"] != "t1" {
		t.Errorf("event = %v", got.Event)
	}
}

func TestHTTPPublisherErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPPublisher(srv.URL).Publish(context.Background(), "ch", PublishedEvent{})

	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("Publish() error = %v, want *PublishError", err)
	}
	if pubErr.Channel != "ch" {
		t.Errorf("Channel = %q", pubErr.Channel)
	}
}

func TestDirPublisher(t *testing.T) {
	dir := t.TempDir()
	pub, err := NewDirPublisher(dir)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := pub.Publish(context.Background(), "exec_1", PublishedEvent{"type": "LOG", "n": i}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, "exec_1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("wrote %d files, want 2", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, "exec_1", entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	var event PublishedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("event file is not JSON: %v", err)
	}
	if event["type"] != "LOG" {
		t.Errorf("event = %v", event)
	}
}

func TestPublishErrorUnwrap(t *testing.T) {
	err := &PublishError{Channel: "ch", Err: ErrStreamClosed}
	if err.Error() != "publish to ch: publisher closed" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrStreamClosed) {
		t.Error("errors.Is(PublishError, ErrStreamClosed) should be true")
	}
}
