package serve

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/everydev1618/toolrunner"
)

const heartbeatInterval = 30 * time.Second

// handleSSE streams the events published to one messaging channel. With
// platform-key auth the channel is held for the caller's organization
// while the stream is open.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "channel is required"})
		return
	}

	if org, ok := organizationFrom(r.Context()); ok {
		if !s.owners.acquire(channel, org) {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "messaging channel belongs to another organization"})
			return
		}
		defer s.owners.release(channel)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, err := s.broker.Subscribe(channel)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, toolrunner.ErrStreamClosed) {
			status = http.StatusGone
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer s.broker.Unsubscribe(channel, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	fmt.Fprintf(w, ": subscribed to %s\n\n", channel)
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	var seq uint64
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			seq++
			fmt.Fprintf(w, "id: %d\nevent: %v\ndata: %s\n\n", seq, event[toolrunner.FieldType], data)
			flusher.Flush()
		}
	}
}
