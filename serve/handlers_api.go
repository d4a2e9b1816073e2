package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/everydev1618/toolrunner"
)

const maxBodyBytes = 8 << 20

// handleRun runs one tool container and answers with its RunResult. Tool
// failures are reported in the result's error field with status 200.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body", Details: err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if org, ok := organizationFrom(r.Context()); ok && org != req.OrganizationID {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "organization does not match platform key"})
		return
	}

	if org, ok := organizationFrom(r.Context()); ok && req.Channel != "" {
		if !s.owners.acquire(req.Channel, org) {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "messaging channel belongs to another organization"})
			return
		}
		defer s.owners.release(req.Channel)
	}

	var fh *FileHash
	if len(req.FileHash) > 0 && string(req.FileHash) != "null" {
		decoded, err := FileHashFromJSON(req.FileHash)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid file_hash", Details: err.Error()})
			return
		}
		fh = &decoded
	}

	ctx := r.Context()
	key := historyKey(req, fh)
	history := s.lookupHistory(ctx, key)
	if history.IsCompleted() {
		if result, ok := cachedResult(history); ok {
			slog.Info("returning cached tool result",
				"workflow_id", req.WorkflowID,
				"tool", key.ToolKey,
				"execution_id", req.ExecutionID,
				"file", fh.FileName,
			)
			writeJSON(w, http.StatusOK, result)
			return
		}
	}

	ec := toolrunner.ExecutionContext{
		OrganizationID:  req.OrganizationID,
		WorkflowID:      req.WorkflowID,
		ExecutionID:     req.ExecutionID,
		FileExecutionID: req.FileExecutionID,
		Channel:         req.Channel,
		ContainerName:   req.ContainerName,
	}
	result := s.newRunner(req.ImageName, req.ImageTag).RunContainer(ctx, ec, req.Settings, req.Envs)

	s.recordHistory(context.WithoutCancel(ctx), key, fh, history, result)
	writeJSON(w, http.StatusOK, result)
}

// handleRunCommand runs a tool in command mode and returns its payload.
func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body", Details: err.Error()})
		return
	}
	if req.ImageName == "" || req.Command == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "image_name and command are required"})
		return
	}

	payload, ok := s.newRunner(req.ImageName, req.ImageTag).RunCommand(r.Context(), req.Command)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "command produced no output"})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady runs every readiness check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

// historyKey identifies the cached result of req's tool over fh. The tool is
// the image reference plus its tool instance, so two tools of one workflow
// never share a result.
func historyKey(req RunRequest, fh *FileHash) HistoryKey {
	key := HistoryKey{
		WorkflowID: req.WorkflowID,
		ToolKey:    req.ImageName + ":" + req.ImageTag,
	}
	if id, ok := req.Settings[toolrunner.SettingToolInstanceID]; ok && id != nil {
		key.ToolKey += "/" + fmt.Sprint(id)
	}
	if fh != nil {
		key.CacheKey = fh.FileHash
		key.ProviderFileUUID = fh.ProviderFileUUID
	}
	return key
}

func (s *Server) lookupHistory(ctx context.Context, key HistoryKey) *FileHistory {
	if s.store == nil || (key.CacheKey == "" && key.ProviderFileUUID == "") {
		return nil
	}
	h, err := s.store.GetFileHistory(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrHistoryNotFound) {
			slog.Warn("file history lookup failed", "workflow_id", key.WorkflowID, "tool", key.ToolKey, "error", err)
		}
		return nil
	}
	return h
}

func cachedResult(h *FileHistory) (toolrunner.RunResult, bool) {
	result := toolrunner.RunResult{Type: toolrunner.LogTypeResult}
	if h.Result == "" {
		return result, true
	}
	if err := json.Unmarshal([]byte(h.Result), &result.Result); err != nil {
		slog.Warn("ignoring unreadable cached result", "history_id", h.ID, "error", err)
		return toolrunner.RunResult{}, false
	}
	return result, true
}

// recordHistory stores the outcome of a run for later cache hits.
func (s *Server) recordHistory(ctx context.Context, key HistoryKey, fh *FileHash, existing *FileHistory, result toolrunner.RunResult) {
	if s.store == nil || fh == nil || (key.CacheKey == "" && key.ProviderFileUUID == "") {
		return
	}
	workflowID := key.WorkflowID

	h := existing
	if h == nil {
		h = &FileHistory{
			CacheKey:         key.CacheKey,
			ProviderFileUUID: key.ProviderFileUUID,
			WorkflowID:       workflowID,
			ToolKey:          key.ToolKey,
		}
	}
	h.Status = StatusCompleted
	h.Error = ""
	if result.Failed() {
		h.Status = StatusError
		h.Error = result.Error
	}
	h.Result = ""
	if result.Result != nil {
		data, err := json.Marshal(result.Result)
		if err != nil {
			slog.Warn("tool result is not serializable, not caching", "workflow_id", workflowID, "error", err)
			return
		}
		h.Result = string(data)
	}
	if fh.FSMetadata != nil {
		if data, err := json.Marshal(fh.FSMetadata); err == nil {
			h.Metadata = string(data)
		}
	}

	var err error
	if existing == nil {
		err = s.store.InsertFileHistory(ctx, h)
	} else {
		err = s.store.UpdateFileHistory(ctx, h)
		if err == nil && fh.ProviderFileUUID != "" && existing.ProviderFileUUID == "" {
			err = s.store.UpdateProviderFileUUID(ctx, h.ID, fh.ProviderFileUUID)
		}
	}
	switch {
	case errors.Is(err, ErrHistoryExists):
		slog.Debug("file history recorded concurrently", "workflow_id", workflowID, "cache_key", fh.FileHash)
	case err != nil:
		slog.Warn("failed to record file history", "workflow_id", workflowID, "error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
