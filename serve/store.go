package serve

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrHistoryExists is returned when a file history row already exists for
	// the workflow, tool and cache key or provider file UUID.
	ErrHistoryExists = errors.New("file history already exists")

	// ErrHistoryNotFound is returned when no file history matches a lookup.
	ErrHistoryNotFound = errors.New("file history not found")
)

// ExecutionStatus is the latest state of a file's execution.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "PENDING"
	StatusExecuting ExecutionStatus = "EXECUTING"
	StatusCompleted ExecutionStatus = "COMPLETED"
	StatusError     ExecutionStatus = "ERROR"
	StatusStopped   ExecutionStatus = "STOPPED"
)

// Store persists per-workflow file history so a file whose content was
// already processed can be answered from cache.
type Store interface {
	// Init creates tables if they don't exist.
	Init() error

	// Close closes the store.
	Close() error

	// GetFileHistory looks a file up by cache key, falling back to the
	// provider file UUID when the cache key is empty.
	GetFileHistory(ctx context.Context, key HistoryKey) (*FileHistory, error)

	// InsertFileHistory records a new file history row.
	InsertFileHistory(ctx context.Context, h *FileHistory) error

	// UpdateFileHistory stores a new status, result, error and metadata.
	UpdateFileHistory(ctx context.Context, h *FileHistory) error

	// UpdateProviderFileUUID sets the provider file UUID of an existing row.
	UpdateProviderFileUUID(ctx context.Context, id, providerFileUUID string) error
}

// HistoryKey locates the history of one tool over one file in a workflow.
// A workflow runs several tools over the same file, so results are kept
// per tool.
type HistoryKey struct {
	WorkflowID       string
	ToolKey          string
	CacheKey         string
	ProviderFileUUID string
}

// FileHistory is the cached outcome of running one workflow tool over one file.
type FileHistory struct {
	ID               string          `json:"id"`
	CacheKey         string          `json:"cache_key"`
	ProviderFileUUID string          `json:"provider_file_uuid,omitempty"`
	WorkflowID       string          `json:"workflow_id"`
	ToolKey          string          `json:"tool_key"`
	Status           ExecutionStatus `json:"status"`
	Error            string          `json:"error"`
	Result           string          `json:"result"`
	Metadata         string          `json:"metadata"`
	CreatedAt        time.Time       `json:"created_at"`
	ModifiedAt       time.Time       `json:"modified_at"`
}

// IsCompleted reports whether the execution finished successfully.
func (h *FileHistory) IsCompleted() bool {
	return h != nil && h.Status == StatusCompleted
}
