package serve

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// RunRequest is the body of POST /v1/api/container/run.
type RunRequest struct {
	ImageName       string            `json:"image_name"`
	ImageTag        string            `json:"image_tag"`
	OrganizationID  string            `json:"organization_id"`
	WorkflowID      string            `json:"workflow_id"`
	ExecutionID     string            `json:"execution_id"`
	FileExecutionID string            `json:"file_execution_id,omitempty"`
	Settings        map[string]any    `json:"settings"`
	Envs            map[string]string `json:"envs,omitempty"`
	Channel         string            `json:"messaging_channel,omitempty"`
	ContainerName   string            `json:"container_name,omitempty"`
	FileHash        json.RawMessage   `json:"file_hash,omitempty"`
}

func (r RunRequest) validate() error {
	switch {
	case r.ImageName == "":
		return errors.New("image_name is required")
	case r.OrganizationID == "":
		return errors.New("organization_id is required")
	case r.WorkflowID == "":
		return errors.New("workflow_id is required")
	case r.ExecutionID == "":
		return errors.New("execution_id is required")
	}
	return nil
}

// CommandRequest is the body of POST /v1/api/container/run-command.
type CommandRequest struct {
	ImageName string `json:"image_name"`
	ImageTag  string `json:"image_tag"`
	Command   string `json:"command"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ReadyResponse reports the result of each readiness check.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// FileHash describes a source file handed to a workflow. FileHash.FileHash
// is the content hash used as the file history cache key.
type FileHash struct {
	FilePath             string         `json:"file_path"`
	FileName             string         `json:"file_name"`
	SourceConnectionType string         `json:"source_connection_type"`
	FileHash             string         `json:"file_hash,omitempty"`
	FileSize             int64          `json:"file_size,omitempty"`
	ProviderFileUUID     string         `json:"provider_file_uuid,omitempty"`
	MimeType             string         `json:"mime_type,omitempty"`
	FSMetadata           map[string]any `json:"fs_metadata,omitempty"`
	FileDestination      []string       `json:"file_destination,omitempty"`
	IsExecuted           bool           `json:"is_executed"`
}

// FileHashFromJSON decodes a FileHash from JSON text or an already decoded
// map. Unknown fields are rejected.
func FileHashFromJSON(v any) (FileHash, error) {
	var data []byte
	switch t := v.(type) {
	case []byte:
		data = t
	case json.RawMessage:
		data = t
	case string:
		data = []byte(t)
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return FileHash{}, fmt.Errorf("encode file hash: %w", err)
		}
		data = b
	default:
		return FileHash{}, fmt.Errorf("unsupported file hash type %T", v)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var fh FileHash
	if err := dec.Decode(&fh); err != nil {
		return FileHash{}, fmt.Errorf("decode file hash: %w", err)
	}
	if fh.FilePath == "" || fh.FileName == "" || fh.SourceConnectionType == "" {
		return FileHash{}, errors.New("file hash requires file_path, file_name and source_connection_type")
	}
	return fh, nil
}
