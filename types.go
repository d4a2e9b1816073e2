package toolrunner

// LogType identifies the kind of structured line a tool writes to its output.
type LogType string

const (
	LogTypeLog        LogType = "LOG"
	LogTypeUpdate     LogType = "UPDATE"
	LogTypeCost       LogType = "COST"
	LogTypeResult     LogType = "RESULT"
	LogTypeSingleStep LogType = "SINGLE_STEP"
)

// Valid reports whether t is one of the recognized log types.
func (t LogType) Valid() bool {
	switch t {
	case LogTypeLog, LogTypeUpdate, LogTypeCost, LogTypeResult, LogTypeSingleStep:
		return true
	}
	return false
}

// LevelError is the LOG level a tool uses to report a failed run.
const LevelError = "ERROR"

// Field names shared by the tool log protocol and published events.
const (
	FieldType            = "type"
	FieldLevel           = "level"
	FieldLog             = "log"
	FieldResult          = "result"
	FieldComponent       = "component"
	FieldEmittedAt       = "emitted_at"
	FieldExecutionID     = "execution_id"
	FieldOrganizationID  = "organization_id"
	FieldFileExecutionID = "file_execution_id"
	FieldTimestamp       = "timestamp"
)

// SettingToolInstanceID is the settings key whose value tags UPDATE events.
const SettingToolInstanceID = "tool_instance_id"

// ExecutionContext identifies one tool invocation. It is created by the
// caller per run and is not modified while the run is in progress.
type ExecutionContext struct {
	OrganizationID  string `json:"organization_id"`
	WorkflowID      string `json:"workflow_id"`
	ExecutionID     string `json:"execution_id"`
	FileExecutionID string `json:"file_execution_id"`

	// Channel is where forwarded events are published. Empty disables publishing.
	Channel string `json:"messaging_channel,omitempty"`

	// ContainerName is optional; the container client picks one when empty.
	ContainerName string `json:"container_name,omitempty"`
}

// LogEvent is one decoded line of tool output.
type LogEvent map[string]any

// Type returns the event's log type, or "" when missing or not a string.
func (e LogEvent) Type() LogType {
	s, _ := e[FieldType].(string)
	return LogType(s)
}

// Level returns the event's level, or "".
func (e LogEvent) Level() string {
	s, _ := e[FieldLevel].(string)
	return s
}

// PublishedEvent is a LogEvent enriched with execution identifiers and a
// resolved timestamp, as delivered to a channel.
type PublishedEvent map[string]any

// RunResult is the single terminal outcome of a run.
type RunResult struct {
	Type   LogType `json:"type"`
	Result any     `json:"result"`
	Error  string  `json:"error,omitempty"`
}

// Failed reports whether the run ended with an error.
func (r RunResult) Failed() bool {
	return r.Error != ""
}

func emptyResult() RunResult {
	return RunResult{Type: LogTypeResult}
}

func errorResult(msg string) RunResult {
	return RunResult{Type: LogTypeResult, Error: msg}
}
