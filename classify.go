package toolrunner

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Action is what the runner does with one line of tool output.
type Action int

const (
	// ActionIgnore skips the line.
	ActionIgnore Action = iota
	// ActionFatal ends the run with the tool-reported error.
	ActionFatal
	// ActionTerminal ends the run with the tool's RESULT payload.
	ActionTerminal
	// ActionForward publishes the event and keeps reading.
	ActionForward
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionFatal:
		return "fatal"
	case ActionTerminal:
		return "terminal"
	case ActionForward:
		return "forward"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Classification is the outcome of ClassifyLine.
type Classification struct {
	Action Action

	// Message is the tool's error text for ActionFatal.
	Message string

	// Event is the decoded line for ActionTerminal and ActionForward.
	Event LogEvent
}

// DecodeLine returns the line as a JSON object, or nil when it is not one.
func DecodeLine(line string) LogEvent {
	var event LogEvent
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return nil
	}
	return event
}

// ClassifyLine decides what to do with one output line. A LOG line at
// ERROR level is fatal even though its type is valid, and is checked before
// anything else. UPDATE events are tagged with toolInstanceID.
func ClassifyLine(line, toolInstanceID string) Classification {
	event := DecodeLine(line)
	if event == nil {
		return Classification{Action: ActionIgnore}
	}

	logType := event.Type()
	if logType == LogTypeLog && event.Level() == LevelError {
		return Classification{Action: ActionFatal, Message: errorMessage(event)}
	}

	if !logType.Valid() {
		slog.Warn("received invalid log type", "log_type", event[FieldType], "log_message", event)
		return Classification{Action: ActionIgnore}
	}

	switch logType {
	case LogTypeResult:
		return Classification{Action: ActionTerminal, Event: event}
	case LogTypeUpdate:
		event[FieldComponent] = toolInstanceID
	}
	return Classification{Action: ActionForward, Event: event}
}

// errorMessage returns the log field of an ERROR line. A run result with an
// empty error reads as success, so a missing message gets a fixed one.
func errorMessage(event LogEvent) string {
	switch v := event[FieldLog].(type) {
	case string:
		if v != "" {
			return v
		}
	case nil:
	default:
		return fmt.Sprint(v)
	}
	return "tool reported an error without a message"
}
