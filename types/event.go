package types

import "encoding/json"

// EventType discriminates the stream event variants. The set is closed:
// collaborators deliver exactly these four kinds and consumers dispatch on
// the tag from a single ordered channel per run.
type EventType string

const (
	EventTextDelta    EventType = "text_delta"
	EventToolEvent    EventType = "tool_event"
	EventStatusChange EventType = "status_change"
	EventError        EventType = "error"
)

// StreamEvent is one incremental output event for a run.
// Exactly one payload field is set, according to Type.
type StreamEvent struct {
	Type   EventType     `json:"type"`
	RunID  string        `json:"run_id,omitempty"`
	Delta  string        `json:"delta,omitempty"`
	Tool   *ToolEvent    `json:"tool,omitempty"`
	Status *StatusChange `json:"status,omitempty"`
	Err    *Error        `json:"error,omitempty"`
}

// ToolEvent reports a tool invocation observed on the stream.
type ToolEvent struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// StatusChange reports a run status transition observed on the stream.
type StatusChange struct {
	Status RunStatus `json:"status"`
}

// Terminal reports whether the event ends the stream. A stream yields events
// until a terminal event and is not restartable once closed.
func (e StreamEvent) Terminal() bool {
	switch e.Type {
	case EventError:
		return true
	case EventStatusChange:
		return e.Status != nil && e.Status.Status.Terminal()
	}
	return false
}

// TextDeltaEvent builds a text delta event.
func TextDeltaEvent(runID, delta string) StreamEvent {
	return StreamEvent{Type: EventTextDelta, RunID: runID, Delta: delta}
}

// ToolInvokedEvent builds a tool event.
func ToolInvokedEvent(runID, name string, args json.RawMessage) StreamEvent {
	return StreamEvent{Type: EventToolEvent, RunID: runID, Tool: &ToolEvent{Name: name, Arguments: args}}
}

// StatusChangeEvent builds a status change event.
func StatusChangeEvent(runID string, status RunStatus) StreamEvent {
	return StreamEvent{Type: EventStatusChange, RunID: runID, Status: &StatusChange{Status: status}}
}

// ErrorEvent builds a terminal error event.
func ErrorEvent(runID string, err *Error) StreamEvent {
	return StreamEvent{Type: EventError, RunID: runID, Err: err}
}
