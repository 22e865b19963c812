package contract

import "time"

// EventType discriminates the AgentEvent variants.
type EventType string

// The closed set of event types a trace may contain.
const (
	EventRunStarted       EventType = "run_started"
	EventRunCompleted     EventType = "run_completed"
	EventAssistantDelta   EventType = "assistant_delta"
	EventAssistantMessage EventType = "assistant_message"
	EventToolCall         EventType = "tool_call"
	EventToolResult       EventType = "tool_result"
	EventFileChanged      EventType = "file_changed"
	EventCommandExecuted  EventType = "command_executed"
	EventWarning          EventType = "warning"
	EventError            EventType = "error"
)

// AgentEvent is one timestamped entry in a run trace. The Type field
// selects the variant; only the fields belonging to that variant are
// populated.
//
// A trace is append-only and, for successful runs, bookended: the first
// event is always run_started and the last is always run_completed. On
// crash or timeout a synthesized terminal event records the failure
// instead.
type AgentEvent struct {
	Ts   time.Time `json:"ts"`
	Type EventType `json:"type"`

	// run_started, run_completed, warning, error
	Message string `json:"message,omitempty"`

	// assistant_delta, assistant_message
	Text string `json:"text,omitempty"`

	// tool_call, tool_result
	ToolName        string         `json:"tool_name,omitempty"`
	ToolUseID       string         `json:"tool_use_id,omitempty"`
	ParentToolUseID string         `json:"parent_tool_use_id,omitempty"`
	Input           map[string]any `json:"input,omitempty"`
	Output          map[string]any `json:"output,omitempty"`
	IsError         bool           `json:"is_error,omitempty"`

	// file_changed
	Path    string `json:"path,omitempty"`
	Summary string `json:"summary,omitempty"`

	// command_executed
	Command       string `json:"command,omitempty"`
	ExitCode      *int   `json:"exit_code,omitempty"`
	OutputPreview string `json:"output_preview,omitempty"`
}

// NewRunStarted builds a run_started event stamped with the current time.
func NewRunStarted(message string) AgentEvent {
	return AgentEvent{Ts: time.Now().UTC(), Type: EventRunStarted, Message: message}
}

// NewRunCompleted builds a run_completed event.
func NewRunCompleted(message string) AgentEvent {
	return AgentEvent{Ts: time.Now().UTC(), Type: EventRunCompleted, Message: message}
}

// NewAssistantDelta builds an assistant_delta streaming token event.
func NewAssistantDelta(text string) AgentEvent {
	return AgentEvent{Ts: time.Now().UTC(), Type: EventAssistantDelta, Text: text}
}

// NewAssistantMessage builds a complete assistant_message event.
func NewAssistantMessage(text string) AgentEvent {
	return AgentEvent{Ts: time.Now().UTC(), Type: EventAssistantMessage, Text: text}
}

// NewToolCall builds a tool_call event.
func NewToolCall(toolName, toolUseID string, input map[string]any) AgentEvent {
	return AgentEvent{
		Ts:        time.Now().UTC(),
		Type:      EventToolCall,
		ToolName:  toolName,
		ToolUseID: toolUseID,
		Input:     input,
	}
}

// NewToolResult builds a tool_result event.
func NewToolResult(toolName, toolUseID string, output map[string]any, isError bool) AgentEvent {
	return AgentEvent{
		Ts:        time.Now().UTC(),
		Type:      EventToolResult,
		ToolName:  toolName,
		ToolUseID: toolUseID,
		Output:    output,
		IsError:   isError,
	}
}

// NewFileChanged builds a file_changed event.
func NewFileChanged(path, summary string) AgentEvent {
	return AgentEvent{Ts: time.Now().UTC(), Type: EventFileChanged, Path: path, Summary: summary}
}

// NewCommandExecuted builds a command_executed event.
func NewCommandExecuted(command string, exitCode *int, preview string) AgentEvent {
	return AgentEvent{
		Ts:            time.Now().UTC(),
		Type:          EventCommandExecuted,
		Command:       command,
		ExitCode:      exitCode,
		OutputPreview: preview,
	}
}

// NewWarning builds a non-fatal warning event.
func NewWarning(message string) AgentEvent {
	return AgentEvent{Ts: time.Now().UTC(), Type: EventWarning, Message: message}
}

// NewError builds a fatal error event.
func NewError(message string) AgentEvent {
	return AgentEvent{Ts: time.Now().UTC(), Type: EventError, Message: message}
}

// BookendsHold reports whether a trace satisfies the bookend invariant:
// non-empty, starting with run_started and ending with run_completed.
func BookendsHold(trace []AgentEvent) bool {
	if len(trace) == 0 {
		return false
	}
	return trace[0].Type == EventRunStarted && trace[len(trace)-1].Type == EventRunCompleted
}
