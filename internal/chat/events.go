package chat

import "github.com/koopa0/lakitu/internal/tools"

// EventType identifies the kind of payload an Event carries. The values
// double as SSE event names on the streaming HTTP endpoint.
type EventType string

const (
	// EventTextDelta carries an incremental fragment of model text.
	EventTextDelta EventType = "text-delta"

	// EventToolCallRequested announces that the model asked for a tool
	// invocation. It is always followed, in the same round, by a
	// matching EventToolResultAvailable with the same call ID.
	EventToolCallRequested EventType = "tool-call-requested"

	// EventToolResultAvailable carries the outcome of a tool
	// invocation, success or failure.
	EventToolResultAvailable EventType = "tool-result-available"

	// EventTurnFinished is the successful terminal event of a round.
	EventTurnFinished EventType = "turn-finished"

	// EventError is the failure terminal event of a round.
	EventError EventType = "error"
)

// TextDelta is the payload of an EventTextDelta.
type TextDelta struct {
	Text string `json:"text"`
}

// ToolCall is the payload of an EventToolCallRequested.
type ToolCall struct {
	CallID    string         `json:"callId"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolOutcome is the payload of an EventToolResultAvailable. Result
// carries the structured envelope the model will see on the next step;
// its status distinguishes success from failure.
type ToolOutcome struct {
	CallID string       `json:"callId"`
	Name   string       `json:"name"`
	Result tools.Result `json:"result"`
}

// Finish is the payload of an EventTurnFinished.
type Finish struct {
	// Text is the model's final answer for the round.
	Text string `json:"text"`

	// Steps is the number of model calls the round consumed.
	Steps int `json:"steps"`

	// ToolCalls is the total number of tool invocations across the round.
	ToolCalls int `json:"toolCalls"`
}

// RoundError is the payload of an EventError.
type RoundError struct {
	Message string `json:"message"`

	// Canceled is true when the round ended because the caller's
	// context was canceled or the round timeout elapsed.
	Canceled bool `json:"canceled,omitempty"`
}

// Event is the union of everything the orchestrator reports while a
// round is running. Type selects which payload pointer is set; the
// others are nil.
type Event struct {
	Type   EventType    `json:"type"`
	Delta  *TextDelta   `json:"delta,omitempty"`
	Call   *ToolCall    `json:"call,omitempty"`
	Result *ToolOutcome `json:"result,omitempty"`
	Finish *Finish      `json:"finish,omitempty"`
	Err    *RoundError  `json:"error,omitempty"`
}

// Terminal reports whether the event ends the round. The events channel
// is closed immediately after the terminal event is delivered.
func (e Event) Terminal() bool {
	return e.Type == EventTurnFinished || e.Type == EventError
}
