package oni

// EventType identifies the kind of streaming event.
type EventType string

const (
	// EventTextDelta carries an incremental text fragment from the model.
	EventTextDelta EventType = "text-delta"
	// EventToolCallDelta carries an incremental argument fragment for one
	// in-flight tool call, for live display.
	EventToolCallDelta EventType = "tool-call-delta"
	// EventToolCallDone is the authoritative end of one tool call, emitted
	// exactly once per call with the fully reassembled arguments.
	EventToolCallDone EventType = "tool-call-done"
	// EventTurnDone signals successful completion of the turn.
	EventTurnDone EventType = "turn-done"
	// EventError signals the turn failed; no further events follow.
	EventError EventType = "error"
)

// Event is a typed streaming event emitted during a turn. The stream is
// finite: the final event is always EventTurnDone or EventError, after which
// the channel is closed.
type Event struct {
	Type EventType `json:"type"`

	// Content carries the text fragment (text-delta), the argument fragment
	// (tool-call-delta), or the error message (error).
	Content string `json:"content,omitempty"`

	// Index is the tool call's position within the turn.
	Index int `json:"index,omitempty"`
	// CallID and Name identify the tool call (tool-call-delta, tool-call-done).
	CallID string `json:"call_id,omitempty"`
	Name   string `json:"name,omitempty"`
	// Arguments is the complete reassembled argument text (tool-call-done).
	Arguments string `json:"arguments,omitempty"`

	// TurnID and Usage are set on turn-done.
	TurnID string `json:"turn_id,omitempty"`
	Usage  *Usage `json:"usage,omitempty"`

	// Done reports, on turn-done, whether the agent loop has terminated
	// (plain text or escape-hatch response) or expects tool results.
	Done bool `json:"done,omitempty"`
}

// TurnOutcome is the accumulated result of one streamed turn, returned by a
// protocol adapter after the terminal event.
type TurnOutcome struct {
	TurnID    string
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}
