// Package responses is the call-id-keyed stateful protocol adapter. The
// upstream tracks tool calls by call_id across requests and rejects any
// function_call_output whose matching function_call is absent from the same
// request, so the request body carries the current turn's call/output pairs
// as explicit input items. Used for the OAuth credential path.
package responses

// --- Request types ---

// Request is the responses API request body.
type Request struct {
	Model        string      `json:"model"`
	Instructions string      `json:"instructions,omitempty"`
	Input        []InputItem `json:"input"`
	Tools        []Tool      `json:"tools,omitempty"`
	Stream       bool        `json:"stream,omitempty"`
}

// InputItem is one item in the request input list. Exactly one shape is
// populated, selected by Type: a role/content message, a function_call, or a
// function_call_output.
type InputItem struct {
	Type string `json:"type,omitempty"`

	// message fields
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`

	// function_call fields
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output field
	Output string `json:"output,omitempty"`
}

// Tool is a function tool definition. Unlike the chat completions shape,
// function fields sit directly on the tool object.
type Tool struct {
	Type        string `json:"type"` // always "function"
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// --- Streamed event types ---

// Named SSE event types the adapter consumes. Every other event type is
// ignored.
const (
	evTextDelta = "response.output_text.delta"
	evItemAdded = "response.output_item.added"
	evArgsDelta = "response.function_call_arguments.delta"
	evItemDone  = "response.output_item.done"
	evCompleted = "response.completed"
	evFailed    = "response.failed"
)

// EventPayload is the data line accompanying a typed SSE event. Fields are a
// union across the event types above.
type EventPayload struct {
	Delta       string        `json:"delta,omitempty"`
	OutputIndex int           `json:"output_index"`
	Item        *OutputItem   `json:"item,omitempty"`
	Response    *ResponseBody `json:"response,omitempty"`
}

// OutputItem is a completed or in-progress output item.
type OutputItem struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ResponseBody is the response object carried by terminal events.
type ResponseBody struct {
	ID    string `json:"id"`
	Usage *Usage `json:"usage,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Usage contains token usage statistics.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Error is the failure detail on a response.failed event.
type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
