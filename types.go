package oni

import "encoding/json"

// --- Durable records ---

// Memory is a long-term semantic memory record. Content is immutable once
// stored; AccessCount and LastAccessedAt are bumped on every retrieval that
// returns the record.
type Memory struct {
	ID             string            `json:"id"`
	Content        string            `json:"content"`
	Category       string            `json:"category,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Embedding      []float32         `json:"embedding,omitempty"`
	CreatedAt      int64             `json:"created_at"`
	AccessCount    int               `json:"access_count"`
	LastAccessedAt int64             `json:"last_accessed_at,omitempty"`
}

// HasEmbedding reports whether the memory carries an embedding vector.
func (m Memory) HasEmbedding() bool { return len(m.Embedding) > 0 }

// ScoredMemory pairs a memory with its search relevance score.
type ScoredMemory struct {
	Memory Memory  `json:"memory"`
	Score  float32 `json:"score"`
}

// KnowledgeEntry is a structured fact keyed by (Key, Category).
// At most one entry exists per pair; writes upsert in place.
type KnowledgeEntry struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Category  string `json:"category,omitempty"`
	Source    string `json:"source,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Conversation is an index entry; the message log lives in a separate record.
type Conversation struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	CreatedAt     int64  `json:"created_at"`
	LastMessageAt int64  `json:"last_message_at"`
	MessageCount  int    `json:"message_count"`
}

// PersonalityConfig shapes the assistant's identity in the instructions block.
// Updated wholesale via merge upsert; empty fields keep their prior values.
type PersonalityConfig struct {
	Name               string   `json:"name"`
	Tone               string   `json:"tone,omitempty"`
	Style              string   `json:"style,omitempty"`
	Role               string   `json:"role,omitempty"`
	Rules              []string `json:"rules,omitempty"`
	Expertise          []string `json:"expertise,omitempty"`
	CustomInstructions string   `json:"custom_instructions,omitempty"`
}

// --- Conversation messages ---

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a conversation log. The shape is a tagged union on
// Role: user and plain assistant messages carry only Content; assistant
// messages that requested tools carry ToolCalls; tool messages carry the
// result for exactly one ToolCallID from the immediately preceding assistant
// message of the same turn.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Timestamp  int64      `json:"timestamp"`
}

// UserMessage builds a user message stamped with the current time.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text, Timestamp: NowUnix()}
}

// AssistantMessage builds a plain assistant text message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text, Timestamp: NowUnix()}
}

// ToolCallsMessage builds an assistant message carrying tool calls.
func ToolCallsMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls, Timestamp: NowUnix()}
}

// ToolResultMessage builds a tool result message for one call ID.
func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Name: name, Content: content, Timestamp: NowUnix()}
}

// --- Model protocol types ---

// ToolCall is a model-requested invocation of an external skill.
// Arguments is the raw JSON argument text exactly as streamed.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition declares a callable skill to the model. The core never
// executes tools; the desktop shell does.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ToolResult is one executed tool call fed back on continuation.
type ToolResult struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
}

// Usage contains token usage statistics for a completed turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TurnRequest is the normalized model input built by the turn executor:
// assembled instructions, sanitized history, the current turn's payload,
// and the declared tools.
type TurnRequest struct {
	Instructions string           `json:"instructions"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// --- Credentials ---

// Credential kinds.
const (
	CredentialAPIKey = "apikey"
	CredentialOAuth  = "oauth"
)

// Account is the identity derived from OAuth identity-token claims.
type Account struct {
	Email        string `json:"email,omitempty"`
	Plan         string `json:"plan,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// Credential is a currently valid bearer credential, either a static API key
// or a refreshed OAuth token set.
type Credential struct {
	Type         string  `json:"type"` // "apikey" or "oauth"
	Key          string  `json:"key,omitempty"`
	AccessToken  string  `json:"access_token,omitempty"`
	RefreshToken string  `json:"refresh_token,omitempty"`
	IDToken      string  `json:"id_token,omitempty"`
	ExpiresAt    int64   `json:"expires_at,omitempty"`
	Account      Account `json:"account,omitempty"`
}

// Bearer returns the token to present to the upstream.
func (c Credential) Bearer() string {
	if c.Type == CredentialAPIKey {
		return c.Key
	}
	return c.AccessToken
}
