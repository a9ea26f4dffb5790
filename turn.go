package oni

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// RespondToolName is the escape-hatch tool: its sole purpose is to let the
// model emit a final natural-language answer through the same tool-calling
// channel used for real actions. When it is the only call in a turn, its
// payload is unwrapped into plain assistant text and the loop terminates.
const RespondToolName = "respond_to_user"

// defaultMemoryTopK is how many memory search results feed the instructions.
const defaultMemoryTopK = 5

// defaultTurnTimeout bounds a turn that never completes or fails.
const defaultTurnTimeout = 5 * time.Minute

var nopLogger = slog.New(slog.DiscardHandler)

// MemorySearcher is the slice of the memory store the engine needs.
type MemorySearcher interface {
	Search(ctx context.Context, query string, k int, category string) ([]ScoredMemory, error)
}

// KnowledgeReader supplies known facts and the personality config.
type KnowledgeReader interface {
	List(ctx context.Context, category string) ([]KnowledgeEntry, error)
	Personality(ctx context.Context) (PersonalityConfig, error)
}

// ConversationLog reads and appends a conversation's ordered message log.
type ConversationLog interface {
	Messages(ctx context.Context, conversationID string) ([]Message, error)
	Append(ctx context.Context, conversationID string, msgs ...Message) error
}

// CredentialSource yields a currently valid bearer credential.
// Returns ErrNoCredential when none is usable.
type CredentialSource interface {
	Credential(ctx context.Context) (Credential, error)
}

// TurnResult is the accumulated outcome of one turn after streaming.
type TurnResult struct {
	TurnID string
	// Text is the assistant's plain text (including an unwrapped
	// escape-hatch response).
	Text string
	// ToolCalls are the calls the shell must execute and feed back via
	// ContinueTurn. Empty when Done.
	ToolCalls []ToolCall
	// Done reports that the agent loop terminated this turn.
	Done  bool
	Usage Usage
}

// Engine orchestrates turns: it assembles instructions, selects the wire
// protocol for the current credential, streams normalized events to the
// caller, and persists the turn's messages. It never executes tools.
type Engine struct {
	convo     ConversationLog
	memory    MemorySearcher
	knowledge KnowledgeReader
	creds     CredentialSource
	// providers maps a credential type to its protocol adapter, chosen once
	// per turn. The API-key path speaks the turn-based style; the OAuth path
	// speaks the call-id-keyed stateful style.
	providers map[string]Provider

	logger      *slog.Logger
	tracer      Tracer
	turnTimeout time.Duration
	memoryTopK  int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConversations sets the conversation log store.
func WithConversations(c ConversationLog) EngineOption { return func(e *Engine) { e.convo = c } }

// WithMemory sets the semantic memory used for instruction assembly.
func WithMemory(m MemorySearcher) EngineOption { return func(e *Engine) { e.memory = m } }

// WithKnowledge sets the knowledge store used for instruction assembly.
func WithKnowledge(k KnowledgeReader) EngineOption { return func(e *Engine) { e.knowledge = k } }

// WithCredentials sets the credential source.
func WithCredentials(c CredentialSource) EngineOption { return func(e *Engine) { e.creds = c } }

// WithProvider registers the protocol adapter for one credential type.
func WithProvider(credType string, p Provider) EngineOption {
	return func(e *Engine) { e.providers[credType] = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) EngineOption { return func(e *Engine) { e.logger = l } }

// WithTracer enables span creation around turns.
func WithTracer(t Tracer) EngineOption { return func(e *Engine) { e.tracer = t } }

// WithTurnTimeout bounds each upstream call. Zero keeps the default.
func WithTurnTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.turnTimeout = d
		}
	}
}

// WithMemoryTopK sets how many memory results are injected per turn.
func WithMemoryTopK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.memoryTopK = k
		}
	}
}

// NewEngine creates an Engine with the given options.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		providers:   make(map[string]Provider),
		logger:      nopLogger,
		turnTimeout: defaultTurnTimeout,
		memoryTopK:  defaultMemoryTopK,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartTurn runs the first turn of an exchange: it builds the request from
// the assembled instructions, a sanitized replay of conversation history,
// and the new user message, then streams events into ch. The channel is
// closed after the terminal event. Blocks until the turn completes or fails.
func (e *Engine) StartTurn(ctx context.Context, conversationID, userMessage string, tools []ToolDefinition, env string, ch chan<- Event) (TurnResult, error) {
	if e.tracer != nil {
		var span Span
		ctx, span = e.tracer.Start(ctx, "oni.turn.start",
			StringAttr("conversation_id", conversationID),
			IntAttr("tool_count", len(tools)))
		defer span.End()
	}

	history, err := e.loadHistory(ctx, conversationID)
	if err != nil {
		return e.fail(ch, err)
	}

	userMsg := UserMessage(userMessage)
	messages := append(SanitizeHistory(history), userMsg)

	result, err := e.run(ctx, conversationID, userMessage, messages, tools, env, ch, []Message{userMsg})
	return result, err
}

// ContinueTurn runs a continuation after the shell executed the prior turn's
// tool calls. The request replays sanitized history, then appends exactly
// the just-executed tool-call/tool-output pairs as the current turn's fresh
// payload — never older ones.
func (e *Engine) ContinueTurn(ctx context.Context, conversationID string, results []ToolResult, tools []ToolDefinition, env string, ch chan<- Event) (TurnResult, error) {
	if e.tracer != nil {
		var span Span
		ctx, span = e.tracer.Start(ctx, "oni.turn.continue",
			StringAttr("conversation_id", conversationID),
			IntAttr("result_count", len(results)))
		defer span.End()
	}

	history, err := e.loadHistory(ctx, conversationID)
	if err != nil {
		return e.fail(ch, err)
	}

	// The prior turn's tool-calling assistant message is already in the log.
	// Drop it from the sanitized replay: the same calls are re-added below,
	// verbatim, as the current payload with their outputs attached.
	if n := len(history); n > 0 && history[n-1].Role == RoleAssistant && len(history[n-1].ToolCalls) > 0 {
		history = history[:n-1]
	}
	messages := SanitizeHistory(history)

	calls := make([]ToolCall, len(results))
	toolMsgs := make([]Message, len(results))
	for i, r := range results {
		calls[i] = ToolCall{ID: r.CallID, Name: r.Name, Arguments: r.Arguments}
		toolMsgs[i] = ToolResultMessage(r.CallID, r.Name, r.Result)
	}
	messages = append(messages, ToolCallsMessage("", calls))
	messages = append(messages, toolMsgs...)

	// The search query for memory context is the latest user message.
	query := lastUserText(history)

	result, err := e.run(ctx, conversationID, query, messages, tools, env, ch, toolMsgs)
	return result, err
}

// run performs the shared stream-and-persist phase of both entry points.
// pending holds this turn's not-yet-persisted messages (the new user message,
// or the continuation's tool results); they are written together with the
// assistant message once the turn completes.
func (e *Engine) run(ctx context.Context, conversationID, query string, messages []Message, tools []ToolDefinition, env string, ch chan<- Event, pending []Message) (TurnResult, error) {
	cred, err := e.creds.Credential(ctx)
	if err != nil {
		return e.fail(ch, err)
	}
	provider, ok := e.providers[cred.Type]
	if !ok {
		return e.fail(ch, &ErrProvider{Provider: cred.Type, Message: "no protocol adapter registered"})
	}

	req := TurnRequest{
		Instructions: e.assemble(ctx, query, env),
		Messages:     messages,
		Tools:        tools,
	}

	tctx, cancel := context.WithTimeout(ctx, e.turnTimeout)
	defer cancel()

	// Intercept the adapter's terminal event so it can be re-emitted with
	// the loop-termination verdict; everything else forwards live.
	inner := make(chan Event, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range inner {
			if ev.Type == EventTurnDone || ev.Type == EventError {
				continue
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
	}()

	outcome, err := provider.StreamTurn(tctx, cred, req, inner)
	<-done
	if err != nil {
		e.logger.Warn("turn failed", "conversation_id", conversationID, "provider", provider.Name(), "error", err)
		return e.fail(ch, err)
	}

	result := TurnResult{TurnID: outcome.TurnID, Usage: outcome.Usage}
	var assistant Message
	switch {
	case len(outcome.ToolCalls) == 1 && outcome.ToolCalls[0].Name == RespondToolName:
		result.Text = unwrapRespond(outcome.ToolCalls[0].Arguments)
		result.Done = true
		assistant = AssistantMessage(result.Text)
	case len(outcome.ToolCalls) == 0:
		result.Text = outcome.Text
		result.Done = true
		assistant = AssistantMessage(outcome.Text)
	default:
		result.Text = outcome.Text
		result.ToolCalls = outcome.ToolCalls
		assistant = ToolCallsMessage(outcome.Text, outcome.ToolCalls)
	}

	if e.convo != nil {
		if err := e.convo.Append(ctx, conversationID, append(pending, assistant)...); err != nil {
			e.logger.Warn("persist turn", "conversation_id", conversationID, "error", err)
		}
	}

	terminal := Event{Type: EventTurnDone, TurnID: outcome.TurnID, Usage: &outcome.Usage, Done: result.Done}
	select {
	case ch <- terminal:
	case <-ctx.Done():
	}
	close(ch)
	return result, nil
}

// assemble gathers personality, facts, and memory hits for the instructions
// block. Each source is best-effort: a failed lookup degrades to an empty
// section rather than aborting the turn.
func (e *Engine) assemble(ctx context.Context, query, env string) string {
	in := AssemblerInput{Environment: env}
	if e.knowledge != nil {
		p, err := e.knowledge.Personality(ctx)
		if err != nil {
			e.logger.Warn("load personality", "error", err)
		} else {
			in.Personality = p
		}
		facts, err := e.knowledge.List(ctx, "")
		if err != nil {
			e.logger.Warn("load knowledge", "error", err)
		} else {
			in.Knowledge = facts
		}
	}
	if e.memory != nil && query != "" {
		hits, err := e.memory.Search(ctx, query, e.memoryTopK, "")
		if err != nil {
			e.logger.Warn("memory search", "error", err)
		} else {
			in.Memories = hits
		}
	}
	return AssembleInstructions(in)
}

// loadHistory reads the conversation log. A missing conversation yields an
// empty history; it is created on the first append.
func (e *Engine) loadHistory(ctx context.Context, conversationID string) ([]Message, error) {
	if e.convo == nil {
		return nil, nil
	}
	return e.convo.Messages(ctx, conversationID)
}

// fail emits the terminal error event and closes the channel.
func (e *Engine) fail(ch chan<- Event, err error) (TurnResult, error) {
	ch <- Event{Type: EventError, Content: err.Error()}
	close(ch)
	return TurnResult{}, err
}

// unwrapRespond extracts the message text from the escape-hatch tool's
// argument payload. Arguments that fail to parse fall back to the raw
// argument text verbatim rather than dropping the turn's result.
func unwrapRespond(arguments string) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(arguments), &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return arguments
}

// lastUserText returns the content of the most recent user message.
func lastUserText(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content
		}
	}
	return ""
}
