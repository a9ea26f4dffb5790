package chatcompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	oni "github.com/onios/oni"
)

// buildSSE constructs a mock SSE stream from data lines.
func buildSSE(lines ...string) string {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// runStream runs StreamSSE over raw and returns the outcome plus every event
// it emitted.
func runStream(t *testing.T, raw string) (oni.TurnOutcome, []oni.Event) {
	t.Helper()
	ch := make(chan oni.Event, 64)
	outcome, err := StreamSSE(context.Background(), strings.NewReader(raw), ch)
	if err != nil {
		t.Fatalf("StreamSSE returned error: %v", err)
	}
	close(ch)
	var events []oni.Event
	for ev := range ch {
		events = append(events, ev)
	}
	return outcome, events
}

func TestStreamSSETextChunks(t *testing.T) {
	sse := buildSSE(
		`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`,
		`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"content":"Hello"}}]}`,
		`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"content":" world"}}]}`,
		`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"content":"!"}}]}`,
		`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`,
		"[DONE]",
	)

	outcome, events := runStream(t, sse)

	if outcome.Text != "Hello world!" {
		t.Errorf("expected text 'Hello world!', got %q", outcome.Text)
	}
	if outcome.TurnID != "chatcmpl-1" {
		t.Errorf("expected turn ID 'chatcmpl-1', got %q", outcome.TurnID)
	}

	var deltas int
	for _, ev := range events {
		if ev.Type == oni.EventTextDelta {
			deltas++
		}
	}
	if deltas != 3 {
		t.Errorf("expected 3 text deltas, got %d", deltas)
	}

	if outcome.Usage.InputTokens != 5 {
		t.Errorf("expected 5 input tokens, got %d", outcome.Usage.InputTokens)
	}
	if outcome.Usage.OutputTokens != 3 {
		t.Errorf("expected 3 output tokens, got %d", outcome.Usage.OutputTokens)
	}
}

func TestStreamSSEFragmentedToolCall(t *testing.T) {
	// Arguments arrive as three string fragments keyed to index 0. The
	// completed call must carry their exact in-order concatenation, and
	// exactly one tool-call-done must fire.
	sse := buildSSE(
		`{"id":"chatcmpl-2","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_abc","type":"function","function":{"name":"get_weather","arguments":""}}]}}]}`,
		`{"id":"chatcmpl-2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\""}}]}}]}`,
		`{"id":"chatcmpl-2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":":\"London"}}]}}]}`,
		`{"id":"chatcmpl-2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"}"}}]}}]}`,
		`{"id":"chatcmpl-2","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":10,"completion_tokens":15,"total_tokens":25}}`,
		"[DONE]",
	)

	outcome, events := runStream(t, sse)

	if len(outcome.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(outcome.ToolCalls))
	}
	tc := outcome.ToolCalls[0]
	if tc.ID != "call_abc" {
		t.Errorf("expected ID 'call_abc', got %q", tc.ID)
	}
	if tc.Name != "get_weather" {
		t.Errorf("expected name 'get_weather', got %q", tc.Name)
	}
	if tc.Arguments != `{"city":"London"}` {
		t.Errorf("expected concatenated arguments, got %q", tc.Arguments)
	}

	var done []oni.Event
	var fragments []string
	for _, ev := range events {
		switch ev.Type {
		case oni.EventToolCallDone:
			done = append(done, ev)
		case oni.EventToolCallDelta:
			fragments = append(fragments, ev.Arguments)
		}
	}
	if len(done) != 1 {
		t.Fatalf("expected exactly 1 tool-call-done, got %d", len(done))
	}
	if done[0].Arguments != strings.Join(fragments, "") {
		t.Errorf("done arguments %q != concatenated fragments %q", done[0].Arguments, strings.Join(fragments, ""))
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		t.Fatalf("failed to parse tool call args: %v", err)
	}
	if args["city"] != "London" {
		t.Errorf("expected city 'London', got %v", args["city"])
	}
}

func TestStreamSSEMultipleToolCalls(t *testing.T) {
	sse := buildSSE(
		`{"id":"chatcmpl-3","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"search","arguments":""}}]}}]}`,
		`{"id":"chatcmpl-3","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"q\":\"test\"}"}}]}}]}`,
		`{"id":"chatcmpl-3","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_2","type":"function","function":{"name":"calc","arguments":""}}]}}]}`,
		`{"id":"chatcmpl-3","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"function":{"arguments":"{\"expr\":\"1+1\"}"}}]}}]}`,
		`{"id":"chatcmpl-3","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		"[DONE]",
	)

	outcome, events := runStream(t, sse)

	if len(outcome.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(outcome.ToolCalls))
	}
	if outcome.ToolCalls[0].Name != "search" || outcome.ToolCalls[0].ID != "call_1" {
		t.Errorf("unexpected first call: %+v", outcome.ToolCalls[0])
	}
	if outcome.ToolCalls[1].Name != "calc" || outcome.ToolCalls[1].ID != "call_2" {
		t.Errorf("unexpected second call: %+v", outcome.ToolCalls[1])
	}

	var done int
	for _, ev := range events {
		if ev.Type == oni.EventToolCallDone {
			done++
		}
	}
	if done != 2 {
		t.Errorf("expected 2 tool-call-done events, got %d", done)
	}
}

func TestStreamSSENonJSONArgumentsPassThroughVerbatim(t *testing.T) {
	// Some models emit escape-hatch arguments as bare text rather than a
	// JSON object. The raw bytes must survive reassembly so the engine can
	// persist them.
	sse := buildSSE(
		`{"id":"chatcmpl-7","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_x","function":{"name":"respond_to_user","arguments":"Hel"}}]}}]}`,
		`{"id":"chatcmpl-7","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"lo th"}}]}}]}`,
		`{"id":"chatcmpl-7","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ere"}}]}}]}`,
		"[DONE]",
	)

	outcome, events := runStream(t, sse)

	if len(outcome.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(outcome.ToolCalls))
	}
	if outcome.ToolCalls[0].Arguments != "Hello there" {
		t.Errorf("argument bytes altered: want %q, got %q", "Hello there", outcome.ToolCalls[0].Arguments)
	}
	for _, ev := range events {
		if ev.Type == oni.EventToolCallDone && ev.Arguments != "Hello there" {
			t.Errorf("done event arguments disagree with outcome: %q", ev.Arguments)
		}
	}
}

func TestStreamSSETruncatedArgumentsKept(t *testing.T) {
	sse := buildSSE(
		`{"id":"chatcmpl-8","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_y","function":{"name":"broken","arguments":"{\"q\":"}}]}}]}`,
		"[DONE]",
	)

	outcome, _ := runStream(t, sse)

	if len(outcome.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(outcome.ToolCalls))
	}
	if outcome.ToolCalls[0].Arguments != `{"q":` {
		t.Errorf("truncated arguments rewritten: got %q", outcome.ToolCalls[0].Arguments)
	}
}

func TestStreamSSEEmptyStream(t *testing.T) {
	outcome, events := runStream(t, buildSSE("[DONE]"))

	if outcome.Text != "" {
		t.Errorf("expected empty text, got %q", outcome.Text)
	}
	if len(outcome.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(outcome.ToolCalls))
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestStreamSSEUsageOnlyChunk(t *testing.T) {
	sse := buildSSE(
		`{"id":"chatcmpl-4","choices":[{"index":0,"delta":{"role":"assistant","content":"Hi"}}]}`,
		`{"id":"chatcmpl-4","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"chatcmpl-4","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`,
		"[DONE]",
	)

	outcome, _ := runStream(t, sse)

	if outcome.Text != "Hi" {
		t.Errorf("expected text 'Hi', got %q", outcome.Text)
	}
	if outcome.Usage.InputTokens != 3 || outcome.Usage.OutputTokens != 1 {
		t.Errorf("unexpected usage: %+v", outcome.Usage)
	}
}

func TestStreamSSESkipsMalformedChunks(t *testing.T) {
	sse := buildSSE(
		`{"id":"chatcmpl-5","choices":[{"index":0,"delta":{"content":"Good"}}]}`,
		`this is not json`,
		`{"id":"chatcmpl-5","choices":[{"index":0,"delta":{"content":" day"}}]}`,
		"[DONE]",
	)

	outcome, _ := runStream(t, sse)

	if outcome.Text != "Good day" {
		t.Errorf("expected text 'Good day', got %q", outcome.Text)
	}
}

func TestStreamSSENonDataLinesIgnored(t *testing.T) {
	raw := ": this is a comment\n" +
		"event: message\n" +
		"data: {\"id\":\"chatcmpl-6\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"OK\"}}]}\n\n" +
		"retry: 3000\n" +
		"data: [DONE]\n\n"

	outcome, _ := runStream(t, raw)

	if outcome.Text != "OK" {
		t.Errorf("expected text 'OK', got %q", outcome.Text)
	}
}

func TestStreamSSECancelAbortsPromptly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// The pipe never closes: an aborted loop must stop reading rather than
	// wait for more body.
	r, w := io.Pipe()
	go func() {
		w.Write([]byte(`data: {"id":"chatcmpl-9","choices":[{"index":0,"delta":{"content":"partial"}}]}` + "\n\n"))
		cancel()
	}()

	// Unbuffered with no consumer, so the delta send blocks until cancel.
	ch := make(chan oni.Event)
	_, err := StreamSSE(ctx, r, ch)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
