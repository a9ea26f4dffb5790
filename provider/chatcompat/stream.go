package chatcompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	oni "github.com/onios/oni"
)

// StreamSSE reads a chat completions SSE stream from body, forwards deltas to
// ch, and returns the fully accumulated outcome. Tool-call argument fragments
// are reassembled by chunk index; each completed call yields exactly one
// tool-call-done event whose arguments are the in-order concatenation of its
// fragments.
//
// The channel is NOT closed here; the caller owns it. Callers should read
// from ch in a separate goroutine. The context cancels channel sends when the
// consumer has gone away.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	data: [DONE]\n
func StreamSSE(ctx context.Context, body io.Reader, ch chan<- oni.Event) (oni.TurnOutcome, error) {
	scanner := bufio.NewScanner(body)
	// Increase buffer for large SSE payloads.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var text strings.Builder
	var usage oni.Usage
	var turnID string

	// Tool calls stream incrementally: each chunk carries an index, and
	// arguments arrive as string fragments keyed to that index.
	type partialToolCall struct {
		ID   string
		Name string
		Args strings.Builder
	}
	var calls []partialToolCall

	for scanner.Scan() {
		line := scanner.Text()

		// SSE lines that carry data start with "data: ".
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")

		// End-of-stream sentinel.
		if data == "[DONE]" {
			break
		}

		var chunk ChatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}

		if chunk.ID != "" && turnID == "" {
			turnID = chunk.ID
		}

		if len(chunk.Choices) == 0 {
			// Usage-only chunk (some providers send this last).
			if chunk.Usage != nil {
				usage.InputTokens = chunk.Usage.PromptTokens
				usage.OutputTokens = chunk.Usage.CompletionTokens
			}
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta == nil {
			continue
		}

		if delta.Content != "" {
			text.WriteString(delta.Content)
			select {
			case ch <- oni.Event{Type: oni.EventTextDelta, Content: delta.Content}:
			case <-ctx.Done():
				return oni.TurnOutcome{}, ctx.Err()
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			for len(calls) <= idx {
				calls = append(calls, partialToolCall{})
			}

			if tc.ID != "" {
				calls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				calls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				calls[idx].Args.WriteString(tc.Function.Arguments)
				select {
				case ch <- oni.Event{
					Type:      oni.EventToolCallDelta,
					Index:     idx,
					CallID:    calls[idx].ID,
					Name:      calls[idx].Name,
					Arguments: tc.Function.Arguments,
				}:
				case <-ctx.Done():
					return oni.TurnOutcome{}, ctx.Err()
				}
			}
		}

		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}
	}

	if err := scanner.Err(); err != nil {
		return oni.TurnOutcome{}, err
	}

	var final []oni.ToolCall
	for i, tc := range calls {
		// Arguments pass through verbatim even when they are not valid
		// JSON: the engine decides how to degrade, and the raw bytes must
		// survive to be persisted.
		args := tc.Args.String()
		final = append(final, oni.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: args})
		select {
		case ch <- oni.Event{
			Type:      oni.EventToolCallDone,
			Index:     i,
			CallID:    tc.ID,
			Name:      tc.Name,
			Arguments: args,
		}:
		case <-ctx.Done():
			return oni.TurnOutcome{}, ctx.Err()
		}
	}

	return oni.TurnOutcome{
		TurnID:    turnID,
		Text:      text.String(),
		ToolCalls: final,
		Usage:     usage,
	}, nil
}
