package responses

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	oni "github.com/onios/oni"
)

// StreamSSE reads a responses API event stream from body, forwards deltas to
// ch, and returns the fully accumulated outcome. Unlike the chat completions
// wire style, lines are typed: an "event:" line names the event and the
// following "data:" line carries its payload. Tool calls are keyed by
// output_index while streaming and by call_id in the result.
//
// The channel is NOT closed here; the caller owns it. The context cancels
// channel sends when the consumer has gone away.
func StreamSSE(ctx context.Context, body io.Reader, ch chan<- oni.Event) (oni.TurnOutcome, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var text strings.Builder
	var usage oni.Usage
	var turnID string
	var failure *Error

	type partialToolCall struct {
		CallID string
		Name   string
		Args   strings.Builder
		Done   bool
	}
	items := map[int]*partialToolCall{}
	var order []int

	// The event type named by the most recent "event:" line; it applies to
	// the next "data:" line.
	var eventType string

loop:
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var payload EventPayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			// Skip malformed payloads.
			continue
		}

		switch eventType {
		case evTextDelta:
			if payload.Delta == "" {
				continue
			}
			text.WriteString(payload.Delta)
			select {
			case ch <- oni.Event{Type: oni.EventTextDelta, Content: payload.Delta}:
			case <-ctx.Done():
				return oni.TurnOutcome{}, ctx.Err()
			}

		case evItemAdded:
			if payload.Item == nil || payload.Item.Type != "function_call" {
				continue
			}
			idx := payload.OutputIndex
			if _, ok := items[idx]; !ok {
				items[idx] = &partialToolCall{}
				order = append(order, idx)
			}
			items[idx].CallID = payload.Item.CallID
			items[idx].Name = payload.Item.Name

		case evArgsDelta:
			item, ok := items[payload.OutputIndex]
			if !ok || payload.Delta == "" {
				continue
			}
			item.Args.WriteString(payload.Delta)
			select {
			case ch <- oni.Event{
				Type:      oni.EventToolCallDelta,
				Index:     payload.OutputIndex,
				CallID:    item.CallID,
				Name:      item.Name,
				Arguments: payload.Delta,
			}:
			case <-ctx.Done():
				return oni.TurnOutcome{}, ctx.Err()
			}

		case evItemDone:
			if payload.Item == nil || payload.Item.Type != "function_call" {
				continue
			}
			idx := payload.OutputIndex
			item, ok := items[idx]
			if !ok {
				item = &partialToolCall{CallID: payload.Item.CallID, Name: payload.Item.Name}
				items[idx] = item
				order = append(order, idx)
			}
			if item.Done {
				// The closed event is authoritative and fires once per call.
				continue
			}
			item.Done = true
			if payload.Item.Arguments != "" {
				item.Args.Reset()
				item.Args.WriteString(payload.Item.Arguments)
			}
			select {
			case ch <- oni.Event{
				Type:      oni.EventToolCallDone,
				Index:     idx,
				CallID:    item.CallID,
				Name:      item.Name,
				Arguments: item.Args.String(),
			}:
			case <-ctx.Done():
				return oni.TurnOutcome{}, ctx.Err()
			}

		case evCompleted:
			if payload.Response != nil {
				turnID = payload.Response.ID
				if payload.Response.Usage != nil {
					usage.InputTokens = payload.Response.Usage.InputTokens
					usage.OutputTokens = payload.Response.Usage.OutputTokens
				}
			}
			break loop

		case evFailed:
			failure = &Error{Message: "response failed"}
			if payload.Response != nil && payload.Response.Error != nil {
				failure = payload.Response.Error
			}
			break loop
		}
	}

	if err := scanner.Err(); err != nil {
		return oni.TurnOutcome{}, err
	}
	if failure != nil {
		return oni.TurnOutcome{}, &oni.ErrProvider{Provider: "responses", Message: failure.Message}
	}

	var final []oni.ToolCall
	for _, idx := range order {
		item := items[idx]
		// Arguments pass through verbatim even when they are not valid
		// JSON: the engine decides how to degrade, and the raw bytes must
		// survive to be persisted.
		final = append(final, oni.ToolCall{ID: item.CallID, Name: item.Name, Arguments: item.Args.String()})
	}

	return oni.TurnOutcome{
		TurnID:    turnID,
		Text:      text.String(),
		ToolCalls: final,
		Usage:     usage,
	}, nil
}
