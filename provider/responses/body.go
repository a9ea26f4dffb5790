package responses

import (
	"encoding/json"

	oni "github.com/onios/oni"
)

// BuildBody converts a normalized turn request into the responses API body.
// Sanitized history arrives as plain role/content messages; only the current
// turn's tool calls appear as function_call items, immediately followed by
// their function_call_output items, so every call_id in the request resolves
// within the request itself.
func BuildBody(req oni.TurnRequest, model string) Request {
	items := make([]InputItem, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch {
		case m.Role == oni.RoleAssistant && len(m.ToolCalls) > 0:
			if m.Content != "" {
				items = append(items, InputItem{Type: "message", Role: "assistant", Content: m.Content})
			}
			for _, tc := range m.ToolCalls {
				items = append(items, InputItem{
					Type:      "function_call",
					CallID:    tc.ID,
					Name:      tc.Name,
					Arguments: tc.Arguments,
				})
			}

		case m.Role == oni.RoleTool:
			items = append(items, InputItem{
				Type:   "function_call_output",
				CallID: m.ToolCallID,
				Output: m.Content,
			})

		default:
			items = append(items, InputItem{Type: "message", Role: m.Role, Content: m.Content})
		}
	}

	body := Request{
		Model:        model,
		Instructions: req.Instructions,
		Input:        items,
	}
	if len(req.Tools) > 0 {
		body.Tools = buildToolDefs(req.Tools)
	}
	return body
}

func buildToolDefs(tools []oni.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		out = append(out, Tool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return out
}
