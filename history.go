package oni

import (
	"fmt"
	"strings"
)

// SanitizeHistory collapses prior tool-calling turns into plain text for
// replay. Prior tool-result messages and prior assistant tool-call messages
// are never replayed verbatim: the stateful upstream rejects any tool-output
// reference whose matching call is not in the same request, and replaying
// old call identifiers alongside new ones causes protocol errors. Each
// tool-calling turn becomes its assistant text plus a short "[called tool: X]"
// annotation per call.
func SanitizeHistory(history []Message) []Message {
	out := make([]Message, 0, len(history))
	for _, msg := range history {
		switch {
		case msg.Role == RoleTool:
			// Dropped: its call is summarized on the assistant message.
			continue
		case msg.Role == RoleAssistant && len(msg.ToolCalls) > 0:
			var sb strings.Builder
			sb.WriteString(msg.Content)
			for _, tc := range msg.ToolCalls {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				fmt.Fprintf(&sb, "[called tool: %s]", tc.Name)
			}
			out = append(out, Message{Role: RoleAssistant, Content: sb.String(), Timestamp: msg.Timestamp})
		default:
			out = append(out, msg)
		}
	}
	return out
}
