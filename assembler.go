package oni

import (
	"fmt"
	"strings"
)

// AssemblerInput is everything the context assembler combines into one
// instructions block for a turn.
type AssemblerInput struct {
	Personality PersonalityConfig
	Knowledge   []KnowledgeEntry
	Memories    []ScoredMemory
	// Environment is a free-text snapshot supplied by the desktop shell
	// (open windows, time, focused application). Opaque to this core; it is
	// concatenated under a labeled heading, never interpreted.
	Environment string
}

// AssembleInstructions builds the system instructions for a turn. Section
// order is a content contract: identity preamble, operating rules and
// capabilities, known facts, relevant memories, environment snapshot.
// Empty sections keep their headings, matching the shell's existing prompts.
func AssembleInstructions(in AssemblerInput) string {
	var sb strings.Builder

	p := in.Personality
	name := p.Name
	if name == "" {
		name = "Oni"
	}
	fmt.Fprintf(&sb, "You are %s", name)
	if p.Role != "" {
		fmt.Fprintf(&sb, ", %s", p.Role)
	}
	sb.WriteString(".\n")
	if p.Tone != "" {
		fmt.Fprintf(&sb, "Tone: %s.\n", p.Tone)
	}
	if p.Style != "" {
		fmt.Fprintf(&sb, "Style: %s.\n", p.Style)
	}
	if p.CustomInstructions != "" {
		sb.WriteString(p.CustomInstructions)
		sb.WriteString("\n")
	}

	sb.WriteString("\n## Rules\n")
	for _, r := range p.Rules {
		fmt.Fprintf(&sb, "- %s\n", r)
	}
	if len(p.Expertise) > 0 {
		fmt.Fprintf(&sb, "\n## Expertise\n%s\n", strings.Join(p.Expertise, ", "))
	}

	sb.WriteString("\n## Known facts\n")
	for _, k := range in.Knowledge {
		if k.Category != "" {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", k.Key, k.Category, k.Value)
		} else {
			fmt.Fprintf(&sb, "- %s: %s\n", k.Key, k.Value)
		}
	}

	sb.WriteString("\n## Relevant memories\n")
	for _, m := range in.Memories {
		fmt.Fprintf(&sb, "- %s\n", m.Memory.Content)
	}

	sb.WriteString("\n## Environment\n")
	if in.Environment != "" {
		sb.WriteString(in.Environment)
		sb.WriteString("\n")
	}

	return sb.String()
}
