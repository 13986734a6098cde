package chat

import (
	"fmt"
	"sort"
	"strings"
)

const baseInstructions = `You are Opsdeck, an operations assistant with live read access to the container infrastructure of this host. Answer the operator's questions about containers, logs, metrics, and endpoints. Be concise and factual; quote real data from tools instead of guessing.`

const toolInstructions = `When you need live data, request tools by replying with ONLY a JSON object of the form:
{"tool_calls": [{"tool": "<name>", "arguments": {...}}]}
Do not mix prose with tool-call JSON. After the tool results arrive, answer in plain language.

Available tools:
%s`

const noToolInstructions = `Tool calling is unavailable for this reply. Answer from the conversation and the infrastructure context above. Do not output tool-call JSON.`

// Prompts are the two system prompt variants for one turn.
type Prompts struct {
	WithTools string
	NoTools   string
}

// ComposePrompts assembles both system prompt variants from the caller
// context, the infrastructure snapshot, and the tool catalog. Deterministic
// for identical inputs and never fails; an empty snapshot renders as a short
// unavailability note.
func ComposePrompts(context map[string]any, snapshot, catalog string) Prompts {
	if strings.TrimSpace(snapshot) == "" {
		snapshot = "Infrastructure context unavailable."
	}

	var b strings.Builder
	b.WriteString(baseInstructions)
	b.WriteString("\n\n")
	b.WriteString(snapshot)
	if ctx := renderContext(context); ctx != "" {
		b.WriteString("\n\n")
		b.WriteString(ctx)
	}
	common := b.String()

	return Prompts{
		WithTools: common + "\n\n" + fmt.Sprintf(toolInstructions, catalog),
		NoTools:   common + "\n\n" + noToolInstructions,
	}
}

// renderContext turns the UI-supplied context object into prompt text. A
// focused-container shape becomes structured facts plus a default-resource
// instruction; anything else becomes generic key/value bullets; nil renders
// to nothing.
func renderContext(context map[string]any) string {
	if len(context) == 0 {
		return ""
	}

	if name, ok := context["container"].(string); ok && name != "" {
		var b strings.Builder
		b.WriteString("The operator is currently viewing a specific container:\n")
		fmt.Fprintf(&b, "- container: %s\n", name)
		for _, key := range sortedKeys(context) {
			if key == "container" {
				continue
			}
			fmt.Fprintf(&b, "- %s: %v\n", key, context[key])
		}
		b.WriteString("When the operator asks a follow-up without naming a container, default tool calls to this container instead of asking which one.")
		return b.String()
	}

	var b strings.Builder
	b.WriteString("Additional context from the dashboard:\n")
	for _, key := range sortedKeys(context) {
		fmt.Fprintf(&b, "- %s: %v\n", key, context[key])
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
