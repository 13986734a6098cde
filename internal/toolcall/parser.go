package toolcall

import (
	"encoding/json"
	"strings"
)

// textPayload mirrors the JSON shape models use to request tools in plain
// text. Both {"tool": ...} and {"name": ...} entry spellings occur in the
// wild, so both are accepted.
type textPayload struct {
	ToolCalls []struct {
		Tool      string          `json:"tool"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"tool_calls"`
}

// ParseText extracts tool calls embedded in a text blob. It recognizes a
// JSON object carrying a tool_calls array, optionally wrapped in a fenced
// code block. Ordinary prose returns nil, including prose that merely
// mentions the term "tool_calls". A nil return is not an error.
func ParseText(text string) []Call {
	candidate, ok := extractCandidate(text)
	if !ok {
		return nil
	}
	return parseCandidate(candidate)
}

// LooksLikeFailedToolAttempt reports whether text has the shape of a
// tool-call request but is unusable: it fails full parsing, or every tool
// it references is unknown. Used to trigger the single no-tools retry;
// never an error by itself.
func LooksLikeFailedToolAttempt(text string, isKnown func(string) bool) bool {
	candidate, ok := extractCandidate(text)
	if !ok {
		return false
	}
	calls := parseCandidate(candidate)
	if calls == nil {
		return true
	}
	for _, c := range calls {
		if isKnown(c.Tool) {
			return false
		}
	}
	return true
}

// extractCandidate finds the JSON object that may carry tool calls. It
// unwraps one fenced code block if present, then requires the remaining
// text to be a brace-delimited object mentioning "tool_calls".
func extractCandidate(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}

	if fenced, ok := unwrapFence(trimmed); ok {
		trimmed = strings.TrimSpace(fenced)
	}

	if !strings.HasPrefix(trimmed, "{") || !strings.Contains(trimmed, `"tool_calls"`) {
		return "", false
	}
	return trimmed, true
}

// unwrapFence returns the body of the first ``` fenced block, if any.
func unwrapFence(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start == -1 {
		return "", false
	}
	rest := text[start+3:]
	// Skip an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || !strings.ContainsAny(firstLine, "{}") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return rest, true
	}
	return rest[:end], true
}

func parseCandidate(candidate string) []Call {
	var payload textPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil
	}
	if len(payload.ToolCalls) == 0 {
		return nil
	}

	calls := make([]Call, 0, len(payload.ToolCalls))
	for _, tc := range payload.ToolCalls {
		name := tc.Tool
		if name == "" {
			name = tc.Name
		}
		if name == "" {
			continue
		}
		call := Call{Tool: name, Arguments: map[string]any{}}
		if len(tc.Arguments) > 0 {
			var decoded map[string]any
			if err := json.Unmarshal(tc.Arguments, &decoded); err == nil && decoded != nil {
				call.Arguments = decoded
			} else {
				// Arguments may themselves be a JSON-encoded string.
				var encoded string
				if err := json.Unmarshal(tc.Arguments, &encoded); err == nil {
					if err := json.Unmarshal([]byte(encoded), &decoded); err == nil && decoded != nil {
						call.Arguments = decoded
					}
				}
			}
		}
		calls = append(calls, call)
	}
	if len(calls) == 0 {
		return nil
	}
	return calls
}
