// Package toolcall extracts, normalizes, and routes assistant tool requests.
package toolcall

import (
	"encoding/json"
)

// Call is one structured tool request produced by the parser. Calls are
// transient: only their textual representation is ever appended to the
// working conversation.
type Call struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Result is the outcome of executing one Call, in call order.
type Result struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RawCall is a tool request as reported natively by a generation backend.
// Arguments may arrive as an object or as a JSON-encoded string depending
// on the backend.
type RawCall struct {
	Tool      string
	Arguments any
}

// Normalize converts backend-native calls into Calls. String-encoded
// argument payloads are decoded; anything undecodable degrades to an
// empty argument map rather than an error.
func Normalize(raw []RawCall) []Call {
	if len(raw) == 0 {
		return nil
	}
	calls := make([]Call, 0, len(raw))
	for _, rc := range raw {
		call := Call{Tool: rc.Tool, Arguments: map[string]any{}}
		switch args := rc.Arguments.(type) {
		case map[string]any:
			if args != nil {
				call.Arguments = args
			}
		case string:
			var decoded map[string]any
			if err := json.Unmarshal([]byte(args), &decoded); err == nil && decoded != nil {
				call.Arguments = decoded
			}
		case json.RawMessage:
			var decoded map[string]any
			if err := json.Unmarshal(args, &decoded); err == nil && decoded != nil {
				call.Arguments = decoded
			}
		}
		calls = append(calls, call)
	}
	return calls
}
