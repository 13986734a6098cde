// Package chat implements the conversational tool-calling core: per-connection
// sessions, prompt composition, the turn orchestrator, and the WebSocket
// gateway.
package chat

import (
	"github.com/avesely/opsdeck/internal/toolcall"
)

// Outbound event types.
const (
	EventStart               = "chat:start"
	EventChunk               = "chat:chunk"
	EventToolCall            = "chat:tool_call"
	EventToolResponsePending = "chat:tool_response_pending"
	EventBlocked             = "chat:blocked"
	EventError               = "chat:error"
	EventCancelled           = "chat:cancelled"
	EventCleared             = "chat:cleared"
	EventEnd                 = "chat:end"
)

// Inbound event types.
const (
	EventMessage = "chat:message"
	EventCancel  = "chat:cancel"
	EventClear   = "chat:clear"
)

// Tool-call event statuses.
const (
	ToolStatusExecuting = "executing"
	ToolStatusComplete  = "complete"
)

// Event is one outbound chat event.
type Event struct {
	Type    string            `json:"type"`
	ID      string            `json:"id,omitempty"`
	Content string            `json:"content,omitempty"`
	Tools   []string          `json:"tools,omitempty"`
	Status  string            `json:"status,omitempty"`
	Results []toolcall.Result `json:"results,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Score   float64           `json:"score,omitempty"`
	Message string            `json:"message,omitempty"`
}

// inboundMessage is the wire shape of client-to-server chat events.
type inboundMessage struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Context map[string]any `json:"context,omitempty"`
	Model   string         `json:"model,omitempty"`
}

// Emitter delivers outbound events for one connection.
type Emitter interface {
	Emit(ev Event)
}
