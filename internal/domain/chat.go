// Package domain contains core domain types for the Opsdeck application.
package domain

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser is a message written by the operator.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the model.
	RoleAssistant Role = "assistant"
	// RoleSystem is an instruction or tool-result message injected by the server.
	RoleSystem Role = "system"
)

// ChatMessage is one entry in a conversation. Messages are immutable once
// appended to a session's history.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
