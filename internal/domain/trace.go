package domain

import (
	"time"
	"unicode/utf8"
)

// Trace statuses.
const (
	TraceStatusSuccess = "success"
	TraceStatusError   = "error"
)

// TraceRecord captures latency and token accounting for one chat turn.
// Records are write-once and append-only.
type TraceRecord struct {
	TraceID          string    `json:"trace_id"`
	SessionID        string    `json:"session_id"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	LatencyMS        int64     `json:"latency_ms"`
	Status           string    `json:"status"`
	UserQueryPreview string    `json:"user_query_preview"`
	ResponsePreview  string    `json:"response_preview"`
	CreatedAt        time.Time `json:"created_at"`
}

// Preview truncates s to a short prefix suitable for trace storage. The cut
// lands on a rune boundary so a multi-byte character is never split.
func Preview(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
