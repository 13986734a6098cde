// Package llm provides generation backend clients.
package llm

import (
	"context"

	"github.com/avesely/opsdeck/internal/domain"
	"github.com/avesely/opsdeck/internal/toolcall"
)

// Request is one generation call. The system prompt travels separately from
// the conversation suffix so backends can place it per their own convention.
type Request struct {
	System    string
	Messages  []domain.ChatMessage
	Model     string
	MaxTokens int
	// Tools carries native tool schemas; only honored by native calls.
	Tools []map[string]any
}

// Usage carries backend-reported token counters, zero when unknown.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// NativeResult is the outcome of a non-streaming native-tools call.
type NativeResult struct {
	Content   string
	ToolCalls []toolcall.RawCall
	Usage     Usage
}

// StreamResult is the outcome of a streaming completion.
type StreamResult struct {
	Text  string
	Usage Usage
}

// ChunkFunc receives each produced text chunk as it arrives.
type ChunkFunc func(text string)

// Client is a generation backend. Implementations are stateless and safe
// for concurrent use.
type Client interface {
	// SupportsNativeTools reports whether GenerateNative is usable.
	SupportsNativeTools() bool
	// SupportsRawCompletion reports whether GenerateRaw is usable.
	SupportsRawCompletion() bool
	// GenerateNative issues one non-streaming call offering the tool catalog.
	GenerateNative(ctx context.Context, req Request) (*NativeResult, error)
	// GenerateStreaming streams a chat completion, invoking onChunk per chunk.
	GenerateStreaming(ctx context.Context, req Request, onChunk ChunkFunc) (*StreamResult, error)
	// GenerateRaw streams a low-level text completion that bypasses the
	// backend's chat template, used to recover from template-side tool-call
	// parse failures.
	GenerateRaw(ctx context.Context, req Request, onChunk ChunkFunc) (*StreamResult, error)
	// Ping checks backend reachability.
	Ping(ctx context.Context) error
}
