package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/avesely/opsdeck/internal/domain"
	"github.com/avesely/opsdeck/internal/toolcall"
)

// LocalClient talks to an Ollama-compatible backend over HTTP. Chat
// completions use /api/chat with newline-delimited JSON streaming; the raw
// mode uses /api/generate, which skips the server-side chat template.
type LocalClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewLocalClient creates a client for an Ollama-compatible endpoint.
func NewLocalClient(endpoint string) *LocalClient {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &LocalClient{
		baseURL: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // local models with tools need time
		},
	}
}

func (c *LocalClient) SupportsNativeTools() bool   { return true }
func (c *LocalClient) SupportsRawCompletion() bool { return true }

type localMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	ToolCalls []localToolCall `json:"tool_calls,omitempty"`
}

type localToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type localChatRequest struct {
	Model    string           `json:"model"`
	Messages []localMessage   `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Options  *localOptions    `json:"options,omitempty"`
}

type localOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type localChatResponse struct {
	Message localMessage `json:"message"`
	Done    bool         `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

func (c *LocalClient) chatMessages(req Request) []localMessage {
	msgs := make([]localMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, localMessage{Role: string(domain.RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, localMessage{Role: string(m.Role), Content: m.Content})
	}
	return msgs
}

func (c *LocalClient) options(req Request) *localOptions {
	if req.MaxTokens <= 0 {
		return nil
	}
	return &localOptions{NumPredict: req.MaxTokens}
}

// GenerateNative issues one non-streaming chat call offering the tool catalog.
func (c *LocalClient) GenerateNative(ctx context.Context, req Request) (*NativeResult, error) {
	body := localChatRequest{
		Model:    req.Model,
		Messages: c.chatMessages(req),
		Stream:   false,
		Tools:    req.Tools,
		Options:  c.options(req),
	}

	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out localChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := &NativeResult{
		Content: out.Message.Content,
		Usage:   Usage{PromptTokens: out.PromptEvalCount, CompletionTokens: out.EvalCount},
	}
	for _, tc := range out.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, toolcall.RawCall{
			Tool:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

// GenerateStreaming streams a chat completion, forwarding each content chunk.
func (c *LocalClient) GenerateStreaming(ctx context.Context, req Request, onChunk ChunkFunc) (*StreamResult, error) {
	body := localChatRequest{
		Model:    req.Model,
		Messages: c.chatMessages(req),
		Stream:   true,
		Options:  c.options(req),
	}

	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var full strings.Builder
	var usage Usage
	decoder := json.NewDecoder(resp.Body)
	for {
		var chunk localChatResponse
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Message.Content != "" {
			if !utf8.ValidString(chunk.Message.Content) {
				return nil, fmt.Errorf("stream contained invalid utf-8 (non-text bytes)")
			}
			full.WriteString(chunk.Message.Content)
			if onChunk != nil {
				onChunk(chunk.Message.Content)
			}
		}
		if chunk.Done {
			usage = Usage{PromptTokens: chunk.PromptEvalCount, CompletionTokens: chunk.EvalCount}
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	return &StreamResult{Text: full.String(), Usage: usage}, nil
}

type localGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Raw     bool          `json:"raw,omitempty"`
	Options *localOptions `json:"options,omitempty"`
}

type localGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// GenerateRaw streams a plain /api/generate completion with raw mode set,
// bypassing the server-side chat template that chokes on malformed tool-call
// output. Raw mode ignores the system field, so the whole conversation,
// system prompt included, is flattened into the prompt.
func (c *LocalClient) GenerateRaw(ctx context.Context, req Request, onChunk ChunkFunc) (*StreamResult, error) {
	var prompt strings.Builder
	if req.System != "" {
		fmt.Fprintf(&prompt, "system: %s\n\n", req.System)
	}
	for _, m := range req.Messages {
		fmt.Fprintf(&prompt, "%s: %s\n\n", m.Role, m.Content)
	}
	prompt.WriteString("assistant: ")

	body := localGenerateRequest{
		Model:   req.Model,
		Prompt:  prompt.String(),
		Stream:  true,
		Raw:     true,
		Options: c.options(req),
	}

	resp, err := c.post(ctx, "/api/generate", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var full strings.Builder
	var usage Usage
	decoder := json.NewDecoder(resp.Body)
	for {
		var chunk localGenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Response != "" {
			full.WriteString(chunk.Response)
			if onChunk != nil {
				onChunk(chunk.Response)
			}
		}
		if chunk.Done {
			usage = Usage{PromptTokens: chunk.PromptEvalCount, CompletionTokens: chunk.EvalCount}
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	return &StreamResult{Text: full.String(), Usage: usage}, nil
}

// Ping checks backend reachability.
func (c *LocalClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend error %d", resp.StatusCode)
	}
	return nil
}

func (c *LocalClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, classifyBackendError(resp.StatusCode, string(raw))
	}
	return resp, nil
}
