package llm

import (
	"bufio"
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

// CustomClient talks to an OpenAI-compatible /v1/chat/completions backend.
// It has no raw completion mode; recoverable parse failures fall back to the
// tools-disabled retry instead.
type CustomClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCustomClient creates a client for an OpenAI-compatible endpoint.
func NewCustomClient(endpoint, apiKey string) *CustomClient {
	return &CustomClient{
		baseURL: strings.TrimRight(endpoint, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (c *CustomClient) SupportsNativeTools() bool   { return true }
func (c *CustomClient) SupportsRawCompletion() bool { return false }

type customMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type customRequest struct {
	Model     string           `json:"model"`
	Messages  []customMessage  `json:"messages"`
	MaxTokens int              `json:"max_tokens,omitempty"`
	Stream    bool             `json:"stream"`
	Tools     []map[string]any `json:"tools,omitempty"`
}

type customToolCall struct {
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type customResponse struct {
	Choices []struct {
		Message struct {
			Content   string           `json:"content"`
			ToolCalls []customToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type customStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *CustomClient) chatMessages(req Request) []customMessage {
	msgs := make([]customMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, customMessage{Role: string(domain.RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, customMessage{Role: string(m.Role), Content: m.Content})
	}
	return msgs
}

// GenerateNative issues one non-streaming call offering the tool catalog.
func (c *CustomClient) GenerateNative(ctx context.Context, req Request) (*NativeResult, error) {
	body := customRequest{
		Model:     req.Model,
		Messages:  c.chatMessages(req),
		MaxTokens: req.MaxTokens,
		Stream:    false,
		Tools:     req.Tools,
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out customResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("backend returned no choices")
	}

	choice := out.Choices[0]
	result := &NativeResult{
		Content: choice.Message.Content,
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		// Arguments arrive as a JSON-encoded string on this wire format.
		result.ToolCalls = append(result.ToolCalls, toolcall.RawCall{
			Tool:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

// GenerateStreaming streams a chat completion over server-sent events.
func (c *CustomClient) GenerateStreaming(ctx context.Context, req Request, onChunk ChunkFunc) (*StreamResult, error) {
	body := customRequest{
		Model:     req.Model,
		Messages:  c.chatMessages(req),
		MaxTokens: req.MaxTokens,
		Stream:    true,
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var full strings.Builder
	var usage Usage
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk customStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Usage != nil {
			usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if !utf8.ValidString(delta) {
				return nil, fmt.Errorf("stream contained invalid utf-8 (non-text bytes)")
			}
			full.WriteString(delta)
			if onChunk != nil {
				onChunk(delta)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	return &StreamResult{Text: full.String(), Usage: usage}, nil
}

// GenerateRaw is unsupported on this backend.
func (c *CustomClient) GenerateRaw(ctx context.Context, req Request, onChunk ChunkFunc) (*StreamResult, error) {
	return nil, ErrRawUnsupported
}

// Ping checks backend reachability.
func (c *CustomClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("backend error %d", resp.StatusCode)
	}
	return nil
}

func (c *CustomClient) post(ctx context.Context, body customRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

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
