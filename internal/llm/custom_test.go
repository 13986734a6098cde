package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avesely/opsdeck/internal/domain"
)

func TestCustomGenerateStreamingSSE(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}],\"usage\":{\"prompt_tokens\":8,\"completion_tokens\":2}}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := NewCustomClient(srv.URL, "secret")
	var chunks []string
	result, err := c.GenerateStreaming(context.Background(), Request{
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
		Model:    "test",
	}, func(text string) { chunks = append(chunks, text) })
	if err != nil {
		t.Fatalf("GenerateStreaming: %v", err)
	}
	if result.Text != "Hi there" {
		t.Errorf("text = %q", result.Text)
	}
	if len(chunks) != 2 {
		t.Errorf("chunks = %v", chunks)
	}
	if result.Usage.PromptTokens != 8 {
		t.Errorf("usage = %+v", result.Usage)
	}
}

func TestCustomGenerateNativeStringArguments(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req customRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("native call must not stream")
		}

		resp := `{"choices":[{"message":{"content":"","tool_calls":[{"function":{"name":"container_logs","arguments":"{\"container\":\"web\"}"}}]}}],"usage":{"prompt_tokens":20,"completion_tokens":4}}`
		w.Write([]byte(resp))
	}))
	defer srv.Close()

	c := NewCustomClient(srv.URL, "secret")
	result, err := c.GenerateNative(context.Background(), Request{
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "logs"}},
		Model:    "test",
	})
	if err != nil {
		t.Fatalf("GenerateNative: %v", err)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Tool != "container_logs" {
		t.Fatalf("tool calls = %+v", result.ToolCalls)
	}
	if _, ok := result.ToolCalls[0].Arguments.(string); !ok {
		t.Error("string-encoded arguments must be preserved for normalization")
	}
}

func TestCustomHasNoRawMode(t *testing.T) {
	t.Parallel()

	c := NewCustomClient("http://example.invalid", "k")
	if c.SupportsRawCompletion() {
		t.Error("custom backend must not claim raw support")
	}
	_, err := c.GenerateRaw(context.Background(), Request{}, nil)
	if !errors.Is(err, ErrRawUnsupported) {
		t.Errorf("err = %v", err)
	}
}
