package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avesely/opsdeck/internal/domain"
)

func TestLocalGenerateStreaming(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req localChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("streaming call must set stream=true")
		}
		if req.Messages[0].Role != "system" {
			t.Errorf("first message role = %q", req.Messages[0].Role)
		}

		w.Write([]byte(`{"message":{"role":"assistant","content":"Hello"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":" world"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":12,"eval_count":5}` + "\n"))
	}))
	defer srv.Close()

	c := NewLocalClient(srv.URL)
	var chunks []string
	result, err := c.GenerateStreaming(context.Background(), Request{
		System:   "be brief",
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
		Model:    "test",
	}, func(text string) { chunks = append(chunks, text) })
	if err != nil {
		t.Fatalf("GenerateStreaming: %v", err)
	}
	if result.Text != "Hello world" {
		t.Errorf("text = %q", result.Text)
	}
	if len(chunks) != 2 {
		t.Errorf("chunks = %v", chunks)
	}
	if result.Usage.PromptTokens != 12 || result.Usage.CompletionTokens != 5 {
		t.Errorf("usage = %+v", result.Usage)
	}
}

func TestLocalGenerateNativeToolCalls(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req localChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("native call must set stream=false")
		}
		if len(req.Tools) != 1 {
			t.Errorf("tools = %d, want 1", len(req.Tools))
		}

		resp := `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"list_containers","arguments":{"all":true}}}]},"done":true}`
		w.Write([]byte(resp))
	}))
	defer srv.Close()

	c := NewLocalClient(srv.URL)
	result, err := c.GenerateNative(context.Background(), Request{
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "list"}},
		Model:    "test",
		Tools:    []map[string]any{{"type": "function"}},
	})
	if err != nil {
		t.Fatalf("GenerateNative: %v", err)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Tool != "list_containers" {
		t.Fatalf("tool calls = %+v", result.ToolCalls)
	}
}

func TestLocalGenerateRawFlattensConversation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req localGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.Raw {
			t.Error("raw call must set raw=true to bypass the chat template")
		}
		if req.System != "" {
			t.Errorf("system = %q, raw mode ignores the system field", req.System)
		}
		if !strings.HasPrefix(req.Prompt, "system: sys\n\n") {
			t.Errorf("prompt must carry the system prompt, got %q", req.Prompt)
		}
		if !strings.HasSuffix(req.Prompt, "assistant: ") {
			t.Errorf("prompt must end with the assistant cue, got %q", req.Prompt)
		}

		w.Write([]byte(`{"response":"raw answer","done":false}` + "\n"))
		w.Write([]byte(`{"response":"","done":true}` + "\n"))
	}))
	defer srv.Close()

	c := NewLocalClient(srv.URL)
	result, err := c.GenerateRaw(context.Background(), Request{
		System:   "sys",
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
		Model:    "test",
	}, nil)
	if err != nil {
		t.Fatalf("GenerateRaw: %v", err)
	}
	if result.Text != "raw answer" {
		t.Errorf("text = %q", result.Text)
	}
}

func TestLocalClassifiesToolParseFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "error: failed to parse tool call output", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewLocalClient(srv.URL)
	_, err := c.GenerateStreaming(context.Background(), Request{Model: "test"}, nil)
	if !IsToolParse(err) {
		t.Fatalf("err = %v, want tool-parse classification", err)
	}
}

func TestLocalBinaryStreamIsEncodingError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Gzip magic bytes: what a misconfigured endpoint returning
		// compressed or binary data looks like to the decoder.
		w.Write([]byte{0x1f, 0x8b, 0x08, 0x00, 0xde, 0xad, 0xbe, 0xef})
	}))
	defer srv.Close()

	c := NewLocalClient(srv.URL)
	_, err := c.GenerateStreaming(context.Background(), Request{Model: "test"}, nil)
	if err == nil {
		t.Fatal("expected decode error for binary body")
	}
	if !IsEncoding(err) {
		t.Fatalf("err = %v, want encoding classification", err)
	}
	if IsToolParse(err) {
		t.Fatalf("err = %v, must not classify as tool-parse", err)
	}
}

func TestLocalBackendErrorPassthrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewLocalClient(srv.URL)
	_, err := c.GenerateStreaming(context.Background(), Request{Model: "test"}, nil)
	if err == nil || IsToolParse(err) {
		t.Fatalf("err = %v, want plain backend error", err)
	}
}
