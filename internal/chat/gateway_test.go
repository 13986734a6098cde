package chat

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/avesely/opsdeck/internal/config"
	"github.com/avesely/opsdeck/internal/llm"
)

// blockingClient parks GenerateStreaming until its context is cancelled,
// signalling entry and exit so tests can observe turn lifetime.
type blockingClient struct {
	started  chan struct{}
	released chan struct{}
}

func newBlockingClient() *blockingClient {
	return &blockingClient{
		started:  make(chan struct{}, 1),
		released: make(chan struct{}),
	}
}

func (c *blockingClient) SupportsNativeTools() bool   { return false }
func (c *blockingClient) SupportsRawCompletion() bool { return false }
func (c *blockingClient) Ping(context.Context) error  { return nil }

func (c *blockingClient) GenerateNative(context.Context, llm.Request) (*llm.NativeResult, error) {
	return nil, fmt.Errorf("native tools not supported")
}

func (c *blockingClient) GenerateRaw(context.Context, llm.Request, llm.ChunkFunc) (*llm.StreamResult, error) {
	return nil, llm.ErrRawUnsupported
}

func (c *blockingClient) GenerateStreaming(ctx context.Context, req llm.Request, onChunk llm.ChunkFunc) (*llm.StreamResult, error) {
	select {
	case c.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	close(c.released)
	return nil, ctx.Err()
}

func TestClientDisconnectCancelsInFlightTurn(t *testing.T) {
	t.Parallel()

	client := newBlockingClient()
	cfg := config.LLMConfig{
		Backend:           config.BackendLocal,
		Endpoint:          "http://localhost:11434",
		Model:             "test-model",
		MaxTokens:         256,
		MaxToolIterations: 3,
	}
	orch := NewOrchestrator(fakeGuard{}, fakeSnapshot{}, newFakeRouter(), client, &recordingSanitizer{}, &collectSink{}, cfg)
	gw := NewGateway(NewRegistry(), orch, NewRateLimiter(10, time.Minute), nil, "", true)

	srv := httptest.NewServer(gw)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	payload := []byte(`{"type":"chat:message","text":"what is running?"}`)
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-client.started:
	case <-time.After(2 * time.Second):
		t.Fatal("turn never reached the generation backend")
	}

	// Dropping the socket must cancel the in-flight turn; the backend call
	// is parked on its context and only returns once that happens.
	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case <-client.released:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight turn was not cancelled on client disconnect")
	}
}
