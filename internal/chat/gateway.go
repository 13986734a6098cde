package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/avesely/opsdeck/internal/identity"
	"github.com/avesely/opsdeck/internal/store"
)

// Gateway handles WebSocket chat connections. Each connection owns one
// session and at most one in-flight turn.
type Gateway struct {
	sessions      *Registry
	orch          *Orchestrator
	limiter       *RateLimiter
	repo          store.Repository
	allowedOrigin string
	isDev         bool
}

// NewGateway creates a chat WebSocket gateway.
func NewGateway(sessions *Registry, orch *Orchestrator, limiter *RateLimiter, repo store.Repository, allowedOrigin string, isDev bool) *Gateway {
	return &Gateway{
		sessions:      sessions,
		orch:          orch,
		limiter:       limiter,
		repo:          repo,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsEmitter serializes outbound events onto one connection. Writes use
// context.Background() because the library tracks connection state itself;
// the connection context only gates whether we bother trying.
type wsEmitter struct {
	conn *websocket.Conn
	ctx  context.Context
	mu   sync.Mutex
}

func (e *wsEmitter) Emit(ev Event) {
	if e.ctx.Err() != nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal chat event", "error", err, "type", ev.Type)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err)
	}
}

// connState tracks the single in-flight turn of one connection.
type connState struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// begin registers a new turn's cancel handle; returns false when a turn is
// already in flight.
func (c *connState) begin(cancel context.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return false
	}
	c.cancel = cancel
	return true
}

func (c *connState) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = nil
}

func (c *connState) cancelTurn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("Chat connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !g.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	// A hijacked request's context does not end when the client drops the
	// socket, so the connection context must be cancelled explicitly before
	// waiting; otherwise an in-flight turn keeps streaming against a dead
	// socket and parks this handler until the backend finishes.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	connID := uuid.NewString()
	sess := g.sessions.GetOrCreate(connID)
	defer g.sessions.Remove(connID)

	emitter := &wsEmitter{conn: ws, ctx: ctx}
	state := &connState{}
	var turns sync.WaitGroup

	g.readLoop(ctx, ws, emitter, sess, state, &turns, userID, sessionID)
	cancel()
	turns.Wait()
	slog.Info("Chat connection ended", "user_id", userID, "conn_id", connID)
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if g.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || g.allowedOrigin == "*" {
		return true
	}
	if origin == g.allowedOrigin {
		return true
	}
	slog.Warn("Chat origin rejected", "origin", origin, "allowed", g.allowedOrigin)
	return false
}

func (g *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, emitter *wsEmitter, sess *Session, state *connState, turns *sync.WaitGroup, userID, sessionID string) {
	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			emitter.Emit(Event{Type: EventError, Message: "invalid message format"})
			continue
		}

		switch msg.Type {
		case EventMessage:
			g.handleMessage(ctx, emitter, sess, state, turns, userID, sessionID, msg)
		case EventCancel:
			if state.cancelTurn() {
				slog.Info("Turn cancel requested", "user_id", userID)
			}
		case EventClear:
			sess.Clear()
			emitter.Emit(Event{Type: EventCleared})
		default:
			emitter.Emit(Event{Type: EventError, Message: "unknown event type"})
		}

		g.touchLastSeen(userID)
	}
}

func (g *Gateway) handleMessage(ctx context.Context, emitter *wsEmitter, sess *Session, state *connState, turns *sync.WaitGroup, userID, sessionID string, msg inboundMessage) {
	if !g.limiter.Allow(userID) {
		slog.Warn("Chat message rate limited", "user_id", userID)
		emitter.Emit(Event{Type: EventError, Message: "rate limit exceeded, slow down"})
		return
	}

	turnCtx, cancelTurn := context.WithCancel(ctx)
	if !state.begin(cancelTurn) {
		cancelTurn()
		emitter.Emit(Event{Type: EventError, Message: "a response is already in progress"})
		return
	}

	turns.Add(1)
	go func() {
		defer turns.Done()
		defer cancelTurn()
		defer state.finish()
		g.orch.RunTurn(turnCtx, sess, emitter, TurnInput{
			Text:      msg.Text,
			Context:   msg.Context,
			Model:     msg.Model,
			SessionID: sessionID,
		})
	}()
}

// touchLastSeen updates activity asynchronously so a slow database never
// stalls the read loop.
func (g *Gateway) touchLastSeen(userID string) {
	if g.repo == nil || userID == "" {
		return
	}
	go func() {
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.repo.UpdateLastSeen(updateCtx, userID, time.Now()); err != nil {
			slog.Warn("Failed to update last seen", "error", err)
		}
	}()
}
