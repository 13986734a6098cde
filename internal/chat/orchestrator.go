package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avesely/opsdeck/internal/config"
	"github.com/avesely/opsdeck/internal/domain"
	"github.com/avesely/opsdeck/internal/guard"
	"github.com/avesely/opsdeck/internal/llm"
	"github.com/avesely/opsdeck/internal/toolcall"
)

// Guard screens inbound messages before any generation call.
type Guard interface {
	Check(text string) guard.Verdict
}

// SnapshotSource provides the infrastructure overview for prompt composition.
// Implementations are fail-soft and return a placeholder on error.
type SnapshotSource interface {
	Snapshot(ctx context.Context) string
}

// ToolRouter exposes the tool catalog and executes call batches.
type ToolRouter interface {
	Route(ctx context.Context, calls []toolcall.Call) []toolcall.Result
	Schemas() []map[string]any
	CatalogText() string
	Has(name string) bool
}

// Sanitizer cleans final answer text. Applied exactly once per turn.
type Sanitizer interface {
	Sanitize(text string) string
}

// TraceSink records finished turn traces.
type TraceSink interface {
	Record(rec domain.TraceRecord)
}

// TurnInput is one inbound user message with its optional UI context and
// per-turn model override.
type TurnInput struct {
	Text      string
	Context   map[string]any
	Model     string
	SessionID string
}

// Orchestrator drives one user message through guard, prompt composition,
// the generation/tool loop, degradation, and finalization. One call to
// RunTurn handles exactly one turn; the struct itself is stateless across
// turns and safe for concurrent use by independent connections.
type Orchestrator struct {
	guard     Guard
	snapshots SnapshotSource
	tools     ToolRouter
	client    llm.Client
	sanitizer Sanitizer
	traces    TraceSink
	llmCfg    config.LLMConfig
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(g Guard, snapshots SnapshotSource, tools ToolRouter, client llm.Client, sanitizer Sanitizer, traces TraceSink, llmCfg config.LLMConfig) *Orchestrator {
	return &Orchestrator{
		guard:     g,
		snapshots: snapshots,
		tools:     tools,
		client:    client,
		sanitizer: sanitizer,
		traces:    traces,
		llmCfg:    llmCfg,
	}
}

// turnState is the transient working state of one turn.
type turnState struct {
	prompts             Prompts
	messages            []domain.ChatMessage
	toolsEnabled        bool
	plainRetryAttempted bool
	rawRetryAttempted   bool
	iteration           int
	toolResults         []toolcall.Result
	finalText           string
	usage               llm.Usage
}

type nativeKind int

const (
	nativeToolCalls nativeKind = iota
	nativePlain
	nativeHallucinated
)

type nativeOutcome struct {
	kind    nativeKind
	calls   []toolcall.Call
	content string
}

type roundKind int

const (
	// roundToolCalls means a tool batch ran; the loop continues.
	roundToolCalls roundKind = iota
	// roundFinal carries the turn's final answer text.
	roundFinal
	// roundRetry re-runs the same round without consuming an iteration.
	roundRetry
	// roundExhausted means the retry budget is spent with nothing usable;
	// finalization substitutes a fallback answer.
	roundExhausted
)

type roundOutcome struct {
	kind    roundKind
	content string
}

// RunTurn processes one user message end to end. Every turn that passes the
// guard terminates with exactly one of chat:end, chat:error, or
// chat:cancelled.
func (o *Orchestrator) RunTurn(ctx context.Context, sess *Session, emit Emitter, in TurnInput) {
	cfg := o.llmCfg
	if in.Model != "" {
		cfg.Model = in.Model
	}
	started := time.Now()
	traceID := uuid.NewString()

	verdict := o.guard.Check(in.Text)
	if verdict.Blocked {
		slog.Info("Message blocked by input guard",
			"session_id", sess.ID,
			"reason", verdict.Reason,
			"score", verdict.Score)
		emit.Emit(Event{Type: EventBlocked, Reason: verdict.Reason, Score: verdict.Score})
		return
	}
	emit.Emit(Event{Type: EventStart})

	snapshot := o.snapshots.Snapshot(ctx)
	prompts := ComposePrompts(in.Context, snapshot, o.tools.CatalogText())

	historyMark := sess.Len()
	sess.Append(domain.ChatMessage{Role: domain.RoleUser, Content: in.Text})

	st := &turnState{
		prompts:      prompts,
		messages:     sess.LastN(historySuffixLimit),
		toolsEnabled: true,
	}

	err := o.drive(ctx, cfg, st, emit)
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		// Roll the session back to its pre-turn state; the partial
		// assistant text is never committed.
		sess.TruncateTo(historyMark)
		emit.Emit(Event{Type: EventCancelled})
		slog.Info("Turn cancelled", "session_id", sess.ID)
		return
	}
	if err != nil {
		msg := err.Error()
		if llm.IsEncoding(err) {
			msg = "The model returned non-text data. Check that the configured endpoint is a chat completion endpoint and that the model and token settings match it."
		}
		slog.Error("Turn failed", "session_id", sess.ID, "error", err)
		emit.Emit(Event{Type: EventError, Message: msg})
		o.record(domain.TraceRecord{
			TraceID:          traceID,
			SessionID:        in.SessionID,
			Model:            cfg.Model,
			PromptTokens:     st.usage.PromptTokens,
			CompletionTokens: st.usage.CompletionTokens,
			LatencyMS:        time.Since(started).Milliseconds(),
			Status:           domain.TraceStatusError,
			UserQueryPreview: domain.Preview(in.Text),
			ResponsePreview:  domain.Preview(msg),
			CreatedAt:        time.Now(),
		})
		return
	}

	final := st.finalText
	if strings.TrimSpace(final) == "" {
		if len(st.toolResults) > 0 {
			final = rawDump(st.toolResults)
		} else {
			final = "I could not generate a response. Please try again."
		}
	}
	final = o.sanitizer.Sanitize(final)

	sess.Append(domain.ChatMessage{Role: domain.RoleAssistant, Content: final})
	emit.Emit(Event{Type: EventEnd, ID: uuid.NewString(), Content: final})

	o.record(domain.TraceRecord{
		TraceID:          traceID,
		SessionID:        in.SessionID,
		Model:            cfg.Model,
		PromptTokens:     st.usage.PromptTokens,
		CompletionTokens: st.usage.CompletionTokens,
		LatencyMS:        time.Since(started).Milliseconds(),
		Status:           domain.TraceStatusSuccess,
		UserQueryPreview: domain.Preview(in.Text),
		ResponsePreview:  domain.Preview(final),
		CreatedAt:        time.Now(),
	})
}

// drive runs the native attempt, the streaming loop, and the degradation
// chain. It sets st.finalText on success and returns an error only for
// fatal failures or cancellation.
func (o *Orchestrator) drive(ctx context.Context, cfg config.LLMConfig, st *turnState, emit Emitter) error {
	if st.toolsEnabled && o.client.SupportsNativeTools() {
		outcome, err := o.nativeAttempt(ctx, cfg, st)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			// Best-effort phase: fall through to streaming unmodified.
			slog.Warn("Native tool attempt failed, continuing with streaming", "error", err)
		default:
			switch outcome.kind {
			case nativeToolCalls:
				if err := o.executeBatch(ctx, st, emit, outcome.calls); err != nil {
					return err
				}
			case nativePlain:
				emit.Emit(Event{Type: EventChunk, Content: outcome.content})
				st.finalText = outcome.content
				return nil
			case nativeHallucinated:
				// Tool calling is off for the rest of the turn; the
				// streaming loop runs with the tools-disabled prompt.
				st.toolsEnabled = false
			}
		}
	}

	for st.iteration < cfg.MaxToolIterations {
		outcome, err := o.runRound(ctx, cfg, st, emit)
		if err != nil {
			return err
		}
		switch outcome.kind {
		case roundFinal:
			st.finalText = outcome.content
			return nil
		case roundToolCalls, roundRetry:
			// roundToolCalls advanced st.iteration; roundRetry re-runs
			// the same round number.
		case roundExhausted:
			return nil
		}
	}

	return o.degrade(ctx, cfg, st, emit)
}

// nativeAttempt issues one non-streaming call offering the tool catalog.
// It never counts toward the iteration budget.
func (o *Orchestrator) nativeAttempt(ctx context.Context, cfg config.LLMConfig, st *turnState) (nativeOutcome, error) {
	req := llm.Request{
		System:    st.prompts.WithTools,
		Messages:  st.messages,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Tools:     o.tools.Schemas(),
	}
	result, err := o.client.GenerateNative(ctx, req)
	if err != nil {
		return nativeOutcome{}, err
	}
	o.addUsage(st, result.Usage)

	if len(result.ToolCalls) > 0 {
		return nativeOutcome{kind: nativeToolCalls, calls: toolcall.Normalize(result.ToolCalls)}, nil
	}

	// Some models embed tool-call JSON in content instead of using the
	// native channel; classify that content the same way as streamed text.
	if calls := toolcall.ParseText(result.Content); len(calls) > 0 {
		if countKnown(calls, o.tools.Has) > 0 {
			return nativeOutcome{kind: nativeToolCalls, calls: calls}, nil
		}
		return nativeOutcome{kind: nativeHallucinated}, nil
	}
	if toolcall.LooksLikeFailedToolAttempt(result.Content, o.tools.Has) {
		return nativeOutcome{kind: nativeHallucinated}, nil
	}
	return nativeOutcome{kind: nativePlain, content: result.Content}, nil
}

// runRound streams one completion and classifies its outcome.
func (o *Orchestrator) runRound(ctx context.Context, cfg config.LLMConfig, st *turnState, emit Emitter) (roundOutcome, error) {
	req := llm.Request{
		System:    o.promptFor(st),
		Messages:  st.messages,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}
	onChunk := func(text string) {
		if ctx.Err() != nil {
			return
		}
		emit.Emit(Event{Type: EventChunk, Content: text})
	}

	result, err := o.client.GenerateStreaming(ctx, req, onChunk)
	if err != nil {
		if ctx.Err() != nil {
			return roundOutcome{}, ctx.Err()
		}
		if !llm.IsToolParse(err) {
			return roundOutcome{}, err
		}
		// The backend choked on malformed tool-call output from the model.
		// Retry the same round in raw mode when available, otherwise fall
		// back to a tools-disabled retry.
		if !st.rawRetryAttempted && o.client.SupportsRawCompletion() {
			st.rawRetryAttempted = true
			slog.Warn("Backend tool-call parse failure, retrying round in raw mode", "error", err)
			result, err = o.client.GenerateRaw(ctx, req, onChunk)
			if err != nil {
				if ctx.Err() != nil {
					return roundOutcome{}, ctx.Err()
				}
				return roundOutcome{}, fmt.Errorf("raw mode retry: %w", err)
			}
		} else if st.toolsEnabled {
			st.toolsEnabled = false
			slog.Warn("Backend tool-call parse failure, disabling tools for this turn", "error", err)
			return roundOutcome{kind: roundRetry}, nil
		} else {
			return roundOutcome{}, err
		}
	}
	o.addUsage(st, result.Usage)
	text := result.Text

	if !st.toolsEnabled {
		if strings.TrimSpace(text) != "" {
			return roundOutcome{kind: roundFinal, content: text}, nil
		}
		return o.noToolsRetry(st), nil
	}

	if calls := toolcall.ParseText(text); len(calls) > 0 {
		// The raw tool-call JSON already went out as chunks; tell the
		// client to discard it.
		emit.Emit(Event{Type: EventToolResponsePending})
		if countKnown(calls, o.tools.Has) == 0 {
			return o.noToolsRetry(st), nil
		}
		if err := o.executeBatch(ctx, st, emit, calls); err != nil {
			return roundOutcome{}, err
		}
		return roundOutcome{kind: roundToolCalls}, nil
	}

	if strings.TrimSpace(text) != "" && !toolcall.LooksLikeFailedToolAttempt(text, o.tools.Has) {
		return roundOutcome{kind: roundFinal, content: text}, nil
	}
	if toolcall.LooksLikeFailedToolAttempt(text, o.tools.Has) {
		emit.Emit(Event{Type: EventToolResponsePending})
	}
	return o.noToolsRetry(st), nil
}

// noToolsRetry consumes the single permitted no-tools retry, or reports
// exhaustion when it is already spent. The retry never consumes an
// iteration slot.
func (o *Orchestrator) noToolsRetry(st *turnState) roundOutcome {
	if st.plainRetryAttempted {
		return roundOutcome{kind: roundExhausted}
	}
	st.plainRetryAttempted = true
	st.toolsEnabled = false
	return roundOutcome{kind: roundRetry}
}

// executeBatch runs one tool batch and folds the results into the working
// messages. Consumes one iteration slot.
func (o *Orchestrator) executeBatch(ctx context.Context, st *turnState, emit Emitter, calls []toolcall.Call) error {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Tool
	}
	emit.Emit(Event{Type: EventToolCall, Tools: names, Status: ToolStatusExecuting})

	results := o.tools.Route(ctx, calls)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	emit.Emit(Event{Type: EventToolCall, Tools: names, Status: ToolStatusComplete, Results: results})
	st.toolResults = append(st.toolResults, results...)

	ack, err := json.Marshal(map[string]any{"tool_calls": calls})
	if err != nil {
		ack = []byte("(tool calls)")
	}
	st.messages = append(st.messages,
		domain.ChatMessage{Role: domain.RoleAssistant, Content: string(ack)},
		domain.ChatMessage{Role: domain.RoleSystem, Content: formatResults(results)},
	)
	st.iteration++
	return nil
}

// degrade runs the three-tier fallback after iteration exhaustion:
// a no-tools summarization call, then a raw result dump, then a fixed
// message. All three append a truncation notice naming the configured limit,
// streamed as its own chunk.
func (o *Orchestrator) degrade(ctx context.Context, cfg config.LLMConfig, st *turnState, emit Emitter) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	msgs := make([]domain.ChatMessage, 0, len(st.messages)+1)
	msgs = append(msgs, st.messages...)
	msgs = append(msgs, domain.ChatMessage{
		Role:    domain.RoleSystem,
		Content: "Summarize the tool results gathered so far into a direct answer for the operator. Do not request any more tools.",
	})
	req := llm.Request{
		System:    st.prompts.NoTools,
		Messages:  msgs,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}
	onChunk := func(text string) {
		if ctx.Err() != nil {
			return
		}
		emit.Emit(Event{Type: EventChunk, Content: text})
	}

	var content string
	result, err := o.client.GenerateStreaming(ctx, req, onChunk)
	switch {
	case err == nil && strings.TrimSpace(result.Text) != "":
		o.addUsage(st, result.Usage)
		content = result.Text
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		if err != nil {
			slog.Warn("Degradation summary failed, falling back", "error", err)
		}
		if len(st.toolResults) > 0 {
			content = rawDump(st.toolResults)
		} else {
			content = "I could not complete the request within the tool-call budget."
		}
		emit.Emit(Event{Type: EventChunk, Content: content})
	}

	notice := fmt.Sprintf("\n\n[Response truncated: tool call limit (%d) reached]", cfg.MaxToolIterations)
	emit.Emit(Event{Type: EventChunk, Content: notice})
	st.finalText = content + notice
	return nil
}

func (o *Orchestrator) promptFor(st *turnState) string {
	if st.toolsEnabled {
		return st.prompts.WithTools
	}
	return st.prompts.NoTools
}

func (o *Orchestrator) addUsage(st *turnState, u llm.Usage) {
	st.usage.PromptTokens += u.PromptTokens
	st.usage.CompletionTokens += u.CompletionTokens
}

func (o *Orchestrator) record(rec domain.TraceRecord) {
	if o.traces != nil {
		o.traces.Record(rec)
	}
}

func countKnown(calls []toolcall.Call, has func(string) bool) int {
	n := 0
	for _, c := range calls {
		if has(c.Tool) {
			n++
		}
	}
	return n
}

// formatResults renders a tool batch for injection as a system message.
func formatResults(results []toolcall.Result) string {
	var b strings.Builder
	b.WriteString("Tool results:\n")
	for _, r := range results {
		if r.Success {
			fmt.Fprintf(&b, "### %s\n%s\n", r.Tool, renderData(r.Data))
		} else {
			fmt.Fprintf(&b, "### %s\nerror: %s\n", r.Tool, r.Error)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// rawDump renders tool results verbatim, used when no model summary is
// available.
func rawDump(results []toolcall.Result) string {
	var b strings.Builder
	for _, r := range results {
		if r.Success {
			fmt.Fprintf(&b, "raw data from %s:\n%s\n\n", r.Tool, renderData(r.Data))
		} else {
			fmt.Fprintf(&b, "raw data from %s:\nerror: %s\n\n", r.Tool, r.Error)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderData(data any) string {
	if s, ok := data.(string); ok {
		return s
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(out)
}
