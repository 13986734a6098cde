package toolcall

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// RunFunc executes one tool invocation.
type RunFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool describes one callable capability exposed to the model.
type Tool struct {
	Name        string
	Description string
	// Schema is the JSON-schema parameter description offered to backends
	// with native tool support.
	Schema map[string]any
	Run    RunFunc
}

// Registry holds the available tools and routes call batches to them.
// It is safe for concurrent use; tools are registered at startup and the
// set does not change afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name replaces the earlier
// entry.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Schemas returns native-call schemas for every registered tool, sorted by
// name for deterministic prompt and request construction.
func (r *Registry) Schemas() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.sortedNamesLocked()
	schemas := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		schemas = append(schemas, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Schema,
			},
		})
	}
	return schemas
}

// CatalogText renders a human-readable tool catalog for prompt injection.
func (r *Registry) CatalogText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.sortedNamesLocked()
	if len(names) == 0 {
		return "No tools are currently available."
	}

	var b strings.Builder
	for _, name := range names {
		t := r.tools[name]
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Registry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Route executes a batch of calls and returns one Result per call, in call
// order. Individual tools run concurrently; failures are reported per call
// and never abort the batch.
func (r *Registry) Route(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call Call) {
			defer wg.Done()
			results[i] = r.execute(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (r *Registry) execute(ctx context.Context, call Call) Result {
	r.mu.RLock()
	tool, ok := r.tools[call.Tool]
	r.mu.RUnlock()

	if !ok {
		return Result{Tool: call.Tool, Success: false, Error: fmt.Sprintf("unknown tool %q", call.Tool)}
	}

	start := time.Now()
	data, err := tool.Run(ctx, call.Arguments)
	if err != nil {
		slog.Warn("Tool execution failed", "tool", call.Tool, "error", err, "duration", time.Since(start))
		return Result{Tool: call.Tool, Success: false, Error: err.Error()}
	}

	slog.Debug("Tool executed", "tool", call.Tool, "duration", time.Since(start))
	return Result{Tool: call.Tool, Success: true, Data: data}
}
