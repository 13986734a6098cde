package infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/avesely/opsdeck/internal/config"
	"github.com/avesely/opsdeck/internal/toolcall"
)

// RegisterTools registers the container observation tools, honoring per-tool
// enablement from the tool policy.
func RegisterTools(reg *toolcall.Registry, obs *Observer, policy *config.ToolPolicy) {
	register := func(t toolcall.Tool) {
		if policy != nil && !policy.ToolEnabled(t.Name) {
			return
		}
		reg.Register(t)
	}

	register(toolcall.Tool{
		Name:        "list_containers",
		Description: "List all containers on the host with name, image, state, and published ports.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			return obs.ListContainers(ctx)
		},
	})

	register(toolcall.Tool{
		Name:        "container_logs",
		Description: "Fetch the log tail of a container by name or ID. Optional 'tail' sets the number of lines.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"container": map[string]any{
					"type":        "string",
					"description": "Container name or ID",
				},
				"tail": map[string]any{
					"type":        "integer",
					"description": "Number of trailing log lines to fetch",
				},
			},
			"required": []string{"container"},
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			id, err := stringArg(args, "container")
			if err != nil {
				return nil, err
			}
			return obs.Logs(ctx, id, intArg(args, "tail"))
		},
	})

	register(toolcall.Tool{
		Name:        "container_metrics",
		Description: "Sample CPU, memory, and PID usage of a container by name or ID.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"container": map[string]any{
					"type":        "string",
					"description": "Container name or ID",
				},
			},
			"required": []string{"container"},
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			id, err := stringArg(args, "container")
			if err != nil {
				return nil, err
			}
			return obs.Metrics(ctx, id)
		},
	})

	register(toolcall.Tool{
		Name:        "inspect_container",
		Description: "Inspect a container's configuration, state, health, and restart policy.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"container": map[string]any{
					"type":        "string",
					"description": "Container name or ID",
				},
			},
			"required": []string{"container"},
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			id, err := stringArg(args, "container")
			if err != nil {
				return nil, err
			}
			return obs.Inspect(ctx, id)
		},
	})

	register(toolcall.Tool{
		Name:        "list_endpoints",
		Description: "List published port mappings across running containers.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			return obs.Endpoints(ctx)
		},
	})

	register(toolcall.Tool{
		Name:        "run_command",
		Description: "Run a read-only diagnostic command inside a container. Only allowlisted commands are permitted; no shell operators.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"container": map[string]any{
					"type":        "string",
					"description": "Container name or ID",
				},
				"command": map[string]any{
					"type":        "string",
					"description": "Command line to execute, e.g. 'ps aux'",
				},
			},
			"required": []string{"container", "command"},
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			id, err := stringArg(args, "container")
			if err != nil {
				return nil, err
			}
			cmd, err := stringArg(args, "command")
			if err != nil {
				return nil, err
			}
			return obs.RunCommand(ctx, id, cmd)
		},
	})
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return strings.TrimSpace(s), nil
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}
