// Package infra provides read-oriented access to the local Docker
// infrastructure: container listings, logs, metrics, port mappings, and a
// tightly allowlisted in-container command runner.
package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/avesely/opsdeck/internal/config"
)

const (
	defaultLogTail    = 100
	maxLogTail        = 500
	execOutputCap     = 64 * 1024
	commandTimeoutDef = 10 * time.Second
)

// ContainerSummary is a trimmed view of one container.
type ContainerSummary struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Image  string   `json:"image"`
	State  string   `json:"state"`
	Status string   `json:"status"`
	Ports  []string `json:"ports,omitempty"`
}

// ContainerMetrics is a one-shot resource usage sample.
type ContainerMetrics struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsage   uint64  `json:"memory_usage_bytes"`
	MemoryLimit   uint64  `json:"memory_limit_bytes"`
	MemoryPercent float64 `json:"memory_percent"`
	PIDs          uint64  `json:"pids"`
}

// Endpoint is one published port mapping.
type Endpoint struct {
	Container string `json:"container"`
	Protocol  string `json:"protocol"`
	Private   uint16 `json:"private_port"`
	Public    uint16 `json:"public_port,omitempty"`
	HostIP    string `json:"host_ip,omitempty"`
}

// CommandResult is the outcome of an allowlisted in-container command.
type CommandResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// Observer provides read access to Docker infrastructure.
type Observer struct {
	cli    *client.Client
	policy *config.ToolPolicy
}

// NewObserver creates a Docker-backed observer.
func NewObserver(policy *config.ToolPolicy) (*Observer, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	slog.Info("Docker observer initialized")
	return &Observer{cli: cli, policy: policy}, nil
}

// Ping checks Docker daemon reachability.
func (o *Observer) Ping(ctx context.Context) error {
	if _, err := o.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	return nil
}

// ListContainers returns summaries for all containers, running first.
func (o *Observer) ListContainers(ctx context.Context) ([]ContainerSummary, error) {
	list, err := o.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	summaries := make([]ContainerSummary, 0, len(list))
	for _, c := range list {
		s := ContainerSummary{
			ID:     shortID(c.ID),
			Name:   primaryName(c.Names),
			Image:  c.Image,
			State:  string(c.State),
			Status: c.Status,
		}
		for _, p := range c.Ports {
			if p.PublicPort > 0 {
				s.Ports = append(s.Ports, fmt.Sprintf("%d->%d/%s", p.PublicPort, p.PrivatePort, p.Type))
			} else {
				s.Ports = append(s.Ports, fmt.Sprintf("%d/%s", p.PrivatePort, p.Type))
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// Logs fetches the tail of a container's combined stdout/stderr. The tail
// size is capped by the tool policy.
func (o *Observer) Logs(ctx context.Context, containerID string, tail int) (string, error) {
	if tail <= 0 {
		tail = defaultLogTail
	}
	limit := maxLogTail
	if o.policy != nil && o.policy.LogTailLimit > 0 {
		limit = o.policy.LogTailLimit
	}
	if tail > limit {
		tail = limit
	}

	inspect, err := o.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("container %q not found", containerID)
		}
		return "", fmt.Errorf("inspect container: %w", err)
	}

	rc, err := o.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
		Timestamps: true,
	})
	if err != nil {
		return "", fmt.Errorf("fetch logs: %w", err)
	}
	defer rc.Close()

	if inspect.Config != nil && inspect.Config.Tty {
		raw, err := io.ReadAll(io.LimitReader(rc, execOutputCap))
		if err != nil {
			return "", fmt.Errorf("read logs: %w", err)
		}
		return string(raw), nil
	}

	// Non-TTY log streams are multiplexed and need demuxing.
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return "", fmt.Errorf("demux logs: %w", err)
	}
	if stderr.Len() == 0 {
		return stdout.String(), nil
	}
	return stdout.String() + stderr.String(), nil
}

// Metrics samples one-shot resource usage for a container.
func (o *Observer) Metrics(ctx context.Context, containerID string) (*ContainerMetrics, error) {
	resp, err := o.cli.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container %q not found", containerID)
		}
		return nil, fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}

	m := &ContainerMetrics{
		ID:          shortID(containerID),
		Name:        strings.TrimPrefix(stats.Name, "/"),
		MemoryUsage: stats.MemoryStats.Usage,
		MemoryLimit: stats.MemoryStats.Limit,
		PIDs:        stats.PidsStats.Current,
	}
	m.CPUPercent = cpuPercent(&stats)
	if m.MemoryLimit > 0 {
		m.MemoryPercent = float64(m.MemoryUsage) / float64(m.MemoryLimit) * 100.0
	}
	return m, nil
}

// cpuPercent computes CPU usage the way the docker CLI does: delta of
// container CPU over delta of system CPU, scaled by online CPUs.
func cpuPercent(stats *container.StatsResponse) float64 {
	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)
	if cpuDelta <= 0 || sysDelta <= 0 {
		return 0
	}
	online := float64(stats.CPUStats.OnlineCPUs)
	if online == 0 {
		online = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
	}
	if online == 0 {
		online = 1
	}
	return cpuDelta / sysDelta * online * 100.0
}

// Inspect returns a trimmed inspection view of a container.
func (o *Observer) Inspect(ctx context.Context, containerID string) (map[string]any, error) {
	inspect, err := o.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container %q not found", containerID)
		}
		return nil, fmt.Errorf("inspect container: %w", err)
	}

	out := map[string]any{
		"id":   shortID(inspect.ID),
		"name": strings.TrimPrefix(inspect.Name, "/"),
	}
	if inspect.Config != nil {
		out["image"] = inspect.Config.Image
		out["cmd"] = strings.Join(inspect.Config.Cmd, " ")
		out["env_count"] = len(inspect.Config.Env)
	}
	if inspect.State != nil {
		out["state"] = inspect.State.Status
		out["started_at"] = inspect.State.StartedAt
		out["exit_code"] = inspect.State.ExitCode
		out["restart_count"] = inspect.RestartCount
		if inspect.State.Health != nil {
			out["health"] = inspect.State.Health.Status
		}
	}
	if inspect.HostConfig != nil {
		out["restart_policy"] = string(inspect.HostConfig.RestartPolicy.Name)
	}
	return out, nil
}

// Endpoints lists published port mappings across running containers.
func (o *Observer) Endpoints(ctx context.Context) ([]Endpoint, error) {
	list, err := o.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	var endpoints []Endpoint
	for _, c := range list {
		name := primaryName(c.Names)
		for _, p := range c.Ports {
			endpoints = append(endpoints, Endpoint{
				Container: name,
				Protocol:  p.Type,
				Private:   p.PrivatePort,
				Public:    p.PublicPort,
				HostIP:    p.IP,
			})
		}
	}
	return endpoints, nil
}

// RunCommand executes an allowlisted read-only command inside a container.
// Only the first token of the command is checked against the allowlist; the
// command runs without a shell so operators cannot chain past it.
func (o *Observer) RunCommand(ctx context.Context, containerID, command string) (*CommandResult, error) {
	if o.policy == nil || !o.policy.CommandAllowed(command) {
		return nil, fmt.Errorf("command not allowed by tool policy")
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	timeout := commandTimeoutDef
	if o.policy.CommandTimeoutSeconds > 0 {
		timeout = time.Duration(o.policy.CommandTimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execConfig := container.ExecOptions{
		Cmd:          fields,
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := o.cli.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container %q not found", containerID)
		}
		return nil, fmt.Errorf("create exec: %w", err)
	}

	attach, err := o.cli.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("attach exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, io.LimitReader(attach.Reader, execOutputCap)); err != nil {
		return nil, fmt.Errorf("read exec output: %w", err)
	}

	inspect, err := o.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("inspect exec: %w", err)
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += stderr.String()
	}
	return &CommandResult{ExitCode: inspect.ExitCode, Output: output}, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func primaryName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}
