package infra

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const snapshotTimeout = 5 * time.Second

// Snapshot renders a short textual overview of the current infrastructure
// for prompt injection. Fail-soft: any error yields a placeholder note so
// prompt composition never fails on a flaky daemon.
func (o *Observer) Snapshot(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	containers, err := o.ListContainers(ctx)
	if err != nil {
		slog.Warn("Infrastructure snapshot unavailable", "error", err)
		return "Infrastructure context unavailable."
	}
	return formatSnapshot(containers)
}

func formatSnapshot(containers []ContainerSummary) string {
	if len(containers) == 0 {
		return "No containers are present on this host."
	}

	running := 0
	for _, c := range containers {
		if c.State == "running" {
			running++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Containers on this host (%d total, %d running):\n", len(containers), running)
	for _, c := range containers {
		fmt.Fprintf(&b, "- %s (%s): %s, %s", c.Name, c.Image, c.State, c.Status)
		if len(c.Ports) > 0 {
			fmt.Fprintf(&b, ", ports %s", strings.Join(c.Ports, " "))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
