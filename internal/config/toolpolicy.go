package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToolPolicy controls which assistant tools are registered and how the
// command tool is constrained. Loaded from an optional YAML file; every
// field has a safe default so a missing file is not an error.
type ToolPolicy struct {
	// Disabled lists tool names that must not be registered.
	Disabled []string `yaml:"disabled"`
	// AllowedCommands is the allowlist for the run_command tool, matched
	// against the first token of the requested command.
	AllowedCommands []string `yaml:"allowed_commands"`
	// LogTailLimit caps the number of log lines a single tool call may fetch.
	LogTailLimit int `yaml:"log_tail_limit"`
	// CommandTimeoutSeconds caps in-container command execution time.
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds"`
}

// DefaultToolPolicy returns the policy used when no file is configured.
func DefaultToolPolicy() *ToolPolicy {
	return &ToolPolicy{
		AllowedCommands:       []string{"whoami", "id", "uname", "ip", "df", "free", "ps", "ss", "ls", "cat", "env", "uptime"},
		LogTailLimit:          500,
		CommandTimeoutSeconds: 10,
	}
}

// LoadToolPolicy reads the tool policy from path. An empty path or a
// missing file yields the default policy.
func LoadToolPolicy(path string) (*ToolPolicy, error) {
	policy := DefaultToolPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return policy, nil
		}
		return nil, fmt.Errorf("read tool policy: %w", err)
	}

	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("parse tool policy %s: %w", path, err)
	}
	if policy.LogTailLimit <= 0 {
		policy.LogTailLimit = DefaultToolPolicy().LogTailLimit
	}
	if policy.CommandTimeoutSeconds <= 0 {
		policy.CommandTimeoutSeconds = DefaultToolPolicy().CommandTimeoutSeconds
	}
	return policy, nil
}

// ToolEnabled reports whether a tool name is allowed by the policy.
func (p *ToolPolicy) ToolEnabled(name string) bool {
	return !slices.Contains(p.Disabled, name)
}

// CommandAllowed reports whether the first token of cmd is allowlisted.
func (p *ToolPolicy) CommandAllowed(cmd string) bool {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return false
	}
	return slices.Contains(p.AllowedCommands, fields[0])
}
