package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadToolPolicyMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"", filepath.Join(t.TempDir(), "nope.yaml")} {
		policy, err := LoadToolPolicy(path)
		if err != nil {
			t.Fatalf("LoadToolPolicy(%q): %v", path, err)
		}
		if !policy.CommandAllowed("ps aux") {
			t.Error("default policy should allow ps")
		}
		if policy.LogTailLimit != 500 {
			t.Errorf("tail limit = %d", policy.LogTailLimit)
		}
	}
}

func TestLoadToolPolicyFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
disabled:
  - run_command
allowed_commands:
  - uptime
log_tail_limit: 100
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	policy, err := LoadToolPolicy(path)
	if err != nil {
		t.Fatalf("LoadToolPolicy: %v", err)
	}
	if policy.ToolEnabled("run_command") {
		t.Error("run_command should be disabled")
	}
	if !policy.ToolEnabled("container_logs") {
		t.Error("unlisted tools remain enabled")
	}
	if policy.CommandAllowed("ps aux") {
		t.Error("ps should not be allowed by the custom allowlist")
	}
	if !policy.CommandAllowed("uptime") {
		t.Error("uptime should be allowed")
	}
	if policy.LogTailLimit != 100 {
		t.Errorf("tail limit = %d", policy.LogTailLimit)
	}
	if policy.CommandTimeoutSeconds != 10 {
		t.Errorf("timeout default not applied: %d", policy.CommandTimeoutSeconds)
	}
}

func TestCommandAllowedChecksFirstTokenOnly(t *testing.T) {
	t.Parallel()

	policy := DefaultToolPolicy()
	if policy.CommandAllowed("rm -rf /") {
		t.Error("rm must not be allowed")
	}
	if policy.CommandAllowed("") {
		t.Error("empty command must not be allowed")
	}
	if !policy.CommandAllowed("cat /etc/hostname") {
		t.Error("cat should be allowed")
	}
}
