// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend kinds for the generation client.
const (
	BackendLocal  = "local"
	BackendCustom = "custom"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	LLM         LLMConfig
	RateLimit   RateLimitConfig
	Trace       TraceConfig
	// ToolPolicyPath points at an optional YAML file controlling tool
	// enablement and the command allowlist.
	ToolPolicyPath string
}

// LLMConfig describes the generation backend. It is snapshotted once per
// chat turn; changes do not apply to turns already in flight.
type LLMConfig struct {
	Backend           string // "local" (Ollama-style) or "custom" (OpenAI-style)
	Endpoint          string
	APIKey            string
	Model             string
	MaxTokens         int
	MaxToolIterations int
}

// RateLimitConfig controls per-user chat message throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// TraceConfig controls turn trace recording.
type TraceConfig struct {
	QueueSize int
	Retention time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/opsdeck.db"),
		LLM: LLMConfig{
			Backend:           strings.ToLower(getEnv("LLM_BACKEND", BackendLocal)),
			Endpoint:          getEnv("LLM_ENDPOINT", "http://localhost:11434"),
			APIKey:            getEnv("LLM_API_KEY", ""),
			Model:             getEnv("LLM_MODEL", "qwen2.5:14b"),
			MaxTokens:         getEnvInt("LLM_MAX_TOKENS", 2048),
			MaxToolIterations: getEnvInt("LLM_MAX_TOOL_ITERATIONS", 5),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Trace: TraceConfig{
			QueueSize: getEnvInt("TRACE_QUEUE_SIZE", 1000),
			Retention: getEnvDuration("TRACE_RETENTION", 7*24*time.Hour),
		},
		ToolPolicyPath: getEnv("TOOL_POLICY_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.LLM.Backend != BackendLocal && c.LLM.Backend != BackendCustom {
		return fmt.Errorf("LLM_BACKEND must be %q or %q, got %q", BackendLocal, BackendCustom, c.LLM.Backend)
	}
	if c.LLM.Endpoint == "" {
		return fmt.Errorf("LLM_ENDPOINT cannot be empty")
	}
	if c.LLM.Backend == BackendCustom && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required for the custom backend")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL cannot be empty")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be > 0")
	}
	if c.LLM.MaxToolIterations <= 0 {
		return fmt.Errorf("LLM_MAX_TOOL_ITERATIONS must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.Trace.QueueSize <= 0 {
		return fmt.Errorf("TRACE_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
