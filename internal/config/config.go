package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the research workflow service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	ResearchBaseURL        string
	ResearchWSURL          string
	ResearchRequestTimeout time.Duration

	PlanAdjustDebounce  time.Duration
	WorkflowIdleTimeout time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "lexflow"),
		AllowAnyOrigin:   false,
		ResearchBaseURL:  stringsTrimSpace("RESEARCH_BASE_URL"),
		ResearchWSURL:    stringsTrimSpace("RESEARCH_WS_URL"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),

		ShutdownTimeout:        15 * time.Second,
		ResearchRequestTimeout: 30 * time.Second,
		PlanAdjustDebounce:     500 * time.Millisecond,
		WorkflowIdleTimeout:    30 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ResearchRequestTimeout, err = durationFromEnv("RESEARCH_REQUEST_TIMEOUT", cfg.ResearchRequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PlanAdjustDebounce, err = durationFromEnv("PLAN_ADJUST_DEBOUNCE", cfg.PlanAdjustDebounce)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkflowIdleTimeout, err = durationFromEnv("WORKFLOW_IDLE_TIMEOUT", cfg.WorkflowIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.ResearchRequestTimeout < time.Second {
		return Config{}, fmt.Errorf("RESEARCH_REQUEST_TIMEOUT must be at least 1s")
	}
	if cfg.PlanAdjustDebounce <= 0 {
		return Config{}, fmt.Errorf("PLAN_ADJUST_DEBOUNCE must be positive")
	}
	if cfg.WorkflowIdleTimeout < time.Minute {
		return Config{}, fmt.Errorf("WORKFLOW_IDLE_TIMEOUT must be at least 1m")
	}
	if cfg.ResearchBaseURL != "" && cfg.ResearchWSURL == "" {
		cfg.ResearchWSURL = deriveWSURL(cfg.ResearchBaseURL)
	}

	return cfg, nil
}

// deriveWSURL maps an http(s) base URL onto its ws(s) counterpart so the
// stream endpoint works without separate configuration.
func deriveWSURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
