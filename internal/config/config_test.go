package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.PlanAdjustDebounce != 500*time.Millisecond {
		t.Fatalf("PlanAdjustDebounce = %v, want 500ms", cfg.PlanAdjustDebounce)
	}
	if cfg.ResearchBaseURL != "" {
		t.Fatalf("ResearchBaseURL = %q, want empty default", cfg.ResearchBaseURL)
	}
	if cfg.ResearchWSURL != "" {
		t.Fatalf("ResearchWSURL = %q, want empty when no base URL", cfg.ResearchWSURL)
	}
}

func TestLoadDerivesWSURLFromBaseURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("RESEARCH_BASE_URL", "https://research.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ResearchWSURL != "wss://research.example.com" {
		t.Fatalf("ResearchWSURL = %q, want %q", cfg.ResearchWSURL, "wss://research.example.com")
	}
}

func TestLoadKeepsExplicitWSURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("RESEARCH_BASE_URL", "http://localhost:9000")
	t.Setenv("RESEARCH_WS_URL", "ws://stream.local:9001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ResearchWSURL != "ws://stream.local:9001" {
		t.Fatalf("ResearchWSURL = %q, want explicit value", cfg.ResearchWSURL)
	}
}

func TestLoadRejectsInvalidDebounce(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PLAN_ADJUST_DEBOUNCE", "-1s")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want error for negative debounce")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"RESEARCH_BASE_URL",
		"RESEARCH_WS_URL",
		"RESEARCH_REQUEST_TIMEOUT",
		"PLAN_ADJUST_DEBOUNCE",
		"WORKFLOW_IDLE_TIMEOUT",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
