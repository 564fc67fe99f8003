package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadRejectsInvalidIntervals(t *testing.T) {
	t.Setenv("SYNC_INTERVAL_SECONDS", "not-a-number")
	t.Setenv("STATUS_POLL_SECONDS", "-4")
	t.Setenv("SYNC_MAX_RETRIES", "")

	cfg := Load()
	if cfg.SyncIntervalSeconds != 300 {
		t.Fatalf("expected fallback sync interval 300, got %d", cfg.SyncIntervalSeconds)
	}
	if cfg.StatusPollSeconds != 30 {
		t.Fatalf("expected fallback status poll 30, got %d", cfg.StatusPollSeconds)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("expected fallback max retries 3, got %d", cfg.MaxRetries)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger := NewLogger("definitely-not-a-level")
	if got := logger.GetLevel().String(); got != "info" {
		t.Fatalf("expected info level fallback, got %q", got)
	}
}
