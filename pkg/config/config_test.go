package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"LOG_LEVEL", "DATABASE_DRIVER", "DATABASE_URL", "SQLITE_PATH",
		"OBJECT_STORE_BACKEND", "GEN_BASE_URL", "GEN_MODEL",
		"RESPONSE_CACHE_DIR", "FAULT_INJECT_ENABLED", "PIPELINE_PROFILE",
		"TELEMETRY_ENABLED",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()
	if cfg.LogLevel != "INFO" {
		t.Errorf("expected default log level INFO, got %q", cfg.LogLevel)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("expected default driver sqlite, got %q", cfg.DatabaseDriver)
	}
	if cfg.ObjectStoreBackend != "s3" {
		t.Errorf("expected default backend s3, got %q", cfg.ObjectStoreBackend)
	}
	if cfg.CacheRoot != "" {
		t.Errorf("cache should be disabled by default, got root %q", cfg.CacheRoot)
	}
	if cfg.FaultInjectEnabled {
		t.Error("fault injection should be disabled by default")
	}
	if cfg.TelemetryEnabled {
		t.Error("telemetry should be disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("RESPONSE_CACHE_DIR", "/tmp/restage-cache")
	t.Setenv("FAULT_INJECT_ENABLED", "true")

	cfg := Load()
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("expected DEBUG, got %q", cfg.LogLevel)
	}
	if cfg.DatabaseDriver != "postgres" {
		t.Errorf("expected postgres, got %q", cfg.DatabaseDriver)
	}
	if cfg.CacheRoot != "/tmp/restage-cache" {
		t.Errorf("expected cache root override, got %q", cfg.CacheRoot)
	}
	if !cfg.FaultInjectEnabled {
		t.Error("expected fault injection enabled")
	}
}

func TestLoadProfileDefaults(t *testing.T) {
	p, err := LoadProfile("")
	if err != nil {
		t.Fatalf("LoadProfile(\"\"): %v", err)
	}
	if p.Retry.MaxAttempts != 4 {
		t.Errorf("expected 4 attempts, got %d", p.Retry.MaxAttempts)
	}
	if p.CompletionDelay() != 24*time.Hour {
		t.Errorf("expected 24h completion delay, got %v", p.CompletionDelay())
	}
	if p.AbandonmentDelay() != 48*time.Hour {
		t.Errorf("expected 48h abandonment delay, got %v", p.AbandonmentDelay())
	}
	if p.Generation.OptionCount != 3 {
		t.Errorf("expected 3 options, got %d", p.Generation.OptionCount)
	}
	if p.Eval.Window != 5 || p.Eval.Threshold != 10 {
		t.Errorf("expected window 5 threshold 10, got %d/%v", p.Eval.Window, p.Eval.Threshold)
	}
}

func TestLoadProfilePartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	yaml := "retry:\n  max_attempts: 6\npurge:\n  completion_delay_hours: 1\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Retry.MaxAttempts != 6 {
		t.Errorf("expected 6 attempts, got %d", p.Retry.MaxAttempts)
	}
	if p.CompletionDelay() != time.Hour {
		t.Errorf("expected 1h completion delay, got %v", p.CompletionDelay())
	}
	// Fields absent from the file keep their defaults.
	if p.Purge.AbandonmentDelayHours != 48 {
		t.Errorf("expected default abandonment delay, got %d", p.Purge.AbandonmentDelayHours)
	}
	if p.Generation.OptionCount != 3 {
		t.Errorf("expected default option count, got %d", p.Generation.OptionCount)
	}
}

func TestLoadProfileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte("retry:\n  max_attempts: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(path); err == nil {
		t.Fatal("expected error for max_attempts 0")
	}
}

func TestLoadProfileMissingFile(t *testing.T) {
	if _, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing profile file")
	}
}
