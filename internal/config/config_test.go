package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.BackupBackend != "redis" {
		t.Fatalf("expected redis backup backend default")
	}
	if cfg.BatchSize != 50 {
		t.Fatalf("expected default batch size")
	}
	if cfg.FlushInterval() != 5*time.Second {
		t.Fatalf("expected default flush interval")
	}
	if cfg.StopTimeout() != 30*time.Second {
		t.Fatalf("expected default stop timeout")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("REMOTE_API_URL", "https://api.example.com")
	t.Setenv("BACKUP_BACKEND", "memory")
	t.Setenv("BATCH_SIZE", "10")
	t.Setenv("FLUSH_INTERVAL_SEC", "1")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.RemoteAPIURL != "https://api.example.com" {
		t.Fatalf("expected override remote url")
	}
	if cfg.BackupBackend != "memory" {
		t.Fatalf("expected override backend")
	}
	if cfg.BatchSize != 10 {
		t.Fatalf("expected override batch size")
	}
	if cfg.FlushInterval() != time.Second {
		t.Fatalf("expected override flush interval")
	}
}
