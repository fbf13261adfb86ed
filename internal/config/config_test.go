package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAndSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
log:
  level: debug
  format: json
sqlite:
  path: /tmp/quiz.db
quiz:
  timeLimit: 10m
  timerEnabled: false
  checkpointInterval: 2s
sink:
  url: http://api.local
  token: abc
cors:
  origins: ["http://localhost:3000"]
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Log.Format != "json" || cfg.SQLite.Path != "/tmp/quiz.db" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Sink.URL != "http://api.local" || len(cfg.CORS.Origins) != 1 {
		t.Fatalf("unexpected sink/cors %+v", cfg)
	}

	s := cfg.Session()
	if s.TimeLimit != 10*time.Minute || s.TimerEnabled {
		t.Fatalf("unexpected session config %+v", s)
	}
	if s.CheckpointInterval != 2*time.Second || s.TickInterval != time.Second || s.DeliveryTimeout != 10*time.Second {
		t.Fatalf("unexpected intervals %+v", s)
	}
}

func TestSessionDefaults(t *testing.T) {
	s := Config{}.Session()
	if s.TimeLimit != time.Hour || !s.TimerEnabled || s.CheckpointInterval != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", s)
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
	if got := TTLDuration("bogus", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for bad input, got %v", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
