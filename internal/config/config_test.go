package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.HTTP.Port != 8000 {
		t.Errorf("HTTP.Port = %d, want 8000", cfg.HTTP.Port)
	}
	if cfg.Chat.Port != 5000 {
		t.Errorf("Chat.Port = %d, want 5000", cfg.Chat.Port)
	}
	if got := cfg.Detection.GetInterval(); got != 800*time.Millisecond {
		t.Errorf("GetInterval = %v, want 800ms", got)
	}
	if got := cfg.Detection.GetCooldown(); got != 2500*time.Millisecond {
		t.Errorf("GetCooldown = %v, want 2500ms", got)
	}
	if cfg.Detection.ConfidenceThreshold != 60.0 {
		t.Errorf("ConfidenceThreshold = %v, want 60.0", cfg.Detection.ConfidenceThreshold)
	}
	if got := cfg.Session.GetCleanupInterval(); got != 300*time.Second {
		t.Errorf("GetCleanupInterval = %v, want 300s", got)
	}
	if got := cfg.Session.GetIdleTimeout(); got != 3600*time.Second {
		t.Errorf("GetIdleTimeout = %v, want 3600s", got)
	}
	if got := cfg.Session.GetRaceWindow(); got != time.Second {
		t.Errorf("GetRaceWindow = %v, want 1s", got)
	}
	if got := cfg.Session.GetDuplicateGrace(); got != 5*time.Second {
		t.Errorf("GetDuplicateGrace = %v, want 5s", got)
	}
	if cfg.Products["8804973304842"] != "스트로베리향" {
		t.Errorf("product catalog missing default entry: %v", cfg.Products["8804973304842"])
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
http:
  port: 9100
detection:
  interval: "250ms"
  confidence_threshold: 75.5
products:
  "4012345678901": "테스트제품"
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.HTTP.Port != 9100 {
		t.Errorf("HTTP.Port = %d, want override 9100", cfg.HTTP.Port)
	}
	if got := cfg.Detection.GetInterval(); got != 250*time.Millisecond {
		t.Errorf("GetInterval = %v, want override 250ms", got)
	}
	if cfg.Detection.ConfidenceThreshold != 75.5 {
		t.Errorf("ConfidenceThreshold = %v, want 75.5", cfg.Detection.ConfidenceThreshold)
	}

	// Untouched sections keep their defaults.
	if cfg.Chat.Port != 5000 {
		t.Errorf("Chat.Port = %d, want default 5000", cfg.Chat.Port)
	}
	if got := cfg.Detection.GetCooldown(); got != 2500*time.Millisecond {
		t.Errorf("GetCooldown = %v, want default 2500ms", got)
	}
	if cfg.Products["4012345678901"] != "테스트제품" {
		t.Errorf("products not overridden: %v", cfg.Products)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadConfig on a missing file should fail")
	}
}

func TestDurationFallbacks(t *testing.T) {
	d := DetectionConfig{Interval: "not-a-duration", Cooldown: ""}
	if got := d.GetInterval(); got != 800*time.Millisecond {
		t.Errorf("GetInterval fallback = %v, want 800ms", got)
	}
	if got := d.GetCooldown(); got != 2500*time.Millisecond {
		t.Errorf("GetCooldown fallback = %v, want 2500ms", got)
	}

	s := SessionConfig{RaceWindow: "2s"}
	if got := s.GetRaceWindow(); got != 2*time.Second {
		t.Errorf("GetRaceWindow = %v, want 2s", got)
	}
}
