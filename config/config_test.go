package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.TopK != 5 {
		t.Fatalf("expected default top_k 5, got %d", cfg.TopK)
	}
	if cfg.DetectionThreshold != 0.80 {
		t.Fatalf("expected default detection threshold 0.80, got %v", cfg.DetectionThreshold)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("detection_threshold: 0.7\ntop_k: 3\ndebounce_ms: 250\nflip_display: true\n")
	if err := os.WriteFile(path, body, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DetectionThreshold != 0.7 {
		t.Fatalf("yaml override ignored: %v", cfg.DetectionThreshold)
	}
	if cfg.TopK != 3 || cfg.DebounceMillis != 250 || !cfg.FlipDisplay {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	// Untouched fields keep defaults.
	if cfg.ClassificationThreshold != 0.5 {
		t.Fatalf("default lost on partial yaml: %v", cfg.ClassificationThreshold)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("ODESCREEN_DETECTION_THRESHOLD", "0.9")
	t.Setenv("ODESCREEN_DB", "env.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DetectionThreshold != 0.9 {
		t.Fatalf("env override ignored: %v", cfg.DetectionThreshold)
	}
	if cfg.DatabasePath != "env.db" {
		t.Fatalf("env db override ignored: %s", cfg.DatabasePath)
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := Default()
	cfg.DetectionThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for threshold > 1")
	}

	cfg = Default()
	cfg.TopK = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for top_k 0")
	}
}
