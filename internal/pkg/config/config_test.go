package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("Expected default addr :8080, got %s", cfg.HTTP.Addr)
	}
	if cfg.Inventory.HoldDuration.Std() != 15*time.Minute {
		t.Errorf("Expected default hold 15m, got %s", cfg.Inventory.HoldDuration.Std())
	}
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
http:
  addr: ":9090"
inventory:
  hold_duration: 5m
  reap_interval: 30s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("HOLD_DURATION", "2m") // 环境变量覆盖文件

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("Expected :9090 from file, got %s", cfg.HTTP.Addr)
	}
	if cfg.Inventory.HoldDuration.Std() != 2*time.Minute {
		t.Errorf("Expected 2m from env, got %s", cfg.Inventory.HoldDuration.Std())
	}
	if cfg.Inventory.ReapInterval.Std() != 30*time.Second {
		t.Errorf("Expected 30s from file, got %s", cfg.Inventory.ReapInterval.Std())
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("HOLD_DURATION", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Error("Expected error for invalid HOLD_DURATION")
	}
}
