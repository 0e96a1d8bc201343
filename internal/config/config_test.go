package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigHasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DatabasePath == "" || cfg.MissedJobPolicy == "" || cfg.StaleCleanupCron == "" {
		t.Fatalf("expected non-empty defaults, got %+v", cfg)
	}
}

func TestLoadLayersYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "database_path: /tmp/custom.db\ndev_mode: true\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePath != "/tmp/custom.db" {
		t.Fatalf("expected overridden database_path, got %q", cfg.DatabasePath)
	}
	if !cfg.DevMode {
		t.Fatalf("expected dev_mode true")
	}
	if cfg.StaleCleanupCron == "" {
		t.Fatalf("expected default stale_cleanup_cron to survive unset YAML field")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	if _, err := Load(""); err != nil {
		t.Fatalf("Load(\"\") should use defaults without error: %v", err)
	}
}
