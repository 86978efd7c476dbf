package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quill/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("missing file reported as existing")
	}
	if cfg.Queue.MaxConcurrent != 3 || cfg.Sync.BatchSize != 10 || cfg.Sync.MaxConcurrent != 4 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.GitHub.Branch != "main" || cfg.GitHub.ArticleDir != "articles" {
		t.Fatalf("github defaults not applied: %+v", cfg.GitHub)
	}
}

func TestLoadParsesAndExpands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quill.toml")
	content := `
[paths]
data_dir = "` + dir + `/data"
log_dir = "` + dir + `/logs"

[github]
owner = "octocat"
repo = "articles"

[queue]
max_concurrent = 7

[sync]
max_concurrent = 2
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %s %v", resolved, exists)
	}
	if cfg.Queue.MaxConcurrent != 7 || cfg.Sync.MaxConcurrent != 2 {
		t.Fatalf("override not applied: %+v", cfg)
	}
	if cfg.Queue.MaxRetries != 3 {
		t.Fatal("unset fields must keep defaults")
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("data dir not absolute: %s", cfg.Paths.DataDir)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.toml")
	content := `
[queue]
max_concurrent = 0
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "queue.max_concurrent") {
		t.Fatalf("expected queue validation error, got %v", err)
	}
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv("QUILL_NOTION_TOKEN", "env-token")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Notion.Token != "env-token" {
		t.Fatalf("env override not applied: %q", cfg.Notion.Token)
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if _, err := config.WriteSample(path); err != nil {
		t.Fatalf("first WriteSample failed: %v", err)
	}
	if _, err := config.WriteSample(path); err == nil {
		t.Fatal("second WriteSample must refuse to overwrite")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[notion]") {
		t.Fatal("sample config missing notion section")
	}
}
