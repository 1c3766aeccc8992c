package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSeedsDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	loader := NewFileLoader(path)

	cfg, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ollama.Model != "llama3.2:1b" {
		t.Fatalf("model = %q", cfg.Ollama.Model)
	}
	if cfg.Analysis.Workers != 2 {
		t.Fatalf("workers = %d", cfg.Analysis.Workers)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("config mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestLoadReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte("ollama:\n  model: qwen2.5:3b\n  host: http://localhost:9999\ncache:\n  ttl: 90s\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := NewFileLoader(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ollama.Model != "qwen2.5:3b" {
		t.Fatalf("model = %q", cfg.Ollama.Model)
	}
	if cfg.Ollama.Host != "http://localhost:9999" {
		t.Fatalf("host = %q", cfg.Ollama.Host)
	}
	if cfg.Cache.Duration() != 90*time.Second {
		t.Fatalf("ttl = %v", cfg.Cache.Duration())
	}
	// untouched sections still get defaults
	if cfg.Terminal.BufferMax != 1000 {
		t.Fatalf("buffer max = %d", cfg.Terminal.BufferMax)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alt.yaml")
	t.Setenv("TERMAI_CONFIG", path)

	cfg, err := NewFileLoader("").Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ollama.Host != "http://localhost:11434" {
		t.Fatalf("host = %q", cfg.Ollama.Host)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("override path not seeded: %v", err)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ollama: [broken"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileLoader(path).Load(context.Background()); err == nil {
		t.Fatalf("want error for malformed yaml")
	}
}

func TestCacheTTLFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte("cache:\n  ttl: nonsense\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := NewFileLoader(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Duration() != 5*time.Minute {
		t.Fatalf("ttl fallback = %v", cfg.Cache.Duration())
	}
}
