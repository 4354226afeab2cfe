package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OllamaURL != "http://localhost:11434" {
		t.Fatalf("url = %s", cfg.OllamaURL)
	}
	if cfg.MaxIterations != 3 || cfg.MinImprovement != 0.05 || cfg.TopK != 3 {
		t.Fatalf("loop defaults = %+v", cfg)
	}
	if cfg.RequestTimeout != 120*time.Second {
		t.Fatalf("timeout = %v", cfg.RequestTimeout)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chakra.yaml")
	data := []byte("model: llama3:8b\nmax_iterations: 5\nmemory_db: /tmp/other.db\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "llama3:8b" {
		t.Fatalf("model = %s", cfg.Model)
	}
	if cfg.MaxIterations != 5 {
		t.Fatalf("max_iterations = %d", cfg.MaxIterations)
	}
	if cfg.MemoryDB != "/tmp/other.db" {
		t.Fatalf("memory_db = %s", cfg.MemoryDB)
	}
	// Untouched keys keep their defaults.
	if cfg.TopK != 3 {
		t.Fatalf("top_k = %d, want default 3", cfg.TopK)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != Default().Model {
		t.Fatalf("model = %s, want default", cfg.Model)
	}
}

func TestMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("model: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chakra.yaml")
	if err := os.WriteFile(path, []byte("model: from-file\nmax_iterations: 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHAKRA_MODEL", "from-env")
	t.Setenv("CHAKRA_MAX_ITERATIONS", "7")
	t.Setenv("CHAKRA_REQUEST_TIMEOUT", "30s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "from-env" {
		t.Fatalf("model = %s, want env override", cfg.Model)
	}
	if cfg.MaxIterations != 7 {
		t.Fatalf("max_iterations = %d, want env override", cfg.MaxIterations)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("timeout = %v, want env override", cfg.RequestTimeout)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero iterations", "max_iterations: 0\n"},
		{"negative improvement", "min_improvement: -0.1\n"},
		{"negative top_k", "top_k: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "chakra.yaml")
			if err := os.WriteFile(path, []byte(tc.yaml), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
