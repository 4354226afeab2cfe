package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// #region config
// Config holds every tunable of the refinement controller.
type Config struct {
	OllamaURL      string        `yaml:"ollama_url"`
	Model          string        `yaml:"model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	MaxIterations  int     `yaml:"max_iterations"`
	MinImprovement float64 `yaml:"min_improvement"`
	TopK           int     `yaml:"top_k"`
	PastExamples   int     `yaml:"past_examples"`

	MemoryDB     string `yaml:"memory_db"`
	DocumentsDir string `yaml:"documents_dir"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	SampleTopK  int     `yaml:"sample_top_k"`
	NumCtx      int     `yaml:"num_ctx"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		OllamaURL:      "http://localhost:11434",
		Model:          "qwen2.5:1.5b",
		RequestTimeout: 120 * time.Second,
		MaxIterations:  3,
		MinImprovement: 0.05,
		TopK:           3,
		PastExamples:   3,
		MemoryDB:       "chakra.db",
		DocumentsDir:   "data/documents",
		Temperature:    0.7,
		NumCtx:         4096,
	}
}

// #endregion config

// #region load
// Load resolves the configuration: defaults, then the YAML file at path
// (skipped when path is empty or missing), then CHAKRA_* env overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("config: max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.MinImprovement < 0 {
		return fmt.Errorf("config: min_improvement must not be negative, got %g", c.MinImprovement)
	}
	if c.TopK < 0 {
		return fmt.Errorf("config: top_k must not be negative, got %d", c.TopK)
	}
	return nil
}

// #endregion load

// #region env
func applyEnv(cfg *Config) {
	if v := os.Getenv("CHAKRA_OLLAMA_URL"); v != "" {
		cfg.OllamaURL = v
	}
	if v := os.Getenv("CHAKRA_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("CHAKRA_MEMORY_DB"); v != "" {
		cfg.MemoryDB = v
	}
	if v := os.Getenv("CHAKRA_DOCUMENTS_DIR"); v != "" {
		cfg.DocumentsDir = v
	}
	if v := os.Getenv("CHAKRA_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIterations = n
		}
	}
	if v := os.Getenv("CHAKRA_MIN_IMPROVEMENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinImprovement = f
		}
	}
	if v := os.Getenv("CHAKRA_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
}

// #endregion env
