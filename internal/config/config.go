// Package config loads opsdesk settings from a YAML file with environment
// overrides. A missing file yields the defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

var ValidProviders = []string{ProviderOpenRouter, ProviderGemini}

type Config struct {
	Engine       EngineConfig       `yaml:"engine"`
	Database     DatabaseConfig     `yaml:"database"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Context      ContextConfig      `yaml:"context"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// EngineConfig selects the reasoning engine.
type EngineConfig struct {
	Provider    string  `yaml:"provider"` // openrouter, gemini
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // empty means the user config dir
}

type OrchestratorConfig struct {
	MaxIterations      int    `yaml:"max_iterations"`
	MaxParallel        int    `yaml:"max_parallel"`
	ProgressClearDelay string `yaml:"progress_clear_delay"`
}

// ContextConfig bounds the context block sent with every turn.
type ContextConfig struct {
	MaxTasks     int `yaml:"max_tasks"`
	HistoryTurns int `yaml:"history_turns"`
	MaxDocuments int `yaml:"max_documents"`
}

type KnowledgeConfig struct {
	Enabled        bool   `yaml:"enabled"`
	EmbeddingModel string `yaml:"embedding_model"`
	Dimension      int    `yaml:"dimension"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	File        string `yaml:"file"`
	Development bool   `yaml:"development"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Provider:    ProviderOpenRouter,
			Model:       "google/gemini-2.5-flash",
			Temperature: 0.2,
			Timeout:     "60s",
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations:      5,
			MaxParallel:        8,
			ProgressClearDelay: "1.5s",
		},
		Context: ContextConfig{
			MaxTasks:     50,
			HistoryTurns: 4,
			MaxDocuments: 5,
		},
		Knowledge: KnowledgeConfig{
			Enabled:        true,
			EmbeddingModel: "gemini-embedding-001",
			Dimension:      768,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns config.yaml under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "opsdesk", "config.yaml"), nil
}

// Load reads path over the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OPSDESK_PROVIDER"); v != "" {
		c.Engine.Provider = v
	}
	if v := os.Getenv("OPSDESK_MODEL"); v != "" {
		c.Engine.Model = v
	}
	if v := os.Getenv("OPSDESK_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("OPSDESK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	// The key env var only applies to its own provider.
	if c.Engine.APIKey == "" {
		switch c.Engine.Provider {
		case ProviderOpenRouter:
			c.Engine.APIKey = os.Getenv("OPENROUTER_API_KEY")
		case ProviderGemini:
			c.Engine.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

// Validate checks the settings that have no safe fallback. The API key is
// not checked here since read-only commands work without it.
func (c *Config) Validate() error {
	if !slices.Contains(ValidProviders, c.Engine.Provider) {
		return fmt.Errorf("invalid engine provider: %q (valid: %v)", c.Engine.Provider, ValidProviders)
	}
	if c.Engine.Model == "" {
		return fmt.Errorf("engine model is not set")
	}
	if c.Orchestrator.MaxIterations <= 0 {
		return fmt.Errorf("orchestrator.max_iterations must be positive, got %d", c.Orchestrator.MaxIterations)
	}
	if c.Orchestrator.MaxParallel <= 0 {
		return fmt.Errorf("orchestrator.max_parallel must be positive, got %d", c.Orchestrator.MaxParallel)
	}
	if c.Context.MaxTasks <= 0 || c.Context.HistoryTurns < 0 || c.Context.MaxDocuments < 0 {
		return fmt.Errorf("context bounds must not be negative")
	}
	for name, d := range map[string]string{
		"engine.timeout":                    c.Engine.Timeout,
		"orchestrator.progress_clear_delay": c.Orchestrator.ProgressClearDelay,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// EngineTimeout returns the per-call engine timeout.
func (c *Config) EngineTimeout() time.Duration {
	return parseDuration(c.Engine.Timeout, 60*time.Second)
}

func (c *Config) ProgressClearDelay() time.Duration {
	return parseDuration(c.Orchestrator.ProgressClearDelay, 1500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
