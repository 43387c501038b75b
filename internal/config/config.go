package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Database  DatabaseConfig            `yaml:"database"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Pipeline  PipelineConfig            `yaml:"pipeline"`
}

// PipelineConfig holds settings for the creative pipeline executor: where
// run artifacts live on disk, how many blocking provider calls may run at
// once, which configured provider backs each of the three model roles, and
// the retry bound applied to every provider call.
type PipelineConfig struct {
	RunsRoot         string      `yaml:"runs_root"`
	WorkerPoolSize   int         `yaml:"worker_pool_size"`
	TextProvider     string      `yaml:"text_provider"`
	VisionProvider   string      `yaml:"vision_provider"`
	ImageProvider    string      `yaml:"image_provider"`
	EmbedderProvider string      `yaml:"embedder_provider"` // optional; empty disables consistency metrics
	Retry            RetryConfig `yaml:"retry"`
}

// RetryConfig mirrors llmprovider.RetryPolicy in YAML-friendly form.
type RetryConfig struct {
	MaxRetries     int     `yaml:"max_retries"`
	InitialDelayMs int     `yaml:"initial_delay_ms"`
	BackoffFactor  float64 `yaml:"backoff_factor"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds database connection settings. An empty URL means run
// with the in-memory preset repository instead of PersistentRepository.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ProviderConfig holds one model backend's connection settings plus the
// pipeline-specific fields (model id, prompt family) the generic
// type/url/api_key triad doesn't carry.
type ProviderConfig struct {
	Type   string `yaml:"type"`    // e.g. "gemini"
	URL    string `yaml:"url"`     // base URL, for OpenAI-compatible backends
	APIKey string `yaml:"api_key"` // API key
	Model  string `yaml:"model"`   // model id passed to the provider on every call
	Family string `yaml:"family"` // "literal-directive" or "narrative-first"
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database:  DatabaseConfig{},
		Providers: map[string]ProviderConfig{},
		Pipeline: PipelineConfig{
			RunsRoot:       "./runs",
			WorkerPoolSize: 8,
			TextProvider:   "gemini-text",
			VisionProvider: "gemini-vision",
			ImageProvider:  "gemini-image",
			Retry: RetryConfig{
				MaxRetries:     2,
				InitialDelayMs: 500,
				BackoffFactor:  2.0,
				MaxDelayMs:     8000,
			},
		},
	}
}

// Load reads a YAML configuration file at path and returns a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Ensure Providers map is never nil even if YAML has "providers: {}" or omits it.
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}

	return cfg, nil
}

// LoadDefault tries to load "config.yaml" from the current directory.
// If the file does not exist, it returns sensible defaults.
// Any other error (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}
	return cfg, nil
}
