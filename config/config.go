// Package config loads the fragmesh runtime configuration from YAML with
// environment overrides.
//
//	model:
//	  provider: openai
//	  name: gpt-4o-mini
//	enabled_tools: [TFIM_Spec_Tool, TFIM_Hamiltonian_Tool]
//	max_steps: 10
//	time_budget: 5m
//	block_timeout: 120s
//	cache_dir: .fragmesh
//	artifacts:
//	  backend: sqlite
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Artifact backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Environment variables applied on top of the file.
const (
	EnvModel        = "FRAGMESH_MODEL"
	EnvProvider     = "FRAGMESH_PROVIDER"
	EnvCacheDir     = "FRAGMESH_CACHE_DIR"
	EnvMaxSteps     = "FRAGMESH_MAX_STEPS"
	EnvBlockTimeout = "FRAGMESH_BLOCK_TIMEOUT"
)

// ModelConfig selects the oracle.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens,omitempty"`
	// BaseURL overrides the provider endpoint, e.g. a local OpenAI
	// compatible server.
	BaseURL string `yaml:"base_url,omitempty"`
	// Seed is passed to providers that support it (openai).
	Seed int64 `yaml:"seed,omitempty"`
}

// ArtifactConfig selects where session results are exported.
type ArtifactConfig struct {
	Backend string `yaml:"backend"`
	// Path is the sqlite database file. Defaults to <cache_dir>/artifacts.db.
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json, zap
}

// Config is the complete runtime configuration.
type Config struct {
	Model ModelConfig `yaml:"model"`
	// EnabledTools restricts the catalog; empty enables every tool.
	EnabledTools []string `yaml:"enabled_tools,omitempty"`
	// OutputTypes selects the narrative outputs (final, direct).
	OutputTypes []string `yaml:"output_types,omitempty"`
	MaxSteps    int      `yaml:"max_steps"`
	// MaxModelCalls bounds the oracle calls of one session; zero is
	// unlimited.
	MaxModelCalls int            `yaml:"max_model_calls,omitempty"`
	TimeBudget    time.Duration  `yaml:"time_budget"`
	BlockTimeout  time.Duration  `yaml:"block_timeout"`
	CacheDir      string         `yaml:"cache_dir"`
	Artifacts     ArtifactConfig `yaml:"artifacts"`
	// SchemaFile is an optional YAML dependency schema replacing the
	// built-in one.
	SchemaFile string        `yaml:"schema_file,omitempty"`
	Logging    LoggingConfig `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:  ProviderOpenAI,
			MaxTokens: 4096,
		},
		OutputTypes:  []string{"final", "direct"},
		MaxSteps:     10,
		TimeBudget:   5 * time.Minute,
		BlockTimeout: 120 * time.Second,
		CacheDir:     ".fragmesh",
		Artifacts:    ArtifactConfig{Backend: BackendFile},
		Logging:      LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies the environment. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv applies the FRAGMESH_* overrides found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvModel); ok && v != "" {
		c.Model.Name = v
	}
	if v, ok := lookup(EnvProvider); ok && v != "" {
		c.Model.Provider = v
	}
	if v, ok := lookup(EnvCacheDir); ok && v != "" {
		c.CacheDir = v
	}
	if v, ok := lookup(EnvMaxSteps); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvMaxSteps, err)
		}
		c.MaxSteps = n
	}
	if v, ok := lookup(EnvBlockTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvBlockTimeout, err)
		}
		c.BlockTimeout = d
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{ProviderOpenAI, ProviderAnthropic, ProviderMock}, c.Model.Provider) {
		errs = append(errs, fmt.Errorf("unknown model provider %q", c.Model.Provider))
	}
	if !slices.Contains([]string{BackendMemory, BackendFile, BackendSQLite}, c.Artifacts.Backend) {
		errs = append(errs, fmt.Errorf("unknown artifact backend %q", c.Artifacts.Backend))
	}
	if c.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps))
	}
	if c.MaxModelCalls < 0 {
		errs = append(errs, fmt.Errorf("max_model_calls must not be negative, got %d", c.MaxModelCalls))
	}
	if c.BlockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("block_timeout must be positive, got %s", c.BlockTimeout))
	}
	if c.TimeBudget < 0 {
		errs = append(errs, fmt.Errorf("time_budget must not be negative, got %s", c.TimeBudget))
	}
	for _, o := range c.OutputTypes {
		if o != "final" && o != "direct" {
			errs = append(errs, fmt.Errorf("unknown output type %q", o))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ArtifactPath returns the sqlite database path.
func (c *Config) ArtifactPath() string {
	if c.Artifacts.Path != "" {
		return c.Artifacts.Path
	}
	return filepath.Join(c.CacheDir, "artifacts.db")
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
