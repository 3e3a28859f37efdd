// Package config handles engine configuration and the .foundry directory
// structure. Every project that runs foundry gets a .foundry/ folder with
// state, logs, and knowledge subdirectories.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// FoundryDir is the name of the directory created in each project.
	FoundryDir = ".foundry"

	configFileName = "config.yaml"
)

const defaultConfigYAML = `# foundry engine configuration
version: 1

# Scheduling
max_parallel_tasks: 3
queue_limit: 0 # 0 = unbounded
task_timeout_seconds: 120

# Cost management
cost_limit_usd: 5.0
enable_cost_tracking: true

# Models
default_model: gpt-4o-mini
verification_model: gpt-4o
enable_result_verification: true
retry_limit: 3

# Recurring health beat; 0 disables it.
heartbeat_interval_seconds: 0

server:
  enabled: true
  host: 127.0.0.1
  port: 8477

provider:
  base_url: https://api.openai.com/v1
  api_key_env: OPENAI_API_KEY

knowledge:
  # Leave remote_url empty to keep records in process memory.
  remote_url: ""
`

// ServerConfig controls the presentation HTTP API.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// ProviderConfig locates the external model provider.
type ProviderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// KnowledgeConfig locates the shared knowledge store.
type KnowledgeConfig struct {
	RemoteURL string `yaml:"remote_url"`
}

// Config models .foundry/config.yaml plus the resolved directory layout.
type Config struct {
	Version                  int             `yaml:"version"`
	MaxParallelTasks         int             `yaml:"max_parallel_tasks"`
	QueueLimit               int             `yaml:"queue_limit"`
	TaskTimeoutSeconds       int             `yaml:"task_timeout_seconds"`
	CostLimitUSD             float64         `yaml:"cost_limit_usd"`
	EnableCostTracking       bool            `yaml:"enable_cost_tracking"`
	DefaultModel             string          `yaml:"default_model"`
	VerificationModel        string          `yaml:"verification_model"`
	EnableResultVerification bool            `yaml:"enable_result_verification"`
	RetryLimit               int             `yaml:"retry_limit"`
	HeartbeatIntervalSeconds int             `yaml:"heartbeat_interval_seconds"`
	Server                   ServerConfig    `yaml:"server"`
	Provider                 ProviderConfig  `yaml:"provider"`
	Knowledge                KnowledgeConfig `yaml:"knowledge"`

	// ProjectDir is where foundry was started; FoundryProjectDir is
	// ProjectDir/.foundry.
	ProjectDir        string `yaml:"-"`
	FoundryProjectDir string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	// The embedded default YAML is the single source of default values.
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		panic(fmt.Sprintf("config: invalid default yaml: %v", err))
	}
	return cfg
}

// InitFoundryDir creates the .foundry directory structure in projectDir:
//
// .foundry/
// ├── config.yaml  <- written with defaults if missing
// ├── state/       <- task records and the cost ledger
// ├── logs/        <- engine logbook
// └── knowledge/   <- local knowledge store spill (reserved)
func InitFoundryDir(projectDir string) error {
	foundryDir := filepath.Join(projectDir, FoundryDir)
	dirs := []string{
		filepath.Join(foundryDir, "state"),
		filepath.Join(foundryDir, "logs"),
		filepath.Join(foundryDir, "knowledge"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	configPath := filepath.Join(foundryDir, configFileName)
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(configPath, []byte(defaultConfigYAML), 0o644); err != nil {
			return fmt.Errorf("config: write default config: %w", err)
		}
	}
	return nil
}

// Load reads .foundry/config.yaml from projectDir, applying defaults for
// anything the file leaves out.
func Load(projectDir string) (*Config, error) {
	cfg := Default()
	cfg.ProjectDir = projectDir
	cfg.FoundryProjectDir = filepath.Join(projectDir, FoundryDir)
	configPath := filepath.Join(cfg.FoundryProjectDir, configFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option ranges.
func (c *Config) Validate() error {
	if c.MaxParallelTasks <= 0 {
		return fmt.Errorf("config: max_parallel_tasks must be positive, got %d", c.MaxParallelTasks)
	}
	if c.CostLimitUSD < 0 {
		return fmt.Errorf("config: cost_limit_usd must be non-negative, got %v", c.CostLimitUSD)
	}
	if c.QueueLimit < 0 {
		return fmt.Errorf("config: queue_limit must be non-negative, got %d", c.QueueLimit)
	}
	if c.RetryLimit <= 0 {
		return fmt.Errorf("config: retry_limit must be positive, got %d", c.RetryLimit)
	}
	if c.DefaultModel == "" {
		return fmt.Errorf("config: default_model is required")
	}
	if c.EnableResultVerification && c.VerificationModel == "" {
		return fmt.Errorf("config: verification_model is required when verification is enabled")
	}
	return nil
}

// StateDir returns the durable state directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.FoundryProjectDir, "state")
}

// LogsDir returns the logbook directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.FoundryProjectDir, "logs")
}

// TaskTimeout returns the per-execution timeout as a duration.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns the maintenance beat period; zero disables it.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// APIKey resolves the provider key from the configured environment variable.
func (c *Config) APIKey() string {
	if c.Provider.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Provider.APIKeyEnv)
}
