// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	minMemoryBytes = 1 * 1024 * 1024
	maxMemoryBytes = 16 * 1024 * 1024 * 1024
)

// OrchestratorSettings controls scheduling and runtime behavior.
type OrchestratorSettings struct {
	MaxConcurrentAgents int  `yaml:"max_concurrent_agents"`
	EnableSignalPolling bool `yaml:"enable_signal_polling"`
	EnableEventBus      bool `yaml:"enable_event_bus"`
	EnableHTTPServer    bool `yaml:"enable_http_server"`
	HTTPPort            int  `yaml:"http_port"`
	NATSPort            int  `yaml:"nats_port"`
	// RetentionSeconds is how long terminal agent records are kept
	// before the cleanup sweep removes them.
	RetentionSeconds int64 `yaml:"retention_seconds"`
}

// ExecutorSettings controls sandbox resource limits.
type ExecutorSettings struct {
	MaxExecutionTime  float64 `yaml:"max_execution_time"` // seconds
	MaxMemoryBytes    int64   `yaml:"max_memory_bytes"`
	MaxRecursionDepth int     `yaml:"max_recursion_depth"`
}

// GeneratorSettings controls the LLM endpoint used for code generation.
type GeneratorSettings struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// PathsSettings holds optional path overrides.
type PathsSettings struct {
	ProjectRoot string `yaml:"project_root"`
	CairnHome   string `yaml:"cairn_home"`
}

// Config is the top-level cairn.yaml structure.
type Config struct {
	Orchestrator OrchestratorSettings `yaml:"orchestrator"`
	Executor     ExecutorSettings     `yaml:"executor"`
	Generator    GeneratorSettings    `yaml:"generator"`
	Paths        PathsSettings        `yaml:"paths"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorSettings{
			MaxConcurrentAgents: 5,
			EnableSignalPolling: true,
			EnableEventBus:      false,
			EnableHTTPServer:    false,
			HTTPPort:            3000,
			NATSPort:            4222,
			RetentionSeconds:    86400 * 7,
		},
		Executor: ExecutorSettings{
			MaxExecutionTime:  60.0,
			MaxMemoryBytes:    100 * 1024 * 1024,
			MaxRecursionDepth: 1000,
		},
		Generator: GeneratorSettings{
			Endpoint: "http://localhost:1234/v1/chat/completions",
		},
	}
}

// Load reads configuration from a YAML file, then applies environment
// overrides. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays CAIRN_* environment variables onto the config.
// Explicit constructor arguments still win over both.
func (c *Config) applyEnv() {
	if v, ok := envInt("CAIRN_ORCHESTRATOR_MAX_CONCURRENT_AGENTS"); ok {
		c.Orchestrator.MaxConcurrentAgents = v
	}
	if v, ok := envBool("CAIRN_ORCHESTRATOR_ENABLE_SIGNAL_POLLING"); ok {
		c.Orchestrator.EnableSignalPolling = v
	}
	if v, ok := envFloat("CAIRN_EXECUTOR_MAX_EXECUTION_TIME"); ok {
		c.Executor.MaxExecutionTime = v
	}
	if v, ok := envInt64("CAIRN_EXECUTOR_MAX_MEMORY_BYTES"); ok {
		c.Executor.MaxMemoryBytes = v
	}
	if v, ok := envInt("CAIRN_EXECUTOR_MAX_RECURSION_DEPTH"); ok {
		c.Executor.MaxRecursionDepth = v
	}
	if v := os.Getenv("CAIRN_PATHS_PROJECT_ROOT"); v != "" {
		c.Paths.ProjectRoot = v
	}
	if v := os.Getenv("CAIRN_PATHS_CAIRN_HOME"); v != "" {
		c.Paths.CairnHome = v
	}
}

// Validate checks settings bounds.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxConcurrentAgents < 1 {
		return fmt.Errorf("max_concurrent_agents must be >= 1, got %d", c.Orchestrator.MaxConcurrentAgents)
	}
	if c.Executor.MaxExecutionTime <= 0 {
		return fmt.Errorf("max_execution_time must be positive, got %v", c.Executor.MaxExecutionTime)
	}
	if c.Executor.MaxMemoryBytes < minMemoryBytes || c.Executor.MaxMemoryBytes > maxMemoryBytes {
		return fmt.Errorf("max_memory_bytes must be between %d and %d, got %d",
			minMemoryBytes, maxMemoryBytes, c.Executor.MaxMemoryBytes)
	}
	if c.Executor.MaxRecursionDepth < 1 {
		return fmt.Errorf("max_recursion_depth must be >= 1, got %d", c.Executor.MaxRecursionDepth)
	}
	if c.Orchestrator.RetentionSeconds < 0 {
		return fmt.Errorf("retention_seconds must be >= 0, got %d", c.Orchestrator.RetentionSeconds)
	}
	return nil
}

// ResolveHome returns the cairn home directory, preferring the explicit
// argument, then config/env, then ~/.cairn.
func ResolveHome(explicit string, cfg *Config) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if cfg != nil && cfg.Paths.CairnHome != "" {
		return cfg.Paths.CairnHome, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".cairn"), nil
}

// ResolveProjectRoot returns the project root, preferring the explicit
// argument, then config/env, then the current directory.
func ResolveProjectRoot(explicit string, cfg *Config) (string, error) {
	root := explicit
	if root == "" && cfg != nil {
		root = cfg.Paths.ProjectRoot
	}
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	return abs, nil
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
