// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Orchestrator.MaxConcurrentAgents != 5 {
		t.Errorf("expected 5 concurrent agents, got %d", cfg.Orchestrator.MaxConcurrentAgents)
	}
	if !cfg.Orchestrator.EnableSignalPolling {
		t.Error("expected signal polling enabled by default")
	}
	if cfg.Executor.MaxExecutionTime != 60.0 {
		t.Errorf("expected 60s execution time, got %v", cfg.Executor.MaxExecutionTime)
	}
	if cfg.Orchestrator.RetentionSeconds != 86400*7 {
		t.Errorf("expected 7 day retention, got %d", cfg.Orchestrator.RetentionSeconds)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Orchestrator.MaxConcurrentAgents != 5 {
		t.Errorf("expected defaults for missing file, got %d", cfg.Orchestrator.MaxConcurrentAgents)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "cairn.yaml")
	content := `
orchestrator:
  max_concurrent_agents: 3
  enable_signal_polling: false
executor:
  max_execution_time: 30
  max_memory_bytes: 52428800
  max_recursion_depth: 500
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Orchestrator.MaxConcurrentAgents != 3 {
		t.Errorf("expected 3, got %d", cfg.Orchestrator.MaxConcurrentAgents)
	}
	if cfg.Orchestrator.EnableSignalPolling {
		t.Error("expected signal polling disabled")
	}
	if cfg.Executor.MaxMemoryBytes != 52428800 {
		t.Errorf("expected 50MB, got %d", cfg.Executor.MaxMemoryBytes)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAIRN_ORCHESTRATOR_MAX_CONCURRENT_AGENTS", "9")
	t.Setenv("CAIRN_EXECUTOR_MAX_EXECUTION_TIME", "15.5")
	t.Setenv("CAIRN_ORCHESTRATOR_ENABLE_SIGNAL_POLLING", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Orchestrator.MaxConcurrentAgents != 9 {
		t.Errorf("env override failed: got %d", cfg.Orchestrator.MaxConcurrentAgents)
	}
	if cfg.Executor.MaxExecutionTime != 15.5 {
		t.Errorf("env override failed: got %v", cfg.Executor.MaxExecutionTime)
	}
	if cfg.Orchestrator.EnableSignalPolling {
		t.Error("env override failed: polling still enabled")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Orchestrator.MaxConcurrentAgents = 0 }},
		{"negative execution time", func(c *Config) { c.Executor.MaxExecutionTime = -1 }},
		{"memory too small", func(c *Config) { c.Executor.MaxMemoryBytes = 1024 }},
		{"memory too large", func(c *Config) { c.Executor.MaxMemoryBytes = 1 << 60 }},
		{"zero recursion", func(c *Config) { c.Executor.MaxRecursionDepth = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestResolveHomeExplicitWins(t *testing.T) {
	cfg := Default()
	cfg.Paths.CairnHome = "/from/config"

	home, err := ResolveHome("/explicit", cfg)
	if err != nil {
		t.Fatalf("ResolveHome() error = %v", err)
	}
	if home != "/explicit" {
		t.Errorf("expected explicit path to win, got %s", home)
	}

	home, err = ResolveHome("", cfg)
	if err != nil {
		t.Fatalf("ResolveHome() error = %v", err)
	}
	if home != "/from/config" {
		t.Errorf("expected config path, got %s", home)
	}
}
