// Package config loads the orchestrator configuration: registered
// backends, the default policy profile applied to work orders that carry
// none, and logging settings. Configuration lives in a YAML file and a
// small set of environment variables override it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"backplane/internal/contract"
)

// Config holds all backplane configuration.
type Config struct {
	// DefaultBackend names the backend used when a submission does not
	// pick one explicitly.
	DefaultBackend string `yaml:"default_backend"`

	// Backends maps backend names to their launch configuration.
	Backends map[string]BackendConfig `yaml:"backends"`

	// Policy is the profile applied to work orders with an empty one.
	Policy PolicyConfig `yaml:"policy"`

	// Logging controls log verbosity and format.
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig describes one backend entry.
type BackendConfig struct {
	// Kind is "mock" or "sidecar".
	Kind string `yaml:"kind"`

	// Sidecar launch settings, ignored for the mock kind.
	Command    string            `yaml:"command"`
	Args       []string          `yaml:"args"`
	Env        map[string]string `yaml:"env"`
	Dir        string            `yaml:"dir"`
	RunTimeout string            `yaml:"run_timeout"`
}

// Timeout parses the per-run timeout. Empty means no timeout.
func (b BackendConfig) Timeout() (time.Duration, error) {
	if b.RunTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(b.RunTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid run_timeout %q: %w", b.RunTimeout, err)
	}
	return d, nil
}

// PolicyConfig mirrors the work order policy profile in YAML form.
type PolicyConfig struct {
	AllowedTools       []string `yaml:"allowed_tools"`
	DisallowedTools    []string `yaml:"disallowed_tools"`
	DenyRead           []string `yaml:"deny_read"`
	DenyWrite          []string `yaml:"deny_write"`
	AllowNetwork       []string `yaml:"allow_network"`
	DenyNetwork        []string `yaml:"deny_network"`
	RequireApprovalFor []string `yaml:"require_approval_for"`
}

// Profile converts the YAML form to the contract profile.
func (p PolicyConfig) Profile() contract.PolicyProfile {
	return contract.PolicyProfile{
		AllowedTools:       p.AllowedTools,
		DisallowedTools:    p.DisallowedTools,
		DenyRead:           p.DenyRead,
		DenyWrite:          p.DenyWrite,
		AllowNetwork:       p.AllowNetwork,
		DenyNetwork:        p.DenyNetwork,
		RequireApprovalFor: p.RequireApprovalFor,
	}
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// DefaultConfig returns the built-in defaults: the mock backend only,
// an empty policy, info-level JSON logs.
func DefaultConfig() *Config {
	return &Config{
		DefaultBackend: "mock",
		Backends: map[string]BackendConfig{
			"mock": {Kind: "mock"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file, returning defaults when the
// file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BACKPLANE_BACKEND"); v != "" {
		c.DefaultBackend = v
	}
	if v := os.Getenv("BACKPLANE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("no backends configured")
	}
	if _, ok := c.Backends[c.DefaultBackend]; !ok {
		return fmt.Errorf("default_backend %q is not a configured backend", c.DefaultBackend)
	}
	for name, b := range c.Backends {
		switch b.Kind {
		case "mock":
		case "sidecar":
			if b.Command == "" {
				return fmt.Errorf("sidecar backend %q missing command", name)
			}
			if _, err := b.Timeout(); err != nil {
				return fmt.Errorf("backend %q: %w", name, err)
			}
		default:
			return fmt.Errorf("backend %q has unknown kind %q", name, b.Kind)
		}
	}
	return nil
}
