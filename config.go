package match

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of an order book session.
type Config struct {
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Engine struct {
		CommandBuffer   int  `yaml:"command_buffer"`
		InvariantChecks bool `yaml:"invariant_checks"`
	} `yaml:"engine"`

	Book struct {
		DefaultDepth int `yaml:"default_depth"` // 0 means every level
	} `yaml:"book"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Log.Level = "info"
	cfg.Engine.CommandBuffer = DefaultCommandBuffer
	cfg.Engine.InvariantChecks = true
	cfg.Book.DefaultDepth = 10
	return cfg
}

// LoadConfig reads a YAML file on top of DefaultConfig, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Engine.CommandBuffer <= 0 {
		return fmt.Errorf("command buffer must be positive")
	}
	if c.Book.DefaultDepth < 0 {
		return fmt.Errorf("default depth must not be negative")
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// BookOptions maps the configuration to OrderBook options.
func (c *Config) BookOptions() []Option {
	return []Option{WithInvariantChecks(c.Engine.InvariantChecks)}
}

// EngineOptions maps the configuration to Engine options.
func (c *Config) EngineOptions() []EngineOption {
	return []EngineOption{WithCommandBuffer(c.Engine.CommandBuffer)}
}

// overrideWithEnv lets environment variables win over the file.
func overrideWithEnv(cfg *Config) {
	if level := os.Getenv("LOB_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}
