// Package config loads the embedder-facing settings spec.md §1 places out
// of the core's scope: listen address, document root, request-line/header
// size bounds, idle timeout, and log level.
//
// Grounded on the DefaultConfig/Initialize/Process/InitConfigFromFile
// shape of cloudfoundry-gorouter's config/config.go, using the current
// gopkg.in/yaml.v3 rather than that repo's v2 import.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the complete on-disk/CLI-overridable configuration surface.
type Config struct {
	Addr string `yaml:"addr"`
	Root string `yaml:"root"`

	MaxRequestLineBytes int           `yaml:"max_request_line_bytes"`
	MaxHeaderBytes      int           `yaml:"max_header_bytes"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	ReadChunkBytes      int           `yaml:"read_chunk_bytes"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // currently only "json" is supported
}

var defaultConfig = Config{
	Addr: "127.0.0.1:8080",
	Root: ".",

	MaxRequestLineBytes: 8 << 10,
	MaxHeaderBytes:      64 << 10,
	IdleTimeout:         0,
	ReadChunkBytes:      32 << 10,

	LogLevel:  "info",
	LogFormat: "json",
}

// DefaultConfig returns a Config populated with the module's defaults.
func DefaultConfig() *Config {
	c := defaultConfig
	return &c
}

// Initialize overlays configYAML on top of c, leaving fields the document
// doesn't mention at their previous values (normally DefaultConfig's).
func (c *Config) Initialize(configYAML []byte) error {
	return yaml.Unmarshal(configYAML, c)
}

// InitFromFile reads path and initializes a fresh default Config from it.
func InitFromFile(path string) (*Config, error) {
	c := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := c.Initialize(b); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr must not be empty")
	}
	if c.Root == "" {
		return fmt.Errorf("config: root must not be empty")
	}
	if c.MaxRequestLineBytes <= 0 || c.MaxHeaderBytes <= 0 {
		return fmt.Errorf("config: size limits must be positive")
	}
	if _, err := c.ZapLevel(); err != nil {
		return err
	}
	return nil
}

// ZapLevel translates LogLevel into a zapcore.Level.
func (c *Config) ZapLevel() (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
