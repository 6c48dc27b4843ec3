// Package config loads the YAML config file for gobackup run.
package config

import (
	"fmt"
	"time"
)

// Config represents a gobackup.yaml configuration file.
// All values are optional and act as defaults for gobackup run flags.
// CLI flags always override config values.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Polling PollingConfig `yaml:"polling"`
	Output  OutputConfig  `yaml:"output"`
	Adapter AdapterConfig `yaml:"adapter"`
	Log     LogConfig     `yaml:"log"`
	Cleanup bool          `yaml:"cleanup"`
}

// ServerConfig locates the gobackup service.
type ServerConfig struct {
	URL     string            `yaml:"url"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// PollingConfig holds job poller defaults.
type PollingConfig struct {
	Interval    Duration `yaml:"interval,omitempty"`
	MaxAttempts int      `yaml:"max_attempts,omitempty"`
	// SettleDelay is a pointer so an explicit 0s disables the wait.
	SettleDelay *Duration `yaml:"settle_delay,omitempty"`
}

// OutputConfig selects where the finished archive is delivered.
type OutputConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
	// RequireSubscriber applies to the redis adapter only.
	RequireSubscriber bool `yaml:"require_subscriber,omitempty"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated and range-bound fields. Zero values pass;
// they mean "use the built-in default".
func (c *Config) Validate() error {
	switch c.Output.Backend {
	case "", "link", "fs", "s3":
	default:
		return fmt.Errorf("output.backend must be link, fs or s3, got %q", c.Output.Backend)
	}
	if (c.Output.Backend == "fs" || c.Output.Backend == "s3") && c.Output.Path == "" {
		return fmt.Errorf("output.path is required for the %s backend", c.Output.Backend)
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type must be webhook or redis, got %q", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url is required for the %s adapter", c.Adapter.Type)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries)
	}
	if c.Polling.MaxAttempts < 0 {
		return fmt.Errorf("polling.max_attempts must be >= 0, got %d", c.Polling.MaxAttempts)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}
