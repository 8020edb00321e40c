// Package config provides configuration parsing and validation for privy.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete agent configuration, independent of the
// identity vault: it holds only the operational knobs the vault does
// not own.
type Config struct {
	DataDir   string        `yaml:"data_dir"`   // where the vault file lives
	LogLevel  string        `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string        `yaml:"log_format"` // text, json
	Listen    ListenConfig  `yaml:"listen"`
	Connect   ConnectConfig `yaml:"connect"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// ListenConfig configures the server side of a chat session: which
// transport and address to bind, plus the accept-rate guard.
type ListenConfig struct {
	Transport        string        `yaml:"transport"` // tcp, ws
	Address          string        `yaml:"address"`
	AcceptRatePerSec float64       `yaml:"accept_rate_per_sec"`
	AcceptBurst      int           `yaml:"accept_burst"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// ConnectConfig configures the client side of a chat session.
type ConnectConfig struct {
	Transport string        `yaml:"transport"`
	Timeout   time.Duration `yaml:"timeout"`
}

// MetricsConfig controls the optional Prometheus HTTP exporter.
// Collection itself always runs; Enabled only decides whether it is
// served.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns a Config with sane defaults for running privy
// against the loopback interface.
func Default() *Config {
	return &Config{
		DataDir:   "./data",
		LogLevel:  "info",
		LogFormat: "text",
		Listen: ListenConfig{
			Transport:        "tcp",
			Address:          "127.0.0.1:4747",
			AcceptRatePerSec: 5,
			AcceptBurst:      10,
			HandshakeTimeout: 10 * time.Second,
		},
		Connect: ConnectConfig{
			Transport: "tcp",
			Timeout:   10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9747",
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, starting from Default()
// so any field the document omits keeps its default value.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR}, ${VAR:-default}, or $VAR patterns.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.DataDir == "" {
		errs = append(errs, "data_dir is required")
	}
	if !isValidLogLevel(c.LogLevel) {
		errs = append(errs, fmt.Sprintf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel))
	}
	if !isValidLogFormat(c.LogFormat) {
		errs = append(errs, fmt.Sprintf("invalid log_format: %s (must be text or json)", c.LogFormat))
	}

	if !isValidTransport(c.Listen.Transport) {
		errs = append(errs, fmt.Sprintf("listen.transport: invalid transport: %s (must be tcp or ws)", c.Listen.Transport))
	}
	if c.Listen.Address == "" {
		errs = append(errs, "listen.address is required")
	}
	if c.Listen.AcceptRatePerSec < 0 {
		errs = append(errs, "listen.accept_rate_per_sec must not be negative")
	}
	if c.Listen.AcceptBurst < 0 {
		errs = append(errs, "listen.accept_burst must not be negative")
	}

	if !isValidTransport(c.Connect.Transport) {
		errs = append(errs, fmt.Sprintf("connect.transport: invalid transport: %s (must be tcp or ws)", c.Connect.Transport))
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, "metrics.address is required when metrics.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

func isValidTransport(transport string) bool {
	switch transport {
	case "tcp", "ws":
		return true
	default:
		return false
	}
}

// String returns a YAML representation of the config, safe to log:
// privy's config carries no secrets (passphrases and keys live only in
// the vault), so unlike the teacher's Config.String() no redaction is
// needed.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
