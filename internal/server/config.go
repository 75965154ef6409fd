// Package server provides configuration helpers that define runtime defaults,
// file and environment overlays, and validation for the relay.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = ":5000"
	defaultMaxMessageSize  = 4096
	defaultSendBufferSize  = 256
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds the server configuration settings.
type Config struct {
	Port            string        `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	SendBufferSize  int           `yaml:"send_buffer_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
}

func defaultConfig() Config {
	return Config{
		Port:            defaultPort,
		AllowedOrigins:  []string{"*"},
		MaxMessageSize:  defaultMaxMessageSize,
		SendBufferSize:  defaultSendBufferSize,
		ShutdownTimeout: defaultShutdownTimeout,
		MetricsEnabled:  true,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig builds a Config from defaults, an optional YAML file and the
// environment, in that order, and sanitizes the result.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	sanitized := cfg.Sanitize()
	return &sanitized, nil
}

// LoadFile overlays the YAML document at path onto cfg. Keys missing from
// the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from operator-supplied flag
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. Unset or invalid values
// leave the current setting in place.
func (c *Config) ApplyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		c.MaxMessageSize = parseMaxMessageSize(maxSize, c.MaxMessageSize)
	}

	if size := os.Getenv("SEND_BUFFER_SIZE"); size != "" {
		c.SendBufferSize = parseIntValue(size, c.SendBufferSize)
	}

	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		c.ShutdownTimeout = parseDuration(timeout, c.ShutdownTimeout)
	}

	if metrics := os.Getenv("METRICS_ENABLED"); metrics != "" {
		if enabled, err := strconv.ParseBool(metrics); err == nil {
			c.MetricsEnabled = enabled
		}
	}
}

// Sanitize returns a copy of cfg with invalid values replaced by defaults
// and the port normalized to a listen address.
func (c Config) Sanitize() Config {
	c.Port = normalizePort(c.Port)

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}

	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaultSendBufferSize
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}

	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return defaultPort
	}
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration strings ("15s") or whole seconds ("15").
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
