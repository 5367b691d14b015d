// config.go
// Settings resolve in layers: defaults, then an optional YAML file, then the
// process environment (a .env file is loaded first when present), then any
// flag the operator set explicitly.

package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ClosePolicy decides what a closing connection does to the registry.
type ClosePolicy string

const (
	// ClosePolicyResetAll wipes every registry entry whenever any connection
	// closes.
	ClosePolicyResetAll ClosePolicy = "reset-all"
	// ClosePolicyRemoveSelf drops only the closing connection's entry.
	ClosePolicyRemoveSelf ClosePolicy = "remove-self"
)

// Default values for optional configuration fields.
const (
	DefaultPort            = "8080"
	DefaultPath            = "/"
	DefaultLogLevel        = "info"
	DefaultMaxMessageSize  = 64 * 1024
	DefaultSendBuffer      = 256
	DefaultPingInterval    = 54 * time.Second
	DefaultPongWait        = 60 * time.Second
	DefaultWriteWait       = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

type Config struct {
	Port            string        `yaml:"port"`
	Path            string        `yaml:"path"`
	Debug           bool          `yaml:"debug"`
	LogLevel        string        `yaml:"log_level"`
	ClosePolicy     ClosePolicy   `yaml:"close_policy"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	SendBuffer      int           `yaml:"send_buffer"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongWait        time.Duration `yaml:"pong_wait"`
	WriteWait       time.Duration `yaml:"write_wait"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoadConfig builds a Config from an optional YAML file and the environment.
// Defaults are applied but the result is not validated.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		// Expand ${VAR} environment variables
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, errors.Wrap(err, "parse config yaml")
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "load %s", f)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "parse DEBUG=%q", v)
		}
		c.Debug = debug
	}
	if v := os.Getenv("RELAY_PATH"); v != "" {
		c.Path = v
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("RELAY_CLOSE_POLICY"); v != "" {
		c.ClosePolicy = ClosePolicy(v)
	}
	if v := os.Getenv("RELAY_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = parseOrigins(v)
	}
	if v := os.Getenv("RELAY_MAX_MESSAGE_SIZE"); v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "parse RELAY_MAX_MESSAGE_SIZE=%q", v)
		}
		c.MaxMessageSize = size
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.ClosePolicy == "" {
		c.ClosePolicy = ClosePolicyResetAll
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongWait == 0 {
		c.PongWait = DefaultPongWait
	}
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(strings.TrimPrefix(c.Port, ":"))
	if err != nil || port < 1 || port > 65535 {
		return errors.Errorf("port must be a number between 1 and 65535, got %q", c.Port)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return errors.Errorf("path must start with /, got %q", c.Path)
	}
	if c.Path == healthPath {
		return errors.Errorf("path %q is reserved", healthPath)
	}
	switch c.ClosePolicy {
	case ClosePolicyResetAll, ClosePolicyRemoveSelf:
	default:
		return errors.Errorf("close_policy must be %q or %q, got %q", ClosePolicyResetAll, ClosePolicyRemoveSelf, c.ClosePolicy)
	}
	if c.MaxMessageSize < 1 {
		return errors.New("max_message_size must be >= 1")
	}
	if c.SendBuffer < 1 {
		return errors.New("send_buffer must be >= 1")
	}
	if c.PingInterval >= c.PongWait {
		return errors.Errorf("ping_interval (%s) must be shorter than pong_wait (%s)", c.PingInterval, c.PongWait)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

func (c *Config) timings() pumpTimings {
	return pumpTimings{
		maxMessageSize: c.MaxMessageSize,
		pongWait:       c.PongWait,
		pingInterval:   c.PingInterval,
		writeWait:      c.WriteWait,
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
