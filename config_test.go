package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearRelayEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "DEBUG", "RELAY_PATH", "RELAY_LOG_LEVEL", "RELAY_CLOSE_POLICY", "RELAY_ALLOWED_ORIGINS", "RELAY_MAX_MESSAGE_SIZE"} {
		t.Setenv(key, "")
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearRelayEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, DefaultPath, cfg.Path)
	require.Equal(t, ClosePolicyResetAll, cfg.ClosePolicy)
	require.Equal(t, int64(DefaultMaxMessageSize), cfg.MaxMessageSize)
	require.Equal(t, DefaultSendBuffer, cfg.SendBuffer)
	require.Equal(t, DefaultPingInterval, cfg.PingInterval)
	require.Equal(t, DefaultPongWait, cfg.PongWait)
	require.False(t, cfg.Debug)
	require.Empty(t, cfg.AllowedOrigins)
	require.NoError(t, cfg.Validate())
	require.Equal(t, ":8080", cfg.Addr())
}

func TestLoadConfigFromYAMLWithEnvSubstitution(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("TEST_RELAY_ORIGIN", "https://chat.example.com")

	path := writeTempFile(t, "relay.yaml", `
port: "9001"
path: /relay
close_policy: remove-self
allowed_origins:
  - ${TEST_RELAY_ORIGIN}
send_buffer: 32
ping_interval: 20s
pong_wait: 30s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "9001", cfg.Port)
	require.Equal(t, "/relay", cfg.Path)
	require.Equal(t, ClosePolicyRemoveSelf, cfg.ClosePolicy)
	require.Equal(t, []string{"https://chat.example.com"}, cfg.AllowedOrigins)
	require.Equal(t, 32, cfg.SendBuffer)
	require.Equal(t, 20*time.Second, cfg.PingInterval)
	require.Equal(t, 30*time.Second, cfg.PongWait)
	require.Equal(t, DefaultWriteWait, cfg.WriteWait)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("DEBUG", "true")
	t.Setenv("RELAY_CLOSE_POLICY", "remove-self")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("RELAY_MAX_MESSAGE_SIZE", "1024")

	path := writeTempFile(t, "relay.yaml", "port: \"9001\"\nclose_policy: reset-all\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "7000", cfg.Port)
	require.True(t, cfg.Debug)
	require.Equal(t, ClosePolicyRemoveSelf, cfg.ClosePolicy)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	require.Equal(t, int64(1024), cfg.MaxMessageSize)
}

func TestLoadConfigErrors(t *testing.T) {
	clearRelayEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config file")

	_, err = LoadConfig(writeTempFile(t, "bad.yaml", "port: [unclosed"))
	require.ErrorContains(t, err, "parse config yaml")

	t.Setenv("DEBUG", "maybe")
	_, err = LoadConfig("")
	require.ErrorContains(t, err, "parse DEBUG")
}

func TestLoadDotEnv(t *testing.T) {
	clearRelayEnv(t)
	os.Unsetenv("PORT")
	path := writeTempFile(t, ".env", "PORT=6123\n")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")))
	t.Cleanup(func() { os.Unsetenv("PORT") })

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "6123", cfg.Port)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"colon port", func(c *Config) { c.Port = ":9000" }, ""},
		{"bad port", func(c *Config) { c.Port = "http" }, `port must be a number between 1 and 65535, got "http"`},
		{"port out of range", func(c *Config) { c.Port = "70000" }, `port must be a number between 1 and 65535, got "70000"`},
		{"relative path", func(c *Config) { c.Path = "ws" }, `path must start with /, got "ws"`},
		{"reserved path", func(c *Config) { c.Path = "/healthz" }, `path "/healthz" is reserved`},
		{"unknown policy", func(c *Config) { c.ClosePolicy = "forget" }, `close_policy must be "reset-all" or "remove-self", got "forget"`},
		{"negative buffer", func(c *Config) { c.SendBuffer = -1 }, "send_buffer must be >= 1"},
		{"negative size", func(c *Config) { c.MaxMessageSize = -5 }, "max_message_size must be >= 1"},
		{"ping after pong", func(c *Config) { c.PingInterval = time.Minute; c.PongWait = time.Second }, "ping_interval (1m0s) must be shorter than pong_wait (1s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tt.wantErr)
		})
	}
}
