package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
api_url: https://chat.example.com/api
socket_url: wss://chat.example.com/ws
request_timeout: 5s
ping_interval: 0s
reconnect:
  base_delay: 250ms
  max_delay: 4s
event_buffer: 8
log_level: debug
log_file: /tmp/parley.log
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://chat.example.com/api", cfg.APIURL)
	assert.Equal(t, "wss://chat.example.com/ws", cfg.SocketURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout())
	assert.Equal(t, time.Duration(0), cfg.Ping())
	assert.Equal(t, 250*time.Millisecond, cfg.BaseDelay())
	assert.Equal(t, 4*time.Second, cfg.MaxDelay())
	assert.Equal(t, 8, cfg.EventBuffer)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "/tmp/parley.log", cfg.LogFile)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, DefaultSocketURL, cfg.SocketURL)
	assert.Equal(t, 15*time.Second, cfg.Timeout())
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: http://10.0.0.2:5001/api\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.2:5001/api", cfg.APIURL)
	assert.Equal(t, DefaultSocketURL, cfg.SocketURL)
	assert.Equal(t, DefaultEventBuffer, cfg.EventBuffer)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("PARLEY_TEST_HOST", "chat.internal")

	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: https://${PARLEY_TEST_HOST}/api\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://chat.internal/api", cfg.APIURL)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: [unclosed\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "bad api scheme", mutate: func(c *Config) { c.APIURL = "ftp://x/api" }, errMsg: "api_url"},
		{name: "api missing host", mutate: func(c *Config) { c.APIURL = "http:///api" }, errMsg: "missing host"},
		{name: "bad socket scheme", mutate: func(c *Config) { c.SocketURL = "tcp://x" }, errMsg: "socket_url"},
		{name: "bad timeout", mutate: func(c *Config) { c.RequestTimeout = "soon" }, errMsg: "request_timeout"},
		{name: "negative delay", mutate: func(c *Config) { c.Reconnect.BaseDelay = "-1s" }, errMsg: "negative"},
		{name: "max below base", mutate: func(c *Config) { c.Reconnect.BaseDelay = "5s"; c.Reconnect.MaxDelay = "1s" }, errMsg: "below base_delay"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "loud" }, errMsg: "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PARLEY_DOTENV_TEST=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PARLEY_DOTENV_TEST") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("PARLEY_DOTENV_TEST"))
}
