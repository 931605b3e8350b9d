// Package config loads the client configuration from YAML with environment
// variable expansion and optional .env files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultAPIURL         = "http://localhost:5001/api"
	DefaultSocketURL      = "ws://localhost:5001/ws"
	DefaultRequestTimeout = "15s"
	DefaultBaseDelay      = "500ms"
	DefaultMaxDelay       = "10s"
	DefaultPingInterval   = "25s"
	DefaultEventBuffer    = 64
	DefaultLogLevel       = "info"
)

// Config is the client configuration.
type Config struct {
	APIURL         string          `yaml:"api_url"`
	SocketURL      string          `yaml:"socket_url"`
	RequestTimeout string          `yaml:"request_timeout"` // Duration string, e.g. "15s".
	PingInterval   string          `yaml:"ping_interval"`   // Websocket keepalive; "0" disables.
	Reconnect      ReconnectConfig `yaml:"reconnect"`
	EventBuffer    int             `yaml:"event_buffer"` // Per-subscriber event channel size.
	LogLevel       string          `yaml:"log_level"`    // debug, info, warn or error.
	LogFile        string          `yaml:"log_file"`     // Empty discards logs.
}

// ReconnectConfig controls the websocket re-dial backoff.
type ReconnectConfig struct {
	BaseDelay string `yaml:"base_delay"`
	MaxDelay  string `yaml:"max_delay"`
}

// Default returns a configuration with every field set to its default.
func Default() Config {
	return Config{}.WithDefaults()
}

// WithDefaults returns a copy with empty fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.SocketURL == "" {
		c.SocketURL = DefaultSocketURL
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.PingInterval == "" {
		c.PingInterval = DefaultPingInterval
	}
	if c.Reconnect.BaseDelay == "" {
		c.Reconnect.BaseDelay = DefaultBaseDelay
	}
	if c.Reconnect.MaxDelay == "" {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return c
}

// Load reads a YAML file and returns a Config with defaults applied.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing. A missing file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	return cfg.WithDefaults(), nil
}

// LoadDotEnv loads environment variables from path. If the file does not
// exist it is silently ignored so that .env files remain optional.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Validate checks that URLs and durations parse and fit together.
func (c Config) Validate() error {
	if err := checkURL("api_url", c.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("socket_url", c.SocketURL, "ws", "wss", "http", "https"); err != nil {
		return err
	}

	durations := []struct{ name, val string }{
		{"request_timeout", c.RequestTimeout},
		{"ping_interval", c.PingInterval},
		{"reconnect.base_delay", c.Reconnect.BaseDelay},
		{"reconnect.max_delay", c.Reconnect.MaxDelay},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.val)
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.name, err)
		}
		if v < 0 {
			return fmt.Errorf("config: %s: must not be negative", d.name)
		}
	}

	if c.MaxDelay() < c.BaseDelay() {
		return fmt.Errorf("config: reconnect.max_delay (%s) is below base_delay (%s)", c.Reconnect.MaxDelay, c.Reconnect.BaseDelay)
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// Timeout returns the HTTP request timeout.
func (c Config) Timeout() time.Duration { return duration(c.RequestTimeout, DefaultRequestTimeout) }

// Ping returns the websocket keepalive interval; zero disables pings.
func (c Config) Ping() time.Duration { return duration(c.PingInterval, DefaultPingInterval) }

// BaseDelay returns the initial reconnect delay.
func (c Config) BaseDelay() time.Duration { return duration(c.Reconnect.BaseDelay, DefaultBaseDelay) }

// MaxDelay returns the reconnect delay cap.
func (c Config) MaxDelay() time.Duration { return duration(c.Reconnect.MaxDelay, DefaultMaxDelay) }

// Level returns the slog level for LogLevel, defaulting to info.
func (c Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}

func duration(val, fallback string) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func checkURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("config: %s: missing host", name)
			}
			return nil
		}
	}
	return fmt.Errorf("config: %s: scheme %q not one of %s", name, u.Scheme, strings.Join(schemes, ", "))
}
