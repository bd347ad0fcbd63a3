// Package config holds podhub's runtime configuration: defaults, YAML or
// TOML loading, environment overrides and validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig  `yaml:"database" toml:"database"`
	HTTP     HTTPConfig      `yaml:"http" toml:"http"`
	History  HistoryConfig   `yaml:"history" toml:"history"`
	Platform PlatformsConfig `yaml:"platforms" toml:"platforms"`
	Server   ServerConfig    `yaml:"server" toml:"server"`
	Refresh  RefreshConfig   `yaml:"refresh" toml:"refresh"`
	Notify   NotifyConfig    `yaml:"notify" toml:"notify"`
	Log      LogConfig       `yaml:"log" toml:"log"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// HTTPConfig bounds every outbound fetch. Requests are attempted once.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" toml:"timeout"`
	UserAgent    string        `yaml:"user_agent" toml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" toml:"max_body_bytes"`
	Cache        bool          `yaml:"cache" toml:"cache"`
}

type HistoryConfig struct {
	DefaultLimit int `yaml:"default_limit" toml:"default_limit"`
	MaxLimit     int `yaml:"max_limit" toml:"max_limit"`
}

// PlatformsConfig lists the share-link platforms that need special handling.
// Any host not listed here falls through to generic page scanning.
type PlatformsConfig struct {
	Xiaoyuzhou PrefixPlatform `yaml:"xiaoyuzhou" toml:"xiaoyuzhou"`
	Netease    PrefixPlatform `yaml:"netease" toml:"netease"`
	Apple      LookupPlatform `yaml:"apple" toml:"apple"`
}

// PrefixPlatform builds the feed URL by appending a platform id to a prefix.
type PrefixPlatform struct {
	Hosts      []string `yaml:"hosts" toml:"hosts"`
	FeedPrefix string   `yaml:"feed_prefix" toml:"feed_prefix"`
}

// LookupPlatform asks a JSON lookup endpoint for the feed URL.
type LookupPlatform struct {
	Hosts     []string `yaml:"hosts" toml:"hosts"`
	LookupURL string   `yaml:"lookup_url" toml:"lookup_url"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

type RefreshConfig struct {
	Interval time.Duration `yaml:"interval" toml:"interval"`
}

// NotifyConfig controls new-episode notifications from the refresh daemon.
// With no command, notifications are printed to stdout.
type NotifyConfig struct {
	Enabled bool     `yaml:"enabled" toml:"enabled"`
	Command []string `yaml:"command" toml:"command"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "text" or "json"
}

// Default returns a config with sensible defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./podhub.db"
	cfg.HTTP.Timeout = 15 * time.Second
	cfg.HTTP.UserAgent = "podhub/1.0 (+https://github.com/matthewjhunter/podhub)"
	cfg.HTTP.MaxBodyBytes = 10 << 20
	cfg.History.DefaultLimit = 50
	cfg.History.MaxLimit = 200
	cfg.Platform.Xiaoyuzhou = PrefixPlatform{
		Hosts:      []string{"xiaoyuzhoufm.com", "xyzfm.space"},
		FeedPrefix: "https://feed.xiaoyuzhoufm.com/podcast/",
	}
	cfg.Platform.Netease = PrefixPlatform{
		Hosts:      []string{"music.163.com"},
		FeedPrefix: "https://podcastrx.netlify.app/feed/netease/",
	}
	cfg.Platform.Apple = LookupPlatform{
		Hosts:     []string{"podcasts.apple.com"},
		LookupURL: "https://itunes.apple.com/lookup",
	}
	cfg.Server.Addr = ":8080"
	cfg.Refresh.Interval = 30 * time.Minute
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads the config file at path on top of the defaults. A missing file
// is not an error. Files ending in .toml are decoded as TOML, anything else
// as YAML. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if strings.EqualFold(filepath.Ext(path), ".toml") {
				if _, err := toml.Decode(string(data), cfg); err != nil {
					return nil, fmt.Errorf("failed to parse config: %w", err)
				}
			} else if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides selected settings from PODHUB_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PODHUB_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("PODHUB_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PODHUB_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate rejects settings that would make fetches unbounded or history
// limits meaningless.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("config: database.path is required")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("config: http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: http.max_body_bytes must be positive, got %d", c.HTTP.MaxBodyBytes)
	}
	if c.History.DefaultLimit <= 0 || c.History.MaxLimit <= 0 {
		return errors.New("config: history limits must be positive")
	}
	if c.History.DefaultLimit > c.History.MaxLimit {
		return fmt.Errorf("config: history.default_limit (%d) exceeds history.max_limit (%d)",
			c.History.DefaultLimit, c.History.MaxLimit)
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("config: refresh.interval must be positive, got %s", c.Refresh.Interval)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

// WriteYAML writes the config in the YAML layout Load understands.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// NewLogger builds the process logger described by the log section.
func (l LogConfig) NewLogger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	if l.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
