package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Timeout != 15*time.Second {
		t.Errorf("timeout = %s, want 15s", cfg.HTTP.Timeout)
	}
	if cfg.History.DefaultLimit != 50 || cfg.History.MaxLimit != 200 {
		t.Errorf("history limits = %d/%d, want 50/200", cfg.History.DefaultLimit, cfg.History.MaxLimit)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
database:
  path: /tmp/pods.db
http:
  timeout: 5s
history:
  default_limit: 10
  max_limit: 20
platforms:
  netease:
    hosts: [music.163.com, y.music.163.com]
    feed_prefix: https://rss.example/netease/
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/pods.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.HTTP.Timeout != 5*time.Second {
		t.Errorf("timeout = %s, want 5s", cfg.HTTP.Timeout)
	}
	if cfg.History.DefaultLimit != 10 {
		t.Errorf("default limit = %d, want 10", cfg.History.DefaultLimit)
	}
	if len(cfg.Platform.Netease.Hosts) != 2 {
		t.Errorf("netease hosts = %v", cfg.Platform.Netease.Hosts)
	}
	// Untouched sections keep their defaults.
	if cfg.Platform.Apple.LookupURL == "" {
		t.Error("apple lookup URL default lost")
	}
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[database]
path = "/tmp/pods.db"

[server]
addr = ":9090"

[notify]
enabled = true
command = ["notify-send", "podhub"]

[log]
level = "debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format = %q, want json", cfg.Log.Format)
	}
	if !cfg.Notify.Enabled || len(cfg.Notify.Command) != 2 || cfg.Notify.Command[0] != "notify-send" {
		t.Errorf("notify = %+v", cfg.Notify)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PODHUB_DB_PATH", "/var/lib/podhub.db")
	t.Setenv("PODHUB_ADDR", ":7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/var/lib/podhub.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"zero timeout", func(c *Config) { c.HTTP.Timeout = 0 }, "http.timeout"},
		{"default over max", func(c *Config) { c.History.DefaultLimit = 500 }, "exceeds"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero body cap", func(c *Config) { c.HTTP.MaxBodyBytes = 0 }, "max_body_bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("error %q does not mention %q", err, tt.errSub)
			}
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Default().WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Refresh.Interval != 30*time.Minute {
		t.Errorf("refresh interval = %s, want 30m", cfg.Refresh.Interval)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "debug", Format: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %s, want debug", logger.GetLevel())
	}
	logger.WithField("component", "test").Info("hello")
	if !strings.Contains(buf.String(), `"component":"test"`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}
