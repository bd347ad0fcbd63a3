package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// execute runs the CLI with fresh global state.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, cfg, logger, outputFormat, formatter = "", nil, nil, "", nil

	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "database:\n  path: " + filepath.Join(dir, "podhub.db") + "\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseID(tt.in, "show")
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseID(%q) = %d, %v", tt.in, got, err)
		}
	}
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	out, err := execute(t, "init-config", "-c", path)
	if err != nil {
		t.Fatalf("init-config: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("unexpected output: %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	if _, err := execute(t, "init-config", "-c", path); err == nil {
		t.Error("expected error when config already exists")
	}
}

func TestBadFormat(t *testing.T) {
	if _, err := execute(t, "list", "-c", writeConfig(t), "-f", "yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestCommandsOnEmptyCatalog(t *testing.T) {
	path := writeConfig(t)

	for _, args := range [][]string{
		{"list"},
		{"favorites"},
		{"history", "-n", "5"},
		{"stats"},
		{"refresh"},
	} {
		if _, err := execute(t, append(args, "-c", path, "-f", "json")...); err != nil {
			t.Errorf("%v: %v", args, err)
		}
	}

	for _, args := range [][]string{
		{"show", "1"},
		{"play", "1"},
		{"progress", "1", "30"},
		{"progress", "1", "half"},
		{"progress", "1"},
		{"fav", "1"},
		{"remove", "1"},
		{"episodes", "x"},
	} {
		if _, err := execute(t, append(args, "-c", path)...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}
