package ssh

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridci/gridci/pkg/runner"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("build.example.com", "ci")

	if cfg.Host != "build.example.com" {
		t.Errorf("host = %q", cfg.Host)
	}
	if cfg.Port != 22 {
		t.Errorf("port = %d, want 22", cfg.Port)
	}
	if cfg.User != "ci" {
		t.Errorf("user = %q", cfg.User)
	}
	if cfg.ConnectTimeout != 30*time.Second {
		t.Errorf("connect timeout = %v", cfg.ConnectTimeout)
	}
}

func TestDefaultConfigWithPort(t *testing.T) {
	cfg := DefaultConfig("build.example.com:2222", "ci")

	if cfg.Host != "build.example.com" {
		t.Errorf("host = %q", cfg.Host)
	}
	if cfg.Port != 2222 {
		t.Errorf("port = %d, want 2222", cfg.Port)
	}
	if cfg.Address() != "build.example.com:2222" {
		t.Errorf("address = %q", cfg.Address())
	}
}

func TestConfigValidate(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "id_test")
	if err := os.WriteFile(keyFile, []byte("not a real key"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing host", func(c *Config) { c.Host = "" }, true},
		{"missing user", func(c *Config) { c.User = "" }, true},
		{"bad port", func(c *Config) { c.Port = 70000 }, true},
		{"zero timeout", func(c *Config) { c.ConnectTimeout = 0 }, true},
		{"missing key file", func(c *Config) { c.KeyFile = "/nonexistent/id_rsa" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("host.example.com", "ci")
			cfg.KeyFile = keyFile
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBuildCommandLine(t *testing.T) {
	opts := runner.CommandOptions{
		Env:   []string{"DJANGO=1.8", "PYTHON=2.7"},
		Dir:   "/srv/ci",
		Shell: "/bin/bash",
	}
	got := buildCommandLine("tox -e py27", opts)
	want := `cd '/srv/ci' && env 'DJANGO=1.8' 'PYTHON=2.7' /bin/bash -c 'tox -e py27'`
	if got != want {
		t.Errorf("command line = %q, want %q", got, want)
	}
}

func TestBuildCommandLineDefaults(t *testing.T) {
	got := buildCommandLine("true", runner.CommandOptions{})
	want := runner.DefaultShell + " -c 'true'"
	if got != want {
		t.Errorf("command line = %q, want %q", got, want)
	}
}

func TestShellQuote(t *testing.T) {
	if got := shellQuote("it's"); got != `'it'\''s'` {
		t.Errorf("shellQuote = %q", got)
	}
}
