package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Expected defaults (-want +got):\n%s", diff)
	}
}

func TestParse_OverridesDefaults(t *testing.T) {
	content := []byte(`server:
  command: rust-analyzer
  args: []
  env:
    RUST_LOG: info
timeout: 1m30s
log_level: debug
`)

	cfg, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := Default()
	want.Server.Command = "rust-analyzer"
	want.Server.Args = []string{}
	want.Server.Env = map[string]string{"RUST_LOG": "info"}
	want.Timeout = 90 * time.Second
	want.LogLevel = "debug"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_KeepsUnsetDefaults(t *testing.T) {
	cfg, err := Parse([]byte("markers: [go.work, .git]\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Server.Command != "gopls" {
		t.Errorf("Expected default command, got %q", cfg.Server.Command)
	}

	if diff := cmp.Diff([]string{"go.work", ".git"}, cfg.Markers); diff != "" {
		t.Errorf("Markers mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	if err == nil {
		t.Fatal("Expected error for invalid YAML")
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		t.Errorf("Expected a parse error, got validation error %v", verr)
	}
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		path     string
		contains []string
	}{
		{
			name:     "unknown top-level property",
			content:  "serverr:\n  command: gopls\n",
			path:     "(root)",
			contains: []string{"serverr", "not allowed"},
		},
		{
			name:     "unknown server property",
			content:  "server:\n  cmd: gopls\n",
			path:     "server",
			contains: []string{"cmd", "not allowed"},
		},
		{
			name:     "wrong type",
			content:  "server:\n  args: --verbose\n",
			path:     "server.args",
			contains: []string{"args", "wrong type", "array"},
		},
		{
			name:     "bad log level",
			content:  "log_level: loud\n",
			path:     "log_level",
			contains: []string{"log_level", "debug"},
		},
		{
			name:     "bad timeout",
			content:  "timeout: soon\n",
			path:     "timeout",
			contains: []string{"timeout", "duration"},
		},
		{
			name:     "empty command",
			content:  "server:\n  command: \"\"\n",
			path:     "server.command",
			contains: []string{"command", "empty"},
		},
		{
			name:     "no markers",
			content:  "markers: []\n",
			path:     "markers",
			contains: []string{"markers", "at least 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *ValidationError, got %v", err)
			}

			if verr.Path != tt.path {
				t.Errorf("Expected path %q, got %q", tt.path, verr.Path)
			}

			for _, s := range tt.contains {
				if !strings.Contains(verr.Message, s) {
					t.Errorf("Expected message to contain %q, got: %s", s, verr.Message)
				}
			}
		})
	}
}

func TestValidate_Valid(t *testing.T) {
	verr, err := Validate([]byte(`{"server":{"command":"gopls","args":["serve"]},"timeout":"250ms"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if verr != nil {
		t.Errorf("Expected no validation error, got: %s", verr.Message)
	}
}

func TestValidationError_Error(t *testing.T) {
	root := &ValidationError{Message: "Unknown property 'x' is not allowed", Path: "(root)"}
	if root.Error() != root.Message {
		t.Errorf("Expected bare message for root path, got %q", root.Error())
	}

	nested := &ValidationError{Message: "bad", Path: "server.args"}
	if nested.Error() != "server.args: bad" {
		t.Errorf("Unexpected error string %q", nested.Error())
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Expected defaults without a config file (-want +got):\n%s", diff)
	}

	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("server:\n  command: clangd\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err = Discover(dir)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if cfg.Server.Command != "clangd" {
		t.Errorf("Expected command from config file, got %q", cfg.Server.Command)
	}
}

func TestLoad_ReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("log_level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("Expected error naming %s, got %v", path, err)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestEnvList(t *testing.T) {
	cfg := Default()
	cfg.Server.Env = map[string]string{"B": "2", "A": "1"}

	if diff := cmp.Diff([]string{"A=1", "B=2"}, cfg.EnvList()); diff != "" {
		t.Errorf("EnvList mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_TimeoutPattern(t *testing.T) {
	verr, err := Validate([]byte(`{"timeout":"soon"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if verr == nil {
		t.Fatal("Expected validation error for a non-duration timeout")
	}

	want := "Property 'timeout' must be a duration such as 30s or 1m"
	if verr.Message != want {
		t.Errorf("Expected message %q, got %q", want, verr.Message)
	}
}

func TestParse_OtherCommandDropsDefaultArgs(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  command: rust-analyzer\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(cfg.Server.Args) != 0 {
		t.Errorf("Expected no args for rust-analyzer, got %q", cfg.Server.Args)
	}
}

func TestParse_DefaultCommandKeepsDefaultArgs(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  command: gopls\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if diff := cmp.Diff(DefaultArgs(), cfg.Server.Args); diff != "" {
		t.Errorf("Args mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_ExplicitArgsKept(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  command: clangd\n  args: [--log=verbose]\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if diff := cmp.Diff([]string{"--log=verbose"}, cfg.Server.Args); diff != "" {
		t.Errorf("Args mismatch (-want +got):\n%s", diff)
	}
}

func TestUseCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		command string
		want    []string
	}{
		{name: "other server drops gopls args", args: DefaultArgs(), command: "rust-analyzer", want: nil},
		{name: "gopls keeps its args", args: DefaultArgs(), command: "gopls", want: DefaultArgs()},
		{name: "configured args kept", args: []string{"--stdio"}, command: "pyright-langserver", want: []string{"--stdio"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.Args = tt.args
			cfg.UseCommand(tt.command)

			if cfg.Server.Command != tt.command {
				t.Errorf("Expected command %q, got %q", tt.command, cfg.Server.Command)
			}
			if diff := cmp.Diff(tt.want, cfg.Server.Args); diff != "" {
				t.Errorf("Args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
