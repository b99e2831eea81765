package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the project root.
const FileName = ".lsp-hover.yml"

// DefaultCommand is the server started when none is configured.
const DefaultCommand = "gopls"

// DefaultArgs returns the arguments used with DefaultCommand.
func DefaultArgs() []string {
	return []string{"--logfile", "./log.txt", "serve"}
}

type Server struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Dir     string            `yaml:"dir"`
}

// Config controls which server is started and how the client talks to it.
type Config struct {
	Server    Server        `yaml:"server"`
	Timeout   time.Duration `yaml:"timeout"`
	Markers   []string      `yaml:"markers"`
	LogLevel  string        `yaml:"log_level"`
	TraceFile string        `yaml:"trace_file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: Server{
			Command: DefaultCommand,
			Args:    DefaultArgs(),
		},
		Timeout:  30 * time.Second,
		Markers:  []string{".git"},
		LogLevel: "warn",
	}
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Discover loads FileName from root if it exists, and the defaults otherwise.
func Discover(root string) (*Config, error) {
	path := filepath.Join(root, FileName)

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}

	return Load(path)
}

// Parse validates content against the config schema and decodes it over the
// defaults. Invalid documents fail with a *ValidationError.
func Parse(content []byte) (*Config, error) {
	var data interface{}
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := Default()
	if data == nil {
		return cfg, nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert YAML to JSON: %w", err)
	}

	verr, err := Validate(jsonBytes)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		return nil, verr
	}

	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// gopls arguments mean nothing to another server
	if !hasServerArgs(data) && cfg.Server.Command != DefaultCommand {
		cfg.Server.Args = nil
	}

	return cfg, nil
}

func hasServerArgs(data interface{}) bool {
	doc, ok := data.(map[string]interface{})
	if !ok {
		return false
	}
	server, ok := doc["server"].(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = server["args"]
	return ok
}

// UseCommand switches the server command. Default arguments are dropped when
// the new command is not DefaultCommand; explicitly configured ones are kept.
func (c *Config) UseCommand(command string) {
	if command != DefaultCommand && slices.Equal(c.Server.Args, DefaultArgs()) {
		c.Server.Args = nil
	}
	c.Server.Command = command
}

// EnvList returns Server.Env as sorted KEY=VALUE entries.
func (c *Config) EnvList() []string {
	env := make([]string, 0, len(c.Server.Env))
	for k, v := range c.Server.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
