package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/friedman-econ/friedman/internal/engine"
	"github.com/friedman-econ/friedman/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. FRIEDMAN_PORT.
const EnvPrefix = "FRIEDMAN_"

// Config represents the shell configuration
type Config struct {
	Port       int          `yaml:"port" env:"PORT"`
	Bind       string       `yaml:"bind" env:"BIND"`
	LogLevel   string       `yaml:"log_level" env:"LOG_LEVEL"`
	HistoryDir string       `yaml:"history_dir" env:"HISTORY_DIR"`
	TokenHash  string       `yaml:"token_hash" env:"TOKEN_HASH"` // argon2id; empty disables auth
	TLS        TLSConfig    `yaml:"tls" envPrefix:"TLS_"`
	Engine     EngineConfig `yaml:"engine" envPrefix:"ENGINE_"`
}

// TLSConfig enables HTTPS with a self-signed certificate generated on first
// start when the files are missing.
type TLSConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Cert    string `yaml:"cert" env:"CERT"`
	Key     string `yaml:"key" env:"KEY"`
}

// EngineConfig holds engine discovery and invocation settings
type EngineConfig struct {
	Path              string        `yaml:"path" env:"PATH"` // pins the engine, skipping discovery
	Name              string        `yaml:"name" env:"NAME"`
	ResourceDir       string        `yaml:"resource_dir" env:"RESOURCE_DIR"`
	BinaryDir         string        `yaml:"binary_dir" env:"BINARY_DIR"`
	SidecarDir        string        `yaml:"sidecar_dir" env:"SIDECAR_DIR"`
	EntryScript       string        `yaml:"entry_script" env:"ENTRY_SCRIPT"`
	Runtime           string        `yaml:"runtime" env:"RUNTIME"`
	RuntimeCandidates []string      `yaml:"runtime_candidates" env:"RUNTIME_CANDIDATES"`
	OutputFlag        string        `yaml:"output_flag" env:"OUTPUT_FLAG"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"` // 0 = run to completion
	StreamBuffer      int           `yaml:"stream_buffer" env:"STREAM_BUFFER"`
}

// Defaults
const (
	DefaultPort         = 9310
	DefaultBind         = "127.0.0.1"
	DefaultLogLevel     = "info"
	DefaultEngineName   = "friedman-cli"
	DefaultBinaryDir    = "binaries"
	DefaultSidecarDir   = "sidecar"
	DefaultEntryScript  = "main.jl"
	DefaultRuntime      = "julia"
	DefaultStreamBuffer = 256
)

// Parse parses YAML config data, then applies environment overrides.
func Parse(data []byte) (*Config, error) {
	return parse(data, nil)
}

// parse is Parse with an explicit environment; nil means the process env.
func parse(data []byte, environ map[string]string) (*Config, error) {
	cfg := Default()
	cfg.Engine.RuntimeCandidates = nil

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if cfg.HistoryDir == "" {
		cfg.HistoryDir = DefaultHistoryPath()
	}
	if cfg.Engine.ResourceDir == "" {
		cfg.Engine.ResourceDir = DefaultResourceDir()
	}
	if cfg.TLS.Cert == "" {
		cfg.TLS.Cert = filepath.Join(Root(), "tls", "cert.pem")
	}
	if cfg.TLS.Key == "" {
		cfg.TLS.Key = filepath.Join(Root(), "tls", "key.pem")
	}
	if cfg.Engine.RuntimeCandidates == nil {
		cfg.Engine.RuntimeCandidates = engine.DefaultRuntimeCandidates(cfg.Engine.Runtime)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads config from a file path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault loads path when set, otherwise defaults plus environment.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Parse(nil)
	}
	return Load(path)
}

// Validate checks config validity
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Bind == "" {
		return fmt.Errorf("bind must not be empty")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.TokenHash != "" && !strings.HasPrefix(c.TokenHash, "$argon2id$") {
		return fmt.Errorf("token_hash must be an argon2id hash (see friedman-shell -hash-token)")
	}
	if c.Engine.Name == "" {
		return fmt.Errorf("engine.name must not be empty")
	}
	if c.Engine.OutputFlag == "" {
		return fmt.Errorf("engine.output_flag must not be empty")
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("engine.timeout must not be negative, got %v", c.Engine.Timeout)
	}
	if c.Engine.StreamBuffer < 1 {
		return fmt.Errorf("engine.stream_buffer must be at least 1, got %d", c.Engine.StreamBuffer)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// ResolverConfig converts the engine section for the resolver.
func (c *Config) ResolverConfig() engine.ResolverConfig {
	return engine.ResolverConfig{
		Path:              c.Engine.Path,
		Name:              c.Engine.Name,
		ResourceDir:       c.Engine.ResourceDir,
		BinaryDir:         c.Engine.BinaryDir,
		SidecarDir:        c.Engine.SidecarDir,
		EntryScript:       c.Engine.EntryScript,
		Runtime:           c.Engine.Runtime,
		RuntimeCandidates: c.Engine.RuntimeCandidates,
	}
}

// Runner builds the process runner for the engine section.
func (c *Config) Runner() *engine.Runner {
	return &engine.Runner{OutputFlag: c.Engine.OutputFlag, Timeout: c.Engine.Timeout}
}

// Default returns a config with default values
func Default() *Config {
	return &Config{
		Port:       DefaultPort,
		Bind:       DefaultBind,
		LogLevel:   DefaultLogLevel,
		HistoryDir: DefaultHistoryPath(),
		TLS: TLSConfig{
			Cert: filepath.Join(Root(), "tls", "cert.pem"),
			Key:  filepath.Join(Root(), "tls", "key.pem"),
		},
		Engine: EngineConfig{
			Name:              DefaultEngineName,
			ResourceDir:       DefaultResourceDir(),
			BinaryDir:         DefaultBinaryDir,
			SidecarDir:        DefaultSidecarDir,
			EntryScript:       DefaultEntryScript,
			Runtime:           DefaultRuntime,
			RuntimeCandidates: engine.DefaultRuntimeCandidates(DefaultRuntime),
			OutputFlag:        engine.DefaultOutputFlag,
			StreamBuffer:      DefaultStreamBuffer,
		},
	}
}

// Root returns FRIEDMAN_ROOT, or ~/.friedman when unset.
func Root() string {
	if root := os.Getenv("FRIEDMAN_ROOT"); root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".friedman")
}

// DefaultHistoryPath returns <root>/history.
func DefaultHistoryPath() string {
	return filepath.Join(Root(), "history")
}

// DefaultResourceDir returns the resources directory next to the running
// executable, where bundled engines are installed.
func DefaultResourceDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "resources"
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), "resources")
}
