// Package config loads stormdbg configuration from a file, the environment
// and built-in defaults, in increasing order of precedence:
//
//	defaults < config file < STORMDBG_* environment variables
//
// Nested keys map to environment variables by replacing dots with
// underscores, e.g. transport.dial_timeout is STORMDBG_TRANSPORT_DIAL_TIMEOUT.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dshills/stormdbg/internal/debug/location"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "STORMDBG"

// Config holds all configuration for stormdbg.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Breakpoints BreakpointsConfig `mapstructure:"breakpoints"`
	Session     SessionConfig     `mapstructure:"session"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// BackendConfig selects the debugger and where its sources live.
type BackendConfig struct {
	// Kind is the backend kind. Empty means detect from the first
	// breakpoint file given on the command line.
	Kind         string             `mapstructure:"kind"`
	SourceRoots  []string           `mapstructure:"source_roots"`
	PathMappings []location.Mapping `mapstructure:"path_mappings"`

	// Params are default connection parameters, e.g. host and port.
	Params map[string]string `mapstructure:"params"`
}

// Transport modes.
const (
	ModeDAP    = "dap"
	ModeRemote = "remote"
)

// TransportConfig selects how commands and events reach the debugger.
type TransportConfig struct {
	Mode string `mapstructure:"mode"`

	// Address is the DAP adapter address for mode dap.
	Address string `mapstructure:"address"`

	// BaseURL is the debugger service URL for mode remote.
	BaseURL string `mapstructure:"base_url"`

	// Token is sent as a bearer token to the debugger service.
	Token string `mapstructure:"token"`

	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Breakpoint store drivers.
const (
	StoreNone   = "none"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// BreakpointsConfig selects where breakpoints persist between sessions.
type BreakpointsConfig struct {
	Store string `mapstructure:"store"`
	Path  string `mapstructure:"path"`
}

// SessionConfig holds session timeouts.
type SessionConfig struct {
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
	EvaluateTimeout time.Duration `mapstructure:"evaluate_timeout"`
}

// Load loads configuration from configPath, or from the default search
// paths when configPath is empty. A missing default config file is not an
// error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("stormdbg")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/stormdbg")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &ParseError{Path: configPath, Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ParseError{Path: v.ConfigFileUsed(), Err: err}
	}

	if err := postProcess(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with only defaults applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	_ = postProcess(&cfg)
	return &cfg
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("backend.kind", "")
	v.SetDefault("backend.source_roots", []string{})

	v.SetDefault("transport.mode", ModeDAP)
	v.SetDefault("transport.address", "127.0.0.1:2345")
	v.SetDefault("transport.base_url", "")
	v.SetDefault("transport.dial_timeout", 10*time.Second)

	v.SetDefault("breakpoints.store", StoreFile)
	v.SetDefault("breakpoints.path", "")

	v.SetDefault("session.command_timeout", 10*time.Second)
	v.SetDefault("session.evaluate_timeout", 30*time.Second)
}

// postProcess fills derived values.
func postProcess(cfg *Config) error {
	cfg.Backend.Kind = strings.ToLower(cfg.Backend.Kind)
	cfg.Transport.Mode = strings.ToLower(cfg.Transport.Mode)
	cfg.Breakpoints.Store = strings.ToLower(cfg.Breakpoints.Store)

	if cfg.Breakpoints.Path == "" && cfg.Breakpoints.Store != StoreNone {
		dir, err := Dir()
		if err != nil {
			return fmt.Errorf("failed to resolve config directory: %w", err)
		}
		name := "breakpoints.json"
		if cfg.Breakpoints.Store == StoreSQLite {
			name = "breakpoints.db"
		}
		cfg.Breakpoints.Path = filepath.Join(dir, name)
	}

	for i, root := range cfg.Backend.SourceRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("failed to resolve source root %q: %w", root, err)
		}
		cfg.Backend.SourceRoots[i] = abs
	}
	return nil
}

// Dir returns the user config directory for stormdbg.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "stormdbg"), nil
}
