package config

import (
	"net"
	"net/url"
	"slices"

	"github.com/rs/zerolog"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}
	if err := validateBackend(&cfg.Backend); err != nil {
		return err
	}
	if err := validateTransport(&cfg.Transport); err != nil {
		return err
	}
	if err := validateBreakpoints(&cfg.Breakpoints); err != nil {
		return err
	}
	return validateSession(&cfg.Session)
}

func validateLogging(cfg *LoggingConfig) error {
	if _, err := zerolog.ParseLevel(cfg.Level); err != nil {
		return invalid("logging.level", "unknown level %q", cfg.Level)
	}
	if cfg.Format != "console" && cfg.Format != "json" {
		return invalid("logging.format", "must be console or json, got %q", cfg.Format)
	}
	return nil
}

func validateBackend(cfg *BackendConfig) error {
	for i, m := range cfg.PathMappings {
		if m.Local == "" || m.Remote == "" {
			return invalid("backend.path_mappings", "entry %d needs both local and remote", i)
		}
	}
	return nil
}

func validateTransport(cfg *TransportConfig) error {
	switch cfg.Mode {
	case ModeDAP:
		if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
			return invalid("transport.address", "must be host:port, got %q", cfg.Address)
		}
	case ModeRemote:
		if cfg.BaseURL == "" {
			return invalid("transport.base_url", "is required in remote mode")
		}
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("transport.base_url", "must be an http or https URL, got %q", cfg.BaseURL)
		}
	default:
		return invalid("transport.mode", "must be %s or %s, got %q", ModeDAP, ModeRemote, cfg.Mode)
	}
	if cfg.DialTimeout <= 0 {
		return invalid("transport.dial_timeout", "must be positive")
	}
	return nil
}

func validateBreakpoints(cfg *BreakpointsConfig) error {
	if !slices.Contains([]string{StoreNone, StoreFile, StoreSQLite}, cfg.Store) {
		return invalid("breakpoints.store", "must be none, file or sqlite, got %q", cfg.Store)
	}
	return nil
}

func validateSession(cfg *SessionConfig) error {
	if cfg.CommandTimeout <= 0 {
		return invalid("session.command_timeout", "must be positive")
	}
	if cfg.EvaluateTimeout <= 0 {
		return invalid("session.evaluate_timeout", "must be positive")
	}
	return nil
}
