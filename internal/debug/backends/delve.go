package backends

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/stormdbg/internal/debug"
	"github.com/dshills/stormdbg/internal/debug/descriptor"
	"github.com/dshills/stormdbg/internal/debug/location"
)

// Delve attach modes.
const (
	DelveModeRemote = "remote"
	DelveModeLocal  = "local"
)

// DelveConfig attaches either to a headless server at host:port or to a
// local process id.
type DelveConfig struct {
	// Mode is "remote" for host:port or "local" for a process id.
	Mode string `json:"mode"`

	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	PID  int    `json:"pid,omitempty"`
}

// Params returns the configuration in transport form.
func (c DelveConfig) Params() map[string]string {
	if c.Mode == DelveModeLocal {
		return map[string]string{
			"mode":            DelveModeLocal,
			descriptor.KeyPID: strconv.Itoa(c.PID),
		}
	}
	params := hostPortParams(c.Host, c.Port)
	params["mode"] = DelveModeRemote
	return params
}

// Delve is the Go backend. Breakpoints are addressed by file path, rewritten
// through the configured path mappings.
type Delve struct {
	resolver *location.PathResolver
}

// NewDelve creates a Go backend.
func NewDelve(opts Options) (debug.Backend, error) {
	return &Delve{resolver: location.NewPathResolver(opts.SourceRoots, opts.PathMappings)}, nil
}

// Kind returns "delve".
func (b *Delve) Kind() string { return KindDelve }

// Resolver returns the path resolver.
func (b *Delve) Resolver() location.Resolver { return b.resolver }

// Descriptor returns "pid N" for local attach and host:port otherwise.
func (b *Delve) Descriptor(params map[string]string) descriptor.Descriptor {
	if pid, ok := descriptor.Lookup(params, descriptor.KeyPID); ok && strings.TrimSpace(pid) != "" {
		if _, hasPort := descriptor.Lookup(params, descriptor.KeyPort); !hasPort {
			return descriptor.Descriptor{Address: "pid " + strings.TrimSpace(pid)}
		}
	}
	return descriptor.HostPort("", params)
}

// ParseConfig accepts a pid or a port. The host defaults to 127.0.0.1.
func (b *Delve) ParseConfig(params map[string]string) (debug.Config, error) {
	if raw, ok := descriptor.Lookup(params, descriptor.KeyPID); ok && strings.TrimSpace(raw) != "" {
		pid, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || pid <= 0 {
			return nil, fmt.Errorf("%w: invalid pid %q", debug.ErrInvalidConfig, raw)
		}
		return DelveConfig{Mode: DelveModeLocal, PID: pid}, nil
	}

	if raw, _ := descriptor.Lookup(params, descriptor.KeyPort); strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: pid or port is required", debug.ErrInvalidConfig)
	}
	host, port, err := hostPort(params, "127.0.0.1", 0)
	if err != nil {
		return nil, err
	}
	return DelveConfig{Mode: DelveModeRemote, Host: host, Port: port}, nil
}
