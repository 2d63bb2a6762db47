package backends

import (
	"github.com/dshills/stormdbg/internal/debug"
	"github.com/dshills/stormdbg/internal/debug/descriptor"
	"github.com/dshills/stormdbg/internal/debug/location"
)

// DefaultDebugpyPort is the port debugpy listens on by default.
const DefaultDebugpyPort = 5678

// DebugpyConfig is the address of a debugpy listener.
type DebugpyConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Params returns the configuration in transport form.
func (c DebugpyConfig) Params() map[string]string {
	return hostPortParams(c.Host, c.Port)
}

// Debugpy is the Python backend.
type Debugpy struct {
	resolver *location.PathResolver
}

// NewDebugpy creates a Python backend.
func NewDebugpy(opts Options) (debug.Backend, error) {
	return &Debugpy{resolver: location.NewPathResolver(opts.SourceRoots, opts.PathMappings)}, nil
}

func (b *Debugpy) Kind() string                { return KindDebugpy }
func (b *Debugpy) Resolver() location.Resolver { return b.resolver }

func (b *Debugpy) Descriptor(params map[string]string) descriptor.Descriptor {
	return descriptor.HostPort("", params)
}

// ParseConfig defaults to 127.0.0.1:5678.
func (b *Debugpy) ParseConfig(params map[string]string) (debug.Config, error) {
	host, port, err := hostPort(params, "127.0.0.1", DefaultDebugpyPort)
	if err != nil {
		return nil, err
	}
	return DebugpyConfig{Host: host, Port: port}, nil
}
