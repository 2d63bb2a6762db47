package backends

import (
	"github.com/dshills/stormdbg/internal/debug"
	"github.com/dshills/stormdbg/internal/debug/descriptor"
	"github.com/dshills/stormdbg/internal/debug/location"
)

// DefaultInspectorPort is the Node.js inspector port used by --inspect.
const DefaultInspectorPort = 9229

// NodeConfig is the address of a Node.js inspector.
type NodeConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Params returns the configuration in transport form.
func (c NodeConfig) Params() map[string]string {
	return hostPortParams(c.Host, c.Port)
}

// Node is the Node.js backend.
type Node struct {
	resolver *location.PathResolver
}

// NewNode creates a Node.js backend.
func NewNode(opts Options) (debug.Backend, error) {
	return &Node{resolver: location.NewPathResolver(opts.SourceRoots, opts.PathMappings)}, nil
}

func (b *Node) Kind() string                { return KindNode }
func (b *Node) Resolver() location.Resolver { return b.resolver }

func (b *Node) Descriptor(params map[string]string) descriptor.Descriptor {
	return descriptor.HostPort("", params)
}

// ParseConfig defaults to 127.0.0.1:9229.
func (b *Node) ParseConfig(params map[string]string) (debug.Config, error) {
	host, port, err := hostPort(params, "127.0.0.1", DefaultInspectorPort)
	if err != nil {
		return nil, err
	}
	return NodeConfig{Host: host, Port: port}, nil
}
