package backends

import (
	"github.com/dshills/stormdbg/internal/debug"
	"github.com/dshills/stormdbg/internal/debug/descriptor"
	"github.com/dshills/stormdbg/internal/debug/location"
)

// JDBConfig is the connection configuration of a JVM listening for JDWP.
type JDBConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Params returns the configuration in transport form.
func (c JDBConfig) Params() map[string]string {
	return hostPortParams(c.Host, c.Port)
}

// JDB is the Java backend. Breakpoints in .java files are addressed by
// fully-qualified class name and line; other project files (scripts, JSPs,
// generated sources) keep their path.
type JDB struct {
	resolver *location.Mux
}

// NewJDB creates a Java backend.
func NewJDB(opts Options) (debug.Backend, error) {
	java := location.NewJavaResolver(opts.SourceRoots, opts.Files)
	mux := location.NewMux(location.NewPathResolver(java.Roots(), opts.PathMappings))
	mux.Handle(java, location.JavaExtension)
	return &JDB{resolver: mux}, nil
}

// Kind returns "jdb".
func (b *JDB) Kind() string { return KindJDB }

// Resolver returns the per-extension resolver.
func (b *JDB) Resolver() location.Resolver { return b.resolver }

// Descriptor returns an unnamed descriptor with address host:port.
func (b *JDB) Descriptor(params map[string]string) descriptor.Descriptor {
	return descriptor.HostPort("", params)
}

// ParseConfig requires both host and port.
func (b *JDB) ParseConfig(params map[string]string) (debug.Config, error) {
	host, port, err := hostPort(params, "", 0)
	if err != nil {
		return nil, err
	}
	return JDBConfig{Host: host, Port: port}, nil
}
