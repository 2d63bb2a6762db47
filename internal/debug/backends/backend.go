// Package backends provides the language-specific debug backends: location
// resolution, descriptor construction and connection parameter validation.
package backends

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/stormdbg/internal/debug"
	"github.com/dshills/stormdbg/internal/debug/descriptor"
	"github.com/dshills/stormdbg/internal/debug/location"
)

// Backend kinds.
const (
	// KindJDB is the Java debugger over JDWP.
	KindJDB = "jdb"
	// KindDelve is the Go debugger.
	KindDelve = "delve"
	// KindDebugpy is the Python debugger.
	KindDebugpy = "debugpy"
	// KindNode is the Node.js inspector.
	KindNode = "node"
)

// Options configures a backend.
type Options struct {
	// SourceRoots are the project source directories in lookup order.
	SourceRoots []string

	// PathMappings rewrite local paths for path-based backends.
	PathMappings []location.Mapping

	// Files checks candidate source files. Nil uses the file system.
	Files location.FileChecker
}

// Factory creates a backend.
type Factory func(Options) (debug.Backend, error)

// Registry manages available backends.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in backends.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
	}

	r.Register(KindJDB, NewJDB)
	r.Register(KindDelve, NewDelve)
	r.Register(KindDebugpy, NewDebugpy)
	r.Register(KindNode, NewNode)

	return r
}

// Register registers a backend factory, replacing any previous one.
func (r *Registry) Register(kind string, factory Factory) {
	r.factories[strings.ToLower(kind)] = factory
}

// Create creates a backend of the given kind.
func (r *Registry) Create(kind string, opts Options) (debug.Backend, error) {
	factory, ok := r.factories[strings.ToLower(kind)]
	if !ok {
		return nil, fmt.Errorf("unknown backend kind: %s", kind)
	}
	return factory(opts)
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	result := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		result = append(result, kind)
	}
	sort.Strings(result)
	return result
}

// Detect returns the backend kind for a source file, or "" when unknown.
func Detect(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".java":
		return KindJDB
	case ".go":
		return KindDelve
	case ".py":
		return KindDebugpy
	case ".js", ".mjs", ".cjs", ".ts":
		return KindNode
	}
	return ""
}

// hostPort reads and validates host and port parameters. Empty defaults
// make the parameter required.
func hostPort(params map[string]string, defaultHost string, defaultPort int) (string, int, error) {
	host, _ := descriptor.Lookup(params, descriptor.KeyHost)
	host = strings.TrimSpace(host)
	if host == "" {
		host = defaultHost
	}
	if host == "" {
		return "", 0, fmt.Errorf("%w: host is required", debug.ErrInvalidConfig)
	}

	raw, _ := descriptor.Lookup(params, descriptor.KeyPort)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if defaultPort == 0 {
			return "", 0, fmt.Errorf("%w: port is required", debug.ErrInvalidConfig)
		}
		return host, defaultPort, nil
	}

	port, err := parsePort(raw)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: invalid port %q", debug.ErrInvalidConfig, raw)
	}
	return port, nil
}

// hostPortParams renders a host and port in transport form.
func hostPortParams(host string, port int) map[string]string {
	return map[string]string{
		descriptor.KeyHost: host,
		descriptor.KeyPort: strconv.Itoa(port),
	}
}
