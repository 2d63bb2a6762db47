package location

import (
	"path"
	"strings"
	"sync"
)

// Mux selects a resolver by file extension, for projects that mix languages.
type Mux struct {
	mu       sync.RWMutex
	byExt    map[string]Resolver
	order    []Resolver
	fallback Resolver
}

// NewMux creates a mux. The fallback handles unregistered extensions and may be nil.
func NewMux(fallback Resolver) *Mux {
	return &Mux{
		byExt:    make(map[string]Resolver),
		fallback: fallback,
	}
}

// Handle registers r for the given extensions (".java", "kt").
func (m *Mux) Handle(r Resolver, extensions ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	known := false
	for _, existing := range m.order {
		if existing == r {
			known = true
			break
		}
	}
	if !known {
		m.order = append(m.order, r)
	}
	for _, ext := range extensions {
		m.byExt[normalizeExt(ext)] = r
	}
}

// ResolverFor returns the resolver that handles the file, or nil.
func (m *Mux) ResolverFor(file string) Resolver {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.byExt[normalizeExt(path.Ext(file))]; ok {
		return r
	}
	return m.fallback
}

// ToBackend delegates to the resolver registered for the file extension.
func (m *Mux) ToBackend(loc Editor) (Backend, bool) {
	r := m.ResolverFor(loc.Path)
	if r == nil {
		return Backend{Target: loc.Path, Line: loc.Line}, false
	}
	return r.ToBackend(loc)
}

// ToEditor tries each registered resolver in registration order, then the fallback.
func (m *Mux) ToEditor(loc Backend) (Editor, bool) {
	m.mu.RLock()
	resolvers := append([]Resolver(nil), m.order...)
	fallback := m.fallback
	m.mu.RUnlock()

	if fallback != nil {
		resolvers = append(resolvers, fallback)
	}
	for _, r := range resolvers {
		if e, ok := r.ToEditor(loc); ok {
			return e, true
		}
	}
	return Editor{Path: loc.Target, Line: loc.Line}, false
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
