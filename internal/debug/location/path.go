package location

// Mapping rewrites a local path prefix to the prefix the backend sees,
// for example a project directory mounted at another path in a container.
type Mapping struct {
	Local  string `json:"local" mapstructure:"local"`
	Remote string `json:"remote" mapstructure:"remote"`
}

// PathResolver serves backends that address sources by file path.
type PathResolver struct {
	roots    []string
	mappings []Mapping
}

// NewPathResolver creates a resolver. Mappings are tried before roots, in order.
func NewPathResolver(roots []string, mappings []Mapping) *PathResolver {
	cleaned := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		local := CleanRoots([]string{m.Local})
		remote := CleanRoots([]string{m.Remote})
		if len(local) == 0 || len(remote) == 0 {
			continue
		}
		cleaned = append(cleaned, Mapping{Local: local[0], Remote: remote[0]})
	}
	return &PathResolver{
		roots:    CleanRoots(roots),
		mappings: cleaned,
	}
}

// ToBackend rewrites the path through the first matching mapping. A path
// under a plain source root is passed through unchanged and still resolves.
func (r *PathResolver) ToBackend(loc Editor) (Backend, bool) {
	raw := Backend{Target: loc.Path, Line: loc.Line}
	if !loc.Valid() {
		return raw, false
	}

	for _, m := range r.mappings {
		if rel, ok := under(m.Local, loc.Path); ok {
			return Backend{Target: join(m.Remote, rel), Line: loc.Line}, true
		}
	}
	for _, root := range r.roots {
		if _, ok := under(root, loc.Path); ok {
			return raw, true
		}
	}
	return raw, false
}

// ToEditor applies the inverse of ToBackend.
func (r *PathResolver) ToEditor(loc Backend) (Editor, bool) {
	raw := Editor{Path: loc.Target, Line: loc.Line}
	if loc.Target == "" {
		return raw, false
	}

	for _, m := range r.mappings {
		if rel, ok := under(m.Remote, loc.Target); ok {
			return Editor{Path: join(m.Local, rel), Line: loc.Line}, true
		}
	}
	for _, root := range r.roots {
		if _, ok := under(root, loc.Target); ok {
			return raw, true
		}
	}
	return raw, false
}
