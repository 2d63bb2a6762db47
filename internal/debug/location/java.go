package location

import "strings"

// JavaExtension is the source file extension handled by JavaResolver.
const JavaExtension = ".java"

// JavaResolver maps Java source files to fully-qualified class names.
//
// A file "<root>/com/acme/Foo.java" maps to "com.acme.Foo". Going back, every
// source root is tried in declaration order and the first existing candidate
// wins; the raw target is tried last.
type JavaResolver struct {
	roots []string
	files FileChecker
}

// NewJavaResolver creates a resolver over the given source roots.
// A nil checker uses the local filesystem.
func NewJavaResolver(roots []string, files FileChecker) *JavaResolver {
	if files == nil {
		files = OSFiles{}
	}
	return &JavaResolver{
		roots: CleanRoots(roots),
		files: files,
	}
}

// Roots returns the source roots in declaration order.
func (r *JavaResolver) Roots() []string {
	return append([]string(nil), r.roots...)
}

// ToBackend maps a .java file under a source root to its qualified name.
func (r *JavaResolver) ToBackend(loc Editor) (Backend, bool) {
	raw := Backend{Target: loc.Path, Line: loc.Line}
	if !loc.Valid() {
		return raw, false
	}

	for _, root := range r.roots {
		rel, ok := under(root, loc.Path)
		if !ok || !strings.HasSuffix(rel, JavaExtension) {
			continue
		}
		fqn := strings.ReplaceAll(strings.TrimSuffix(rel, JavaExtension), "/", ".")
		if fqn == "" {
			continue
		}
		return Backend{Target: fqn, Line: loc.Line}, true
	}
	return raw, false
}

// ToEditor maps a qualified name back to a file under one of the roots.
// Nested class suffixes ("Outer$Inner") resolve to the outer class file.
func (r *JavaResolver) ToEditor(loc Backend) (Editor, bool) {
	raw := Editor{Path: loc.Target, Line: loc.Line}
	if loc.Target == "" {
		return raw, false
	}

	for _, candidate := range r.Candidates(loc.Target) {
		if r.files.Exists(candidate) {
			return Editor{Path: candidate, Line: loc.Line}, true
		}
	}
	return raw, false
}

// Candidates lists the file paths a qualified name may live at, in the
// order they are tried. The raw target is always last.
func (r *JavaResolver) Candidates(target string) []string {
	fqn := target
	if i := strings.IndexByte(fqn, '$'); i >= 0 {
		fqn = fqn[:i]
	}
	suffix := strings.ReplaceAll(fqn, ".", "/") + JavaExtension

	candidates := make([]string, 0, len(r.roots)+1)
	for _, root := range r.roots {
		candidates = append(candidates, join(root, suffix))
	}
	return append(candidates, target)
}
