package location

import (
	"fmt"
	"os"
	"path"
	"strings"
)

// Editor is a position in editor space.
type Editor struct {
	// Path is the slash-separated project path of the file.
	Path string `json:"path"`

	// Line is the 1-based line number.
	Line int `json:"line"`
}

// String returns "path:line".
func (l Editor) String() string {
	return fmt.Sprintf("%s:%d", l.Path, l.Line)
}

// Valid reports whether the location names a file and a positive line.
func (l Editor) Valid() bool {
	return l.Path != "" && l.Line > 0
}

// Less orders locations by path, then line.
func (l Editor) Less(other Editor) bool {
	if l.Path != other.Path {
		return l.Path < other.Path
	}
	return l.Line < other.Line
}

// Backend is a position in the backend's symbolic space.
type Backend struct {
	// Target is the backend locator: a qualified name, a path or an address.
	Target string `json:"target"`

	// Line is the 1-based line number, zero for address-only locators.
	Line int `json:"line,omitempty"`
}

// String returns "target:line".
func (l Backend) String() string {
	if l.Line == 0 {
		return l.Target
	}
	return fmt.Sprintf("%s:%d", l.Target, l.Line)
}

// Resolver maps positions between editor and backend space.
type Resolver interface {
	// ToBackend maps an editor position to the backend form.
	// When ok is false the returned value carries the raw file path.
	ToBackend(loc Editor) (Backend, bool)

	// ToEditor maps a backend position to an editor position.
	// When ok is false the returned value carries the raw backend target.
	ToEditor(loc Backend) (Editor, bool)
}

// FileChecker reports whether a project file exists.
type FileChecker interface {
	Exists(path string) bool
}

// FileCheckerFunc adapts a function to FileChecker.
type FileCheckerFunc func(path string) bool

// Exists calls f(path).
func (f FileCheckerFunc) Exists(path string) bool {
	return f(path)
}

// OSFiles checks files on the local filesystem.
type OSFiles struct{}

// Exists reports whether path names a regular file.
func (OSFiles) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CleanRoots normalizes source roots, dropping empty entries. Order is kept.
func CleanRoots(roots []string) []string {
	result := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		root = path.Clean(root)
		if root == "/" || root == "." {
			result = append(result, root)
			continue
		}
		result = append(result, strings.TrimSuffix(root, "/"))
	}
	return result
}

// under returns p relative to root when p lies strictly below root.
func under(root, p string) (string, bool) {
	if root == "" || p == "" {
		return "", false
	}
	switch root {
	case "/":
		if strings.HasPrefix(p, "/") && len(p) > 1 {
			return p[1:], true
		}
		return "", false
	case ".":
		if strings.HasPrefix(p, "/") {
			return "", false
		}
		return p, true
	}
	prefix := root + "/"
	if !strings.HasPrefix(p, prefix) || len(p) == len(prefix) {
		return "", false
	}
	return p[len(prefix):], true
}

// join joins a root and a relative path without cleaning away a leading slash.
func join(root, rel string) string {
	switch root {
	case ".", "":
		return rel
	case "/":
		return "/" + rel
	}
	return root + "/" + rel
}
