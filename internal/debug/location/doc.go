// Package location translates between editor positions and backend positions.
//
// An editor position is a project file path plus a 1-based line. A backend
// position is whatever the debugger backend understands: a fully-qualified
// class name for Java, a (possibly remapped) file path for Go, Python and
// Node.js.
//
// Translation is best-effort. Every Resolver method returns a usable value
// together with an ok flag; ok is false when the position could not be mapped
// through a source root and the value is the raw input carried across
// unchanged. Callers are expected to degrade, for example by showing the raw
// backend target instead of opening an editor.
//
// Resolvers hold no per-session state and are safe to share between sessions.
package location
