// Package store persists user breakpoints between sessions.
//
// Both stores implement debug.BreakpointStore and key breakpoints by
// backend kind, so one file or database serves every debugger.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dshills/stormdbg/internal/debug"
)

// fileData is the root structure of a breakpoints file.
type fileData struct {
	Version     int                                `json:"version"`
	SavedAt     time.Time                          `json:"saved_at"`
	Breakpoints map[string][]debug.SavedBreakpoint `json:"breakpoints"`
}

const fileVersion = 1

// FileStore keeps breakpoints of all kinds in one JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file path.
func (s *FileStore) Path() string { return s.path }

// Load returns the breakpoints saved for kind. A missing file is empty.
func (s *FileStore) Load(kind string) ([]debug.SavedBreakpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}
	return data.Breakpoints[kind], nil
}

// Save replaces the breakpoints of kind, leaving other kinds untouched.
// The file is written atomically using a temporary file and rename.
func (s *FileStore) Save(kind string, breakpoints []debug.SavedBreakpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	if len(breakpoints) == 0 {
		delete(data.Breakpoints, kind)
	} else {
		sorted := append([]debug.SavedBreakpoint(nil), breakpoints...)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Location.Less(sorted[j].Location)
		})
		data.Breakpoints[kind] = sorted
	}
	data.Version = fileVersion
	data.SavedAt = time.Now()

	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal breakpoints: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Kinds returns the backend kinds with saved breakpoints, sorted.
func (s *FileStore) Kinds() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}
	kinds := make([]string, 0, len(data.Breakpoints))
	for k := range data.Breakpoints {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read() (*fileData, error) {
	data := &fileData{Breakpoints: make(map[string][]debug.SavedBreakpoint)}

	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, fmt.Errorf("failed to read breakpoints file: %w", err)
	}
	if err := json.Unmarshal(content, data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal breakpoints: %w", err)
	}
	if data.Version > fileVersion {
		return nil, fmt.Errorf("unsupported breakpoints file version: %d (max supported: %d)",
			data.Version, fileVersion)
	}
	if data.Breakpoints == nil {
		data.Breakpoints = make(map[string][]debug.SavedBreakpoint)
	}
	return data, nil
}
