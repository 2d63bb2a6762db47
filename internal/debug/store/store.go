package store

import (
	"fmt"
	"io"

	"github.com/dshills/stormdbg/internal/debug"
)

// Drivers accepted by Open.
const (
	DriverNone   = "none"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Store is a breakpoint store that can enumerate kinds and be closed.
type Store interface {
	debug.BreakpointStore
	io.Closer
	Kinds() ([]string, error)
}

// Open opens the store named by driver. DriverNone and "" yield nil.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", DriverNone:
		return nil, nil
	case DriverFile:
		if path == "" {
			return nil, fmt.Errorf("store %s: path is required", driver)
		}
		return NewFileStore(path), nil
	case DriverSQLite:
		if path == "" {
			return nil, fmt.Errorf("store %s: path is required", driver)
		}
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown breakpoint store %q", driver)
}
