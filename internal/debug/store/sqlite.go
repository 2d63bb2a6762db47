package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/dshills/stormdbg/internal/debug"
)

// schemaVersion is incremented when the breakpoints table changes.
const schemaVersion = 1

// SQLiteStore keeps breakpoints in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path. Use ":memory:" for a
// private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func createSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return err
	}

	var current int
	row := db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'")
	if err := row.Scan(&current); err != nil {
		current = 0
	}
	if current > schemaVersion {
		return fmt.Errorf("unsupported breakpoints schema version: %d (max supported: %d)", current, schemaVersion)
	}
	if current < schemaVersion && current != 0 {
		log.Info().
			Int("old_version", current).
			Int("new_version", schemaVersion).
			Msg("schema version changed, dropping saved breakpoints")
		_, _ = db.Exec("DROP TABLE IF EXISTS breakpoints")
	}

	schema := `
		CREATE TABLE IF NOT EXISTS breakpoints (
			kind TEXT NOT NULL,
			path TEXT NOT NULL,
			line INTEGER NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (kind, path, line)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	_, err := db.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)", schemaVersion)
	return err
}

// Load returns the breakpoints saved for kind, ordered by path and line.
func (s *SQLiteStore) Load(kind string) ([]debug.SavedBreakpoint, error) {
	rows, err := s.db.Query(`SELECT path, line, enabled FROM breakpoints WHERE kind = ? ORDER BY path, line`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query breakpoints: %w", err)
	}
	defer rows.Close()

	var result []debug.SavedBreakpoint
	for rows.Next() {
		var bp debug.SavedBreakpoint
		var enabled int
		if err := rows.Scan(&bp.Location.Path, &bp.Location.Line, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan breakpoint: %w", err)
		}
		bp.Enabled = enabled != 0
		result = append(result, bp)
	}
	return result, rows.Err()
}

// Save replaces the breakpoints of kind in one transaction.
func (s *SQLiteStore) Save(kind string, breakpoints []debug.SavedBreakpoint) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM breakpoints WHERE kind = ?`, kind); err != nil {
		return fmt.Errorf("failed to clear breakpoints: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO breakpoints (kind, path, line, enabled) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, bp := range breakpoints {
		if !bp.Location.Valid() {
			continue
		}
		enabled := 0
		if bp.Enabled {
			enabled = 1
		}
		if _, err := stmt.Exec(kind, bp.Location.Path, bp.Location.Line, enabled); err != nil {
			return fmt.Errorf("failed to save breakpoint %s: %w", bp.Location, err)
		}
	}
	return tx.Commit()
}

// Kinds returns the backend kinds with saved breakpoints, sorted.
func (s *SQLiteStore) Kinds() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT kind FROM breakpoints`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
