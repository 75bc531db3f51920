// Package jsoncache persists namespaced, versioned, schema-checked JSON
// values between builds. It is the sole owner of on-disk state: every other
// component goes through a Store and treats persistence as a black box keyed
// by (namespace, key, version).
//
// Reads never fail the caller: a corrupt or stale entry degrades to a cache
// miss so builds can proceed from empty state. Writes surface a typed
// CACHE_WRITE_FAILED error that the caller decides to treat as fatal or not.
package jsoncache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"prism/internal/logging"
)

// DBFileName is the cache database file created inside the cache directory.
const DBFileName = "prism-cache.db"

// DB wraps the cache database connection.
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

// Open opens or creates the cache database under dir, creating dir first if
// needed.
func Open(dir string, logger *logging.Logger) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFileName)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous=NORMAL", // Balance between safety and performance
		"PRAGMA busy_timeout=5000",  // Wait up to 5 seconds on lock
		"PRAGMA temp_store=MEMORY",  // Use memory for temp tables
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	db := &DB{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}

	if err := db.initializeSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return db, nil
}

func (db *DB) initializeSchema() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			version    INTEGER NOT NULL,
			payload    BLOB NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (namespace, key, version)
		)
	`)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the on-disk location of the cache database.
func (db *DB) Path() string {
	return db.dbPath
}

// Stats returns entry counts and payload sizes per namespace.
func (db *DB) Stats() (map[string]NamespaceStats, error) {
	rows, err := db.conn.Query(`
		SELECT namespace, COUNT(*), COALESCE(SUM(LENGTH(payload)), 0)
		FROM cache_entries
		GROUP BY namespace
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache stats: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	stats := make(map[string]NamespaceStats)
	for rows.Next() {
		var ns string
		var s NamespaceStats
		if err := rows.Scan(&ns, &s.Entries, &s.SizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan cache stats: %w", err)
		}
		stats[ns] = s
	}
	return stats, rows.Err()
}

// NamespaceStats summarizes one cache namespace.
type NamespaceStats struct {
	Entries   int   `json:"entries"`
	SizeBytes int64 `json:"sizeBytes"`
}
