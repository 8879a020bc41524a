package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lazypower/chrysalis/internal/identity"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the chrysalis SQLite database.
type DB struct {
	*sql.DB
	Path string

	// Now is the store's wall clock.
	Now func() time.Time

	owners sync.Map // owner id -> *sync.Mutex
}

// DefaultDBPath returns the default database path: ~/.chrysalis/chrysalis.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".chrysalis", "chrysalis.db"), nil
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return setup(sqlDB, path)
}

// OpenMemory opens an in-memory SQLite database for testing.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return setup(sqlDB, ":memory:")
}

func setup(sqlDB *sql.DB, path string) (*DB, error) {
	// One connection: every :memory: connection is its own database, and a
	// single writer keeps chain-head updates serialized.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, Path: path, Now: time.Now}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA mmap_size=268435456", // 256MB
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// lockOwner serializes chain writes for one owner within this process.
func (db *DB) lockOwner(ownerID string) func() {
	v, _ := db.owners.LoadOrStore(ownerID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (db *DB) nowMillis() int64 {
	return db.Now().UnixMilli()
}

// wrap converts a failed public call into a *identity.StorageError.
func wrap(err *error, op string) {
	if *err != nil {
		*err = identity.Storage(op, *err)
	}
}

func isConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullTime(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := millisToTime(ms.Int64)
	return &t
}
