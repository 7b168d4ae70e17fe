package shared

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"
)

const memoryDSN = ":memory:"

// NewDatabase opens a connection to a SQLite database at the specified path.
// The path can be ":memory:" for an in-memory database.
//
// File databases run in WAL mode with a busy timeout so a second process can read while one writes.
// In-memory databases are pinned to a single connection, otherwise each pooled connection would see its own empty database.
func NewDatabase(path string) (*sql.DB, error) {
	dsn := path
	if path != memoryDSN && !strings.Contains(path, "?") {
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == memoryDSN {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ConfigureDatabase sets connection pool settings for the database.
// Non-positive values leave the driver defaults untouched.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
}

// WriteLock serializes writers across processes sharing one database file.
//
// A nil *WriteLock is valid and does nothing, which is what in-memory databases use.
type WriteLock struct {
	mu   sync.Mutex // a flock handle is not reentrant across goroutines
	lock *flock.Flock
}

// NewWriteLock returns a lock file next to the database, or nil for in-memory databases.
func NewWriteLock(dbPath string) *WriteLock {
	if dbPath == "" || dbPath == memoryDSN || strings.HasPrefix(dbPath, "file::memory:") {
		return nil
	}
	return &WriteLock{lock: flock.New(dbPath + ".lock")}
}

// Lock blocks until the lock file is held.
func (w *WriteLock) Lock() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	if err := w.lock.Lock(); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to acquire write lock %s: %w", w.lock.Path(), err)
	}
	return nil
}

// Unlock releases the lock file.
func (w *WriteLock) Unlock() error {
	if w == nil {
		return nil
	}
	defer w.mu.Unlock()
	return w.lock.Unlock()
}
