// ABOUTME: Process-wide lazily-initialized SQLite accessor using modernc.org/sqlite.
// ABOUTME: Shared single handle with explicit commit and one-shot teardown.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrClosed indicates use of the accessor after Close.
var ErrClosed = errors.New("database accessor closed")

// DatabaseError wraps a storage failure with the query that caused it, so
// callers can distinguish a constraint violation from an I/O failure via
// errors.As/Is on the underlying cause.
type DatabaseError struct {
	Query string
	Err   error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error: %v (query: %s)", e.Err, e.Query)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Rows is the result of an Execute call: column names in statement order
// and every row's values.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Accessor is the single shared connection to the embedded database. The
// backing file and base schema are created lazily on first use; teardown
// happens exactly once at graceful shutdown. The host constructs one
// Accessor and passes it to every consumer; no collaborator opens its own
// connection.
type Accessor struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	db     *sql.DB
	tx     *sql.Tx
	closed bool
}

// New creates an accessor for the database at path. The connection is not
// opened until the first Execute or Commit.
func New(path string, logger *slog.Logger) *Accessor {
	return &Accessor{
		path:   path,
		logger: logger.With("component", "db"),
	}
}

// ensureOpenLocked opens the database on first use: creates parent
// directories, enables WAL and foreign keys, and applies the base schema.
func (a *Accessor) ensureOpenLocked() error {
	if a.closed {
		return ErrClosed
	}
	if a.db != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", a.path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// One shared handle per process; the pool must not fan out.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return fmt.Errorf("enabling foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS host_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		INSERT OR IGNORE INTO host_meta (key, value) VALUES ('schema_version', '1');
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("creating schema: %w", err)
	}

	a.db = db
	a.logger.Debug("database initialized", "path", a.path)
	return nil
}

// Execute runs a statement inside the current shared transaction, which is
// begun lazily. Both queries and mutations are supported; all result rows
// are fetched eagerly. Failures are wrapped in *DatabaseError carrying the
// query context.
func (a *Accessor) Execute(ctx context.Context, query string, args ...any) (*Rows, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureOpenLocked(); err != nil {
		return nil, &DatabaseError{Query: query, Err: err}
	}

	if a.tx == nil {
		// The transaction outlives the caller's context: it stays open
		// across Execute calls until an explicit Commit, and database/sql
		// rolls back a transaction whose begin-context is cancelled. Only
		// the per-statement query below honors ctx.
		tx, err := a.db.BeginTx(context.Background(), nil)
		if err != nil {
			return nil, &DatabaseError{Query: query, Err: fmt.Errorf("beginning transaction: %w", err)}
		}
		a.tx = tx
	}

	rows, err := a.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &DatabaseError{Query: query, Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &DatabaseError{Query: query, Err: err}
	}

	result := &Rows{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		scan := make([]any, len(columns))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, &DatabaseError{Query: query, Err: err}
		}
		result.Values = append(result.Values, values)
	}
	if err := rows.Err(); err != nil {
		return nil, &DatabaseError{Query: query, Err: err}
	}
	return result, nil
}

// Commit flushes the current transaction. Callers are responsible for
// calling it; the accessor never auto-commits, so a module can batch
// several statements as one transaction. Committing with no open
// transaction is a no-op.
func (a *Accessor) Commit() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.tx == nil {
		return nil
	}

	err := a.tx.Commit()
	a.tx = nil
	if err != nil {
		return &DatabaseError{Query: "COMMIT", Err: err}
	}
	a.logger.Debug("database changes committed")
	return nil
}

// Close commits any pending transaction and closes the handle. Safe to
// call multiple times; only the first call tears down.
func (a *Accessor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if a.db == nil {
		return nil
	}

	var firstErr error
	if a.tx != nil {
		if err := a.tx.Commit(); err != nil {
			firstErr = &DatabaseError{Query: "COMMIT", Err: err}
		}
		a.tx = nil
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	a.db = nil
	a.logger.Debug("database closed")
	return firstErr
}
