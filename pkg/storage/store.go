package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Store is the data-store facade: it owns the embedded database handle
// and hands out per-connection Sessions. It is kept as an interface, not
// because another relational backend is imminent, but so handler tests
// can run against an in-memory database without touching a real
// connection pool.
type Store interface {
	// NewSession reserves a dedicated connection for one server
	// connection worker: each worker owns exactly one database session
	// for its lifetime.
	NewSession(ctx context.Context) (*Session, error)
	Close() error
}

// DuckStore is the DuckDB-backed Store implementation.
type DuckStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the DuckDB file at path and
// applies the schema. Pass ":memory:" for an ephemeral, in-process
// database, as the test suite does.
func Open(ctx context.Context, path string) (*DuckStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open duckdb at %q: %w", path, err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &DuckStore{db: db}, nil
}

// NewSession reserves a connection from the pool for exclusive use by one
// caller until the session is closed.
func (s *DuckStore) NewSession(ctx context.Context) (*Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: reserve connection: %w", err)
	}
	return newSession(conn), nil
}

// Close shuts down the underlying database handle. Only the process
// owner (cmd/akonadid) should call this, after every Session has been
// closed.
func (s *DuckStore) Close() error {
	return s.db.Close()
}
