package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// execer is satisfied by both *sql.Conn and *sql.Tx, letting entity
// methods run either inside a transaction or directly against the
// session's connection for plain reads.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session is a connection-worker's handle onto the data store: a
// reserved *sql.Conn, nested-transaction bookkeeping, and the CRUD
// surface the command handlers call into.
type Session struct {
	conn *sql.Conn

	mu      sync.Mutex
	depth   int
	doomed  bool
	tx      *sql.Tx
	onCommit   []func()
	onRollback []func()

	flags         *nameCache
	tags          *nameCache
	mimeTypes     *nameCache
	partTypes     *nameCache
	resources     *nameCache
	relationTypes *nameCache
}

func newSession(conn *sql.Conn) *Session {
	return &Session{
		conn:          conn,
		flags:         newNameCache("flags"),
		tags:          newNameCache("tags"),
		mimeTypes:     newNameCache("mime_types"),
		partTypes:     newNameCache("part_types"),
		resources:     newNameCache("resources"),
		relationTypes: newNameCache("relation_types"),
	}
}

// Close releases the underlying connection back to the pool. Any
// in-flight transaction is rolled back first.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.depth > 0 && s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
		s.depth = 0
	}
	s.mu.Unlock()
	return s.conn.Close()
}

// exec returns the executor the current call should run against: the
// live transaction if one is open, the bare connection otherwise (an
// implicit autocommit read).
func (s *Session) exec() execer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

// Transaction is the scoped handle returned by Begin. A handler that
// never calls Commit leaves its writes rolled back once Rollback (or a
// deferred call to it) runs — mirroring the original server's
// destructor-based scoped transaction.
type Transaction struct {
	session *Session
	done    bool
}

// Begin opens (or joins, if already inside one) a transaction on this
// session. Nested Begin calls increment a depth counter; only the
// outermost Commit actually commits to the database.
func (s *Session) Begin(ctx context.Context) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.depth == 0 {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("storage: begin transaction: %w", err)
		}
		s.tx = tx
		s.doomed = false
	}
	s.depth++
	return &Transaction{session: s}, nil
}

// OnCommit registers a callback invoked once the outermost transaction
// on this session commits successfully. Used by pkg/notify to flush a
// collector's buffered notifications exactly on commit.
func (s *Session) OnCommit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = append(s.onCommit, fn)
}

// OnRollback registers a callback invoked once the outermost
// transaction on this session rolls back (explicitly or because an
// inner Rollback doomed the whole stack).
func (s *Session) OnRollback(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRollback = append(s.onRollback, fn)
}

// Commit commits this handle's share of the nesting. It is a no-op if
// Commit or Rollback was already called on this handle.
func (t *Transaction) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.session.commit()
}

// Rollback dooms this handle's transaction stack. Safe to call
// unconditionally via defer after Begin; it is a no-op once Commit has
// already run.
func (t *Transaction) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.session.rollback()
}

func (s *Session) commit() error {
	s.mu.Lock()
	if s.depth == 0 {
		s.mu.Unlock()
		return fmt.Errorf("storage: commit called with no active transaction")
	}
	s.depth--
	if s.depth > 0 {
		// An inner commit defers to the outermost caller.
		s.mu.Unlock()
		return nil
	}
	doomed := s.doomed
	tx := s.tx
	s.tx = nil
	rollbackHooks := s.onRollback
	hooks := s.drainHooks(doomed)
	s.mu.Unlock()

	if doomed {
		tx.Rollback()
		for _, fn := range hooks {
			fn()
		}
		return fmt.Errorf("storage: transaction rolled back: doomed by an inner failure")
	}

	if err := tx.Commit(); err != nil {
		for _, fn := range rollbackHooks {
			fn()
		}
		return fmt.Errorf("storage: commit failed: %w", err)
	}
	for _, fn := range hooks {
		fn()
	}
	return nil
}

func (s *Session) rollback() {
	s.mu.Lock()
	if s.depth == 0 {
		s.mu.Unlock()
		return
	}
	s.doomed = true
	s.depth--
	if s.depth > 0 {
		s.mu.Unlock()
		return
	}
	tx := s.tx
	s.tx = nil
	hooks := s.drainHooks(true)
	s.mu.Unlock()

	if tx != nil {
		tx.Rollback()
	}
	for _, fn := range hooks {
		fn()
	}
}

// drainHooks returns (and clears) the right hook list for the outcome,
// called while s.mu is held.
func (s *Session) drainHooks(rolledBack bool) []func() {
	var hooks []func()
	if rolledBack {
		hooks = s.onRollback
	} else {
		hooks = s.onCommit
	}
	s.onCommit = nil
	s.onRollback = nil
	return hooks
}
