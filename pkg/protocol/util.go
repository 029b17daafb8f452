package protocol

import (
	"context"
	"errors"
	"strconv"

	"github.com/cuemby/akonadid/pkg/protoerr"
	"github.com/cuemby/akonadid/pkg/storage"
)

func parseID(tok string) (int64, error) {
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, protoerr.Wrap(protoerr.Protocol, "expected a numeric id", err)
	}
	return v, nil
}

// withTx begins a transaction on session, runs fn, and commits on
// success or rolls back (via the deferred Rollback, a no-op once
// Commit has run) on any error fn returns.
func withTx(ctx context.Context, session *storage.Session, fn func() error) error {
	tx, err := session.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(); err != nil {
		return err
	}
	return tx.Commit()
}

// classify turns a storage.ErrNotFound into a protoerr.NotFound (tagged
// NO) so a missing row doesn't close the connection the way an
// unclassified database error does; anything else passes through
// unchanged for the dispatcher's default DatabaseIO handling.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return protoerr.Wrap(protoerr.NotFound, "not found", err)
	}
	return err
}
