// Package search implements the persistent-search engine: virtual
// collections whose membership is maintained by an external indexer
// collaborator rather than by direct item filing.
package search

import "context"

// HitOp names what an indexer event does to a search's result set.
type HitOp int

const (
	HitsAdded HitOp = iota
	HitsRemoved
	HitsModified
)

// HitEvent is what an Engine emits when its indexer reports a change to
// a running search's result set. URIs are indexer-defined opaque
// identifiers; the manager resolves each to a PimItem id.
type HitEvent struct {
	Handle string
	Op     HitOp
	URIs   []string
}

// Engine is the minimal capability set a search-language plugin
// implements. The manager is the only caller; plugin internals (D-Bus
// session, local index file, RPC to an agent process, ...) stay behind
// this interface.
type Engine interface {
	// Language identifies which persistent searches this engine serves,
	// matched against the language passed to Manager.AddSearch and
	// Manager.RemoveSearch.
	Language() string

	// Valid reports whether the engine's indexer session is usable. An
	// engine that failed to establish one is not fatal to the server;
	// AddSearch calls against it are simply skipped.
	Valid() bool

	// AddSearch registers a query under handle with the indexer.
	// handle is chosen by the caller and echoed back on every HitEvent
	// for this search.
	AddSearch(ctx context.Context, handle, queryString string) error

	// RemoveSearch unregisters a previously added search. Idempotent.
	RemoveSearch(ctx context.Context, handle string) error
}
