package search

import (
	"context"
	"fmt"
	"sync"
)

// NepomukEngine is the same shape as XesamEngine under a different
// query language and indexer backend; kept as a distinct type (rather
// than one parameterized engine) because the two plugins' real
// collaborators speak unrelated protocols.
type NepomukEngine struct {
	mu      sync.Mutex
	queries map[string]string
	events  chan<- HitEvent
	valid   bool
}

func NewNepomukEngine(events chan<- HitEvent, dialErr error) *NepomukEngine {
	return &NepomukEngine{
		queries: make(map[string]string),
		events:  events,
		valid:   dialErr == nil,
	}
}

func (e *NepomukEngine) Language() string { return "sparql" }

func (e *NepomukEngine) Valid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.valid
}

func (e *NepomukEngine) AddSearch(ctx context.Context, handle, queryString string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.valid {
		return nil
	}
	e.queries[handle] = queryString
	return nil
}

func (e *NepomukEngine) RemoveSearch(ctx context.Context, handle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.queries, handle)
	return nil
}

func (e *NepomukEngine) Feed(handle string, op HitOp, uris []string) error {
	e.mu.Lock()
	_, ok := e.queries[handle]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("search: nepomuk: unknown handle %q", handle)
	}
	e.events <- HitEvent{Handle: handle, Op: op, URIs: uris}
	return nil
}
