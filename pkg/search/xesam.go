package search

import (
	"context"
	"fmt"
	"sync"
)

// XesamEngine mirrors the original Xesam D-Bus search engine's shape: a
// handle-to-query map guarded by a mutex, and an indexer session that
// can fail to come up, in which case the engine goes invalid and
// AddSearch becomes a no-op.
type XesamEngine struct {
	mu      sync.Mutex
	queries map[string]string
	events  chan<- HitEvent
	valid   bool
}

// NewXesamEngine creates the engine. dialErr simulates the D-Bus
// session-establishment step failing at startup; pass nil for a healthy
// engine.
func NewXesamEngine(events chan<- HitEvent, dialErr error) *XesamEngine {
	return &XesamEngine{
		queries: make(map[string]string),
		events:  events,
		valid:   dialErr == nil,
	}
}

func (e *XesamEngine) Language() string { return "xesam" }

func (e *XesamEngine) Valid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.valid
}

func (e *XesamEngine) AddSearch(ctx context.Context, handle, queryString string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.valid {
		return nil
	}
	e.queries[handle] = queryString
	return nil
}

func (e *XesamEngine) RemoveSearch(ctx context.Context, handle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.queries, handle)
	return nil
}

// Feed simulates the indexer reporting hits for handle; a real
// deployment would receive this over the Xesam D-Bus signal interface.
// Exported for tests and for any out-of-process bridge driving this
// engine.
func (e *XesamEngine) Feed(handle string, op HitOp, uris []string) error {
	e.mu.Lock()
	_, ok := e.queries[handle]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("search: xesam: unknown handle %q", handle)
	}
	e.events <- HitEvent{Handle: handle, Op: op, URIs: uris}
	return nil
}
