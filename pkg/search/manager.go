package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/akonadid/pkg/log"
	"github.com/cuemby/akonadid/pkg/notify"
	"github.com/cuemby/akonadid/pkg/storage"
)

// search root: the fixed parent/resource id persistent search
// collections are filed under.
const SearchRootID int64 = 1

// Manager owns the set of active engines and the handle<->collection
// bookkeeping, and drains indexer events into storage + the
// notification bus.
type Manager struct {
	store storage.Store
	bus   *notify.Bus
	sessionID string
	logger    zerolog.Logger

	mu       sync.Mutex
	engines  map[string]Engine
	handles  map[string]int64 // handle -> collection id
	byCollID map[int64]string // collection id -> handle

	events chan HitEvent
	stopCh chan struct{}
}

// NewManager creates an empty manager. Engines are registered
// afterwards via Register, once constructed with m.Events() as their
// send channel.
func NewManager(store storage.Store, bus *notify.Bus) *Manager {
	return &Manager{
		store:     store,
		bus:       bus,
		sessionID: "search-manager",
		logger:    log.WithComponent("search"),
		engines:   make(map[string]Engine),
		handles:   make(map[string]int64),
		byCollID:  make(map[int64]string),
		events:    make(chan HitEvent, 64),
		stopCh:    make(chan struct{}),
	}
}

// Register adds an engine, keyed by its Language().
func (m *Manager) Register(e Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engines[e.Language()] = e
}

// Run drains indexer events until ctx is cancelled or Stop is called.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case ev := <-m.events:
			if err := m.applyEvent(ctx, ev); err != nil {
				m.logger.Error().Err(err).Str("handle", ev.Handle).Msg("search: apply hit event failed")
			}
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts Run.
func (m *Manager) Stop() {
	close(m.stopCh)
}

// AddSearch registers a new persistent search. language selects the
// engine; queryString is opaque to the manager. The handle used to
// correlate future hit events is the collection id, stringified.
func (m *Manager) AddSearch(ctx context.Context, collectionID int64, queryString, language string) error {
	m.mu.Lock()
	engine, ok := m.engines[language]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("search: no engine registered for language %q", language)
	}
	if !engine.Valid() {
		m.logger.Warn().Str("language", language).Msg("search: engine invalid, skipping addSearch")
		return nil
	}

	handle := strconv.FormatInt(collectionID, 10)
	if err := engine.AddSearch(ctx, handle, queryString); err != nil {
		return fmt.Errorf("search: addSearch: %w", err)
	}

	m.mu.Lock()
	m.handles[handle] = collectionID
	m.byCollID[collectionID] = handle
	m.mu.Unlock()
	return nil
}

// RemoveSearch tells the engine registered for language to close the
// search's handle, then forgets the mapping and clears the collection's
// members. Called when a virtual collection is deleted. When language
// names no registered engine, no engine is told; the mapping and members
// are still cleared.
func (m *Manager) RemoveSearch(ctx context.Context, collectionID int64, language string) error {
	m.mu.Lock()
	engine, ok := m.engines[language]
	handle, known := m.byCollID[collectionID]
	m.mu.Unlock()
	if !known {
		return nil
	}
	if ok {
		if err := engine.RemoveSearch(ctx, handle); err != nil {
			return fmt.Errorf("search: removeSearch: %w", err)
		}
	}

	m.mu.Lock()
	delete(m.handles, handle)
	delete(m.byCollID, collectionID)
	m.mu.Unlock()

	session, err := m.store.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("search: open session: %w", err)
	}
	defer session.Close()
	return session.ClearVirtualMembers(ctx, collectionID)
}

// Events exposes the channel engines push HitEvents into; it is wired
// to each engine's events chan<- HitEvent at construction time, kept
// here only so a caller constructing engines can grab the send side.
func (m *Manager) Events() chan<- HitEvent {
	return m.events
}

func (m *Manager) applyEvent(ctx context.Context, ev HitEvent) error {
	m.mu.Lock()
	collectionID, ok := m.handles[ev.Handle]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown search handle %q", ev.Handle)
	}

	session, err := m.store.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	tx, err := session.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	collector := notify.NewCollector(session, m.sessionID, m.bus)

	for _, uri := range ev.URIs {
		itemID, err := resolveURI(uri)
		if err != nil {
			m.logger.Warn().Str("uri", uri).Err(err).Msg("search: could not resolve hit uri")
			continue
		}

		switch ev.Op {
		case HitsAdded:
			if err := session.AddSearchHit(ctx, collectionID, itemID); err != nil {
				return err
			}
			item, err := session.GetItem(ctx, itemID)
			if err != nil {
				return err
			}
			collector.ItemAdded(item, notify.Meta{CollectionID: collectionID}, true)
		case HitsRemoved:
			if err := session.RemoveSearchHit(ctx, collectionID, itemID); err != nil {
				return err
			}
			item, err := session.GetItem(ctx, itemID)
			if err != nil {
				return err
			}
			collector.ItemRemoved(item, notify.Meta{CollectionID: collectionID})
		case HitsModified:
			item, err := session.GetItem(ctx, itemID)
			if err != nil {
				return err
			}
			collector.ItemChanged(item, notify.Meta{CollectionID: collectionID}, true)
		}
	}

	return tx.Commit()
}

// resolveURI extracts the PimItem id an indexer hit refers to. Search
// agents address items by a URI whose last path segment is the numeric
// item id (e.g. "akonadi://item/42"); anything else is rejected rather
// than guessed at.
func resolveURI(uri string) (int64, error) {
	seg := uri
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		seg = uri[i+1:]
	}
	id, err := strconv.ParseInt(seg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an item uri: %q", uri)
	}
	return id, nil
}
