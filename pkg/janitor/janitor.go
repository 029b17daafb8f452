// Package janitor runs the background storage consistency sweep: a
// fixed, ordered sequence of read-only checks over one database
// session, each reporting findings rather than repairing them.
package janitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/akonadid/pkg/log"
	"github.com/cuemby/akonadid/pkg/metrics"
	"github.com/cuemby/akonadid/pkg/payload"
	"github.com/cuemby/akonadid/pkg/storage"
)

// InformFunc receives one human-readable finding, mirroring the
// scriptable information(text) signal. The default implementation logs
// at warn level; a caller (e.g. the `akonadid check` CLI command) can
// supply its own to print findings to stdout instead.
type InformFunc func(text string)

// Janitor owns the background sweep loop.
type Janitor struct {
	store   storage.Store
	payload *payload.Store
	inform  InformFunc
	logger  zerolog.Logger

	mu       sync.Mutex
	stopCh   chan struct{}
	interval time.Duration
}

// New creates a Janitor. store provides sessions for each sweep;
// payloadStore backs the external-file-verification step.
func New(store storage.Store, payloadStore *payload.Store, interval time.Duration, inform InformFunc) *Janitor {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if inform == nil {
		logger := log.WithComponent("janitor")
		inform = func(text string) { logger.Warn().Msg(text) }
	}
	return &Janitor{
		store:    store,
		payload:  payloadStore,
		inform:   inform,
		logger:   log.WithComponent("janitor"),
		stopCh:   make(chan struct{}),
		interval: interval,
	}
}

// Start begins the periodic sweep loop in a background goroutine.
func (j *Janitor) Start() {
	go j.run()
}

// Stop halts the periodic loop. It does not cancel a check in flight.
func (j *Janitor) Stop() {
	close(j.stopCh)
}

func (j *Janitor) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().Dur("interval", j.interval).Msg("janitor started")
	for {
		select {
		case <-ticker.C:
			if err := j.Check(context.Background()); err != nil {
				j.logger.Error().Err(err).Msg("janitor check failed")
			}
		case <-j.stopCh:
			j.logger.Info().Msg("janitor stopped")
			return
		}
	}
}

// Check runs the six ordered consistency sweeps once, in a single
// database session, reporting every finding through inform.
func (j *Janitor) Check(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.JanitorCheckDuration)

	session, err := j.store.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("janitor: open session: %w", err)
	}
	defer session.Close()

	j.checkOrphanCollections(ctx, session)
	j.checkBrokenParentChains(ctx, session)
	j.checkOrphanItems(ctx, session)
	j.checkOrphanParts(ctx, session)
	j.checkOverlappingExternalParts(ctx, session)
	j.checkExternalFiles(ctx, session)
	return nil
}

func (j *Janitor) report(kind, text string) {
	metrics.JanitorFindingsTotal.WithLabelValues(kind).Inc()
	j.inform(text)
}

func (j *Janitor) checkOrphanCollections(ctx context.Context, s *storage.Session) {
	cols, err := s.OrphanCollections(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("orphan collections check failed")
		return
	}
	for _, c := range cols {
		j.report("orphan_collection", fmt.Sprintf("collection %d references missing resource %d", c.ID, c.ResourceID))
	}
}

func (j *Janitor) checkBrokenParentChains(ctx context.Context, s *storage.Session) {
	cols, err := s.AllCollections(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("broken parent chain check failed")
		return
	}
	byID := make(map[int64]*struct {
		ParentID   *int64
		ResourceID int64
	}, len(cols))
	for _, c := range cols {
		byID[c.ID] = &struct {
			ParentID   *int64
			ResourceID int64
		}{ParentID: c.ParentID, ResourceID: c.ResourceID}
	}

	for _, c := range cols {
		current := c.ID
		resourceID := c.ResourceID
		visited := map[int64]bool{current: true}
		for {
			node, ok := byID[current]
			if !ok {
				j.report("broken_parent_chain", fmt.Sprintf("collection %d: parent chain references missing collection %d", c.ID, current))
				break
			}
			if node.ParentID == nil {
				break // reached a root collection, chain is intact
			}
			if node.ResourceID != resourceID {
				j.report("broken_parent_chain", fmt.Sprintf("collection %d: parent chain crosses into resource %d", c.ID, node.ResourceID))
				break
			}
			current = *node.ParentID
			if visited[current] {
				j.report("broken_parent_chain", fmt.Sprintf("collection %d: parent chain cycles back to collection %d", c.ID, current))
				break
			}
			visited[current] = true
		}
	}
}

func (j *Janitor) checkOrphanItems(ctx context.Context, s *storage.Session) {
	items, err := s.OrphanItems(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("orphan items check failed")
		return
	}
	for _, it := range items {
		j.report("orphan_item", fmt.Sprintf("item %d references missing collection %d", it.ID, it.CollectionID))
	}
}

func (j *Janitor) checkOrphanParts(ctx context.Context, s *storage.Session) {
	parts, err := s.OrphanParts(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("orphan parts check failed")
		return
	}
	for _, p := range parts {
		j.report("orphan_part", fmt.Sprintf("part %d references missing item %d", p.ID, p.ItemID))
	}
}

func (j *Janitor) checkOverlappingExternalParts(ctx context.Context, s *storage.Session) {
	byPath, err := s.OverlappingExternalParts(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("overlapping external parts check failed")
		return
	}
	for path, parts := range byPath {
		ids := make([]int64, len(parts))
		for i, p := range parts {
			ids[i] = p.ID
		}
		j.report("overlapping_external_part", fmt.Sprintf("external file %q is referenced by %d parts: %v", path, len(parts), ids))
	}
}

func (j *Janitor) checkExternalFiles(ctx context.Context, s *storage.Session) {
	if j.payload == nil {
		return
	}
	parts, err := s.ExternalParts(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("external file verification failed")
		return
	}

	referenced := make(map[string]bool, len(parts))
	for _, p := range parts {
		referenced[p.Path] = true
		size, err := j.payload.Stat(p.Path)
		if err != nil {
			j.report("missing_external_file", fmt.Sprintf("part %d references missing external file %q", p.ID, p.Path))
			continue
		}
		if size != p.DataSize {
			j.report("external_file_size_mismatch", fmt.Sprintf("part %d external file %q is %d bytes, expected %d", p.ID, p.Path, size, p.DataSize))
		}
	}

	names, err := j.payload.List()
	if err != nil {
		j.logger.Error().Err(err).Msg("external file listing failed")
		return
	}
	for _, name := range names {
		if !referenced[name] {
			j.report("unreferenced_external_file", fmt.Sprintf("Found unreferenced external file: %s", name))
		}
	}
}

// Vacuum performs a best-effort storage reclaim. DuckDB supports VACUUM,
// so this is not a no-op the way it would be for a backend lacking one.
func (j *Janitor) Vacuum(ctx context.Context) error {
	session, err := j.store.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("janitor: open session: %w", err)
	}
	defer session.Close()
	if err := session.Vacuum(ctx); err != nil {
		return fmt.Errorf("janitor: vacuum: %w", err)
	}
	j.logger.Info().Msg("vacuum complete")
	return nil
}
