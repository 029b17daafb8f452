package notify

import (
	"context"

	"github.com/cuemby/akonadid/pkg/storage"
	"github.com/cuemby/akonadid/pkg/types"
)

// Meta carries whatever the caller already knows about an entity's
// collection/mime-type/resource at the point of the call. Zero values
// mean "unknown"; the collector fills gaps from storage on flush rather
// than querying back immediately.
type Meta struct {
	CollectionID int64
	MimeType     string
	ResourceID   int64
}

type entry struct {
	kind         EntityKind
	op           Op
	entityID     int64
	meta         Meta
	haveMeta     bool
	parts        map[string]bool
	modifyTags   bool
	modifyRel    bool
	dropped      bool
}

// Collector buffers notification intent for one transaction. A handler
// obtains one from the Session it is working against; the collector
// subscribes to that session's commit/rollback hooks so flush (or
// discard) happens automatically. Session hooks fire once, so each flush
// and discard registers the collector again for the session's next
// transaction.
type Collector struct {
	session   *storage.Session
	sessionID string
	bus       *Bus

	order []*entry
	index map[EntityKind]map[int64]*entry
}

// NewCollector creates a collector bound to session and registers its
// flush/discard with the session's transaction hooks.
func NewCollector(session *storage.Session, sessionID string, bus *Bus) *Collector {
	c := &Collector{
		session:   session,
		sessionID: sessionID,
		bus:       bus,
		index: map[EntityKind]map[int64]*entry{
			KindItem:       {},
			KindCollection: {},
		},
	}
	c.arm()
	return c
}

// arm registers flush and discard with the session's transaction hooks.
func (c *Collector) arm() {
	c.session.OnCommit(c.flush)
	c.session.OnRollback(c.discard)
}

func (c *Collector) find(kind EntityKind, id int64) *entry {
	return c.index[kind][id]
}

func (c *Collector) record(kind EntityKind, id int64, op Op, meta Meta, haveMeta bool, parts []string, modifyTags, modifyRel bool) {
	existing := c.find(kind, id)
	if existing == nil {
		e := &entry{kind: kind, op: op, entityID: id, meta: meta, haveMeta: haveMeta, parts: toSet(parts), modifyTags: modifyTags, modifyRel: modifyRel}
		c.order = append(c.order, e)
		c.index[kind][id] = e
		return
	}
	mergeInto(existing, op, meta, haveMeta, parts, modifyTags, modifyRel)
	if existing.dropped {
		delete(c.index[kind], id)
	}
}

// mergeInto applies the compression rules:
//
//	Add + Change  -> Add (merged parts)
//	Add + Remove  -> dropped
//	Change+Change -> Change (union of parts)
//	Change+Remove -> Remove
//	Remove + Add  -> Change
func mergeInto(e *entry, op Op, meta Meta, haveMeta bool, parts []string, modifyTags, modifyRel bool) {
	switch {
	case e.op == OpAdd && op == OpChange:
		e.op = OpAdd
	case e.op == OpAdd && op == OpRemove:
		e.dropped = true
		return
	case e.op == OpChange && op == OpChange:
		e.op = OpChange
	case e.op == OpChange && op == OpRemove:
		e.op = OpRemove
	case e.op == OpRemove && op == OpAdd:
		e.op = OpChange
	default:
		// Add+Add, Remove+Change, Remove+Remove: keep the latest
		// intent; these combinations should not occur from a correctly
		// written handler, but degrade to "use what just happened"
		// rather than panicking.
		e.op = op
	}
	if haveMeta {
		e.meta = meta
		e.haveMeta = true
	}
	for _, p := range parts {
		if e.parts == nil {
			e.parts = make(map[string]bool)
		}
		e.parts[p] = true
	}
	e.modifyTags = e.modifyTags || modifyTags
	e.modifyRel = e.modifyRel || modifyRel
}

func toSet(parts []string) map[string]bool {
	if len(parts) == 0 {
		return nil
	}
	m := make(map[string]bool, len(parts))
	for _, p := range parts {
		m[p] = true
	}
	return m
}

func fromSet(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	return out
}

// ItemAdded records that item was added, optionally within collection
// and with the given mime/resource already known.
func (c *Collector) ItemAdded(item *types.PimItem, meta Meta, haveMeta bool) {
	c.record(KindItem, item.ID, OpAdd, meta, haveMeta, nil, false, false)
}

// ItemChanged records a plain attribute/part change on item.
func (c *Collector) ItemChanged(item *types.PimItem, meta Meta, haveMeta bool, changedParts ...string) {
	c.record(KindItem, item.ID, OpChange, meta, haveMeta, changedParts, false, false)
}

// ItemRemoved records that item was removed. Callers should supply full
// Meta, as the row may already be gone by flush time.
func (c *Collector) ItemRemoved(item *types.PimItem, meta Meta) {
	c.record(KindItem, item.ID, OpRemove, meta, true, nil, false, false)
}

// ItemModifyTags records a tag-set delta riding on an item notification.
func (c *Collector) ItemModifyTags(item *types.PimItem, meta Meta, haveMeta bool, delta []string) {
	c.record(KindItem, item.ID, OpChange, meta, haveMeta, delta, true, false)
}

// ItemModifyRelations records a relation delta riding on an item
// notification.
func (c *Collector) ItemModifyRelations(item *types.PimItem, meta Meta, haveMeta bool, delta []string) {
	c.record(KindItem, item.ID, OpChange, meta, haveMeta, delta, false, true)
}

// CollectionAdded records that a collection was added.
func (c *Collector) CollectionAdded(col *types.Collection) {
	c.record(KindCollection, col.ID, OpAdd, Meta{ResourceID: col.ResourceID}, true, nil, false, false)
}

// CollectionChanged records that a collection's attributes changed.
func (c *Collector) CollectionChanged(col *types.Collection) {
	c.record(KindCollection, col.ID, OpChange, Meta{ResourceID: col.ResourceID}, true, nil, false, false)
}

// CollectionRemoved records that a collection was removed.
func (c *Collector) CollectionRemoved(col *types.Collection) {
	c.record(KindCollection, col.ID, OpRemove, Meta{ResourceID: col.ResourceID}, true, nil, false, false)
}

// flush runs on successful commit: it completes any still-incomplete
// record from storage, builds the compressed batch preserving insertion
// order, and hands it to the bus.
func (c *Collector) flush() {
	defer c.arm()
	if len(c.order) == 0 {
		return
	}
	ctx := context.Background()
	batch := Batch{}
	for _, e := range c.order {
		if e.dropped {
			continue
		}
		c.complete(ctx, e)
		batch.Notifications = append(batch.Notifications, Notification{
			Kind:            e.kind,
			Op:              e.op,
			EntityID:        e.entityID,
			CollectionID:    e.meta.CollectionID,
			MimeType:        e.meta.MimeType,
			ResourceID:      e.meta.ResourceID,
			Parts:           fromSet(e.parts),
			ModifyTags:      e.modifyTags,
			ModifyRelations: e.modifyRel,
			SessionID:       c.sessionID,
		})
	}
	c.reset()
	if len(batch.Notifications) > 0 && c.bus != nil {
		c.bus.Publish(batch)
	}
}

// complete fills in whatever the caller left unknown by looking the
// entity up through the same session, best-effort: a removed entity
// that genuinely has no row left keeps whatever partial Meta it was
// given at call time.
func (c *Collector) complete(ctx context.Context, e *entry) {
	if e.haveMeta {
		return
	}
	switch e.kind {
	case KindItem:
		item, err := c.session.GetItem(ctx, e.entityID)
		if err != nil {
			return
		}
		e.meta.CollectionID = item.CollectionID
		if col, err := c.session.GetCollection(ctx, item.CollectionID); err == nil {
			e.meta.MimeType = item.MimeType
			e.meta.ResourceID = col.ResourceID
		}
	case KindCollection:
		col, err := c.session.GetCollection(ctx, e.entityID)
		if err != nil {
			return
		}
		e.meta.ResourceID = col.ResourceID
	}
}

// discard runs on rollback: the accumulated lists are cleared without
// ever reaching the bus.
func (c *Collector) discard() {
	c.reset()
	c.arm()
}

func (c *Collector) reset() {
	c.order = nil
	c.index = map[EntityKind]map[int64]*entry{
		KindItem:       {},
		KindCollection: {},
	}
}
