package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/akonadid/pkg/notify"
	"github.com/cuemby/akonadid/pkg/storage"
	"github.com/cuemby/akonadid/pkg/types"
)

func newSession(t *testing.T) *storage.Session {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	s, err := store.NewSession(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendStoreStoreCompressesToOneAdd(t *testing.T) {
	s := newSession(t)
	ctx := context.Background()

	resID, err := s.GetOrCreateResource(ctx, "res")
	require.NoError(t, err)
	collID, err := s.CreateCollection(ctx, &types.Collection{ResourceID: resID, Name: "c"})
	require.NoError(t, err)

	bus := notify.NewBus()
	bus.Start()
	defer bus.Stop()
	sub := bus.Subscribe(notify.Filter{}, 8)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	c := notify.NewCollector(s, "sess-1", bus)

	itemID, err := s.CreateItem(ctx, &types.PimItem{CollectionID: collID, MimeType: "message/rfc822"}, nil)
	require.NoError(t, err)
	item, err := s.GetItem(ctx, itemID)
	require.NoError(t, err)
	meta := notify.Meta{CollectionID: collID, MimeType: item.MimeType, ResourceID: resID}

	c.ItemAdded(item, meta, true)
	c.ItemChanged(item, meta, true, "PLD:RFC822")
	require.NoError(t, s.UpdateItemFlags(ctx, itemID, []string{"\\Seen"}))
	c.ItemChanged(item, meta, true, "FLAGS")

	require.NoError(t, tx.Commit())

	delivery := <-sub.Ch
	require.Len(t, delivery.Batch.Notifications, 1)
	n := delivery.Batch.Notifications[0]
	require.Equal(t, notify.OpAdd, n.Op)
	require.Equal(t, itemID, n.EntityID)
	require.ElementsMatch(t, []string{"PLD:RFC822", "FLAGS"}, n.Parts)
}

func TestRollbackDropsAllNotifications(t *testing.T) {
	s := newSession(t)
	ctx := context.Background()

	resID, _ := s.GetOrCreateResource(ctx, "res")
	collID, _ := s.CreateCollection(ctx, &types.Collection{ResourceID: resID, Name: "c"})

	bus := notify.NewBus()
	bus.Start()
	defer bus.Stop()
	sub := bus.Subscribe(notify.Filter{}, 8)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	c := notify.NewCollector(s, "sess-1", bus)

	itemID, err := s.CreateItem(ctx, &types.PimItem{CollectionID: collID, MimeType: "m"}, nil)
	require.NoError(t, err)
	item, _ := s.GetItem(ctx, itemID)
	c.ItemAdded(item, notify.Meta{CollectionID: collID, ResourceID: resID}, true)

	require.NoError(t, tx.Rollback())

	select {
	case d := <-sub.Ch:
		t.Fatalf("expected no delivery after rollback, got %+v", d)
	default:
	}
}

// The collector has no relation entity kind, so removing relations emits
// one ModifyRelations notification per item side and no per-relation
// Remove notification.
func TestRelationRemoveWithoutTypeProducesModifyRelationsPerSide(t *testing.T) {
	s := newSession(t)
	ctx := context.Background()

	resID, _ := s.GetOrCreateResource(ctx, "res")
	collID, _ := s.CreateCollection(ctx, &types.Collection{ResourceID: resID, Name: "c"})
	left, _ := s.CreateItem(ctx, &types.PimItem{CollectionID: collID, MimeType: "m"}, nil)
	right, _ := s.CreateItem(ctx, &types.PimItem{CollectionID: collID, MimeType: "m"}, nil)
	t1, _ := s.GetOrCreateRelationType(ctx, "type1")
	t2, _ := s.GetOrCreateRelationType(ctx, "type2")
	require.NoError(t, s.CreateRelation(ctx, &types.Relation{LeftID: left, RightID: right, TypeID: t1}))
	require.NoError(t, s.CreateRelation(ctx, &types.Relation{LeftID: left, RightID: right, TypeID: t2}))

	bus := notify.NewBus()
	bus.Start()
	defer bus.Stop()
	sub := bus.Subscribe(notify.Filter{}, 8)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	c := notify.NewCollector(s, "sess-1", bus)

	removed, err := s.DeleteRelationsByEnds(ctx, left, right)
	require.NoError(t, err)
	require.Len(t, removed, 2)

	leftItem, _ := s.GetItem(ctx, left)
	rightItem, _ := s.GetItem(ctx, right)
	meta := notify.Meta{CollectionID: collID, ResourceID: resID}
	require.Len(t, removed, 2)
	c.ItemModifyRelations(leftItem, meta, true, []string{"type1", "type2"})
	c.ItemModifyRelations(rightItem, meta, true, []string{"type1", "type2"})

	require.NoError(t, tx.Commit())

	delivery := <-sub.Ch
	require.Len(t, delivery.Batch.Notifications, 2)
	for _, n := range delivery.Batch.Notifications {
		require.True(t, n.ModifyRelations)
		require.ElementsMatch(t, []string{"type1", "type2"}, n.Parts)
	}
}
