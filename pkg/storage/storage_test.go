package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/akonadid/pkg/storage"
	"github.com/cuemby/akonadid/pkg/types"
)

func newTestSession(t *testing.T) (*storage.DuckStore, *storage.Session) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	session, err := store.NewSession(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return store, session
}

func TestCollectionCRUD(t *testing.T) {
	ctx := context.Background()
	_, s := newTestSession(t)

	resID, err := s.GetOrCreateResource(ctx, "akonadi_maildir_resource_0")
	require.NoError(t, err)

	id, err := s.CreateCollection(ctx, &types.Collection{
		ResourceID: resID,
		Name:       "INBOX",
		Enabled:    true,
		Sync:       true,
		Display:    true,
		Index:      true,
		MimeTypes:  []string{"message/rfc822"},
	})
	require.NoError(t, err)

	got, err := s.GetCollection(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "INBOX", got.Name)
	require.Equal(t, []string{"message/rfc822"}, got.MimeTypes)

	got.Name = "Inbox"
	require.NoError(t, s.UpdateCollection(ctx, got))

	reread, err := s.GetCollection(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Inbox", reread.Name)
}

func TestTransactionNestingAndRollback(t *testing.T) {
	ctx := context.Background()
	_, s := newTestSession(t)

	resID, err := s.GetOrCreateResource(ctx, "res")
	require.NoError(t, err)

	outer, err := s.Begin(ctx)
	require.NoError(t, err)

	var collID int64
	func() {
		inner, err := s.Begin(ctx)
		require.NoError(t, err)
		defer inner.Rollback()

		collID, err = s.CreateCollection(ctx, &types.Collection{ResourceID: resID, Name: "c1"})
		require.NoError(t, err)
		// doom the whole stack without committing inner
	}()

	require.Error(t, outer.Commit())

	// the database must not have retained the doomed write once the
	// outermost Commit observes the doom.
	_, err = s.GetCollection(ctx, collID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRelationRemoveByEndsRemovesAllTypes(t *testing.T) {
	ctx := context.Background()
	_, s := newTestSession(t)

	resID, _ := s.GetOrCreateResource(ctx, "res")
	collID, _ := s.CreateCollection(ctx, &types.Collection{ResourceID: resID, Name: "c"})
	left, _ := s.CreateItem(ctx, &types.PimItem{CollectionID: collID, MimeType: "m"}, nil)
	right, _ := s.CreateItem(ctx, &types.PimItem{CollectionID: collID, MimeType: "m"}, nil)

	t1, _ := s.GetOrCreateRelationType(ctx, "type")
	t2, _ := s.GetOrCreateRelationType(ctx, "type2")
	require.NoError(t, s.CreateRelation(ctx, &types.Relation{LeftID: left, RightID: right, TypeID: t1}))
	require.NoError(t, s.CreateRelation(ctx, &types.Relation{LeftID: left, RightID: right, TypeID: t2}))

	removed, err := s.DeleteRelationsByEnds(ctx, left, right)
	require.NoError(t, err)
	require.Len(t, removed, 2)
}
