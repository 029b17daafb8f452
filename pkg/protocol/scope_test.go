package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/akonadid/pkg/storage"
	"github.com/cuemby/akonadid/pkg/types"
)

func newTestSession(t *testing.T) *storage.Session {
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

func TestResolveUIDSetRangeAndStar(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	resID, err := s.GetOrCreateResource(ctx, "res")
	require.NoError(t, err)
	collID, err := s.CreateCollection(ctx, &types.Collection{ResourceID: resID, Name: "c"})
	require.NoError(t, err)

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.CreateItem(ctx, &types.PimItem{CollectionID: collID, MimeType: "m"}, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	got, err := ResolveItems(ctx, s, ScopeUID, collID, "1:*")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, got)

	got, err = ResolveItems(ctx, s, ScopeUID, collID, "1,3")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, got)
}

func TestResolveRIDSet(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	resID, err := s.GetOrCreateResource(ctx, "res")
	require.NoError(t, err)
	collID, err := s.CreateCollection(ctx, &types.Collection{ResourceID: resID, Name: "c"})
	require.NoError(t, err)
	id, err := s.CreateItem(ctx, &types.PimItem{CollectionID: collID, MimeType: "m", RemoteID: "r1"}, nil)
	require.NoError(t, err)

	got, err := ResolveItems(ctx, s, ScopeRID, collID, "r1")
	require.NoError(t, err)
	require.Equal(t, []int64{id}, got)
}

func TestResolveTagSet(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	resID, err := s.GetOrCreateResource(ctx, "res")
	require.NoError(t, err)
	collID, err := s.CreateCollection(ctx, &types.Collection{ResourceID: resID, Name: "c"})
	require.NoError(t, err)
	tagID, err := s.GetOrCreateTag(ctx, "important")
	require.NoError(t, err)
	id, err := s.CreateItem(ctx, &types.PimItem{CollectionID: collID, MimeType: "m"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.UpdateItemTags(ctx, id, []int64{tagID}))

	got, err := ResolveItems(ctx, s, ScopeTag, collID, "important")
	require.NoError(t, err)
	require.Equal(t, []int64{id}, got)
}

func TestParseScopeKind(t *testing.T) {
	kind, ok := ParseScopeKind("rid")
	require.True(t, ok)
	require.Equal(t, ScopeRID, kind)

	_, ok = ParseScopeKind("42")
	require.False(t, ok)
}
