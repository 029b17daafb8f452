package search_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/akonadid/pkg/notify"
	"github.com/cuemby/akonadid/pkg/search"
	"github.com/cuemby/akonadid/pkg/storage"
	"github.com/cuemby/akonadid/pkg/types"
)

func TestAddSearchFeedAppliesHitsAddedToStorage(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bus := notify.NewBus()
	bus.Start()
	t.Cleanup(bus.Stop)

	setup, err := store.NewSession(ctx)
	require.NoError(t, err)
	resID, err := setup.GetOrCreateResource(ctx, "akonadi_maildir_resource_0")
	require.NoError(t, err)
	sourceColl, err := setup.CreateCollection(ctx, &types.Collection{
		ResourceID: resID,
		Name:       "INBOX",
		MimeTypes:  []string{"message/rfc822"},
	})
	require.NoError(t, err)
	itemID, err := setup.CreateItem(ctx, &types.PimItem{
		CollectionID: sourceColl,
		MimeType:     "message/rfc822",
		RemoteID:     "1",
	}, nil)
	require.NoError(t, err)

	searchColl, err := setup.CreateCollection(ctx, &types.Collection{
		ResourceID: search.SearchRootID,
		ParentID:   ptr(search.SearchRootID),
		Name:       "mysearch",
		Virtual:    true,
		MimeTypes:  []string{"message/rfc822"},
	})
	require.NoError(t, err)
	require.NoError(t, setup.Close())

	mgr := search.NewManager(store, bus)
	engine := search.NewXesamEngine(mgr.Events(), nil)
	mgr.Register(engine)

	runCtx, cancel := context.WithCancel(ctx)
	go mgr.Run(runCtx)
	t.Cleanup(cancel)

	require.NoError(t, mgr.AddSearch(ctx, searchColl, "subject:foo", "xesam"))

	uri := "akonadi://item/" + strconv.FormatInt(itemID, 10)
	require.NoError(t, engine.Feed(strconv.FormatInt(searchColl, 10), search.HitsAdded, []string{uri}))

	require.Eventually(t, func() bool {
		check, err := store.NewSession(ctx)
		require.NoError(t, err)
		defer check.Close()
		ids, err := check.SearchItemIDs(ctx, searchColl)
		require.NoError(t, err)
		return len(ids) == 1 && ids[0] == itemID
	}, time.Second, 5*time.Millisecond)
}

func TestAddSearchSkippedWhenEngineInvalid(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bus := notify.NewBus()
	bus.Start()
	t.Cleanup(bus.Stop)

	mgr := search.NewManager(store, bus)
	engine := search.NewXesamEngine(mgr.Events(), context.DeadlineExceeded)
	mgr.Register(engine)

	require.False(t, engine.Valid())
	require.NoError(t, mgr.AddSearch(ctx, 1, "subject:foo", "xesam"))
}

func ptr(v int64) *int64 { return &v }
