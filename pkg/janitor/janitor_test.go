package janitor_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/akonadid/pkg/janitor"
	"github.com/cuemby/akonadid/pkg/payload"
	"github.com/cuemby/akonadid/pkg/storage"
	"github.com/cuemby/akonadid/pkg/types"
)

type collector struct {
	mu    sync.Mutex
	found []string
}

func (c *collector) inform(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.found = append(c.found, text)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.found)
}

func TestCheckReportsOrphanCollectionAndBrokenParentChain(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s, err := store.NewSession(ctx)
	require.NoError(t, err)

	resID, err := s.GetOrCreateResource(ctx, "akonadi_maildir_resource_0")
	require.NoError(t, err)

	root, err := s.CreateCollection(ctx, &types.Collection{
		ResourceID: resID,
		Name:       "root",
		MimeTypes:  []string{"message/rfc822"},
	})
	require.NoError(t, err)

	missingParent := root + 999
	_, err = s.CreateCollection(ctx, &types.Collection{
		ResourceID: resID,
		ParentID:   &missingParent,
		Name:       "broken",
		MimeTypes:  []string{"message/rfc822"},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	tx, err := store.NewSession(ctx)
	require.NoError(t, err)
	_, err = tx.CreateCollection(ctx, &types.Collection{
		ResourceID: resID + 999,
		Name:       "phantom",
		MimeTypes:  []string{"message/rfc822"},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Close())

	c := &collector{}
	j := janitor.New(store, nil, time.Hour, c.inform)
	require.NoError(t, j.Check(ctx))

	require.Greater(t, c.count(), 0)
}

func TestCheckReportsMissingExternalFile(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s, err := store.NewSession(ctx)
	require.NoError(t, err)

	resID, err := s.GetOrCreateResource(ctx, "akonadi_maildir_resource_0")
	require.NoError(t, err)
	collID, err := s.CreateCollection(ctx, &types.Collection{
		ResourceID: resID,
		Name:       "INBOX",
		MimeTypes:  []string{"message/rfc822"},
	})
	require.NoError(t, err)

	_, err = s.CreateItem(ctx, &types.PimItem{
		CollectionID: collID,
		MimeType:     "message/rfc822",
		RemoteID:     "1",
	}, []*types.Part{
		{Type: "PLD:RFC822", External: true, Path: "missing-file.bin", DataSize: 42},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	payloadStore, err := payload.NewStore(t.TempDir())
	require.NoError(t, err)

	c := &collector{}
	j := janitor.New(store, payloadStore, time.Hour, c.inform)
	require.NoError(t, j.Check(ctx))
	require.Greater(t, c.count(), 0)
}

func TestCheckReportsUnreferencedExternalFile(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	payloadStore, err := payload.NewStore(t.TempDir())
	require.NoError(t, err)
	name, _, err := payloadStore.Write([]byte("zzz"))
	require.NoError(t, err)

	c := &collector{}
	j := janitor.New(store, payloadStore, time.Hour, c.inform)
	require.NoError(t, j.Check(ctx))

	require.Contains(t, c.found, "Found unreferenced external file: "+name)
}

func TestCheckReportsExternalFileSizeMismatch(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s, err := store.NewSession(ctx)
	require.NoError(t, err)
	resID, err := s.GetOrCreateResource(ctx, "akonadi_maildir_resource_0")
	require.NoError(t, err)
	collID, err := s.CreateCollection(ctx, &types.Collection{
		ResourceID: resID,
		Name:       "INBOX",
		MimeTypes:  []string{"message/rfc822"},
	})
	require.NoError(t, err)

	payloadStore, err := payload.NewStore(t.TempDir())
	require.NoError(t, err)
	name, _, err := payloadStore.Write([]byte("actual contents"))
	require.NoError(t, err)

	_, err = s.CreateItem(ctx, &types.PimItem{
		CollectionID: collID,
		MimeType:     "message/rfc822",
		RemoteID:     "1",
	}, []*types.Part{
		{Type: "PLD:RFC822", External: true, Path: name, DataSize: 999},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	c := &collector{}
	j := janitor.New(store, payloadStore, time.Hour, c.inform)
	require.NoError(t, j.Check(ctx))

	found := false
	for _, text := range c.found {
		if strings.Contains(text, "expected 999") {
			found = true
		}
	}
	require.True(t, found)
}

func TestVacuumSucceeds(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	j := janitor.New(store, nil, time.Hour, func(string) {})
	require.NoError(t, j.Vacuum(ctx))
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	j := janitor.New(store, nil, time.Millisecond, func(string) {})
	j.Start()
	time.Sleep(5 * time.Millisecond)
	j.Stop()
}
