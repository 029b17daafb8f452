package retrieval_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/akonadid/pkg/retrieval"
)

type fakeClient struct {
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeClient) RequestItemDelivery(ctx context.Context, itemID int64, remoteID, mimeType string, parts []string) error {
	f.calls.Add(1)
	<-f.release
	return nil
}
func (f *fakeClient) SynchronizeCollection(ctx context.Context, collectionID int64) error { return nil }
func (f *fakeClient) Synchronize(ctx context.Context) error                              { return nil }
func (f *fakeClient) Close() error                                                        { return nil }

func TestCoalescesRequestsForSameItem(t *testing.T) {
	client := &fakeClient{release: make(chan struct{})}
	dial := func(ctx context.Context, name string) (retrieval.ResourceClient, error) {
		return client, nil
	}
	m := retrieval.NewManager(dial)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	results := make(chan error, 2)
	go func() {
		results <- m.RequestItemDelivery(ctx, 1, "r1", "m", "res", []string{"PLD:RFC822"})
	}()

	// Give the first request time to become the in-flight job before
	// the second, duplicate request arrives.
	time.Sleep(20 * time.Millisecond)

	go func() {
		results <- m.RequestItemDelivery(ctx, 1, "r1", "m", "res", []string{"PLD:RFC822"})
	}()

	time.Sleep(20 * time.Millisecond)
	close(client.release)

	require.NoError(t, <-results)
	require.NoError(t, <-results)
	require.Equal(t, int32(1), client.calls.Load())
}
