package retrieval

import "context"

// TriggerCollectionSync asks resourceName to synchronize one collection,
// fire-and-forget: the dial and the RPC run on their own goroutine, the
// caller waits for neither, and any error is discarded.
func (m *Manager) TriggerCollectionSync(ctx context.Context, resourceName string, collectionID int64) {
	go func() {
		client, err := m.clientFor(ctx, resourceName)
		if err != nil {
			return
		}
		_ = client.SynchronizeCollection(ctx, collectionID)
	}()
}

// TriggerResourceSync asks resourceName to synchronize its entire
// collection hierarchy; used when a resource's root collection itself
// needs a refresh.
func (m *Manager) TriggerResourceSync(ctx context.Context, resourceName string) {
	go func() {
		client, err := m.clientFor(ctx, resourceName)
		if err != nil {
			return
		}
		_ = client.Synchronize(ctx)
	}()
}

// RequestCollectionSync mirrors requestCollectionSync: syncing a root
// collection also triggers a full resource sync, since the collection
// hierarchy itself may have changed.
func (m *Manager) RequestCollectionSync(ctx context.Context, resourceName string, collectionID int64, isRoot bool) {
	if isRoot {
		m.TriggerResourceSync(ctx, resourceName)
	}
	m.TriggerCollectionSync(ctx, resourceName, collectionID)
}
