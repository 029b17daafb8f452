// Package retrieval dispatches on-demand item payload fetches to the
// owning resource process, one job per resource at a time, and
// coalesces requests for the same item that arrive while a job for it
// is already in flight.
package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v5"

	"github.com/cuemby/akonadid/pkg/log"
)

// ResourceClient is the subset of the resource RPC surface the manager
// needs. A real client is a bus-backed stub; tests can supply a fake.
type ResourceClient interface {
	RequestItemDelivery(ctx context.Context, itemID int64, remoteID, mimeType string, parts []string) error
	SynchronizeCollection(ctx context.Context, collectionID int64) error
	Synchronize(ctx context.Context) error
	Close() error
}

// Dialer resolves a resource name to a live client, retried with
// backoff since the resource process may not have registered on the
// bus yet (dial failures are retried; RPC-level failures are not).
type Dialer func(ctx context.Context, resourceName string) (ResourceClient, error)

type request struct {
	itemID       int64
	remoteID     string
	mimeType     string
	resourceName string
	parts        []string
	done         chan error
}

// job is one in-flight ItemRetrievalJob for a resource.
type job struct {
	req *request
}

// Manager is the process-wide retrieval dispatcher. One instance is
// shared by every connection worker.
type Manager struct {
	dial Dialer

	mu      sync.Mutex
	pending map[string][]*request
	current map[string]*job
	clients map[string]ResourceClient

	wake chan struct{}
}

// NewManager creates a Manager. Call Run in a background goroutine to
// start dispatching.
func NewManager(dial Dialer) *Manager {
	return &Manager{
		dial:    dial,
		pending: make(map[string][]*request),
		current: make(map[string]*job),
		clients: make(map[string]ResourceClient),
		wake:    make(chan struct{}, 1),
	}
}

// NotifyServiceLost evicts a cached client for a resource that dropped
// off the bus, mirroring the D-Bus serviceOwnerChanged handler: the
// next dispatch redials instead of reusing a dead connection.
func (m *Manager) NotifyServiceLost(resourceName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[resourceName]; ok {
		c.Close()
		delete(m.clients, resourceName)
	}
}

// RequestItemDelivery enqueues a retrieval request and blocks until it
// (or a coalesced duplicate already covering it) completes.
func (m *Manager) RequestItemDelivery(ctx context.Context, itemID int64, remoteID, mimeType, resourceName string, parts []string) error {
	req := &request{
		itemID:       itemID,
		remoteID:     remoteID,
		mimeType:     mimeType,
		resourceName: resourceName,
		parts:        parts,
		done:         make(chan error, 1),
	}

	m.mu.Lock()
	m.pending[resourceName] = append(m.pending[resourceName], req)
	m.mu.Unlock()

	m.signal()

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run processes the wake channel until ctx is cancelled, dispatching a
// new job for every resource that is currently idle and has pending
// work.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-m.wake:
			m.dispatch(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) dispatch(ctx context.Context) {
	type starter struct {
		resourceName string
		req          *request
	}
	var starters []starter

	m.mu.Lock()
	for name, reqs := range m.pending {
		if len(reqs) == 0 {
			delete(m.pending, name)
			continue
		}
		if _, busy := m.current[name]; busy {
			continue
		}
		req := reqs[0]
		m.pending[name] = reqs[1:]
		m.current[name] = &job{req: req}
		starters = append(starters, starter{resourceName: name, req: req})
	}
	m.mu.Unlock()

	for _, st := range starters {
		go m.runJob(ctx, st.resourceName, st.req)
	}
}

func (m *Manager) runJob(ctx context.Context, resourceName string, req *request) {
	client, err := m.clientFor(ctx, resourceName)
	if err == nil {
		err = client.RequestItemDelivery(ctx, req.itemID, req.remoteID, req.mimeType, req.parts)
	}
	m.jobFinished(resourceName, req, err)
}

func (m *Manager) jobFinished(resourceName string, req *request, err error) {
	m.mu.Lock()
	delete(m.current, resourceName)

	// Coalesce: any other pending request for the same item on this
	// resource is satisfied by the same result instead of triggering
	// its own job.
	remaining := m.pending[resourceName][:0]
	var satisfied []*request
	for _, other := range m.pending[resourceName] {
		if other.itemID == req.itemID {
			satisfied = append(satisfied, other)
			continue
		}
		remaining = append(remaining, other)
	}
	m.pending[resourceName] = remaining
	m.mu.Unlock()

	req.done <- err
	for _, other := range satisfied {
		other.done <- err
	}
	m.signal()
}

func (m *Manager) clientFor(ctx context.Context, resourceName string) (ResourceClient, error) {
	m.mu.Lock()
	if c, ok := m.clients[resourceName]; ok {
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	c, err := backoff.Retry(ctx, func() (ResourceClient, error) {
		return m.dial(ctx, resourceName)
	}, backoff.WithMaxTries(5))
	if err != nil {
		log.WithComponent("retrieval").Warn().Err(err).Str("resource", resourceName).Msg("failed to reach resource")
		return nil, fmt.Errorf("retrieval: dial resource %q: %w", resourceName, err)
	}

	m.mu.Lock()
	m.clients[resourceName] = c
	m.mu.Unlock()
	return c, nil
}
