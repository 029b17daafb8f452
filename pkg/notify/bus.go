package notify

import (
	"sync"
	"sync/atomic"
)

// Filter narrows which notifications within a Batch a subscriber
// receives. A zero-value Filter field means "don't filter on this
// dimension". IgnoreSessionID lets a connection skip its own changes.
type Filter struct {
	Kinds           []EntityKind
	ResourceID      int64
	CollectionID    int64
	MimeType        string
	IgnoreSessionID string
}

func (f Filter) matches(n Notification) bool {
	if f.IgnoreSessionID != "" && n.SessionID == f.IgnoreSessionID {
		return false
	}
	if len(f.Kinds) > 0 {
		ok := false
		for _, k := range f.Kinds {
			if k == n.Kind {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.ResourceID != 0 && f.ResourceID != n.ResourceID {
		return false
	}
	if f.CollectionID != 0 && f.CollectionID != n.CollectionID {
		return false
	}
	if f.MimeType != "" && f.MimeType != n.MimeType {
		return false
	}
	return true
}

// Delivery is one message handed to a subscriber: the filtered batch
// plus how many prior batches this subscriber had to drop because its
// channel was full.
type Delivery struct {
	Batch  Batch
	Missed uint64
}

// Subscription is a live registration with the Bus. Ch delivers
// filtered, compressed batches; Missed reports how many batches were
// dropped for this subscriber due to backpressure before the one it
// most recently received.
type Subscription struct {
	Ch     <-chan Delivery
	ch     chan Delivery
	filter Filter
	missed atomic.Uint64
	id     uint64
}

// Bus fans committed notification batches out to subscribers, same
// shape as a process-wide pub/sub broker: a buffered publish channel
// feeding a single distribution goroutine, with per-subscriber buffered
// channels so one slow reader cannot block another.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64

	publishCh chan Batch
	stopCh    chan struct{}
	once      sync.Once
}

// NewBus creates a Bus. Call Start to begin distribution.
func NewBus() *Bus {
	return &Bus{
		subs:      make(map[uint64]*Subscription),
		publishCh: make(chan Batch, 256),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the distribution loop in a background goroutine.
func (b *Bus) Start() {
	go b.run()
}

// Stop halts distribution and closes every subscriber channel.
func (b *Bus) Stop() {
	b.once.Do(func() { close(b.stopCh) })
}

// Subscribe registers a new subscriber with the given filter and a
// bounded inbox of the given depth.
func (b *Bus) Subscribe(filter Filter, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	ch := make(chan Delivery, bufferSize)
	sub := &Subscription{Ch: ch, ch: ch, filter: filter, id: b.nextID}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Publish enqueues batch for distribution. It never blocks the caller
// for longer than the publish buffer allows; a committing transaction
// must not stall on a slow subscriber.
func (b *Bus) Publish(batch Batch) {
	select {
	case b.publishCh <- batch:
	case <-b.stopCh:
	}
}

func (b *Bus) run() {
	for {
		select {
		case batch := <-b.publishCh:
			b.broadcast(batch)
		case <-b.stopCh:
			b.closeAll()
			return
		}
	}
}

func (b *Bus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

func (b *Bus) broadcast(batch Batch) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		filtered := sub.filterBatch(batch)
		if len(filtered.Notifications) == 0 {
			continue
		}
		delivery := Delivery{Batch: filtered, Missed: sub.missed.Swap(0)}
		select {
		case sub.ch <- delivery:
		default:
			// Channel full: drop the oldest pending delivery to make
			// room and count it as missed so the subscriber can tell
			// it fell behind; the new delivery is counted as missed
			// too only if it still cannot be queued.
			select {
			case <-sub.ch:
				sub.missed.Add(1)
			default:
			}
			select {
			case sub.ch <- delivery:
			default:
				sub.missed.Add(1)
			}
		}
	}
}

func (s *Subscription) filterBatch(batch Batch) Batch {
	var out Batch
	for _, n := range batch.Notifications {
		if s.filter.matches(n) {
			out.Notifications = append(out.Notifications, n)
		}
	}
	return out
}
