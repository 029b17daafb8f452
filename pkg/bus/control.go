package bus

import (
	"context"
	"time"

	"github.com/cuemby/akonadid/pkg/log"
)

// ControlWatcher polls the well-known Control service and invokes
// onLost once its owner disappears, mirroring serviceOwnerChanged for
// org.freedesktop.Akonadi.Control: losing the supervisor means this
// server commits suicide rather than limping on ownerless.
type ControlWatcher struct {
	registry *Registry
	interval time.Duration
	onLost   func()
}

// NewControlWatcher creates a watcher polling at interval.
func NewControlWatcher(registry *Registry, interval time.Duration, onLost func()) *ControlWatcher {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &ControlWatcher{registry: registry, interval: interval, onLost: onLost}
}

// Run polls until ctx is cancelled. It only fires onLost once: after
// the first loss it stops watching, since the process is expected to
// be exiting.
func (w *ControlWatcher) Run(ctx context.Context) {
	logger := log.WithComponent("bus.control")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	seenOwner := w.registry.Owned(ControlService)
	for {
		select {
		case <-ticker.C:
			alive := w.checkAlive(ctx)
			if seenOwner && !alive {
				logger.Warn().Msg("lost connection to control service, shutting down")
				w.onLost()
				return
			}
			seenOwner = seenOwner || alive
		case <-ctx.Done():
			return
		}
	}
}

func (w *ControlWatcher) checkAlive(ctx context.Context) bool {
	if !w.registry.Owned(ControlService) {
		return false
	}
	conn, err := w.registry.Dial(ctx, ControlService)
	if err != nil {
		return false
	}
	defer conn.Close()
	return true
}

// ServiceOwnerWatcher polls an arbitrary resource service name and
// calls onLost each time an owner it had previously observed
// disappears. No caller in this repository starts one or connects it to
// the retrieval manager's NotifyServiceLost.
type ServiceOwnerWatcher struct {
	registry *Registry
	interval time.Duration
}

// NewServiceOwnerWatcher creates a watcher for resource endpoints.
func NewServiceOwnerWatcher(registry *Registry, interval time.Duration) *ServiceOwnerWatcher {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &ServiceOwnerWatcher{registry: registry, interval: interval}
}

// Watch polls serviceName until ctx is cancelled, calling onLost every
// time a previously-owned name stops resolving.
func (w *ServiceOwnerWatcher) Watch(ctx context.Context, serviceName string, onLost func(string)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	hadOwner := w.registry.Owned(serviceName)
	for {
		select {
		case <-ticker.C:
			owned := w.registry.Owned(serviceName)
			if hadOwner && !owned {
				onLost(serviceName)
			}
			hadOwner = owned
		case <-ctx.Done():
			return
		}
	}
}
