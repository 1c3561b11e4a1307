package catalog

import (
	"sync/atomic"
)

// Subscription is a registered Listener for one capability.
type Subscription struct {
	id         uint64
	capability string
	listener   Listener
	catalog    *Catalog
	closed     atomic.Bool
}

// Capability returns the capability the subscription watches.
func (s *Subscription) Capability() string {
	return s.capability
}

// Close stops delivery. Notifications already being delivered may still
// complete; none start after Close returns.
func (s *Subscription) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.catalog.unsubscribe(s)
}
