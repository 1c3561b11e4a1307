package resolver

import (
	"sync"
)

// cache memoizes one instance per implementation identity. Concurrent
// builders of the same identity may both construct; the first insert wins
// and every caller observes the winner.
type cache struct {
	mu      sync.RWMutex
	records map[string]*record
}

type record struct {
	instance  any
	published map[string]bool
}

func newCache() *cache {
	return &cache{records: make(map[string]*record)}
}

func (c *cache) get(impl string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[impl]
	if !ok {
		return nil, false
	}
	return rec.instance, true
}

// insert stores instance unless impl already has one. It returns the
// surviving instance and whether it was instance.
func (c *cache) insert(impl string, instance any) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.records[impl]; ok {
		return rec.instance, false
	}
	c.records[impl] = &record{instance: instance, published: make(map[string]bool)}
	return instance, true
}

// claimPublication reports whether the caller is the first to publish impl
// under capability.
func (c *cache) claimPublication(impl, capability string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[impl]
	if !ok || rec.published[capability] {
		return false
	}
	rec.published[capability] = true
	return true
}

func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// reset drops every record and returns the instances that were held.
func (c *cache) reset() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec.instance)
	}
	c.records = make(map[string]*record)
	return out
}
