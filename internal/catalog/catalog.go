package catalog

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/locator/internal/capability"
	"github.com/xraph/locator/logger"
)

// Recorder receives provider counts after every change.
type Recorder interface {
	CatalogEntries(capability string, count int)
}

// Catalog maps capability identities to their published entries and
// notifies subscribers of changes.
//
// Notifications for one capability are delivered one at a time, in the order
// the changes were made. A change made while notifications for the same
// capability are being delivered, including from inside a listener, is
// queued and delivered by the goroutine already delivering.
type Catalog struct {
	mu   sync.RWMutex
	sets map[string]*providerSet

	seq    atomic.Uint64
	subSeq atomic.Uint64

	observersMu sync.RWMutex
	observers   map[uint64]func(Event)

	logger   logger.Logger
	recorder Recorder
}

type providerSet struct {
	capability string

	mu       sync.Mutex
	entries  []*Entry
	subs     []*Subscription
	queue    []delivery
	draining bool
}

type delivery struct {
	event   Event
	targets []*Subscription
	replay  bool
}

// Option configures a Catalog.
type Option func(*Catalog)

func WithLogger(l logger.Logger) Option {
	return func(c *Catalog) {
		c.logger = l
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Catalog) {
		c.recorder = r
	}
}

// New creates an empty catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		sets:      make(map[string]*providerSet),
		observers: make(map[uint64]func(Event)),
		logger:    logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Catalog) set(capability string) *providerSet {
	c.mu.RLock()
	s, ok := c.sets[capability]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.sets[capability]; ok {
		return s
	}
	s = &providerSet{capability: capability}
	c.sets[capability] = s
	return s
}

func (c *Catalog) lookupSet(capability string) (*providerSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sets[capability]
	return s, ok
}

// Publish adds instance under capability and notifies subscribers.
func (c *Catalog) Publish(capability string, instance any, props capability.Properties, owner string) *Entry {
	return c.PublishFrom(capability, instance, props, owner, nil)
}

// PublishFrom is Publish for an instance built from other entries. lineage
// names the components it derives from; see Entry.DerivedFrom.
func (c *Catalog) PublishFrom(capability string, instance any, props capability.Properties, owner string, lineage []string) *Entry {
	e := &Entry{
		ID:          uuid.NewString(),
		Capability:  capability,
		Instance:    instance,
		Owner:       owner,
		PublishedAt: time.Now(),
		seq:         c.seq.Add(1),
		lineage:     slices.Clone(lineage),
	}
	e.setProperties(props)

	s := c.set(capability)
	s.mu.Lock()
	s.entries = append(s.entries, e)
	c.record(capability, len(s.entries))
	start := s.enqueueLocked(Event{Kind: Added, Entry: e}, s.subs)
	s.mu.Unlock()

	c.logger.Debug("catalog entry published",
		logger.Capability(capability),
		logger.String("entry_id", e.ID),
		logger.String("owner", owner),
	)
	if start {
		c.drain(s)
	}
	return e
}

// Withdraw removes e and notifies subscribers. It reports false when e is
// not currently published.
func (c *Catalog) Withdraw(e *Entry) bool {
	if e == nil {
		return false
	}
	s, ok := c.lookupSet(e.Capability)
	if !ok {
		return false
	}

	s.mu.Lock()
	idx := slices.Index(s.entries, e)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.entries = slices.Delete(s.entries, idx, idx+1)
	c.record(e.Capability, len(s.entries))
	start := s.enqueueLocked(Event{Kind: Removed, Entry: e}, s.subs)
	s.mu.Unlock()

	c.logger.Debug("catalog entry withdrawn",
		logger.Capability(e.Capability),
		logger.String("entry_id", e.ID),
	)
	if start {
		c.drain(s)
	}
	return true
}

// Modify replaces the properties of e and notifies subscribers.
func (c *Catalog) Modify(e *Entry, props capability.Properties) bool {
	if e == nil {
		return false
	}
	s, ok := c.lookupSet(e.Capability)
	if !ok {
		return false
	}

	s.mu.Lock()
	if !slices.Contains(s.entries, e) {
		s.mu.Unlock()
		return false
	}
	e.setProperties(props)
	start := s.enqueueLocked(Event{Kind: Modified, Entry: e}, s.subs)
	s.mu.Unlock()

	if start {
		c.drain(s)
	}
	return true
}

// Entries returns a snapshot of the entries published under capability, in
// publication order.
func (c *Catalog) Entries(capability string) []*Entry {
	s, ok := c.lookupSet(capability)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// First returns the earliest published entry for capability.
func (c *Catalog) First(capability string) (*Entry, bool) {
	s, ok := c.lookupSet(capability)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil, false
	}
	return s.entries[0], true
}

// Len returns the number of entries published under capability.
func (c *Catalog) Len(capability string) int {
	s, ok := c.lookupSet(capability)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Capabilities returns every capability that has had a provider set, sorted.
func (c *Catalog) Capabilities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.sets))
	for name := range c.sets {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Subscribe registers l for changes to capability. Entries already
// published are replayed to l as additions before any later change.
func (c *Catalog) Subscribe(capability string, l Listener) *Subscription {
	sub := &Subscription{
		id:         c.subSeq.Add(1),
		capability: capability,
		listener:   l,
		catalog:    c,
	}

	s := c.set(capability)
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	start := false
	target := []*Subscription{sub}
	for _, e := range s.entries {
		if s.enqueueReplayLocked(Event{Kind: Added, Entry: e}, target) {
			start = true
		}
	}
	s.mu.Unlock()

	if start {
		c.drain(s)
	}
	return sub
}

func (c *Catalog) unsubscribe(sub *Subscription) {
	s, ok := c.lookupSet(sub.capability)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := slices.Index(s.subs, sub); idx >= 0 {
		s.subs = slices.Delete(s.subs, idx, idx+1)
	}
}

// Observe registers fn for changes to every capability and returns a
// function removing it.
func (c *Catalog) Observe(fn func(Event)) func() {
	id := c.subSeq.Add(1)
	c.observersMu.Lock()
	c.observers[id] = fn
	c.observersMu.Unlock()

	return func() {
		c.observersMu.Lock()
		delete(c.observers, id)
		c.observersMu.Unlock()
	}
}

// enqueueLocked queues ev for targets and reports whether the caller must
// drain the queue. s.mu must be held.
func (s *providerSet) enqueueLocked(ev Event, targets []*Subscription) bool {
	return s.enqueue(delivery{event: ev, targets: slices.Clone(targets)})
}

// enqueueReplayLocked queues ev for targets only; observers have already
// seen it.
func (s *providerSet) enqueueReplayLocked(ev Event, targets []*Subscription) bool {
	return s.enqueue(delivery{event: ev, targets: targets, replay: true})
}

func (s *providerSet) enqueue(d delivery) bool {
	s.queue = append(s.queue, d)
	if s.draining {
		return false
	}
	s.draining = true
	return true
}

func (c *Catalog) drain(s *providerSet) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		d := s.queue[0]
		s.queue[0] = delivery{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		for _, sub := range d.targets {
			c.deliver(sub, d.event)
		}
		if !d.replay {
			c.notifyObservers(d.event)
		}
	}
}

func (c *Catalog) deliver(sub *Subscription, ev Event) {
	if sub.closed.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("catalog listener panicked",
				logger.Capability(sub.capability),
				logger.String("event", ev.Kind.String()),
				logger.Error(fmt.Errorf("%v", r)),
			)
		}
	}()
	sub.listener.dispatch(ev)
}

func (c *Catalog) notifyObservers(ev Event) {
	c.observersMu.RLock()
	fns := make([]func(Event), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.observersMu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("catalog observer panicked", logger.Error(fmt.Errorf("%v", r)))
				}
			}()
			fn(ev)
		}()
	}
}

func (c *Catalog) record(capability string, count int) {
	if c.recorder != nil {
		c.recorder.CatalogEntries(capability, count)
	}
}
