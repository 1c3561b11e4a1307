package latch

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/xraph/locator/internal/capability"
	"github.com/xraph/locator/internal/catalog"
	"github.com/xraph/locator/logger"
)

// State is the publication state of a component.
type State int

const (
	Incomplete State = iota
	Published
	Retired
)

func (s State) String() string {
	switch s {
	case Incomplete:
		return "incomplete"
	case Published:
		return "published"
	case Retired:
		return "retired"
	default:
		return "unknown"
	}
}

// PropComponentID is the property carrying the publishing component's ID.
const PropComponentID = "component.id"

// Hooks observe the side effects of a component. They run on the goroutine
// performing the side effect, outside the component lock.
type Hooks struct {
	OnPublish func(c *Component, e *catalog.Entry)
	// OnRepublish replaces OnPublish for a publication that supersedes a
	// live one after a binding change. OnPublish is called when it is nil.
	OnRepublish func(c *Component, e *catalog.Entry)
	OnWithdraw  func(c *Component, e *catalog.Entry)
	OnFault     func(c *Component, err error)
}

type actionKind int

const (
	actPublish actionKind = iota
	actRepublish
	actWithdraw
)

type action struct {
	kind    actionKind
	gen     uint64
	args    []any
	lineage []string
}

// Component keeps the publication of one implementation in the catalog
// consistent with the live availability of its dependencies.
//
// A component never consumes an entry derived from its own instance, so
// components depending on each other's capabilities only publish while
// some provider outside the cycle satisfies it.
//
// Every slot event is decided under mu: the satisfied count, the published
// flag, and the queued side effect change together. Side effects run after
// mu is released, one at a time, in decision order, on whichever goroutine
// finds no other goroutine running them.
type Component struct {
	id      string
	desc    *capability.Descriptor
	catalog *catalog.Catalog
	logger  logger.Logger
	hooks   Hooks

	mu        sync.Mutex
	slots     []*slot
	satisfied int
	published bool
	faulted   bool
	started   bool
	retired   bool
	gen       uint64
	subs      []*catalog.Subscription
	pending   []action
	acting    bool
	entry     *catalog.Entry
	instance  any
}

// Option configures a Component.
type Option func(*Component)

func WithLogger(l logger.Logger) Option {
	return func(c *Component) {
		c.logger = l
	}
}

func WithHooks(h Hooks) Option {
	return func(c *Component) {
		c.hooks = h
	}
}

// New creates an unstarted component for desc.
func New(desc *capability.Descriptor, cat *catalog.Catalog, opts ...Option) *Component {
	c := &Component{
		id:      uuid.NewString(),
		desc:    desc,
		catalog: cat,
		logger:  logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(
		logger.ComponentID(c.id),
		logger.Implementation(desc.Implementation.Identity),
	)

	for _, dep := range desc.Dependencies() {
		s := newSlot(dep)
		if s.satisfied() {
			c.satisfied++
		}
		c.slots = append(c.slots, s)
	}
	return c
}

func (c *Component) ID() string {
	return c.id
}

func (c *Component) Descriptor() *capability.Descriptor {
	return c.desc
}

// Start subscribes every slot. A component without required dependencies
// publishes immediately.
func (c *Component) Start() {
	c.mu.Lock()
	if c.started || c.retired {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.decideLocked(false)
	c.mu.Unlock()
	c.run()

	for i, s := range c.slots {
		idx := i
		sub := c.catalog.Subscribe(s.dep.Capability, catalog.Listener{
			OnAdd:    func(e *catalog.Entry) { c.onAdded(idx, e) },
			OnRemove: func(e *catalog.Entry) { c.onRemoved(idx, e) },
			OnModify: func(e *catalog.Entry) { c.onModified(idx, e) },
		})

		c.mu.Lock()
		if c.retired {
			c.mu.Unlock()
			sub.Close()
			return
		}
		c.subs = append(c.subs, sub)
		c.mu.Unlock()
	}
}

// Retire unsubscribes every slot and withdraws any publication. A side
// effect already running completes; no transition happens afterwards.
func (c *Component) Retire() {
	c.mu.Lock()
	if c.retired {
		c.mu.Unlock()
		return
	}
	c.retired = true
	c.published = false
	subs := c.subs
	c.subs = nil
	c.gen++
	c.enqueueLocked(action{kind: actWithdraw, gen: c.gen})
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	c.run()
	c.logger.Debug("component retired")
}

func (c *Component) onAdded(i int, e *catalog.Entry) {
	if e.Owner == c.id || e.DerivedFrom(c.id) {
		return
	}
	c.mu.Lock()
	if c.retired {
		c.mu.Unlock()
		return
	}
	s := c.slots[i]
	before := s.satisfied()
	changed, rebound := s.add(e)
	if changed {
		c.applyLocked(s, before, rebound)
	}
	c.mu.Unlock()
	c.run()
}

func (c *Component) onRemoved(i int, e *catalog.Entry) {
	c.mu.Lock()
	if c.retired {
		c.mu.Unlock()
		return
	}
	s := c.slots[i]
	before := s.satisfied()
	changed, rebound := s.remove(e)
	if changed {
		c.applyLocked(s, before, rebound)
	}
	c.mu.Unlock()
	c.run()
}

func (c *Component) onModified(i int, e *catalog.Entry) {
	c.mu.Lock()
	if c.retired {
		c.mu.Unlock()
		return
	}
	if c.slots[i].modify(e) {
		c.decideLocked(true)
	}
	c.mu.Unlock()
	c.run()
}

// applyLocked updates the satisfied count for a slot change and decides
// the resulting transition.
func (c *Component) applyLocked(s *slot, before, rebound bool) {
	after := s.satisfied()
	switch {
	case !before && after:
		c.satisfied++
	case before && !after:
		c.satisfied--
	}
	c.decideLocked(rebound)
}

// decideLocked queues at most one side effect. It fires only when the
// satisfied count crosses the total, or when a published component's
// single binding was replaced.
func (c *Component) decideLocked(rebound bool) {
	if !c.started || c.retired {
		return
	}
	total := len(c.slots)

	switch {
	case c.satisfied == total && !c.published:
		c.published = true
		c.gen++
		args, lineage := c.snapshotLocked()
		c.enqueueLocked(action{kind: actPublish, gen: c.gen, args: args, lineage: lineage})
	case c.satisfied < total && c.published:
		c.published = false
		c.gen++
		c.enqueueLocked(action{kind: actWithdraw, gen: c.gen})
	case c.satisfied == total && c.published && rebound:
		c.gen++
		args, lineage := c.snapshotLocked()
		c.enqueueLocked(action{kind: actRepublish, gen: c.gen, args: args, lineage: lineage})
	}
}

// snapshotLocked returns the constructor arguments and the lineage of the
// instance they would build.
func (c *Component) snapshotLocked() ([]any, []string) {
	args := make([]any, len(c.slots))
	lineage := []string{c.id}
	for i, s := range c.slots {
		args[i] = s.value()
		for _, id := range s.lineage() {
			if !slices.Contains(lineage, id) {
				lineage = append(lineage, id)
			}
		}
	}
	return args, lineage
}

func (c *Component) enqueueLocked(a action) {
	c.pending = append(c.pending, a)
}

// run performs queued side effects unless another goroutine already is.
func (c *Component) run() {
	c.mu.Lock()
	if c.acting {
		c.mu.Unlock()
		return
	}
	c.acting = true
	for len(c.pending) > 0 {
		a := c.pending[0]
		c.pending[0] = action{}
		c.pending = c.pending[1:]
		c.mu.Unlock()

		c.perform(a)

		c.mu.Lock()
	}
	c.acting = false
	c.mu.Unlock()
}

func (c *Component) perform(a action) {
	switch a.kind {
	case actPublish, actRepublish:
		c.publish(a)
	case actWithdraw:
		c.withdraw()
	}
}

func (c *Component) publish(a action) {
	instance, err := c.desc.Implementation.Instantiate(a.args)
	if err != nil {
		c.fault(a, err)
		return
	}

	c.mu.Lock()
	if c.gen != a.gen {
		// A later decision is queued behind this one.
		c.mu.Unlock()
		c.dispose(instance)
		return
	}
	c.faulted = false
	c.mu.Unlock()

	props := c.desc.PublishProperties()
	props[PropComponentID] = c.id
	entry := c.catalog.PublishFrom(c.desc.Capability, instance, props, c.id, a.lineage)

	c.mu.Lock()
	old, oldInstance := c.entry, c.instance
	c.entry, c.instance = entry, instance
	c.mu.Unlock()

	switch {
	case a.kind == actRepublish && c.hooks.OnRepublish != nil:
		c.logger.Debug("component republished", logger.String("entry_id", entry.ID))
		c.hooks.OnRepublish(c, entry)
	case a.kind == actRepublish:
		c.logger.Debug("component republished", logger.String("entry_id", entry.ID))
		if c.hooks.OnPublish != nil {
			c.hooks.OnPublish(c, entry)
		}
	default:
		c.logger.Debug("component published", logger.String("entry_id", entry.ID))
		if c.hooks.OnPublish != nil {
			c.hooks.OnPublish(c, entry)
		}
	}

	if old != nil {
		c.release(old, oldInstance)
	}
}

func (c *Component) fault(a action, err error) {
	c.mu.Lock()
	current := c.gen == a.gen
	if current {
		c.published = false
		c.faulted = true
	}
	old, oldInstance := c.entry, c.instance
	if current {
		c.entry, c.instance = nil, nil
	}
	c.mu.Unlock()

	c.logger.Warn("component instantiation failed", logger.Error(err))
	if c.hooks.OnFault != nil {
		c.hooks.OnFault(c, err)
	}

	// A failed republish leaves the stale publication without a valid
	// binding; withdraw it.
	if current && old != nil {
		c.release(old, oldInstance)
	}
}

func (c *Component) withdraw() {
	c.mu.Lock()
	old, oldInstance := c.entry, c.instance
	c.entry, c.instance = nil, nil
	c.mu.Unlock()

	if old != nil {
		c.release(old, oldInstance)
	}
}

func (c *Component) release(e *catalog.Entry, instance any) {
	if !c.catalog.Withdraw(e) {
		return
	}
	c.logger.Debug("component withdrawn", logger.String("entry_id", e.ID))
	if c.hooks.OnWithdraw != nil {
		c.hooks.OnWithdraw(c, e)
	}
	c.dispose(instance)
}

func (c *Component) dispose(instance any) {
	if err := capability.Dispose(instance); err != nil {
		c.logger.Warn("dispose failed", logger.Error(err))
	}
}

// SlotStatus describes one dependency of a component.
type SlotStatus struct {
	Capability   string `json:"capability"`
	Multiplicity string `json:"multiplicity"`
	Providers    int    `json:"providers"`
	Satisfied    bool   `json:"satisfied"`
}

// Status is a consistent snapshot of a component.
type Status struct {
	ID             string       `json:"id"`
	Implementation string       `json:"implementation"`
	Capability     string       `json:"capability"`
	Module         string       `json:"module,omitempty"`
	State          State        `json:"-"`
	StateName      string       `json:"state"`
	Satisfied      int          `json:"satisfied"`
	Total          int          `json:"total"`
	Faulted        bool         `json:"faulted"`
	EntryID        string       `json:"entry_id,omitempty"`
	Slots          []SlotStatus `json:"slots"`
}

// Status returns the component's state as decided under its lock.
func (c *Component) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		ID:             c.id,
		Implementation: c.desc.Implementation.Identity,
		Capability:     c.desc.Capability,
		Module:         c.desc.Origin.Module,
		State:          c.stateLocked(),
		Satisfied:      c.satisfied,
		Total:          len(c.slots),
		Faulted:        c.faulted,
	}
	st.StateName = st.State.String()
	if c.entry != nil {
		st.EntryID = c.entry.ID
	}
	for _, s := range c.slots {
		st.Slots = append(st.Slots, SlotStatus{
			Capability:   s.dep.Capability,
			Multiplicity: s.dep.Multiplicity.String(),
			Providers:    s.providers(),
			Satisfied:    s.satisfied(),
		})
	}
	return st
}

func (c *Component) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Component) stateLocked() State {
	switch {
	case c.retired:
		return Retired
	case c.published:
		return Published
	default:
		return Incomplete
	}
}

// Entry returns the current publication, or nil.
func (c *Component) Entry() *catalog.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry
}
