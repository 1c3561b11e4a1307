package latch

import (
	"slices"
	"sync"

	"github.com/xraph/locator/internal/capability"
	"github.com/xraph/locator/internal/catalog"
)

// slot is the binding state of one dependency. It is mutated only under the
// owning component's lock.
type slot struct {
	dep capability.Dependency

	// Single: the bound provider and every live provider in arrival order.
	bound      *catalog.Entry
	candidates []*catalog.Entry

	// OptionalMany and RequiredMany.
	set *entrySet
}

func newSlot(dep capability.Dependency) *slot {
	s := &slot{dep: dep}
	if dep.Multiplicity.Collection() {
		s.set = &entrySet{}
	}
	return s
}

func (s *slot) satisfied() bool {
	switch s.dep.Multiplicity {
	case capability.Single:
		return s.bound != nil
	case capability.OptionalMany:
		return true
	default:
		return s.set.len() > 0
	}
}

func (s *slot) providers() int {
	if s.set != nil {
		return s.set.len()
	}
	return len(s.candidates)
}

// value returns the constructor argument for the slot.
func (s *slot) value() any {
	if s.set != nil {
		return s.set
	}
	if s.bound == nil {
		return nil
	}
	return s.bound.Instance
}

// lineage returns the component IDs the slot's current providers derive from.
func (s *slot) lineage() []string {
	if s.set != nil {
		return s.set.lineage()
	}
	if s.bound == nil {
		return nil
	}
	return s.bound.Lineage()
}

// add records e and reports whether the slot changed and whether a Single
// binding was replaced.
func (s *slot) add(e *catalog.Entry) (changed, rebound bool) {
	if s.set != nil {
		return s.set.add(e), false
	}
	if slices.Contains(s.candidates, e) {
		return false, false
	}
	s.candidates = append(s.candidates, e)
	rebound = s.bound != nil
	s.bound = e
	return true, rebound
}

// remove drops e. A Single slot losing its bound provider falls back to the
// most recent remaining candidate.
func (s *slot) remove(e *catalog.Entry) (changed, rebound bool) {
	if s.set != nil {
		return s.set.remove(e), false
	}
	idx := slices.Index(s.candidates, e)
	if idx < 0 {
		return false, false
	}
	s.candidates = slices.Delete(s.candidates, idx, idx+1)
	if s.bound != e {
		return true, false
	}
	if n := len(s.candidates); n > 0 {
		s.bound = s.candidates[n-1]
		return true, true
	}
	s.bound = nil
	return true, false
}

// modify reports whether e is the bound provider of a Single slot.
func (s *slot) modify(e *catalog.Entry) (rebound bool) {
	return s.set == nil && s.bound == e
}

// entrySet is the provider set behind a collection slot. It is the Source
// handed to the instance, so reads copy under its own lock.
type entrySet struct {
	mu      sync.RWMutex
	entries []*catalog.Entry
}

func (s *entrySet) add(e *catalog.Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.entries, e) {
		return false
	}
	s.entries = append(s.entries, e)
	return true
}

func (s *entrySet) remove(e *catalog.Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.Index(s.entries, e)
	if idx < 0 {
		return false
	}
	s.entries = slices.Delete(s.entries, idx, idx+1)
	return true
}

func (s *entrySet) lineage() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, e := range s.entries {
		out = append(out, e.Lineage()...)
	}
	return out
}

func (s *entrySet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Instances implements capability.Source.
func (s *entrySet) Instances() []capability.Instance {
	s.mu.RLock()
	entries := slices.Clone(s.entries)
	s.mu.RUnlock()

	out := make([]capability.Instance, len(entries))
	for i, e := range entries {
		out[i] = capability.Instance{Value: e.Instance, Properties: e.Properties()}
	}
	return out
}
