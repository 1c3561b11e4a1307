package locator

import (
	"fmt"
	"reflect"

	"github.com/xraph/locator/errors"
	"github.com/xraph/locator/internal/catalog"
)

// OwnerExternal owns instances published through Publish.
const OwnerExternal = "external"

// Publication is a handle on an instance published through Publish.
type Publication struct {
	rt    *Runtime
	entry *catalog.Entry
}

// Publish makes instance available as T to lookups and to latched
// components, as if a component had published it.
func Publish[T any](rt *Runtime, instance T, props Properties) (*Publication, error) {
	name, err := lookupName[T](rt)
	if err != nil {
		return nil, err
	}
	if v := reflect.ValueOf(instance); !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		return nil, fmt.Errorf("cannot publish a nil %s", name)
	}

	e := rt.catalog.Publish(name, instance, props, OwnerExternal)

	rt.mu.Lock()
	if rt.closed {
		// Close ran while the entry was being published.
		rt.mu.Unlock()
		rt.catalog.Withdraw(e)
		return nil, errors.ErrRuntimeClosed
	}
	rt.external = append(rt.external, e)
	rt.mu.Unlock()

	return &Publication{rt: rt, entry: e}, nil
}

// ID returns the catalog entry ID.
func (p *Publication) ID() string {
	return p.entry.ID
}

// Properties returns the current property bag.
func (p *Publication) Properties() Properties {
	return p.entry.Properties()
}

// Update replaces the property bag. Components bound to the instance
// republish.
func (p *Publication) Update(props Properties) bool {
	return p.rt.catalog.Modify(p.entry, props)
}

// Withdraw removes the instance. It reports false if it was already
// withdrawn.
func (p *Publication) Withdraw() bool {
	p.rt.mu.Lock()
	for i, e := range p.rt.external {
		if e == p.entry {
			p.rt.external = append(p.rt.external[:i], p.rt.external[i+1:]...)
			break
		}
	}
	p.rt.mu.Unlock()

	return p.rt.catalog.Withdraw(p.entry)
}
