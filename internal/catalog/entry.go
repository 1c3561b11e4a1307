package catalog

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/xraph/locator/internal/capability"
)

// Entry is one published instance.
type Entry struct {
	ID         string
	Capability string
	Instance   any

	// Owner is the ID of the publishing component, empty for instances
	// supplied from outside the latch.
	Owner       string
	PublishedAt time.Time

	seq     uint64
	lineage []string
	props   atomic.Pointer[capability.Properties]
}

// Properties returns a copy of the entry's current property bag.
func (e *Entry) Properties() capability.Properties {
	p := e.props.Load()
	if p == nil {
		return capability.Properties{}
	}
	return p.Clone()
}

// Lineage returns the IDs of the components whose instances went into
// building this entry's instance, the owner included.
func (e *Entry) Lineage() []string {
	return slices.Clone(e.lineage)
}

// DerivedFrom reports whether the instance was built, directly or through
// other components, from an instance of component id.
func (e *Entry) DerivedFrom(id string) bool {
	return slices.Contains(e.lineage, id)
}

// Sequence orders entries by publication.
func (e *Entry) Sequence() uint64 {
	return e.seq
}

func (e *Entry) setProperties(p capability.Properties) {
	c := p.Clone()
	e.props.Store(&c)
}

func (e *Entry) instance() capability.Instance {
	return capability.Instance{Value: e.Instance, Properties: e.Properties()}
}
