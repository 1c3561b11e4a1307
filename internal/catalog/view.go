package catalog

import (
	"github.com/xraph/locator/internal/capability"
)

// Filter selects entries for a View.
type Filter func(*Entry) bool

// View is a live, read-only window on the entries of one capability. Every
// call reads the catalog anew.
type View struct {
	catalog    *Catalog
	capability string
	filter     Filter
}

// View returns a live view of capability, optionally narrowed by filter.
func (c *Catalog) View(capability string, filter Filter) *View {
	return &View{catalog: c, capability: capability, filter: filter}
}

func (v *View) Capability() string {
	return v.capability
}

// Entries returns the matching entries published now.
func (v *View) Entries() []*Entry {
	entries := v.catalog.Entries(v.capability)
	if v.filter == nil {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if v.filter(e) {
			out = append(out, e)
		}
	}
	return out
}

// Instances implements capability.Source.
func (v *View) Instances() []capability.Instance {
	entries := v.Entries()
	out := make([]capability.Instance, len(entries))
	for i, e := range entries {
		out[i] = e.instance()
	}
	return out
}

func (v *View) Len() int {
	if v.filter == nil {
		return v.catalog.Len(v.capability)
	}
	return len(v.Entries())
}
