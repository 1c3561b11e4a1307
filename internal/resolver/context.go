package resolver

import (
	"slices"

	"github.com/xraph/locator/errors"
)

// resolution tracks the path of one top-level resolution request. It is
// owned by a single goroutine.
type resolution struct {
	limit int

	// capabilities being resolved, outermost first
	path []string
	// implementations being built, outermost first
	building []string
}

func newResolution(limit int) *resolution {
	return &resolution{limit: limit}
}

// enter pushes capability onto the path. A capability already on the path
// or a path at the depth limit is an error.
func (r *resolution) enter(capability string) error {
	if slices.Contains(r.path, capability) {
		return errors.ErrCircularDependency(r.cycle(r.path, capability))
	}
	if r.limit > 0 && len(r.path) >= r.limit {
		return errors.ErrDepthExceeded(append(slices.Clone(r.path), capability), r.limit)
	}
	r.path = append(r.path, capability)
	return nil
}

func (r *resolution) leave() {
	r.path = r.path[:len(r.path)-1]
}

// build pushes an implementation identity. The same implementation reached
// again through another capability is a cycle as well.
func (r *resolution) build(impl string) error {
	if slices.Contains(r.building, impl) {
		return errors.ErrCircularDependency(r.cycle(r.building, impl))
	}
	r.building = append(r.building, impl)
	return nil
}

func (r *resolution) built() {
	r.building = r.building[:len(r.building)-1]
}

func (r *resolution) depth() int {
	return len(r.path)
}

// cycle returns the part of path starting at the first occurrence of
// repeat, closed with repeat.
func (r *resolution) cycle(path []string, repeat string) []string {
	idx := slices.Index(path, repeat)
	out := slices.Clone(path[idx:])
	return append(out, repeat)
}
