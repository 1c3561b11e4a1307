package locator

import (
	"context"

	"github.com/xraph/locator/errors"
	"github.com/xraph/locator/internal/declare"
)

// Declaration is one implementation line of a descriptor file.
type Declaration = declare.Declaration

// Capabilities returns the registered capability identities, sorted.
func (rt *Runtime) Capabilities() []string {
	return rt.registry.Capabilities()
}

// Implementations returns the registered implementation identities, sorted.
func (rt *Runtime) Implementations() []string {
	return rt.registry.Implementations()
}

// Declarations returns what module declares, in file order.
func (rt *Runtime) Declarations(module string) []Declaration {
	return rt.host.Declarations(module)
}

// Candidates returns the declarations a lookup of capability would try, in
// order, and the lines that could not be parsed.
func (rt *Runtime) Candidates(capability string) ([]Declaration, []error) {
	return rt.resolver.Candidates(capability)
}

// Entries returns the live publications of capability, oldest first.
func (rt *Runtime) Entries(capability string) []*Entry {
	return rt.catalog.Entries(capability)
}

// Resolve is Get by capability identity, for callers that only know the
// name, such as tooling.
func (rt *Runtime) Resolve(ctx context.Context, capability string) (any, error) {
	if rt.isClosed() {
		return nil, errors.ErrRuntimeClosed
	}
	if _, ok := rt.registry.Capability(capability); !ok {
		return nil, errors.ErrUnknownCapability(capability)
	}
	return rt.resolver.ResolveSingle(ctx, capability)
}

// Reattach replaces the module named m.Name with m, retiring the
// components of the previous tree first.
func (rt *Runtime) Reattach(m Module) error {
	if rt.isClosed() {
		return errors.ErrRuntimeClosed
	}
	if err := rt.host.Reattach(m); err != nil {
		return err
	}
	if rt.debug != nil {
		rt.debug.ModuleChanged(m.Name, true)
	}
	return nil
}
