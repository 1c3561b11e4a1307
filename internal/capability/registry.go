package capability

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/xraph/locator/errors"
)

// FanoutFactory builds a value implementing a capability over a live Source.
type FanoutFactory func(src Source) any

// Registry maps identities found in descriptors to capability types and
// implementation constructors.
type Registry struct {
	mu              sync.RWMutex
	capabilities    map[string]reflect.Type
	names           map[reflect.Type]string
	implementations map[string]*Implementation
	fanouts         map[string]FanoutFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		capabilities:    make(map[string]reflect.Type),
		names:           make(map[reflect.Type]string),
		implementations: make(map[string]*Implementation),
		fanouts:         make(map[string]FanoutFactory),
	}
}

// DefaultName returns the identity of t when none is registered:
// the import path and type name joined by a dot.
func DefaultName(t reflect.Type) string {
	if t.Name() == "" {
		return t.String()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// RegisterCapability registers interface type t under name, or under its
// default name when name is empty. Registering the same pair twice is a
// no-op.
func (r *Registry) RegisterCapability(t reflect.Type, name string) (string, error) {
	if t == nil || t.Kind() != reflect.Interface {
		return "", fmt.Errorf("capability type must be an interface, got %v", t)
	}
	if name == "" {
		name = DefaultName(t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.names[t]; ok && existing != name {
		return "", fmt.Errorf("capability %s already registered as %s", t, existing)
	}
	if existing, ok := r.capabilities[name]; ok && existing != t {
		return "", fmt.Errorf("capability name %s already bound to %s", name, existing)
	}

	r.capabilities[name] = t
	r.names[t] = name
	return name, nil
}

// Capability returns the type registered under name.
func (r *Registry) Capability(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.capabilities[name]
	return t, ok
}

// Name returns the identity of capability type t, registering it under its
// default name when unknown. When that name is bound to another type, t gets
// the first free "name#n" instead, so two types never share an identity.
func (r *Registry) Name(t reflect.Type) string {
	r.mu.RLock()
	name, ok := r.names[t]
	r.mu.RUnlock()
	if ok {
		return name
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.names[t]; ok {
		return existing
	}
	base := DefaultName(t)
	name = base
	for n := 2; ; n++ {
		if _, taken := r.capabilities[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s#%d", base, n)
	}
	r.capabilities[name] = t
	r.names[t] = name
	return name
}

// RegisterImplementation derives and stores the implementation metadata for
// ctor under identity.
func (r *Registry) RegisterImplementation(identity string, ctor any) (*Implementation, error) {
	impl, err := deriveImplementation(identity, ctor, r.Name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.implementations[identity]; exists {
		return nil, errors.ErrInvalidConstructor(identity, fmt.Errorf("implementation already registered"))
	}
	r.implementations[identity] = impl
	return impl, nil
}

// Implementation returns the implementation registered under identity.
func (r *Registry) Implementation(identity string) (*Implementation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.implementations[identity]
	return impl, ok
}

// Describe binds implementation identity impl to capability name. Unknown
// identities and implementations that do not provide the capability are
// reported as malformed declarations.
func (r *Registry) Describe(capability, impl string, props Properties, independent bool, origin Origin) (*Descriptor, error) {
	t, ok := r.Capability(capability)
	if !ok {
		return nil, errors.ErrMalformedDeclaration(origin.Path, origin.Line, impl, errors.ErrUnknownCapability(capability))
	}
	implementation, ok := r.Implementation(impl)
	if !ok {
		return nil, errors.ErrMalformedDeclaration(origin.Path, origin.Line, impl,
			fmt.Errorf("implementation '%s' is not registered", impl))
	}
	if !implementation.Provides(t) {
		return nil, errors.ErrMalformedDeclaration(origin.Path, origin.Line, impl,
			fmt.Errorf("%s does not implement %s", implementation.Output, capability))
	}

	return &Descriptor{
		Capability:     capability,
		Type:           t,
		Implementation: implementation,
		Properties:     props.Clone(),
		Independent:    independent,
		Origin:         origin,
	}, nil
}

// RegisterFanout stores the fan-out factory for capability name.
func (r *Registry) RegisterFanout(capability string, factory FanoutFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fanouts[capability] = factory
}

// Fanout returns the fan-out factory for capability name.
func (r *Registry) Fanout(capability string) (FanoutFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fanouts[capability]
	return f, ok
}

// Capabilities returns the registered capability names, sorted.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Implementations returns the registered implementation identities, sorted.
func (r *Registry) Implementations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.implementations))
	for id := range r.implementations {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
