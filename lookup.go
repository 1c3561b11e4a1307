package locator

import (
	"context"
	"fmt"

	"github.com/xraph/locator/errors"
	"github.com/xraph/locator/internal/capability"
	"github.com/xraph/locator/internal/semver"
	"github.com/xraph/locator/logger"
)

// Get returns one instance of T: a live one from the catalog when there is
// one, otherwise the first declared candidate that can be built.
func Get[T any](ctx context.Context, rt *Runtime) (T, error) {
	var zero T
	name, err := lookupName[T](rt)
	if err != nil {
		return zero, err
	}

	instance, err := rt.resolver.ResolveSingle(ctx, name)
	if err != nil {
		return zero, err
	}
	v, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("instance %T published as %s does not implement it", instance, name)
	}
	return v, nil
}

// MustGet is Get that panics on failure.
func MustGet[T any](ctx context.Context, rt *Runtime) T {
	v, err := Get[T](ctx, rt)
	if err != nil {
		panic(err)
	}
	return v
}

// GetAll builds every declared candidate of T that can be built and returns
// a live view of all providers of T. Candidates that fail are skipped.
func GetAll[T any](ctx context.Context, rt *Runtime) Many[T] {
	name, err := lookupName[T](rt)
	if err != nil {
		rt.logger.Debug("collection lookup failed", logger.Error(err))
		return capability.NewMany[T](nil)
	}
	view, err := rt.resolver.ResolveAll(ctx, name, false)
	if err != nil {
		rt.logger.Debug("collection resolution failed", logger.Capability(name), logger.Error(err))
	}
	return capability.NewMany[T](view)
}

// GetAllNonEmpty is GetAll that fails when no provider of T is available.
func GetAllNonEmpty[T any](ctx context.Context, rt *Runtime) (Some[T], error) {
	name, err := lookupName[T](rt)
	if err != nil {
		return Some[T]{}, err
	}
	view, err := rt.resolver.ResolveAll(ctx, name, true)
	if err != nil {
		return Some[T]{}, err
	}
	return capability.NewSome[T](view), nil
}

// GetAllMatching is GetAll narrowed to providers whose version property
// satisfies constraint, such as "^1.2.0".
func GetAllMatching[T any](ctx context.Context, rt *Runtime, constraint string) (Many[T], error) {
	c, err := semver.ParseConstraint(constraint)
	if err != nil {
		return Many[T]{}, err
	}
	name, err := lookupName[T](rt)
	if err != nil {
		return Many[T]{}, err
	}
	if _, err := rt.resolver.ResolveAll(ctx, name, false); err != nil {
		return Many[T]{}, err
	}
	return capability.NewMany[T](rt.catalog.View(name, semver.Filter(c))), nil
}

// GetNewest returns the provider of T with the highest version property.
func GetNewest[T any](ctx context.Context, rt *Runtime) (T, error) {
	var zero T
	name, err := lookupName[T](rt)
	if err != nil {
		return zero, err
	}
	view, err := rt.resolver.ResolveAll(ctx, name, true)
	if err != nil {
		return zero, err
	}
	e, ok := semver.Newest(view.Entries())
	if !ok {
		return zero, errors.ErrEmptyRequiredCollection(name, nil)
	}
	v, ok := e.Instance.(T)
	if !ok {
		return zero, fmt.Errorf("instance %T published as %s does not implement it", e.Instance, name)
	}
	return v, nil
}

// GetFactory returns a single T that fans calls out to every live provider,
// built by the fan-out registered with RegisterFanout.
func GetFactory[T any](ctx context.Context, rt *Runtime) (T, error) {
	var zero T
	name, err := lookupName[T](rt)
	if err != nil {
		return zero, err
	}
	factory, ok := rt.registry.Fanout(name)
	if !ok {
		return zero, errors.ErrCapabilityUnresolved(name, fmt.Errorf("no fan-out registered"))
	}

	view, err := rt.resolver.ResolveAll(ctx, name, false)
	if err != nil {
		return zero, err
	}
	v, ok := factory(view).(T)
	if !ok {
		return zero, fmt.Errorf("fan-out for %s does not return it", name)
	}
	return v, nil
}

func lookupName[T any](rt *Runtime) (string, error) {
	name, err := capabilityOf[T](rt)
	if err != nil {
		return "", err
	}
	if rt.isClosed() {
		return "", errors.ErrRuntimeClosed
	}
	return name, nil
}
