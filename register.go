package locator

import (
	"fmt"
	"reflect"

	"github.com/xraph/locator/internal/capability"
)

// RegisterCapability registers interface T under name, or under its import
// path and type name when name is empty. Descriptor files name capabilities
// by this identity.
func RegisterCapability[T any](rt *Runtime, name string) error {
	_, err := rt.registry.RegisterCapability(reflect.TypeFor[T](), name)
	return err
}

// RegisterImplementation registers constructor ctor under identity.
//
// ctor must be a function returning (T) or (T, error). Each parameter is a
// dependency: an interface type needs exactly one provider, Many[I] accepts
// any number and Some[I] needs at least one.
func (rt *Runtime) RegisterImplementation(identity string, ctor any) error {
	_, err := rt.registry.RegisterImplementation(identity, ctor)
	return err
}

// RegisterFanout registers build as the fan-out for capability T, used by
// GetFactory to turn every live provider of T into a single T.
func RegisterFanout[T any](rt *Runtime, build func(Fanout[T]) T) error {
	name, err := capabilityOf[T](rt)
	if err != nil {
		return err
	}
	if build == nil {
		return fmt.Errorf("fan-out for %s must not be nil", name)
	}
	rt.registry.RegisterFanout(name, func(src capability.Source) any {
		return build(newFanout[T](src, rt.logger))
	})
	return nil
}

// CapabilityName returns the identity T is looked up by.
func CapabilityName[T any](rt *Runtime) (string, error) {
	return capabilityOf[T](rt)
}

func capabilityOf[T any](rt *Runtime) (string, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Interface {
		return "", fmt.Errorf("capability type must be an interface, got %s", t)
	}
	return rt.registry.Name(t), nil
}
