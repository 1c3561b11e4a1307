package capability

import (
	"fmt"
	"reflect"

	"github.com/xraph/locator/errors"
)

var errorType = reflect.TypeFor[error]()

// Implementation is the metadata derived once from a constructor function.
// Its parameters are the dependencies, in order; its first result is the
// instance.
type Implementation struct {
	Identity     string
	Output       reflect.Type
	Dependencies []Dependency

	ctor         reflect.Value
	returnsError bool
}

// Independent reports whether the implementation has no dependencies.
func (i *Implementation) Independent() bool {
	return len(i.Dependencies) == 0
}

// Provides reports whether instances can be published as capability t.
func (i *Implementation) Provides(t reflect.Type) bool {
	if t == nil || t.Kind() != reflect.Interface {
		return false
	}
	return i.Output == t || i.Output.Implements(t)
}

// Instantiate calls the constructor. args holds one entry per dependency:
// the provider instance for Single dependencies and a Source for collection
// dependencies. Constructor errors and panics are reported as instantiation
// faults.
func (i *Implementation) Instantiate(args []any) (instance any, err error) {
	if len(args) != len(i.Dependencies) {
		return nil, errors.ErrInstantiationFault(i.Identity,
			fmt.Errorf("expected %d arguments, got %d", len(i.Dependencies), len(args)))
	}

	in := make([]reflect.Value, len(args))
	for idx, dep := range i.Dependencies {
		v, err := bindArg(dep, args[idx])
		if err != nil {
			return nil, errors.ErrInstantiationFault(i.Identity, err)
		}
		in[idx] = v
	}

	defer func() {
		if r := recover(); r != nil {
			instance = nil
			err = errors.ErrInstantiationFault(i.Identity, fmt.Errorf("constructor panicked: %v", r))
		}
	}()

	out := i.ctor.Call(in)
	if i.returnsError && !out[1].IsNil() {
		return nil, errors.ErrInstantiationFault(i.Identity, out[1].Interface().(error))
	}
	if isNil(out[0]) {
		return nil, errors.ErrInstantiationFault(i.Identity, fmt.Errorf("constructor returned nil"))
	}

	return out[0].Interface(), nil
}

func bindArg(dep Dependency, arg any) (reflect.Value, error) {
	if dep.Multiplicity.Collection() {
		src, ok := arg.(Source)
		if !ok {
			if arg != nil {
				return reflect.Value{}, fmt.Errorf("argument for %s is %T, not a provider source", dep, arg)
			}
			src = StaticSource(nil)
		}
		return bindCollection(dep.param, src), nil
	}

	if arg == nil {
		return reflect.Value{}, fmt.Errorf("no provider bound for %s", dep)
	}
	v := reflect.ValueOf(arg)
	if !v.Type().AssignableTo(dep.param) {
		return reflect.Value{}, fmt.Errorf("provider %T does not implement %s", arg, dep.Capability)
	}
	pv := reflect.New(dep.param).Elem()
	pv.Set(v)
	return pv, nil
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

// deriveImplementation inspects ctor and builds its Implementation. name maps
// a capability interface type to its identity.
func deriveImplementation(identity string, ctor any, name func(reflect.Type) string) (*Implementation, error) {
	if identity == "" {
		return nil, errors.ErrInvalidConstructor(identity, fmt.Errorf("implementation identity is required"))
	}
	if ctor == nil {
		return nil, errors.ErrInvalidConstructor(identity, fmt.Errorf("constructor is nil"))
	}

	ct := reflect.TypeOf(ctor)
	if ct.Kind() != reflect.Func {
		return nil, errors.ErrInvalidConstructor(identity, fmt.Errorf("constructor must be a function, got %s", ct))
	}
	if ct.IsVariadic() {
		return nil, errors.ErrInvalidConstructor(identity, fmt.Errorf("constructor must not be variadic"))
	}

	impl := &Implementation{
		Identity: identity,
		ctor:     reflect.ValueOf(ctor),
	}

	switch ct.NumOut() {
	case 1:
	case 2:
		if ct.Out(1) != errorType {
			return nil, errors.ErrInvalidConstructor(identity, fmt.Errorf("second result must be error"))
		}
		impl.returnsError = true
	default:
		return nil, errors.ErrInvalidConstructor(identity, fmt.Errorf("constructor must return (T) or (T, error)"))
	}
	impl.Output = ct.Out(0)

	for i := 0; i < ct.NumIn(); i++ {
		param := ct.In(i)

		if elem, mult, ok := collectionOf(param); ok {
			if elem.Kind() != reflect.Interface {
				return nil, errors.ErrInvalidConstructor(identity,
					fmt.Errorf("parameter %d: collection element %s is not an interface", i, elem))
			}
			impl.Dependencies = append(impl.Dependencies, Dependency{
				Capability:   name(elem),
				Type:         elem,
				Multiplicity: mult,
				param:        param,
			})
			continue
		}

		if param.Kind() != reflect.Interface {
			return nil, errors.ErrInvalidConstructor(identity,
				fmt.Errorf("parameter %d: %s is not an interface", i, param))
		}
		impl.Dependencies = append(impl.Dependencies, Dependency{
			Capability:   name(param),
			Type:         param,
			Multiplicity: Single,
			param:        param,
		})
	}

	return impl, nil
}
