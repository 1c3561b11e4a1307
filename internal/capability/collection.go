package capability

import (
	"iter"
	"reflect"
)

// Instance is one provider visible through a Source.
type Instance struct {
	Value      any
	Properties Properties
}

// Source yields the providers currently bound to a collection. Each call
// returns a fresh snapshot.
type Source interface {
	Instances() []Instance
}

// StaticSource is a fixed Source.
type StaticSource []Instance

func (s StaticSource) Instances() []Instance {
	out := make([]Instance, len(s))
	copy(out, s)
	return out
}

// collection is implemented by constructor parameter types that bind to a
// provider set instead of a single provider.
type collection interface {
	element() reflect.Type
	multiplicity() Multiplicity
	withSource(src Source) any
}

var collectionType = reflect.TypeFor[collection]()

// Many is a live view over zero or more providers of T.
type Many[T any] struct {
	src Source
}

// NewMany wraps src as a view of T.
func NewMany[T any](src Source) Many[T] {
	return Many[T]{src: src}
}

func (Many[T]) element() reflect.Type      { return reflect.TypeFor[T]() }
func (Many[T]) multiplicity() Multiplicity { return OptionalMany }
func (Many[T]) withSource(src Source) any  { return Many[T]{src: src} }

func (m Many[T]) instances() []Instance {
	if m.src == nil {
		return nil
	}
	return m.src.Instances()
}

// All iterates the providers available at the time of the call together
// with their properties.
func (m Many[T]) All() iter.Seq2[T, Properties] {
	return func(yield func(T, Properties) bool) {
		for _, inst := range m.instances() {
			v, ok := inst.Value.(T)
			if !ok {
				continue
			}
			if !yield(v, inst.Properties) {
				return
			}
		}
	}
}

// Slice returns the providers available now.
func (m Many[T]) Slice() []T {
	insts := m.instances()
	out := make([]T, 0, len(insts))
	for _, inst := range insts {
		if v, ok := inst.Value.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func (m Many[T]) Len() int {
	return len(m.instances())
}

func (m Many[T]) Empty() bool {
	return m.Len() == 0
}

// Some is a live view over one or more providers of T. A component taking
// Some[T] is only published while at least one provider exists.
type Some[T any] struct {
	Many[T]
}

// NewSome wraps src as a non-empty view of T.
func NewSome[T any](src Source) Some[T] {
	return Some[T]{Many[T]{src: src}}
}

func (Some[T]) multiplicity() Multiplicity { return RequiredMany }
func (Some[T]) withSource(src Source) any  { return Some[T]{Many[T]{src: src}} }

// collectionOf reports the element type and multiplicity of a collection
// parameter type.
func collectionOf(t reflect.Type) (reflect.Type, Multiplicity, bool) {
	if t.Kind() == reflect.Interface || !t.Implements(collectionType) {
		return nil, Single, false
	}
	c := reflect.Zero(t).Interface().(collection)
	return c.element(), c.multiplicity(), true
}

// bindCollection builds a value of collection type t over src.
func bindCollection(t reflect.Type, src Source) reflect.Value {
	c := reflect.Zero(t).Interface().(collection)
	return reflect.ValueOf(c.withSource(src))
}
