package capability

import (
	"reflect"
)

// Multiplicity states how many live providers a dependency needs.
type Multiplicity int

const (
	// Single needs exactly one provider.
	Single Multiplicity = iota
	// OptionalMany accepts zero or more providers and is always satisfied.
	OptionalMany
	// RequiredMany is satisfied only while at least one provider exists.
	RequiredMany
)

func (m Multiplicity) String() string {
	switch m {
	case Single:
		return "single"
	case OptionalMany:
		return "optional-many"
	case RequiredMany:
		return "required-many"
	default:
		return "unknown"
	}
}

// Collection reports whether the dependency binds to a provider set.
func (m Multiplicity) Collection() bool {
	return m == OptionalMany || m == RequiredMany
}

// Satisfied reports whether n live providers satisfy the multiplicity.
func (m Multiplicity) Satisfied(n int) bool {
	switch m {
	case OptionalMany:
		return true
	default:
		return n > 0
	}
}

// Dependency is one declared requirement of an implementation.
type Dependency struct {
	// Capability is the identity of the required capability.
	Capability   string
	Type         reflect.Type
	Multiplicity Multiplicity

	// param is the constructor parameter type the dependency binds to.
	param reflect.Type
}

// Param returns the constructor parameter type.
func (d Dependency) Param() reflect.Type {
	return d.param
}

func (d Dependency) String() string {
	return d.Capability + " (" + d.Multiplicity.String() + ")"
}
