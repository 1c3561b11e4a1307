package capability

import (
	"reflect"
	"strconv"
)

// Origin locates the declaration a descriptor was read from.
type Origin struct {
	Module string
	Path   string
	Line   int
}

func (o Origin) String() string {
	s := o.Path
	if o.Line > 0 {
		s += ":" + strconv.Itoa(o.Line)
	}
	if o.Module != "" {
		s = o.Module + "!" + s
	}
	return s
}

// Descriptor binds an implementation to the capability it is declared as.
type Descriptor struct {
	Capability     string
	Type           reflect.Type
	Implementation *Implementation

	// Properties are the declared properties from the descriptor line.
	Properties Properties

	// Independent marks declarations from the dependency-free channel.
	Independent bool

	Origin Origin
}

// Dependencies returns the implementation's dependencies.
func (d *Descriptor) Dependencies() []Dependency {
	return d.Implementation.Dependencies
}

// PublishProperties returns the property bag for a publication of d.
func (d *Descriptor) PublishProperties() Properties {
	props := d.Properties.Clone()
	props[PropComponentName] = d.Implementation.Identity
	if d.Origin.Module != "" {
		props[PropModule] = d.Origin.Module
	}
	return props
}
