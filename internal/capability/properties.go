package capability

import (
	"fmt"
	"maps"
)

// Well-known property keys.
const (
	PropComponentName = "component.name"
	PropModule        = "module"
	PropVersion       = "version"
)

// Properties is the property bag attached to a publication.
type Properties map[string]any

// Clone returns a shallow copy, never nil.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	maps.Copy(out, p)
	return out
}

// Merge returns a copy of p overlaid with other.
func (p Properties) Merge(other Properties) Properties {
	out := p.Clone()
	maps.Copy(out, other)
	return out
}

// Text returns the property formatted as a string, or "" if absent.
func (p Properties) Text(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
