package semver

import (
	"fmt"

	mm "github.com/Masterminds/semver/v3"

	"github.com/xraph/locator/internal/capability"
	"github.com/xraph/locator/internal/catalog"
)

// Version is a semantic version.
type Version struct {
	v *mm.Version
}

// Constraint is a semantic version constraint such as "^1.2.0" or
// ">=1.0.0 <2.0.0".
type Constraint struct {
	raw string
	c   *mm.Constraints
}

func ParseVersion(raw string) (Version, error) {
	v, err := mm.NewVersion(raw)
	if err != nil {
		return Version{}, fmt.Errorf("semver: parse version %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

func ParseConstraint(raw string) (Constraint, error) {
	c, err := mm.NewConstraint(raw)
	if err != nil {
		return Constraint{}, fmt.Errorf("semver: parse constraint %q: %w", raw, err)
	}
	return Constraint{raw: raw, c: c}, nil
}

func MustParseConstraint(raw string) Constraint {
	c, err := ParseConstraint(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Constraint) String() string {
	return c.raw
}

func Satisfies(v Version, c Constraint) bool {
	if v.v == nil || c.c == nil {
		return false
	}
	return c.c.Check(v.v)
}

// Compare returns -1, 0 or 1 as a is lower than, equal to or higher than b.
// A zero Version sorts first.
func Compare(a, b Version) int {
	switch {
	case a.v == nil && b.v == nil:
		return 0
	case a.v == nil:
		return -1
	case b.v == nil:
		return 1
	}
	return a.v.Compare(b.v)
}

// Of returns the version declared in props, if any.
func Of(props capability.Properties) (Version, bool) {
	raw := props.Text(capability.PropVersion)
	if raw == "" {
		return Version{}, false
	}
	v, err := ParseVersion(raw)
	if err != nil {
		return Version{}, false
	}
	return v, true
}

// Filter selects catalog entries whose version property satisfies c.
// Entries without a parseable version never match.
func Filter(c Constraint) catalog.Filter {
	return func(e *catalog.Entry) bool {
		v, ok := Of(e.Properties())
		return ok && Satisfies(v, c)
	}
}

// Newest returns the entry with the highest version. Entries without a
// version rank lowest; ties keep the earliest published.
func Newest(entries []*catalog.Entry) (*catalog.Entry, bool) {
	var (
		best    *catalog.Entry
		bestVer Version
	)
	for _, e := range entries {
		v, _ := Of(e.Properties())
		if best == nil || Compare(v, bestVer) > 0 {
			best, bestVer = e, v
		}
	}
	return best, best != nil
}
