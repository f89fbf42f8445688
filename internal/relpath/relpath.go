// Package relpath models relation paths: ordered chains of relation names
// leading from a query root to a nested relation (e.g. "bar.foo").
package relpath

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins relation names in the textual form of a path.
const Separator = "."

// ErrEmptySegment is returned when a path string contains an empty relation name.
var ErrEmptySegment = errors.New("empty relation name in path")

// Path is an ordered list of relation names. The zero value is the root.
type Path []string

// Parse splits a dot-separated path such as "bar.foo".
func Parse(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("parse %q: %w", s, ErrEmptySegment)
	}
	parts := strings.Split(s, Separator)
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("parse %q: %w", s, ErrEmptySegment)
		}
		parts[i] = part
	}
	return Path(parts), nil
}

// MustParse is like Parse but panics on error. Intended for literals in tests and setup code.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseAll normalizes a list of dot-separated paths.
func ParseAll(paths ...string) ([]Path, error) {
	out := make([]Path, 0, len(paths))
	for _, s := range paths {
		p, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// String returns the dot-separated form.
func (p Path) String() string {
	return strings.Join(p, Separator)
}

// Depth is the number of relation names in the path.
func (p Path) Depth() int {
	return len(p)
}

// IsRoot reports whether the path has no segments.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Last returns the final relation name, or "" for the root.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns the path without its final segment.
func (p Path) Parent() Path {
	if len(p) <= 1 {
		return nil
	}
	return p[:len(p)-1:len(p)-1]
}

// Child returns a new path extended by name. The receiver is not modified.
func (p Path) Child(name string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = name
	return out
}

// Equal compares paths segment by segment.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is equal to or a leading part of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return prefix.Equal(p[:len(prefix)])
}

// IsStrictPrefixOf reports whether p is a leading part of other and shorter than it.
// "foo" is a strict prefix of "foo.bar" but not of "foobar" or "foo".
func (p Path) IsStrictPrefixOf(other Path) bool {
	return len(p) < len(other) && other.HasPrefix(p)
}

// IsChildOf reports whether p extends parent by exactly one segment.
func (p Path) IsChildOf(parent Path) bool {
	return len(p) == len(parent)+1 && p.HasPrefix(parent)
}

// Prefixes returns every non-empty prefix of p, shortest first, including p itself.
func (p Path) Prefixes() []Path {
	out := make([]Path, 0, len(p))
	for i := 1; i <= len(p); i++ {
		out = append(out, p[:i:i])
	}
	return out
}
