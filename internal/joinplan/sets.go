package joinplan

import (
	"github.com/sleeping-owl/with-join/internal/model"
	"github.com/sleeping-owl/with-join/internal/relpath"
)

// EagerLoads is the ordered set of requested relation paths with the
// constraints attached to each. Compile removes the paths it turns into joins;
// whatever is left is loaded by separate queries.
type EagerLoads struct {
	order  []relpath.Path
	scopes map[string][]model.Scope
}

// NewEagerLoads creates an empty set.
func NewEagerLoads() *EagerLoads {
	return &EagerLoads{scopes: make(map[string][]model.Scope)}
}

// Add inserts path, keeping its first insertion position, and appends scopes.
func (e *EagerLoads) Add(path relpath.Path, scopes ...model.Scope) {
	key := path.String()
	if _, ok := e.scopes[key]; !ok {
		e.order = append(e.order, path)
		e.scopes[key] = nil
	}
	e.scopes[key] = append(e.scopes[key], scopes...)
}

// Remove deletes path.
func (e *EagerLoads) Remove(path relpath.Path) {
	key := path.String()
	if _, ok := e.scopes[key]; !ok {
		return
	}
	delete(e.scopes, key)
	for i, p := range e.order {
		if p.Equal(path) {
			e.order = append(e.order[:i:i], e.order[i+1:]...)
			break
		}
	}
}

// Has reports whether path is present.
func (e *EagerLoads) Has(path relpath.Path) bool {
	_, ok := e.scopes[path.String()]
	return ok
}

// Scopes returns the constraints attached to path.
func (e *EagerLoads) Scopes(path relpath.Path) []model.Scope {
	return e.scopes[path.String()]
}

// Paths returns the paths in insertion order.
func (e *EagerLoads) Paths() []relpath.Path {
	return append([]relpath.Path(nil), e.order...)
}

// Len returns the number of paths.
func (e *EagerLoads) Len() int {
	return len(e.order)
}

// Clone returns an independent copy.
func (e *EagerLoads) Clone() *EagerLoads {
	out := NewEagerLoads()
	for _, p := range e.order {
		out.Add(p, e.scopes[p.String()]...)
	}
	return out
}

// References is the set of relation paths marked for join compilation.
type References struct {
	order []relpath.Path
	set   map[string]struct{}
}

// NewReferences creates a set holding paths.
func NewReferences(paths ...relpath.Path) *References {
	r := &References{set: make(map[string]struct{})}
	for _, p := range paths {
		r.Add(p)
	}
	return r
}

// Add marks path as a reference.
func (r *References) Add(path relpath.Path) {
	key := path.String()
	if _, ok := r.set[key]; ok {
		return
	}
	r.set[key] = struct{}{}
	r.order = append(r.order, path)
}

// Has reports exact membership.
func (r *References) Has(path relpath.Path) bool {
	if r == nil {
		return false
	}
	_, ok := r.set[path.String()]
	return ok
}

// Eligible reports whether path may be joined: it is a member, or a member
// extends it ("a.b" makes "a" eligible).
func (r *References) Eligible(path relpath.Path) bool {
	if r == nil {
		return false
	}
	if r.Has(path) {
		return true
	}
	for _, ref := range r.order {
		if path.IsStrictPrefixOf(ref) {
			return true
		}
	}
	return false
}

// Paths returns the references in insertion order.
func (r *References) Paths() []relpath.Path {
	if r == nil {
		return nil
	}
	return append([]relpath.Path(nil), r.order...)
}

// Strings returns the references in dot-separated form.
func (r *References) Strings() []string {
	paths := r.Paths()
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}
	return out
}

// Len returns the number of references.
func (r *References) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}
