// Package hydrate rebuilds entity trees from flat rows whose joined columns
// carry codec-encoded aliases.
package hydrate

import (
	"fmt"
	"sort"

	"github.com/sleeping-owl/with-join/internal/aliascodec"
	"github.com/sleeping-owl/with-join/internal/model"
	"github.com/sleeping-owl/with-join/internal/relpath"
)

// Row is one result row keyed by column alias.
type Row map[string]any

// Resolver looks up a relation by name on an entity type. It must agree with
// the resolver the join plan was compiled with.
type Resolver interface {
	Resolve(m *model.Model, name string) (model.Relation, error)
}

// Unflattener rebuilds rows using relation metadata from its resolver.
type Unflattener struct {
	resolver Resolver
}

// New creates an Unflattener. A nil resolver uses the registry each model was
// registered with.
func New(resolver Resolver) *Unflattener {
	return &Unflattener{resolver: resolver}
}

type node struct {
	fields   map[string]any
	children map[string]*node
}

func newNode() *node {
	return &node{fields: make(map[string]any)}
}

func (n *node) child(name string) *node {
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c, ok := n.children[name]
	if !ok {
		c = newNode()
		n.children[name] = c
	}
	return c
}

func (n *node) childNames() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unflatten builds the root entity from row and attaches every joined
// relation found in it. A joined entity without a primary key value means the
// join matched nothing, so it is left off its parent together with anything
// nested below it.
func Unflatten(root *model.Model, row Row) (*model.Entity, error) {
	return New(nil).Unflatten(root, row)
}

// UnflattenAll applies Unflatten to each row in order.
func UnflattenAll(root *model.Model, rows []Row) ([]*model.Entity, error) {
	return New(nil).UnflattenAll(root, rows)
}

// Unflatten builds the root entity from row, resolving joined relations
// through u's resolver.
func (u *Unflattener) Unflatten(root *model.Model, row Row) (*model.Entity, error) {
	if root == nil {
		return nil, fmt.Errorf("unflatten: root model is required")
	}
	tree := newNode()
	for key, value := range row {
		path, field, _, err := aliascodec.Decode(key)
		if err != nil {
			return nil, fmt.Errorf("unflatten %s: %w", root.Name, err)
		}
		n := tree
		for _, name := range path {
			n = n.child(name)
		}
		n.fields[field] = value
	}
	return u.build(root, tree, nil)
}

// UnflattenAll applies Unflatten to each row in order.
func (u *Unflattener) UnflattenAll(root *model.Model, rows []Row) ([]*model.Entity, error) {
	out := make([]*model.Entity, 0, len(rows))
	for i, row := range rows {
		entity, err := u.Unflatten(root, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, entity)
	}
	return out, nil
}

func (u *Unflattener) resolve(m *model.Model, name string) (model.Relation, error) {
	if u.resolver != nil {
		return u.resolver.Resolve(m, name)
	}
	return m.Relation(name)
}

func (u *Unflattener) build(m *model.Model, n *node, path relpath.Path) (*model.Entity, error) {
	entity := m.New(n.fields)
	for _, name := range n.childNames() {
		childPath := path.Child(name)
		rel, err := u.resolve(m, name)
		if err != nil {
			return nil, fmt.Errorf("unflatten %q: %w", childPath.String(), err)
		}
		if rel.Kind != model.ToOne {
			return nil, fmt.Errorf("unflatten %q: %s relation cannot come from joined columns", childPath.String(), rel.Kind)
		}
		related, err := u.build(rel.Related, n.children[name], childPath)
		if err != nil {
			return nil, err
		}
		if !related.HasKey() {
			continue
		}
		entity.SetRelation(name, related)
	}
	return entity, nil
}
