package model

import (
	sq "github.com/Masterminds/squirrel"
)

// Kind tags a relation by how many related rows each parent row maps to.
type Kind int

const (
	// ToOne relations (belongs-to) map each parent row to at most one related row.
	// Only these can be satisfied by a LEFT JOIN without changing row cardinality.
	ToOne Kind = iota + 1
	// ToMany relations (has-many) always load through a separate query.
	ToMany
)

func (k Kind) String() string {
	switch k {
	case ToOne:
		return "to-one"
	case ToMany:
		return "to-many"
	default:
		return "unknown"
	}
}

// Scope is a predicate rendered against a quoted table alias. The same scope
// is applied to the join alias when a relation is joined and to the related
// table name when it is loaded by a separate query, so columns should be
// qualified as alias + ".column".
type Scope func(alias string) sq.Sqlizer

// Relation describes how an entity type reaches a related entity type.
//
// For ToOne: LocalKey is the column on the parent table holding the reference
// and RelatedKey is the referenced column on the related table.
// For ToMany: LocalKey is the parent column that is referenced and RelatedKey
// is the column on the related table that points back at it.
type Relation struct {
	Name       string
	Kind       Kind
	Related    *Model
	LocalKey   string
	RelatedKey string
	// Scopes are default constraints for the related table (e.g. soft-delete filters).
	Scopes []Scope
}

// RelatedTable returns the related entity type's table.
func (r Relation) RelatedTable() string {
	if r.Related == nil {
		return ""
	}
	return r.Related.Table
}

// RelationDef declares a relation at registration time. The related entity type
// is referenced by name and bound when the registry resolves the relation, so
// entity types may reference each other in any registration order.
type RelationDef struct {
	name       string
	kind       Kind
	related    string
	localKey   string
	relatedKey string
	scopes     []Scope
}

// RelationOption customizes a RelationDef.
type RelationOption func(*RelationDef)

// BelongsTo declares a to-one relation. By default the local key is
// "<name>_id" and the related key is the related entity's primary key.
func BelongsTo(name, related string, opts ...RelationOption) RelationDef {
	def := RelationDef{name: name, kind: ToOne, related: related}
	for _, opt := range opts {
		opt(&def)
	}
	return def
}

// HasMany declares a to-many relation. By default the related key is
// "<owner>_id" and the local key is the owner's primary key.
func HasMany(name, related string, opts ...RelationOption) RelationDef {
	def := RelationDef{name: name, kind: ToMany, related: related}
	for _, opt := range opts {
		opt(&def)
	}
	return def
}

// ForeignKey sets the referencing column: the local key for BelongsTo and the
// related key for HasMany.
func ForeignKey(column string) RelationOption {
	return func(d *RelationDef) {
		if d.kind == ToMany {
			d.relatedKey = column
			return
		}
		d.localKey = column
	}
}

// OwnerKey sets the referenced column: the related key for BelongsTo and the
// local key for HasMany.
func OwnerKey(column string) RelationOption {
	return func(d *RelationDef) {
		if d.kind == ToMany {
			d.localKey = column
			return
		}
		d.relatedKey = column
	}
}

// LocalKey sets the column on the declaring entity's table used by the join.
func LocalKey(column string) RelationOption {
	return func(d *RelationDef) {
		d.localKey = column
	}
}

// WithScope attaches default constraints to the relation.
func WithScope(scopes ...Scope) RelationOption {
	return func(d *RelationDef) {
		d.scopes = append(d.scopes, scopes...)
	}
}

// Name returns the declared relation name.
func (d RelationDef) Name() string {
	return d.name
}
