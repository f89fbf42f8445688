// Package withjoin eager loads to-one relations through LEFT JOINs.
//
// Relations requested with With load through one extra query per relation.
// Relations that are also passed to References (or requested with Includes)
// are joined into the main query instead: every column of the related table
// is selected under an encoded alias, and the flat rows are rebuilt into
// nested entities. References also lets Where and OrderBy use the joined
// table's alias:
//
//	reg := withjoin.NewRegistry(withjoin.NamingConfig{})
//	reg.MustRegister(withjoin.ModelConfig{Name: "Foo"})
//	reg.MustRegister(withjoin.ModelConfig{
//		Name:      "Bar",
//		Relations: []withjoin.RelationDef{withjoin.BelongsTo("foo", "Foo")},
//	})
//
//	q, _ := db.Query("Bar")
//	bar, err := q.Includes("foo").Where(sq.Eq{q.Column("foo", "id"): 1}).First(ctx)
//
// To-many relations never join; they are always loaded by a separate query.
package withjoin

import (
	"github.com/sleeping-owl/with-join/internal/aliascodec"
	"github.com/sleeping-owl/with-join/internal/builder"
	"github.com/sleeping-owl/with-join/internal/config"
	"github.com/sleeping-owl/with-join/internal/introspection"
	"github.com/sleeping-owl/with-join/internal/joinplan"
	"github.com/sleeping-owl/with-join/internal/model"
	"github.com/sleeping-owl/with-join/internal/naming"
	"github.com/sleeping-owl/with-join/internal/sqlutil"
)

type (
	// Model is a registered entity type.
	Model = model.Model
	// ModelConfig describes an entity type at registration.
	ModelConfig = model.Config
	// Entity is one loaded row with its attached relations.
	Entity = model.Entity
	// Registry owns entity types and resolves relations between them.
	Registry = model.Registry
	// RelationDef declares a relation on a ModelConfig.
	RelationDef = model.RelationDef
	// RelationOption customizes a RelationDef.
	RelationOption = model.RelationOption
	// Scope is a constraint rendered against a quoted table alias.
	Scope = model.Scope
	// Builder accumulates a query against one entity type.
	Builder = builder.Builder
	// Config is the library configuration.
	Config = config.Config
	// NamingConfig controls table and key naming conventions.
	NamingConfig = naming.Config
	// Dialect selects identifier quoting and placeholders.
	Dialect = sqlutil.Dialect
)

// Relation declarations.
var (
	BelongsTo  = model.BelongsTo
	HasMany    = model.HasMany
	ForeignKey = model.ForeignKey
	OwnerKey   = model.OwnerKey
	LocalKey   = model.LocalKey
	WithScope  = model.WithScope
)

// Supported dialects.
var (
	MySQL    = sqlutil.MySQL
	Postgres = sqlutil.Postgres
	SQLite   = sqlutil.SQLite
)

var (
	ErrUnknownRelation         = model.ErrUnknownRelation
	ErrUnknownModel            = model.ErrUnknownModel
	ErrUnsupportedRelationKind = joinplan.ErrUnsupportedRelationKind
	ErrAliasCollision          = joinplan.ErrAliasCollision
	ErrMalformedAlias          = aliascodec.ErrMalformedAlias
	ErrNotFound                = builder.ErrNotFound
	ErrNoColumns               = introspection.ErrNoColumns
)

// NewRegistry creates an empty registry using the given naming conventions.
// The zero NamingConfig pluralizes table names and uses "id" primary keys.
func NewRegistry(cfg NamingConfig) *Registry {
	return model.NewRegistry(naming.New(cfg))
}

// LoadConfig reads configuration from path (or with-join.yaml in the working
// directory when path is empty) and WITHJOIN_ environment variables.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() *Config {
	return config.Default()
}
