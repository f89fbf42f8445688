// Package model holds entity type metadata and the entity values produced by
// queries. Entity types are registered once with their table, primary key,
// relations and default includes; relations are looked up by name through the
// Registry, which acts as the relation resolver for query compilation.
package model

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sleeping-owl/with-join/internal/aliascodec"
	"github.com/sleeping-owl/with-join/internal/naming"
)

var (
	// ErrUnknownRelation is returned when an entity type has no relation with the requested name.
	ErrUnknownRelation = errors.New("unknown relation")
	// ErrUnknownModel is returned when a relation or lookup names an unregistered entity type.
	ErrUnknownModel = errors.New("unknown model")
)

// Config describes an entity type at registration.
type Config struct {
	Name string
	// Table defaults to the pluralized snake_case of Name.
	Table string
	// PrimaryKey defaults to the namer's primary key ("id").
	PrimaryKey string
	// Includes are relation paths always eager loaded through joins.
	Includes  []string
	Relations []RelationDef
}

// Model is a registered entity type.
type Model struct {
	Name       string
	Table      string
	PrimaryKey string
	Includes   []string

	registry  *Registry
	relations map[string]RelationDef
	order     []string
}

// Registry owns entity types and resolves relations between them.
type Registry struct {
	mu     sync.RWMutex
	namer  *naming.Namer
	models map[string]*Model
}

// NewRegistry creates an empty registry. A nil namer uses naming.Default().
func NewRegistry(namer *naming.Namer) *Registry {
	if namer == nil {
		namer = naming.Default()
	}
	return &Registry{
		namer:  namer,
		models: make(map[string]*Model),
	}
}

// PrimaryKey returns the default primary key column for entity types that do not set one.
func (r *Registry) PrimaryKey() string {
	return r.namer.PrimaryKey()
}

// Register adds an entity type. Relation names must be identifiers so they
// can be encoded into column aliases.
func (r *Registry) Register(cfg Config) (*Model, error) {
	if cfg.Name == "" {
		return nil, errors.New("model name is required")
	}

	m := &Model{
		Name:       cfg.Name,
		Table:      cfg.Table,
		PrimaryKey: cfg.PrimaryKey,
		Includes:   append([]string(nil), cfg.Includes...),
		registry:   r,
		relations:  make(map[string]RelationDef, len(cfg.Relations)),
	}
	if m.Table == "" {
		m.Table = r.namer.TableName(cfg.Name)
	}
	if m.PrimaryKey == "" {
		m.PrimaryKey = r.namer.PrimaryKey()
	}

	for _, def := range cfg.Relations {
		if !aliascodec.ValidName(def.name) {
			return nil, fmt.Errorf("model %s: invalid relation name %q", cfg.Name, def.name)
		}
		if _, dup := m.relations[def.name]; dup {
			return nil, fmt.Errorf("model %s: duplicate relation %q", cfg.Name, def.name)
		}
		if def.related == "" {
			return nil, fmt.Errorf("model %s: relation %q has no related model", cfg.Name, def.name)
		}
		m.relations[def.name] = def
		m.order = append(m.order, def.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[cfg.Name]; exists {
		return nil, fmt.Errorf("model %s already registered", cfg.Name)
	}
	r.models[cfg.Name] = m
	return m, nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(cfg Config) *Model {
	m, err := r.Register(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Model returns a registered entity type by name.
func (r *Registry) Model(name string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return m, nil
}

// Resolve returns the relation named name on m with its related entity type bound.
func (r *Registry) Resolve(m *Model, name string) (Relation, error) {
	if m == nil {
		return Relation{}, fmt.Errorf("%w: %s on nil model", ErrUnknownRelation, name)
	}
	def, ok := m.relations[name]
	if !ok {
		return Relation{}, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, m.Name, name)
	}
	related, err := r.Model(def.related)
	if err != nil {
		return Relation{}, fmt.Errorf("relation %s.%s: %w", m.Name, name, err)
	}

	rel := Relation{
		Name:       def.name,
		Kind:       def.kind,
		Related:    related,
		LocalKey:   def.localKey,
		RelatedKey: def.relatedKey,
		Scopes:     append([]Scope(nil), def.scopes...),
	}
	switch def.kind {
	case ToOne:
		if rel.LocalKey == "" {
			rel.LocalKey = r.namer.BelongsToKey(def.name)
		}
		if rel.RelatedKey == "" {
			rel.RelatedKey = related.PrimaryKey
		}
	case ToMany:
		if rel.LocalKey == "" {
			rel.LocalKey = m.PrimaryKey
		}
		if rel.RelatedKey == "" {
			rel.RelatedKey = r.namer.HasManyKey(m.Name)
		}
	}
	return rel, nil
}

// Relation resolves a relation declared on m through its registry.
func (m *Model) Relation(name string) (Relation, error) {
	if m.registry == nil {
		return Relation{}, fmt.Errorf("%w: %s.%s (model not registered)", ErrUnknownRelation, m.Name, name)
	}
	return m.registry.Resolve(m, name)
}

// RelationNames lists declared relation names in declaration order.
func (m *Model) RelationNames() []string {
	return append([]string(nil), m.order...)
}

// New creates an entity of this type from column values.
func (m *Model) New(attributes map[string]any) *Entity {
	return newEntity(m, attributes)
}
