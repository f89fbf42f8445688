package model

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Entity is one row of an entity type with its loaded relations.
// Relations are kept apart from attributes: Attributes never includes them,
// and they are read back through Relation, One and Many.
type Entity struct {
	model      *Model
	attributes map[string]any
	relations  map[string]any
}

func newEntity(m *Model, attributes map[string]any) *Entity {
	attrs := make(map[string]any, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}
	return &Entity{model: m, attributes: attrs}
}

// Model returns the entity's type.
func (e *Entity) Model() *Model {
	return e.model
}

// Get returns a single attribute value.
func (e *Entity) Get(column string) any {
	return e.attributes[column]
}

// Attributes returns a copy of the column values, without relations.
func (e *Entity) Attributes() map[string]any {
	out := make(map[string]any, len(e.attributes))
	for k, v := range e.attributes {
		out[k] = v
	}
	return out
}

// Key returns the primary key value.
func (e *Entity) Key() any {
	if e.model == nil {
		return nil
	}
	return e.attributes[e.model.PrimaryKey]
}

// HasKey reports whether the primary key holds a value. A missing key, nil,
// an empty string or empty bytes count as no value.
func (e *Entity) HasKey() bool {
	return !IsEmptyValue(e.Key())
}

// SetRelation attaches a loaded relation. value is *Entity, []*Entity or nil.
func (e *Entity) SetRelation(name string, value any) {
	if e.relations == nil {
		e.relations = make(map[string]any)
	}
	e.relations[name] = value
}

// Relation returns a loaded relation and whether it was attached.
func (e *Entity) Relation(name string) (any, bool) {
	v, ok := e.relations[name]
	return v, ok
}

// RelationLoaded reports whether a relation has been attached.
func (e *Entity) RelationLoaded(name string) bool {
	_, ok := e.relations[name]
	return ok
}

// One returns a to-one relation, or nil when it is absent.
func (e *Entity) One(name string) *Entity {
	v, _ := e.relations[name].(*Entity)
	return v
}

// Many returns a to-many relation, or nil when it is absent.
func (e *Entity) Many(name string) []*Entity {
	v, _ := e.relations[name].([]*Entity)
	return v
}

// RelationNames lists attached relations in sorted order.
func (e *Entity) RelationNames() []string {
	names := make([]string, 0, len(e.relations))
	for name := range e.relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToMap returns attributes plus nested relations as plain maps.
func (e *Entity) ToMap() map[string]any {
	out := e.Attributes()
	for name, rel := range e.relations {
		switch v := rel.(type) {
		case *Entity:
			if v == nil {
				out[name] = nil
				continue
			}
			out[name] = v.ToMap()
		case []*Entity:
			items := make([]map[string]any, len(v))
			for i, item := range v {
				items[i] = item.ToMap()
			}
			out[name] = items
		default:
			out[name] = nil
		}
	}
	return out
}

// Decode copies attributes into dst, a pointer to a struct, using `db` tags.
// Values are converted weakly (e.g. int64 columns into int fields).
func (e *Entity) Decode(dst any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "db",
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return fmt.Errorf("decode %s: %w", e.modelName(), err)
	}
	if err := decoder.Decode(e.attributes); err != nil {
		return fmt.Errorf("decode %s: %w", e.modelName(), err)
	}
	return nil
}

// Equal reports whether two entity trees have the same type, attributes and relations.
func (e *Entity) Equal(other *Entity) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.modelName() != other.modelName() {
		return false
	}
	return reflect.DeepEqual(e.ToMap(), other.ToMap())
}

func (e *Entity) modelName() string {
	if e.model == nil {
		return ""
	}
	return e.model.Name
}

// IsEmptyValue reports whether a key value means "no row".
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []byte:
		return len(val) == 0
	}
	return false
}
