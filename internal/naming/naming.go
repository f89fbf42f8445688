package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Namer applies naming conventions to entity and relation names.
type Namer struct {
	config Config
}

// New creates a Namer with the given configuration
func New(cfg Config) *Namer {
	if cfg.PrimaryKey == "" {
		cfg.PrimaryKey = "id"
	}
	return &Namer{config: cfg}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig())
}

// TableName returns the conventional table for an entity type name.
// Example: "Bar" -> "bars", "UserProfile" -> "user_profiles"
func (n *Namer) TableName(entityName string) string {
	tokens := splitTokens(ToSnakeCase(entityName))
	if len(tokens) == 0 {
		return ""
	}
	last := len(tokens) - 1
	tokens[last] = n.Pluralize(tokens[last])
	return strings.Join(tokens, "_")
}

// Pluralize returns the table form of the last word of an entity name.
// Configured plural overrides win over inflection rules.
func (n *Namer) Pluralize(word string) string {
	if plural, ok := n.config.PluralOverrides[word]; ok {
		return plural
	}
	return inflection.Plural(word)
}

// Singularize returns the key form of the last word of an owner name, so a
// has-many key can be derived from either "Bar" or "bars".
func (n *Namer) Singularize(word string) string {
	if singular, ok := n.config.SingularOverrides[word]; ok {
		return singular
	}
	return inflection.Singular(word)
}

// PrimaryKey returns the default primary key column.
func (n *Namer) PrimaryKey() string {
	return n.config.PrimaryKey
}

// BelongsToKey returns the local column that points at the related row for a
// belongs-to relation. Example: "foo" -> "foo_id"
func (n *Namer) BelongsToKey(relationName string) string {
	return ToSnakeCase(relationName) + "_" + n.config.PrimaryKey
}

// HasManyKey returns the column on the related table that points back at the
// owning entity. Example: "Bar" -> "bar_id", "bars" -> "bar_id"
func (n *Namer) HasManyKey(ownerName string) string {
	tokens := splitTokens(ToSnakeCase(ownerName))
	if len(tokens) == 0 {
		return ""
	}
	last := len(tokens) - 1
	tokens[last] = n.Singularize(tokens[last])
	return strings.Join(tokens, "_") + "_" + n.config.PrimaryKey
}

// ToSnakeCase converts PascalCase or camelCase to snake_case.
// Example: "UserProfile" -> "user_profile", "createdBy" -> "created_by"
func ToSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func splitTokens(name string) []string {
	tokens := strings.Split(strings.ToLower(name), "_")
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		out = append(out, token)
	}
	return out
}
