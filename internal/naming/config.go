// Package naming derives table and key names for entity types the way the
// query builder expects them by default: snake_case, pluralized tables and
// <singular>_id foreign keys.
package naming

// Config holds naming customization options
type Config struct {
	// PluralOverrides maps singular -> custom plural
	// Example: {"person": "people", "status": "statuses"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// SingularOverrides maps plural -> custom singular
	// Example: {"people": "person", "data": "datum"}
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`

	// PrimaryKey is the default primary key column. Empty means "id".
	PrimaryKey string `mapstructure:"primary_key"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   make(map[string]string),
		SingularOverrides: make(map[string]string),
		PrimaryKey:        "id",
	}
}
