// Package config loads library configuration from defaults, an optional YAML
// file and WITHJOIN_ environment variables, and validates it.
package config

import (
	"time"

	"github.com/sleeping-owl/with-join/internal/naming"
	"github.com/sleeping-owl/with-join/internal/sqlutil"
)

// Config holds the library configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	SchemaCache   SchemaCacheConfig   `mapstructure:"schema_cache"`
	Joins         JoinsConfig         `mapstructure:"joins"`
	Log           LogConfig           `mapstructure:"log"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // mysql, postgres or sqlite
	DSN    string `mapstructure:"dsn"`
	// Schema narrows column introspection. Empty means the connection's current schema.
	Schema     string     `mapstructure:"schema"`
	Instrument bool       `mapstructure:"instrument"`
	Pool       PoolConfig `mapstructure:"pool"`
}

// PoolConfig holds connection pool limits. Zero keeps the database/sql default.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// SchemaCacheConfig controls how long column listings are reused.
type SchemaCacheConfig struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Size int           `mapstructure:"size"`
}

// JoinsConfig controls join compilation.
type JoinsConfig struct {
	// Strict fails queries that reference a to-many relation instead of loading it separately.
	Strict bool `mapstructure:"strict"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig toggles metric instruments.
type ObservabilityConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// Dialect returns the SQL dialect for the configured driver.
func (d DatabaseConfig) Dialect() (sqlutil.Dialect, error) {
	return sqlutil.DialectByName(d.Driver)
}
