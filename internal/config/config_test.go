package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleeping-owl/with-join/internal/naming"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "mysql",
			DSN:    "root:secret@tcp(localhost:3306)/shop?parseTime=true",
		},
		SchemaCache: SchemaCacheConfig{TTL: 24 * time.Hour, Size: 1024},
		Log:         LogConfig{Level: "info", Format: "json"},
		Naming:      naming.DefaultConfig(),
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.SchemaCache.TTL)
	assert.Equal(t, 1024, cfg.SchemaCache.Size)
	assert.False(t, cfg.Joins.Strict)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.Equal(t, "id", cfg.Naming.PrimaryKey)
}

func TestDefaultIgnoresEnvironment(t *testing.T) {
	t.Setenv("WITHJOIN_DATABASE_DRIVER", "postgres")

	cfg := Default()
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.SchemaCache.TTL)
	assert.Equal(t, "id", cfg.Naming.PrimaryKey)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "with-join.yaml")
	content := `
database:
  driver: sqlite
  dsn: ":memory:"
schema_cache:
  ttl: 10m
joins:
  strict: true
naming:
  plural_overrides:
    person: people
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("WITHJOIN_SCHEMA_CACHE_SIZE", "64")
	t.Setenv("WITHJOIN_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ":memory:", cfg.Database.DSN)
	assert.Equal(t, 10*time.Minute, cfg.SchemaCache.TTL)
	assert.Equal(t, 64, cfg.SchemaCache.Size)
	assert.True(t, cfg.Joins.Strict)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, map[string]string{"person": "people"}, cfg.Naming.PluralOverrides)
}

func TestLoadEnvDurationAndMap(t *testing.T) {
	t.Setenv("WITHJOIN_SCHEMA_CACHE_TTL", "90s")
	t.Setenv("WITHJOIN_NAMING_SINGULAR_OVERRIDES", "people=person, data=datum")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.SchemaCache.TTL)
	assert.Equal(t, map[string]string{"people": "person", "data": "datum"}, cfg.Naming.SingularOverrides)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("joins:\n  stirct: true\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*Config)
		wantErrField string
		wantWarning  string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:         "unknown driver",
			mutate:       func(c *Config) { c.Database.Driver = "oracle" },
			wantErrField: "database.driver",
		},
		{
			name:         "missing dsn",
			mutate:       func(c *Config) { c.Database.DSN = " " },
			wantErrField: "database.dsn",
		},
		{
			name:         "invalid mysql dsn",
			mutate:       func(c *Config) { c.Database.DSN = "not a dsn" },
			wantErrField: "database.dsn",
		},
		{
			name:        "mysql without parseTime",
			mutate:      func(c *Config) { c.Database.DSN = "root@tcp(localhost:3306)/shop" },
			wantWarning: "database.dsn",
		},
		{
			name: "postgres dsn is not parsed as mysql",
			mutate: func(c *Config) {
				c.Database.Driver = "postgres"
				c.Database.DSN = "postgres://user@localhost/shop"
			},
		},
		{
			name:         "negative pool",
			mutate:       func(c *Config) { c.Database.Pool.MaxOpen = -1 },
			wantErrField: "database.pool.max_open",
		},
		{
			name:         "zero ttl",
			mutate:       func(c *Config) { c.SchemaCache.TTL = 0 },
			wantErrField: "schema_cache.ttl",
		},
		{
			name:        "short ttl",
			mutate:      func(c *Config) { c.SchemaCache.TTL = time.Second },
			wantWarning: "schema_cache.ttl",
		},
		{
			name:         "zero size",
			mutate:       func(c *Config) { c.SchemaCache.Size = 0 },
			wantErrField: "schema_cache.size",
		},
		{
			name:         "bad log level",
			mutate:       func(c *Config) { c.Log.Level = "verbose" },
			wantErrField: "log.level",
		},
		{
			name:         "bad log format",
			mutate:       func(c *Config) { c.Log.Format = "xml" },
			wantErrField: "log.format",
		},
		{
			name:         "empty primary key",
			mutate:       func(c *Config) { c.Naming.PrimaryKey = "" },
			wantErrField: "naming.primary_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			result := cfg.Validate()

			if tt.wantErrField == "" {
				assert.False(t, result.HasErrors(), result.Error())
				assert.NoError(t, result.Err())
			} else {
				require.True(t, result.HasErrors())
				assert.Equal(t, tt.wantErrField, result.Errors[0].Field)
				assert.Error(t, result.Err())
				assert.Contains(t, result.Error(), tt.wantErrField)
			}

			if tt.wantWarning != "" {
				require.NotEmpty(t, result.Warnings)
				assert.Equal(t, tt.wantWarning, result.Warnings[0].Field)
			}
		})
	}
}

func TestDialect(t *testing.T) {
	d, err := DatabaseConfig{Driver: "postgres"}.Dialect()
	require.NoError(t, err)
	assert.Equal(t, "pgx", d.Driver)

	_, err = DatabaseConfig{Driver: "mssql"}.Dialect()
	assert.Error(t, err)
}
