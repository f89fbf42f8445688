package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/sleeping-owl/with-join/internal/sqlutil"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Err returns the result as an error, or nil when there are no errors.
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	return r
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.SchemaCache.validate(result)
	c.Log.validate(result)

	if c.Naming.PrimaryKey == "" {
		result.addError("naming.primary_key", "must not be empty", "the default is \"id\"")
	}

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	dialect, err := d.Dialect()
	if err != nil {
		result.addError("database.driver", err.Error(), "use mysql, postgres or sqlite")
		return
	}

	if strings.TrimSpace(d.DSN) == "" {
		result.addError("database.dsn", "is required", "set WITHJOIN_DATABASE_DSN")
		return
	}
	if dialect.Name == sqlutil.MySQL.Name {
		parsed, err := mysql.ParseDSN(d.DSN)
		if err != nil {
			result.addError("database.dsn", fmt.Sprintf("invalid MySQL DSN: %v", err), "")
		} else if !parsed.ParseTime {
			result.addWarning("database.dsn", "parseTime is disabled",
				"DATETIME columns will be returned as strings; add parseTime=true")
		}
	}

	if d.Pool.MaxOpen < 0 {
		result.addError("database.pool.max_open", "must not be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.addError("database.pool.max_idle", "must not be negative", "")
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.addWarning("database.pool.max_idle", "exceeds max_open", "database/sql caps idle connections at max_open")
	}
}

func (s *SchemaCacheConfig) validate(result *ValidationResult) {
	if s.TTL <= 0 {
		result.addError("schema_cache.ttl", "must be positive", "e.g. 24h")
	} else if s.TTL < time.Minute {
		result.addWarning("schema_cache.ttl", "is shorter than a minute", "joined queries will introspect the catalog often")
	}
	if s.Size <= 0 {
		result.addError("schema_cache.size", "must be positive", "")
	}
}

func (l *LogConfig) validate(result *ValidationResult) {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		result.addError("log.level", fmt.Sprintf("unknown level %q", l.Level), "use debug, info, warn or error")
	}
	switch l.Format {
	case "json", "text":
	default:
		result.addError("log.format", fmt.Sprintf("unknown format %q", l.Format), "use json or text")
	}
}
