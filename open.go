package withjoin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/sleeping-owl/with-join/internal/builder"
	"github.com/sleeping-owl/with-join/internal/dbexec"
	"github.com/sleeping-owl/with-join/internal/introspection"
	"github.com/sleeping-owl/with-join/internal/logging"
	"github.com/sleeping-owl/with-join/internal/observability"
	"github.com/sleeping-owl/with-join/internal/schemacache"
)

// Options configures a DB created from an existing handle.
type Options struct {
	Dialect Dialect
	// Schema narrows column introspection. Empty means the connection's current schema.
	Schema string
	// Strict fails queries that reference a to-many relation.
	Strict          bool
	SchemaCacheTTL  time.Duration
	SchemaCacheSize int
	Metrics         bool
	Logger          *slog.Logger
	// LoggerProvider also receives every record written to Logger.
	LoggerProvider *sdklog.LoggerProvider
}

// OpenOption customizes Open.
type OpenOption func(*openSettings)

type openSettings struct {
	loggerProvider *sdklog.LoggerProvider
}

// WithLoggerProvider mirrors library logs to an OpenTelemetry logger provider.
func WithLoggerProvider(provider *sdklog.LoggerProvider) OpenOption {
	return func(s *openSettings) {
		s.loggerProvider = provider
	}
}

// DB binds a database handle to a registry of entity types.
type DB struct {
	sqlDB    *sql.DB
	handle   *dbexec.DB
	registry *Registry
	cache    *schemacache.Cache
	deps     builder.Deps
	logger   *logging.Logger
}

// Open connects to the configured database. The registry must hold every
// entity type that will be queried. Build it with NewRegistry(cfg.Naming) so
// default table and key names follow the configured conventions; Open rejects
// a registry whose primary key convention differs from cfg.Naming.
func Open(ctx context.Context, cfg *Config, registry *Registry, options ...OpenOption) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	var settings openSettings
	for _, opt := range options {
		opt(&settings)
	}
	if err := cfg.Validate().Err(); err != nil {
		return nil, err
	}
	dialect, err := cfg.Database.Dialect()
	if err != nil {
		return nil, err
	}

	if registry != nil && registry.PrimaryKey() != cfg.Naming.PrimaryKey {
		return nil, fmt.Errorf("withjoin: registry primary key %q does not match naming.primary_key %q",
			registry.PrimaryKey(), cfg.Naming.PrimaryKey)
	}

	logger := logging.NewLogger(logging.Config{
		Level:          cfg.Log.Level,
		Format:         cfg.Log.Format,
		LoggerProvider: settings.loggerProvider,
	})

	handle, err := dbexec.Open(ctx, dbexec.OpenConfig{
		Dialect:         dialect,
		DSN:             cfg.Database.DSN,
		Instrument:      cfg.Database.Instrument,
		MaxOpenConns:    cfg.Database.Pool.MaxOpen,
		MaxIdleConns:    cfg.Database.Pool.MaxIdle,
		ConnMaxLifetime: cfg.Database.Pool.MaxLifetime,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	db, err := newDB(handle.DB, registry, Options{
		Dialect:         dialect,
		Schema:          cfg.Database.Schema,
		Strict:          cfg.Joins.Strict,
		SchemaCacheTTL:  cfg.SchemaCache.TTL,
		SchemaCacheSize: cfg.SchemaCache.Size,
		Metrics:         cfg.Observability.MetricsEnabled,
	}, logger)
	if err != nil {
		_ = handle.Close()
		return nil, err
	}
	db.handle = handle
	logger.Info("database opened",
		slog.String("driver", dialect.Name),
		slog.Bool("instrumented", cfg.Database.Instrument),
	)
	return db, nil
}

// NewDB wraps an already opened handle. Closing the DB does not close sqlDB.
func NewDB(sqlDB *sql.DB, registry *Registry, opts Options) (*DB, error) {
	var logger *logging.Logger
	if opts.Logger != nil || opts.LoggerProvider != nil {
		logger = logging.Mirror(opts.Logger, opts.LoggerProvider)
	}
	return newDB(sqlDB, registry, opts, logger)
}

func newDB(sqlDB *sql.DB, registry *Registry, opts Options, logger *logging.Logger) (*DB, error) {
	if sqlDB == nil {
		return nil, errors.New("withjoin: database handle is required")
	}
	if registry == nil {
		return nil, errors.New("withjoin: registry is required")
	}
	if opts.Dialect.IsZero() {
		return nil, errors.New("withjoin: dialect is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}

	var metrics *observability.Metrics
	if opts.Metrics {
		m, err := observability.InitMetrics()
		if err != nil {
			logger.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		} else {
			metrics = m
		}
	}

	cache := schemacache.New(introspection.NewLister(sqlDB, opts.Dialect, opts.Schema), schemacache.Options{
		TTL:     opts.SchemaCacheTTL,
		Size:    opts.SchemaCacheSize,
		Metrics: metrics,
		Logger:  logger,
	})

	return &DB{
		sqlDB:    sqlDB,
		registry: registry,
		cache:    cache,
		logger:   logger,
		deps: builder.Deps{
			Executor: dbexec.NewStandardExecutor(sqlDB),
			Columns:  cache,
			Dialect:  opts.Dialect,
			Strict:   opts.Strict,
			Metrics:  metrics,
			Logger:   logger,
		},
	}, nil
}

// Query starts a builder for the named entity type.
func (db *DB) Query(name string) (*Builder, error) {
	m, err := db.registry.Model(name)
	if err != nil {
		return nil, err
	}
	return db.For(m), nil
}

// MustQuery is like Query but panics when the entity type is not registered.
func (db *DB) MustQuery(name string) *Builder {
	b, err := db.Query(name)
	if err != nil {
		panic(err)
	}
	return b
}

// For starts a builder for m.
func (db *DB) For(m *Model) *Builder {
	return builder.New(db.deps, m)
}

// Registry returns the entity types this DB queries.
func (db *DB) Registry() *Registry {
	return db.registry
}

// SQL returns the underlying handle.
func (db *DB) SQL() *sql.DB {
	return db.sqlDB
}

// InvalidateSchema drops the cached column listing of table, or of every
// table when none are given. Call it after altering a table.
func (db *DB) InvalidateSchema(tables ...string) {
	if len(tables) == 0 {
		db.cache.Purge()
		return
	}
	for _, table := range tables {
		db.cache.Invalidate(table)
	}
}

// Close closes the handle when the DB opened it.
func (db *DB) Close() error {
	if db.handle == nil {
		return nil
	}
	if err := db.handle.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
