package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"

	"github.com/sleeping-owl/with-join/internal/logging"
	"github.com/sleeping-owl/with-join/internal/sqlutil"
)

// OpenConfig controls how a database handle is opened.
type OpenConfig struct {
	Dialect sqlutil.Dialect
	DSN     string
	// Instrument wraps the driver with otelsql tracing and DB stats metrics.
	Instrument bool
	// Pool limits. Zero keeps the database/sql default.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          *logging.Logger
}

// DB is an opened handle plus the DB stats registration to release on close.
type DB struct {
	*sql.DB
	stats interface{ Unregister() error }
}

// Close unregisters DB stats metrics and closes the handle.
func (db *DB) Close() error {
	if db.stats != nil {
		_ = db.stats.Unregister()
	}
	return db.DB.Close()
}

// Open opens and pings a database for the configured dialect.
func Open(ctx context.Context, cfg OpenConfig) (*DB, error) {
	if cfg.Dialect.IsZero() {
		return nil, fmt.Errorf("database dialect is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("dbexec")

	var (
		sqlDB *sql.DB
		stats interface{ Unregister() error }
		err   error
	)
	if cfg.Instrument {
		system := dbSystem(cfg.Dialect)
		sqlDB, err = otelsql.Open(cfg.Dialect.Driver, cfg.DSN,
			otelsql.WithAttributes(system),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s database: %w", cfg.Dialect.Name, err)
		}
		stats, err = otelsql.RegisterDBStatsMetrics(sqlDB, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
		logger.Info("database instrumentation enabled", slog.String("driver", cfg.Dialect.Driver))
	} else {
		sqlDB, err = sql.Open(cfg.Dialect.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s database: %w", cfg.Dialect.Name, err)
		}
	}

	applyPool(sqlDB, cfg, logger)

	if err := sqlDB.PingContext(ctx); err != nil {
		if stats != nil {
			_ = stats.Unregister()
		}
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Dialect.Name, err)
	}
	return &DB{DB: sqlDB, stats: stats}, nil
}

func applyPool(db *sql.DB, cfg OpenConfig, logger *logging.Logger) {
	maxOpen := cfg.MaxOpenConns
	// Every connection to an in-memory SQLite database opens a new, empty database.
	if cfg.Dialect.Name == sqlutil.SQLite.Name && isMemoryDSN(cfg.DSN) && maxOpen != 1 {
		if maxOpen > 1 {
			logger.Warn("limiting in-memory sqlite to one connection", slog.Int("max_open", maxOpen))
		}
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func dbSystem(d sqlutil.Dialect) attribute.KeyValue {
	switch d.Name {
	case sqlutil.MySQL.Name:
		return semconv.DBSystemMySQL
	case sqlutil.Postgres.Name:
		return semconv.DBSystemPostgreSQL
	default:
		return semconv.DBSystemKey.String(d.Name)
	}
}
