// Package introspection discovers table column listings from the database catalog.
// It is consulted on schema cache misses so joined relations can select every
// column of the related table under an encoded alias.
package introspection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sleeping-owl/with-join/internal/observability"
	"github.com/sleeping-owl/with-join/internal/sqlutil"
)

// ErrNoColumns indicates the catalog returned no columns, usually because the table does not exist.
var ErrNoColumns = errors.New("no columns found")

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ColumnLister lists the ordered column names of a table.
type ColumnLister interface {
	ListColumns(ctx context.Context, table string) ([]string, error)
}

// Lister reads column listings from the catalog of one database.
type Lister struct {
	db      Queryer
	dialect sqlutil.Dialect
	// schema narrows MySQL and PostgreSQL lookups. Empty means the connection's current schema.
	schema string
}

// NewLister creates a Lister for the given dialect. schema may be empty.
func NewLister(db Queryer, dialect sqlutil.Dialect, schema string) *Lister {
	return &Lister{db: db, dialect: dialect, schema: schema}
}

// ListColumns returns the table's column names in ordinal order.
func (l *Lister) ListColumns(ctx context.Context, table string) ([]string, error) {
	ctx, span := observability.StartSpan(ctx, "introspection.list_columns",
		attribute.String("db.system", l.dialect.Name),
		attribute.String("db.table", table),
	)
	defer span.End()

	query, args := l.columnsQuery(table)
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		observability.RecordSpanError(span, err)
		return nil, fmt.Errorf("failed to list columns for %s: %w", table, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			observability.RecordSpanError(span, err)
			return nil, fmt.Errorf("failed to scan column for %s: %w", table, err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		observability.RecordSpanError(span, err)
		return nil, fmt.Errorf("failed to list columns for %s: %w", table, err)
	}

	if len(columns) == 0 {
		err := fmt.Errorf("%w for table %s", ErrNoColumns, table)
		observability.RecordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("db.columns", len(columns)))
	return columns, nil
}

func (l *Lister) columnsQuery(table string) (string, []any) {
	switch l.dialect.Name {
	case sqlutil.Postgres.Name:
		if l.schema != "" {
			return `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, []any{l.schema, table}
		}
		return `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`, []any{table}
	case sqlutil.SQLite.Name:
		return `SELECT name FROM pragma_table_info(?) ORDER BY cid`, []any{table}
	default:
		if l.schema != "" {
			return `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`, []any{l.schema, table}
		}
		return `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`, []any{table}
	}
}
