// Package sqlutil provides SQL identifier quoting and dialect details.
package sqlutil

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect describes how identifiers and placeholders are written for a database.
type Dialect struct {
	Name string
	// Driver is the database/sql driver name registered for this dialect.
	Driver string
	// MaxIdentifierLength is the longest alias the server keeps without truncation. Zero means unlimited.
	MaxIdentifierLength int
	quote               byte
	placeholder         sq.PlaceholderFormat
}

var (
	// MySQL covers MySQL and TiDB.
	MySQL = Dialect{Name: "mysql", Driver: "mysql", MaxIdentifierLength: 256, quote: '`', placeholder: sq.Question}
	// Postgres uses numbered placeholders and truncates identifiers at 63 bytes.
	Postgres = Dialect{Name: "postgres", Driver: "pgx", MaxIdentifierLength: 63, quote: '"', placeholder: sq.Dollar}
	// SQLite uses ANSI quoting.
	SQLite = Dialect{Name: "sqlite", Driver: "sqlite", quote: '"', placeholder: sq.Question}
)

// DialectByName returns the dialect registered under name or driver name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql", "tidb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported dialect %q", name)
}

// IsZero reports whether d is the zero Dialect.
func (d Dialect) IsZero() bool {
	return d.Name == ""
}

// Placeholder returns the squirrel placeholder format for the dialect.
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d.placeholder == nil {
		return sq.Question
	}
	return d.placeholder
}

// Quote quotes a SQL identifier and escapes any embedded quote characters.
func (d Dialect) Quote(name string) string {
	q := d.quote
	if q == 0 {
		q = '`'
	}
	escaped := strings.ReplaceAll(name, string(q), string([]byte{q, q}))
	return string(q) + escaped + string(q)
}

// QuoteColumn quotes a table-qualified column reference.
func (d Dialect) QuoteColumn(table, column string) string {
	return d.Quote(table) + "." + d.Quote(column)
}
