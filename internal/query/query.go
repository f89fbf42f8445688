// Package query provides the mutable SELECT handle that join plans are applied to.
package query

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/sleeping-owl/with-join/internal/sqlutil"
)

// SQLQuery is a rendered statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// Select accumulates the parts of a SELECT against one root table. Selected
// columns, joins and predicates keep their insertion order.
type Select struct {
	dialect sqlutil.Dialect
	table   string
	columns []string
	joins   []string
	where   []sq.Sqlizer
	orderBy []string
	limit   *uint64
	offset  *uint64
}

// New creates a handle selecting from table.
func New(dialect sqlutil.Dialect, table string) *Select {
	return &Select{dialect: dialect, table: table}
}

// Dialect returns the dialect the handle renders for.
func (s *Select) Dialect() sqlutil.Dialect {
	return s.dialect
}

// Table returns the root table name.
func (s *Select) Table() string {
	return s.table
}

// AddLeftJoin appends `LEFT JOIN table AS alias ON leftColumn = rightColumn`.
// All arguments are rendered SQL and are not quoted again.
func (s *Select) AddLeftJoin(table, alias, leftColumn, rightColumn string) {
	s.joins = append(s.joins, fmt.Sprintf("%s AS %s ON %s = %s", table, alias, leftColumn, rightColumn))
}

// AddSelect appends a selected expression. An empty alias selects expr as is.
func (s *Select) AddSelect(expr, alias string) {
	if alias == "" {
		s.columns = append(s.columns, expr)
		return
	}
	s.columns = append(s.columns, expr+" AS "+alias)
}

// MergePredicates appends predicates to the WHERE list. Nil entries are skipped.
func (s *Select) MergePredicates(preds ...sq.Sqlizer) {
	for _, p := range preds {
		if p != nil {
			s.where = append(s.where, p)
		}
	}
}

// Where appends a predicate in any form squirrel accepts.
func (s *Select) Where(pred interface{}, args ...interface{}) {
	switch p := pred.(type) {
	case nil:
		return
	case string:
		s.where = append(s.where, sq.Expr(p, args...))
	case sq.Sqlizer:
		s.where = append(s.where, p)
	case map[string]interface{}:
		s.where = append(s.where, sq.Eq(p))
	default:
		s.where = append(s.where, sq.Expr(fmt.Sprint(p), args...))
	}
}

// OrderBy appends ORDER BY expressions.
func (s *Select) OrderBy(exprs ...string) {
	s.orderBy = append(s.orderBy, exprs...)
}

// Limit sets the row limit.
func (s *Select) Limit(n uint64) {
	s.limit = &n
}

// Offset sets the row offset.
func (s *Select) Offset(n uint64) {
	s.offset = &n
}

// Columns returns the selected expressions in order.
func (s *Select) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Joins returns the join clauses in order, without the LEFT JOIN keyword.
func (s *Select) Joins() []string {
	return append([]string(nil), s.joins...)
}

// Predicates returns the WHERE list in order.
func (s *Select) Predicates() []sq.Sqlizer {
	return append([]sq.Sqlizer(nil), s.where...)
}

// Build renders the statement. With no selected columns the root table's
// columns are selected.
func (s *Select) Build() (SQLQuery, error) {
	if s.table == "" {
		return SQLQuery{}, fmt.Errorf("query has no table")
	}
	columns := s.columns
	if len(columns) == 0 {
		columns = []string{s.dialect.Quote(s.table) + ".*"}
	}

	builder := sq.Select(columns...).From(s.dialect.Quote(s.table))
	for _, join := range s.joins {
		builder = builder.LeftJoin(join)
	}
	for _, pred := range s.where {
		builder = builder.Where(pred)
	}
	if len(s.orderBy) > 0 {
		builder = builder.OrderBy(s.orderBy...)
	}
	if s.limit != nil {
		builder = builder.Limit(*s.limit)
	}
	if s.offset != nil {
		builder = builder.Offset(*s.offset)
	}

	sql, args, err := builder.PlaceholderFormat(s.dialect.Placeholder()).ToSql()
	if err != nil {
		return SQLQuery{}, fmt.Errorf("failed to build query for %s: %w", s.table, err)
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// ToSql implements squirrel.Sqlizer.
func (s *Select) ToSql() (string, []interface{}, error) {
	q, err := s.Build()
	if err != nil {
		return "", nil, err
	}
	return q.SQL, q.Args, nil
}
