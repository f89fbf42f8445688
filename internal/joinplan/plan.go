package joinplan

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/sleeping-owl/with-join/internal/relpath"
	"github.com/sleeping-owl/with-join/internal/sqlutil"
)

// Query is the handle a Plan is applied to. Arguments are rendered SQL.
type Query interface {
	AddLeftJoin(table, alias, leftColumn, rightColumn string)
	AddSelect(expr, alias string)
	MergePredicates(preds ...sq.Sqlizer)
}

// Step is one compiled join.
type Step struct {
	Path relpath.Path
	// Alias is the unquoted table alias of the join.
	Alias string
	Table string
	// LocalAlias is the root table for depth 1, otherwise the parent step's alias.
	LocalAlias string
	LocalKey   string
	RelatedKey string
	Columns    []string
	// Prefix is prepended to every column to form its output alias.
	Prefix     string
	Predicates []sq.Sqlizer
}

// Plan is the ordered list of joins for one query.
type Plan struct {
	RootTable string
	Steps     []Step
	dialect   sqlutil.Dialect
}

// Len returns the number of joins.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Steps)
}

// Paths returns the joined relation paths in plan order.
func (p *Plan) Paths() []relpath.Path {
	if p == nil {
		return nil
	}
	out := make([]relpath.Path, len(p.Steps))
	for i, step := range p.Steps {
		out[i] = step.Path
	}
	return out
}

// Apply adds the plan's joins, aliased columns and predicates to q, then
// selects every root column.
func (p *Plan) Apply(q Query) {
	d := p.dialect
	for _, step := range p.Steps {
		q.AddLeftJoin(
			d.Quote(step.Table),
			d.Quote(step.Alias),
			d.QuoteColumn(step.Alias, step.RelatedKey),
			d.QuoteColumn(step.LocalAlias, step.LocalKey),
		)
		for _, col := range step.Columns {
			q.AddSelect(d.QuoteColumn(step.Alias, col), d.Quote(step.Prefix+col))
		}
		if len(step.Predicates) > 0 {
			q.MergePredicates(step.Predicates...)
		}
	}
	q.AddSelect(d.Quote(p.RootTable)+".*", "")
}
