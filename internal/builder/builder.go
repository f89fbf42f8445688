// Package builder is the query surface callers use to request eager loads.
//
// With requests relations, References marks which of them may be joined, and
// Get compiles the joins, runs the single query, rebuilds entity trees from the
// flat rows and loads whatever was not joined with separate queries.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sleeping-owl/with-join/internal/dbexec"
	"github.com/sleeping-owl/with-join/internal/eagerload"
	"github.com/sleeping-owl/with-join/internal/hydrate"
	"github.com/sleeping-owl/with-join/internal/joinplan"
	"github.com/sleeping-owl/with-join/internal/logging"
	"github.com/sleeping-owl/with-join/internal/model"
	"github.com/sleeping-owl/with-join/internal/observability"
	"github.com/sleeping-owl/with-join/internal/query"
	"github.com/sleeping-owl/with-join/internal/relpath"
	"github.com/sleeping-owl/with-join/internal/sqlutil"
)

// ErrNotFound is returned by First and Find when no row matches.
var ErrNotFound = errors.New("entity not found")

// Deps are the collaborators shared by every builder of one database.
type Deps struct {
	Executor dbexec.QueryExecutor
	Columns  joinplan.ColumnSource
	Dialect  sqlutil.Dialect
	// Resolver defaults to the registry each model was registered with.
	Resolver joinplan.Resolver
	// Strict makes every builder behave as if Strict was called.
	Strict  bool
	Metrics *observability.Metrics
	Logger  *logging.Logger
}

type whereClause struct {
	pred any
	args []any
}

// Builder accumulates a query against one entity type.
type Builder struct {
	deps    Deps
	model   *model.Model
	eager   *joinplan.EagerLoads
	refs    *joinplan.References
	wheres  []whereClause
	orderBy []string
	limit   *uint64
	offset  *uint64
	strict  bool
	err     error
}

// New creates a builder for m. The model's default includes are applied.
func New(deps Deps, m *model.Model) *Builder {
	if deps.Dialect.IsZero() {
		deps.Dialect = sqlutil.MySQL
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	b := &Builder{
		deps:   deps,
		model:  m,
		eager:  joinplan.NewEagerLoads(),
		refs:   joinplan.NewReferences(),
		strict: deps.Strict,
	}
	if m == nil {
		b.err = errors.New("builder: model is required")
		return b
	}
	return b.Includes(m.Includes...)
}

// With requests relations by dot path. "bar.foo" also requests "bar".
func (b *Builder) With(paths ...string) *Builder {
	for _, s := range paths {
		path, err := relpath.Parse(s)
		if err != nil {
			b.setErr(err)
			continue
		}
		for _, prefix := range path.Prefixes() {
			b.eager.Add(prefix)
		}
	}
	return b
}

// WithConstraint requests path and attaches scopes to it. Scopes apply to the
// join alias when the relation is joined and to its table otherwise.
func (b *Builder) WithConstraint(path string, scopes ...model.Scope) *Builder {
	parsed, err := relpath.Parse(path)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.With(path)
	b.eager.Add(parsed, scopes...)
	return b
}

// References marks relation paths as eligible for joins.
func (b *Builder) References(paths ...string) *Builder {
	for _, s := range paths {
		path, err := relpath.Parse(s)
		if err != nil {
			b.setErr(err)
			continue
		}
		b.refs.Add(path)
	}
	return b
}

// Includes requests relations and marks them for joins.
func (b *Builder) Includes(paths ...string) *Builder {
	return b.With(paths...).References(paths...)
}

// GetReferences returns the referenced paths in dot form.
func (b *Builder) GetReferences() []string {
	return b.refs.Strings()
}

// Where adds a predicate in any form squirrel accepts: a Sqlizer, a
// map[string]any of equalities, or SQL with ? placeholders and args.
func (b *Builder) Where(pred any, args ...any) *Builder {
	b.wheres = append(b.wheres, whereClause{pred: pred, args: args})
	return b
}

// OrderBy adds ORDER BY expressions.
func (b *Builder) OrderBy(exprs ...string) *Builder {
	b.orderBy = append(b.orderBy, exprs...)
	return b
}

// Limit caps the number of root rows.
func (b *Builder) Limit(n uint64) *Builder {
	b.limit = &n
	return b
}

// Offset skips root rows.
func (b *Builder) Offset(n uint64) *Builder {
	b.offset = &n
	return b
}

// Strict fails execution when a referenced relation cannot be joined.
func (b *Builder) Strict() *Builder {
	b.strict = true
	return b
}

// Column returns a quoted column reference for use in Where and OrderBy.
// An empty path names the root table; otherwise the join alias of path.
func (b *Builder) Column(path, column string) string {
	if path == "" {
		return b.deps.Dialect.QuoteColumn(b.model.Table, column)
	}
	return b.deps.Dialect.QuoteColumn(path, column)
}

// ToSQL compiles the query without running it.
func (b *Builder) ToSQL(ctx context.Context) (query.SQLQuery, error) {
	built, _, _, err := b.compile(ctx)
	return built, err
}

// Get runs the query and returns the hydrated entities.
func (b *Builder) Get(ctx context.Context) ([]*model.Entity, error) {
	if b.err != nil {
		return nil, b.err
	}

	queryID := uuid.NewString()
	ctx = logging.WithQueryIDContext(ctx, queryID)
	logger := b.deps.Logger.WithComponent("builder").WithQueryID(queryID)
	ctx = logging.WithLogger(ctx, logger)

	ctx, span := observability.StartSpan(ctx, "builder.execute",
		attribute.String("model", b.model.Name),
		attribute.String("query_id", queryID),
	)
	defer span.End()

	start := time.Now()
	entities, err := b.execute(ctx, logger)
	b.deps.Metrics.RecordQuery(ctx, b.model.Name, time.Since(start), len(entities), err == nil)
	if err != nil {
		observability.RecordSpanError(span, err)
		logger.Warn("query failed", "model", b.model.Name, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", len(entities)))
	return entities, nil
}

// First returns the first matching entity or ErrNotFound.
func (b *Builder) First(ctx context.Context) (*model.Entity, error) {
	entities, err := b.clone().Limit(1).Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%s: %w", b.modelName(), ErrNotFound)
	}
	return entities[0], nil
}

// Find returns the entity whose primary key equals id.
func (b *Builder) Find(ctx context.Context, id any) (*model.Entity, error) {
	if b.err != nil {
		return nil, b.err
	}
	found := b.clone().Where(sq.Eq{b.Column("", b.model.PrimaryKey): id})
	entity, err := found.First(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%s %v: %w", b.model.Name, id, ErrNotFound)
	}
	return entity, err
}

func (b *Builder) execute(ctx context.Context, logger *logging.Logger) ([]*model.Entity, error) {
	if b.deps.Executor == nil {
		return nil, errors.New("builder: no executor configured")
	}

	built, plan, remaining, err := b.compile(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("executing query",
		"model", b.model.Name,
		"sql", built.SQL,
		"joins", plan.Len(),
		"fallbacks", remaining.Len(),
	)

	rows, err := b.deps.Executor.QueryContext(ctx, built.SQL, built.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", b.model.Table, err)
	}
	maps, err := dbexec.ScanMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", b.model.Table, err)
	}

	flat := make([]hydrate.Row, len(maps))
	for i, m := range maps {
		flat[i] = hydrate.Row(m)
	}
	entities, err := hydrate.New(b.deps.Resolver).UnflattenAll(b.model, flat)
	if err != nil {
		return nil, err
	}

	loader := eagerload.New(eagerload.Options{
		Executor: b.deps.Executor,
		Dialect:  b.deps.Dialect,
		Resolver: b.deps.Resolver,
		Logger:   logger,
	})
	if err := loader.Load(ctx, b.model, entities, remaining); err != nil {
		return nil, err
	}
	return entities, nil
}

// compile builds the statement on a copy of the eager-load set and returns the
// paths left for separate queries.
func (b *Builder) compile(ctx context.Context) (query.SQLQuery, *joinplan.Plan, *joinplan.EagerLoads, error) {
	if b.err != nil {
		return query.SQLQuery{}, nil, nil, b.err
	}

	remaining := b.eager.Clone()
	plan, err := joinplan.Compile(ctx, joinplan.Input{
		Model:      b.model,
		EagerLoads: remaining,
		References: b.refs,
		Resolver:   b.deps.Resolver,
		Columns:    b.deps.Columns,
		Dialect:    b.deps.Dialect,
		Strict:     b.strict,
		Metrics:    b.deps.Metrics,
		Logger:     b.compileLogger(ctx),
	})
	if err != nil {
		return query.SQLQuery{}, nil, nil, err
	}

	q := query.New(b.deps.Dialect, b.model.Table)
	for _, w := range b.wheres {
		q.Where(w.pred, w.args...)
	}
	plan.Apply(q)
	if len(b.orderBy) > 0 {
		q.OrderBy(b.orderBy...)
	}
	if b.limit != nil {
		q.Limit(*b.limit)
	}
	if b.offset != nil {
		q.Offset(*b.offset)
	}

	built, err := q.Build()
	if err != nil {
		return query.SQLQuery{}, nil, nil, err
	}
	return built, plan, remaining, nil
}

func (b *Builder) compileLogger(ctx context.Context) *logging.Logger {
	if id := logging.QueryID(ctx); id != "" {
		return b.deps.Logger.WithQueryID(id)
	}
	return b.deps.Logger
}

func (b *Builder) clone() *Builder {
	out := *b
	out.eager = b.eager.Clone()
	out.refs = joinplan.NewReferences(b.refs.Paths()...)
	out.wheres = append([]whereClause(nil), b.wheres...)
	out.orderBy = append([]string(nil), b.orderBy...)
	return &out
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) modelName() string {
	if b.model == nil {
		return ""
	}
	return b.model.Name
}
