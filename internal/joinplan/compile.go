// Package joinplan compiles referenced to-one eager loads into LEFT JOINs.
//
// Compile walks the eager-load set of a root entity type and produces a Plan:
// one Step per relation that can be satisfied by a join, with the related
// table's columns selected under codec-encoded aliases. Apply replays the plan
// onto a query handle. Relations that are not referenced, or that are not
// to-one, stay in the eager-load set and are loaded by separate queries.
package joinplan

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sleeping-owl/with-join/internal/aliascodec"
	"github.com/sleeping-owl/with-join/internal/logging"
	"github.com/sleeping-owl/with-join/internal/model"
	"github.com/sleeping-owl/with-join/internal/observability"
	"github.com/sleeping-owl/with-join/internal/relpath"
	"github.com/sleeping-owl/with-join/internal/sqlutil"
)

var (
	// ErrUnsupportedRelationKind is returned in strict mode when a referenced relation is not to-one.
	ErrUnsupportedRelationKind = errors.New("unsupported relation kind for join")
	// ErrAliasCollision indicates two joins would share a table or column alias,
	// or an alias would be truncated by the database.
	ErrAliasCollision = errors.New("alias collision")
)

// Fallback reasons reported to metrics and logs.
const (
	ReasonNotReferenced   = "not_referenced"
	ReasonToMany          = "to_many"
	ReasonParentNotJoined = "parent_not_joined"
)

// Resolver looks up a relation by name on an entity type.
type Resolver interface {
	Resolve(m *model.Model, name string) (model.Relation, error)
}

// ColumnSource returns the ordered column names of a table.
type ColumnSource interface {
	Columns(ctx context.Context, table string) ([]string, error)
}

// Input is everything Compile needs for one query.
type Input struct {
	Model      *model.Model
	EagerLoads *EagerLoads
	References *References
	// Resolver defaults to the registry the model was registered with.
	Resolver Resolver
	Columns  ColumnSource
	Dialect  sqlutil.Dialect
	// Strict turns a referenced to-many relation into ErrUnsupportedRelationKind
	// instead of a silent fallback.
	Strict  bool
	Metrics *observability.Metrics
	Logger  *logging.Logger
}

// Compile builds the join plan for in.Model. On success the paths that became
// joins are removed from in.EagerLoads. On error neither the eager-load set nor
// any query has been touched.
func Compile(ctx context.Context, in Input) (*Plan, error) {
	if in.Model == nil {
		return nil, errors.New("joinplan: model is required")
	}
	if in.EagerLoads == nil {
		in.EagerLoads = NewEagerLoads()
	}
	if in.Resolver == nil {
		in.Resolver = RegistryResolver{}
	}
	if in.Dialect.IsZero() {
		in.Dialect = sqlutil.MySQL
	}
	logger := in.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	logger = logger.WithComponent("joinplan")

	ctx, span := observability.StartSpan(ctx, "joinplan.compile",
		attribute.String("model", in.Model.Name),
		attribute.Int("eager_loads", in.EagerLoads.Len()),
		attribute.Int("references", in.References.Len()),
	)
	defer span.End()

	c := &compiler{
		in:       in,
		plan:     &Plan{RootTable: in.Model.Table, dialect: in.Dialect},
		aliases:  map[string]relpath.Path{in.Model.Table: nil},
		reasons:  make(map[string]string),
		rootName: in.Model.Name,
	}
	if err := c.validatePaths(); err != nil {
		observability.RecordSpanError(span, err)
		return nil, err
	}

	for _, path := range in.EagerLoads.Paths() {
		if path.Depth() != 1 {
			continue
		}
		if err := c.compile(ctx, in.Model, in.Model.Table, path); err != nil {
			observability.RecordSpanError(span, err)
			return nil, err
		}
	}

	for _, step := range c.plan.Steps {
		in.EagerLoads.Remove(step.Path)
		in.Metrics.RecordJoin(ctx, in.Model.Name, step.Path.Depth())
		logger.Debug("compiled join",
			"model", in.Model.Name,
			"path", step.Path.String(),
			"table", step.Table,
			"columns", len(step.Columns),
		)
	}
	for _, path := range in.EagerLoads.Paths() {
		reason, ok := c.reasons[path.String()]
		if !ok {
			reason = ReasonParentNotJoined
		}
		in.Metrics.RecordFallback(ctx, in.Model.Name, reason)
		logger.Debug("relation left to separate query",
			"model", in.Model.Name,
			"path", path.String(),
			"reason", reason,
		)
	}

	span.SetAttributes(attribute.Int("joins", len(c.plan.Steps)))
	return c.plan, nil
}

type compiler struct {
	in       Input
	plan     *Plan
	aliases  map[string]relpath.Path
	reasons  map[string]string
	rootName string
}

// validatePaths resolves every segment of every requested path so an unknown
// relation fails before anything is compiled.
func (c *compiler) validatePaths() error {
	for _, path := range c.in.EagerLoads.Paths() {
		current := c.in.Model
		for i, name := range path {
			rel, err := c.in.Resolver.Resolve(current, name)
			if err != nil {
				return fmt.Errorf("compile %s eager load %q: %w", c.rootName, path[:i+1].String(), err)
			}
			current = rel.Related
		}
	}
	return nil
}

func (c *compiler) compile(ctx context.Context, parent *model.Model, parentAlias string, path relpath.Path) error {
	rel, err := c.in.Resolver.Resolve(parent, path.Last())
	if err != nil {
		return fmt.Errorf("compile %s eager load %q: %w", c.rootName, path.String(), err)
	}

	if !c.in.References.Eligible(path) {
		c.reasons[path.String()] = ReasonNotReferenced
		return nil
	}
	if rel.Kind != model.ToOne {
		if c.in.Strict {
			return fmt.Errorf("%w: %s.%s is %s", ErrUnsupportedRelationKind, parent.Name, rel.Name, rel.Kind)
		}
		c.reasons[path.String()] = ReasonToMany
		return nil
	}

	alias := aliascodec.TableAlias(path)
	if err := c.claimAlias(alias, path); err != nil {
		return err
	}

	if c.in.Columns == nil {
		return fmt.Errorf("compile %s join %q: no column source", c.rootName, path.String())
	}
	columns, err := c.in.Columns.Columns(ctx, rel.RelatedTable())
	if err != nil {
		return fmt.Errorf("compile %s join %q: %w", c.rootName, path.String(), err)
	}
	prefix := aliascodec.PrefixFor(path)
	for _, col := range columns {
		if !aliascodec.ValidColumn(col) {
			return fmt.Errorf("%w: column %q of %s cannot be aliased for %q",
				ErrAliasCollision, col, rel.RelatedTable(), path.String())
		}
		if err := c.checkLength(aliascodec.Column(prefix, col)); err != nil {
			return err
		}
	}

	quotedAlias := c.in.Dialect.Quote(alias)
	var preds []sq.Sqlizer
	for _, scope := range rel.Scopes {
		preds = append(preds, scope(quotedAlias))
	}
	for _, scope := range c.in.EagerLoads.Scopes(path) {
		preds = append(preds, scope(quotedAlias))
	}

	c.plan.Steps = append(c.plan.Steps, Step{
		Path:       path,
		Alias:      alias,
		Table:      rel.RelatedTable(),
		LocalAlias: parentAlias,
		LocalKey:   rel.LocalKey,
		RelatedKey: rel.RelatedKey,
		Columns:    append([]string(nil), columns...),
		Prefix:     prefix,
		Predicates: preds,
	})

	for _, child := range c.in.EagerLoads.Paths() {
		if !child.IsChildOf(path) {
			continue
		}
		if err := c.compile(ctx, rel.Related, alias, child); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) claimAlias(alias string, path relpath.Path) error {
	if owner, taken := c.aliases[alias]; taken {
		if owner == nil {
			return fmt.Errorf("%w: join alias %q for %q matches root table", ErrAliasCollision, alias, path.String())
		}
		return fmt.Errorf("%w: join alias %q used by %q and %q", ErrAliasCollision, alias, owner.String(), path.String())
	}
	if err := c.checkLength(alias); err != nil {
		return err
	}
	c.aliases[alias] = path
	return nil
}

func (c *compiler) checkLength(identifier string) error {
	limit := c.in.Dialect.MaxIdentifierLength
	if limit > 0 && len(identifier) > limit {
		return fmt.Errorf("%w: %q exceeds %d bytes on %s", ErrAliasCollision, identifier, limit, c.in.Dialect.Name)
	}
	return nil
}

// RegistryResolver resolves relations through the registry a model was registered with.
type RegistryResolver struct{}

func (RegistryResolver) Resolve(m *model.Model, name string) (model.Relation, error) {
	if m == nil {
		return model.Relation{}, fmt.Errorf("%w: %s on nil model", model.ErrUnknownRelation, name)
	}
	return m.Relation(name)
}
