// Package eagerload loads relations that were not joined, one query per
// relation path, keyed by the parent rows already in hand.
package eagerload

import (
	"context"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sleeping-owl/with-join/internal/dbexec"
	"github.com/sleeping-owl/with-join/internal/joinplan"
	"github.com/sleeping-owl/with-join/internal/logging"
	"github.com/sleeping-owl/with-join/internal/model"
	"github.com/sleeping-owl/with-join/internal/observability"
	"github.com/sleeping-owl/with-join/internal/query"
	"github.com/sleeping-owl/with-join/internal/relpath"
	"github.com/sleeping-owl/with-join/internal/sqlutil"
)

// Options configures a Loader.
type Options struct {
	Executor dbexec.QueryExecutor
	Dialect  sqlutil.Dialect
	// Resolver defaults to the registry each model was registered with.
	Resolver joinplan.Resolver
	Logger   *logging.Logger
}

// Loader runs separate eager-load queries.
type Loader struct {
	exec     dbexec.QueryExecutor
	dialect  sqlutil.Dialect
	resolver joinplan.Resolver
	logger   *logging.Logger
}

// New creates a Loader.
func New(opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = joinplan.RegistryResolver{}
	}
	return &Loader{
		exec:     opts.Executor,
		dialect:  opts.Dialect,
		resolver: resolver,
		logger:   logger.WithComponent("eagerload"),
	}
}

// Load attaches every path left in loads to entities, shallowest paths first.
// Parents are found by walking relations already attached, including joined
// ones. To-one relations without a match stay absent; to-many relations
// without a match get an empty slice.
func (l *Loader) Load(ctx context.Context, root *model.Model, entities []*model.Entity, loads *joinplan.EagerLoads) error {
	if loads == nil || loads.Len() == 0 || len(entities) == 0 {
		return nil
	}
	paths := loads.Paths()
	sort.SliceStable(paths, func(i, j int) bool {
		return paths[i].Depth() < paths[j].Depth()
	})

	for _, path := range paths {
		if err := l.loadPath(ctx, root, entities, path, loads.Scopes(path)); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) loadPath(ctx context.Context, root *model.Model, entities []*model.Entity, path relpath.Path, constraints []model.Scope) error {
	ctx, span := observability.StartSpan(ctx, "eagerload.load",
		attribute.String("model", root.Name),
		attribute.String("path", path.String()),
	)
	defer span.End()

	parentModel, err := l.modelAt(root, path.Parent())
	if err != nil {
		observability.RecordSpanError(span, err)
		return err
	}
	rel, err := l.resolver.Resolve(parentModel, path.Last())
	if err != nil {
		err = fmt.Errorf("eager load %s %q: %w", root.Name, path.String(), err)
		observability.RecordSpanError(span, err)
		return err
	}

	parents := collect(entities, path.Parent())
	if len(parents) == 0 {
		return nil
	}

	keys := distinctKeys(parents, rel.LocalKey)
	var related []*model.Entity
	if len(keys) > 0 {
		related, err = l.fetch(ctx, rel, keys, constraints)
		if err != nil {
			err = fmt.Errorf("eager load %s %q: %w", root.Name, path.String(), err)
			observability.RecordSpanError(span, err)
			return err
		}
	}

	attach(parents, rel, related)
	span.SetAttributes(
		attribute.Int("parents", len(parents)),
		attribute.Int("related", len(related)),
	)
	l.logger.Debug("eager loaded relation",
		"model", root.Name,
		"path", path.String(),
		"parents", len(parents),
		"related", len(related),
		"query_id", logging.QueryID(ctx),
	)
	return nil
}

func (l *Loader) fetch(ctx context.Context, rel model.Relation, keys []any, constraints []model.Scope) ([]*model.Entity, error) {
	if l.exec == nil {
		return nil, fmt.Errorf("no executor configured")
	}
	table := rel.RelatedTable()
	quoted := l.dialect.Quote(table)

	q := query.New(l.dialect, table)
	q.AddSelect("*", "")
	q.Where(sq.Eq{l.dialect.QuoteColumn(table, rel.RelatedKey): keys})
	for _, scope := range rel.Scopes {
		q.MergePredicates(scope(quoted))
	}
	for _, scope := range constraints {
		q.MergePredicates(scope(quoted))
	}

	built, err := q.Build()
	if err != nil {
		return nil, err
	}
	rows, err := l.exec.QueryContext(ctx, built.SQL, built.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	maps, err := dbexec.ScanMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}

	out := make([]*model.Entity, len(maps))
	for i, row := range maps {
		out[i] = rel.Related.New(row)
	}
	return out, nil
}

func (l *Loader) modelAt(root *model.Model, path relpath.Path) (*model.Model, error) {
	current := root
	for i, name := range path {
		rel, err := l.resolver.Resolve(current, name)
		if err != nil {
			return nil, fmt.Errorf("eager load %s %q: %w", root.Name, path[:i+1].String(), err)
		}
		current = rel.Related
	}
	return current, nil
}

// collect walks attached relations from entities down path.
func collect(entities []*model.Entity, path relpath.Path) []*model.Entity {
	current := entities
	for _, name := range path {
		var next []*model.Entity
		for _, e := range current {
			if one := e.One(name); one != nil {
				next = append(next, one)
				continue
			}
			next = append(next, e.Many(name)...)
		}
		current = next
	}
	return current
}

func distinctKeys(entities []*model.Entity, column string) []any {
	seen := make(map[string]struct{}, len(entities))
	var keys []any
	for _, e := range entities {
		v := e.Get(column)
		if model.IsEmptyValue(v) {
			continue
		}
		k := keyOf(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, v)
	}
	return keys
}

func attach(parents []*model.Entity, rel model.Relation, related []*model.Entity) {
	byKey := make(map[string][]*model.Entity, len(related))
	for _, r := range related {
		k := keyOf(r.Get(rel.RelatedKey))
		byKey[k] = append(byKey[k], r)
	}

	for _, parent := range parents {
		v := parent.Get(rel.LocalKey)
		var matches []*model.Entity
		if !model.IsEmptyValue(v) {
			matches = byKey[keyOf(v)]
		}
		switch rel.Kind {
		case model.ToMany:
			parent.SetRelation(rel.Name, append([]*model.Entity{}, matches...))
		default:
			if len(matches) > 0 {
				parent.SetRelation(rel.Name, matches[0])
			}
		}
	}
}

// keyOf normalizes key values so int64 and string forms of the same key match.
func keyOf(v any) string {
	return fmt.Sprint(v)
}
