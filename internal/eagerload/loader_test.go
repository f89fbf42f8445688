package eagerload

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleeping-owl/with-join/internal/dbexec"
	"github.com/sleeping-owl/with-join/internal/joinplan"
	"github.com/sleeping-owl/with-join/internal/model"
	"github.com/sleeping-owl/with-join/internal/relpath"
	"github.com/sleeping-owl/with-join/internal/sqlutil"
)

func newFixtureRegistry(t *testing.T) *model.Registry {
	t.Helper()
	reg := model.NewRegistry(nil)
	reg.MustRegister(model.Config{Name: "Foo", Relations: []model.RelationDef{model.HasMany("bars", "Bar")}})
	reg.MustRegister(model.Config{Name: "Baz"})
	reg.MustRegister(model.Config{
		Name: "Bar",
		Relations: []model.RelationDef{
			model.BelongsTo("foo", "Foo"),
			model.BelongsTo("baz", "Baz", model.WithScope(func(alias string) sq.Sqlizer {
				return sq.Eq{alias + ".archived": 0}
			})),
		},
	})
	reg.MustRegister(model.Config{Name: "Bom", Relations: []model.RelationDef{model.BelongsTo("bar", "Bar")}})
	return reg
}

func mustModel(t *testing.T, reg *model.Registry, name string) *model.Model {
	t.Helper()
	m, err := reg.Model(name)
	require.NoError(t, err)
	return m
}

func newLoader(t *testing.T) (*Loader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(Options{Executor: dbexec.NewStandardExecutor(db), Dialect: sqlutil.SQLite}), mock
}

func loadsFor(paths ...string) *joinplan.EagerLoads {
	loads := joinplan.NewEagerLoads()
	for _, p := range paths {
		loads.Add(relpath.MustParse(p))
	}
	return loads
}

func TestLoadToOne(t *testing.T) {
	reg := newFixtureRegistry(t)
	barModel := mustModel(t, reg, "Bar")
	bars := []*model.Entity{
		barModel.New(map[string]any{"id": int64(1), "foo_id": int64(1)}),
		barModel.New(map[string]any{"id": int64(2), "foo_id": int64(1)}),
		barModel.New(map[string]any{"id": int64(3), "foo_id": int64(2)}),
		barModel.New(map[string]any{"id": int64(4), "foo_id": nil}),
	}

	loader, mock := newLoader(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "foos" WHERE "foos"."id" IN (?,?)`)).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(int64(1), "First Foo"))

	err := loader.Load(context.Background(), barModel, bars, loadsFor("foo"))
	require.NoError(t, err)

	assert.Equal(t, "First Foo", bars[0].One("foo").Get("title"))
	assert.Same(t, bars[0].One("foo"), bars[1].One("foo"))
	assert.False(t, bars[2].RelationLoaded("foo"))
	assert.False(t, bars[3].RelationLoaded("foo"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadToMany(t *testing.T) {
	reg := newFixtureRegistry(t)
	fooModel := mustModel(t, reg, "Foo")
	foos := []*model.Entity{
		fooModel.New(map[string]any{"id": int64(1), "title": "First Foo"}),
		fooModel.New(map[string]any{"id": int64(2), "title": "Second Foo"}),
	}

	loader, mock := newLoader(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "bars" WHERE "bars"."foo_id" IN (?,?)`)).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "foo_id"}).
			AddRow(int64(1), int64(1)).
			AddRow(int64(2), int64(1)))

	err := loader.Load(context.Background(), fooModel, foos, loadsFor("bars"))
	require.NoError(t, err)

	assert.Len(t, foos[0].Many("bars"), 2)
	require.True(t, foos[1].RelationLoaded("bars"))
	assert.Empty(t, foos[1].Many("bars"))
	assert.NotNil(t, foos[1].Many("bars"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadFollowsAttachedRelations(t *testing.T) {
	reg := newFixtureRegistry(t)
	bomModel := mustModel(t, reg, "Bom")
	barModel := mustModel(t, reg, "Bar")

	bom := bomModel.New(map[string]any{"id": int64(1), "bar_id": int64(1)})
	bom.SetRelation("bar", barModel.New(map[string]any{"id": int64(1), "foo_id": int64(1)}))

	loader, mock := newLoader(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "foos" WHERE "foos"."id" IN (?)`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(int64(1), "First Foo"))

	err := loader.Load(context.Background(), bomModel, []*model.Entity{bom}, loadsFor("bar.foo"))
	require.NoError(t, err)
	assert.Equal(t, "First Foo", bom.One("bar").One("foo").Get("title"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadShallowPathsFirst(t *testing.T) {
	reg := newFixtureRegistry(t)
	bomModel := mustModel(t, reg, "Bom")
	bom := bomModel.New(map[string]any{"id": int64(1), "bar_id": int64(1)})

	loader, mock := newLoader(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "bars" WHERE "bars"."id" IN (?)`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "foo_id"}).AddRow(int64(1), int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "foos" WHERE "foos"."id" IN (?)`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(int64(1), "First Foo"))

	err := loader.Load(context.Background(), bomModel, []*model.Entity{bom}, loadsFor("bar.foo", "bar"))
	require.NoError(t, err)
	assert.Equal(t, "First Foo", bom.One("bar").One("foo").Get("title"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadAppliesScopesAndConstraints(t *testing.T) {
	reg := newFixtureRegistry(t)
	barModel := mustModel(t, reg, "Bar")
	bars := []*model.Entity{barModel.New(map[string]any{"id": int64(1), "baz_id": int64(2)})}

	loads := joinplan.NewEagerLoads()
	loads.Add(relpath.MustParse("baz"), func(alias string) sq.Sqlizer {
		return sq.Expr(alias+".title <> ?", "hidden")
	})

	loader, mock := newLoader(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT * FROM "bazs" WHERE "bazs"."id" IN (?) AND "bazs".archived = ? AND "bazs".title <> ?`)).
		WithArgs(int64(2), 0, "hidden").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(int64(2), "Second Baz"))

	err := loader.Load(context.Background(), barModel, bars, loads)
	require.NoError(t, err)
	assert.Equal(t, "Second Baz", bars[0].One("baz").Get("title"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadWithoutKeysSkipsQuery(t *testing.T) {
	reg := newFixtureRegistry(t)
	fooModel := mustModel(t, reg, "Foo")
	barModel := mustModel(t, reg, "Bar")

	loader, mock := newLoader(t)

	bars := []*model.Entity{barModel.New(map[string]any{"id": int64(1), "foo_id": nil})}
	require.NoError(t, loader.Load(context.Background(), barModel, bars, loadsFor("foo")))
	assert.False(t, bars[0].RelationLoaded("foo"))

	foos := []*model.Entity{fooModel.New(map[string]any{"title": "keyless"})}
	require.NoError(t, loader.Load(context.Background(), fooModel, foos, loadsFor("bars")))
	assert.True(t, foos[0].RelationLoaded("bars"))
	assert.Empty(t, foos[0].Many("bars"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadQueryError(t *testing.T) {
	reg := newFixtureRegistry(t)
	barModel := mustModel(t, reg, "Bar")
	bars := []*model.Entity{barModel.New(map[string]any{"id": int64(1), "foo_id": int64(1)})}

	loader, mock := newLoader(t)
	dbErr := errors.New("connection refused")
	mock.ExpectQuery("SELECT").WillReturnError(dbErr)

	err := loader.Load(context.Background(), barModel, bars, loadsFor("foo"))
	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), `"foo"`)
}

func TestLoadUnknownRelation(t *testing.T) {
	reg := newFixtureRegistry(t)
	barModel := mustModel(t, reg, "Bar")
	bars := []*model.Entity{barModel.New(map[string]any{"id": int64(1)})}

	loader, _ := newLoader(t)
	err := loader.Load(context.Background(), barModel, bars, loadsFor("nope"))
	assert.ErrorIs(t, err, model.ErrUnknownRelation)
}

func TestLoadNothingToDo(t *testing.T) {
	reg := newFixtureRegistry(t)
	loader, mock := newLoader(t)
	barModel := mustModel(t, reg, "Bar")

	require.NoError(t, loader.Load(context.Background(), barModel, nil, loadsFor("foo")))
	require.NoError(t, loader.Load(context.Background(), barModel, []*model.Entity{barModel.New(nil)}, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}
