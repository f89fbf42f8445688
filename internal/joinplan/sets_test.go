package joinplan

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"

	"github.com/sleeping-owl/with-join/internal/relpath"
)

func TestReferencesEligible(t *testing.T) {
	refs := references("a.b", "c")

	tests := []struct {
		path     string
		eligible bool
	}{
		{path: "a", eligible: true},
		{path: "a.b", eligible: true},
		{path: "a.b.c", eligible: false},
		{path: "c", eligible: true},
		{path: "b", eligible: false},
		{path: "ab", eligible: false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.eligible, refs.Eligible(relpath.MustParse(tt.path)))
		})
	}

	var empty *References
	assert.False(t, empty.Eligible(relpath.MustParse("a")))
	assert.Equal(t, 0, empty.Len())
}

func TestReferencesDeduplicate(t *testing.T) {
	refs := references("foo", "foo", "bar.baz")
	assert.Equal(t, []string{"foo", "bar.baz"}, refs.Strings())
	assert.True(t, refs.Has(relpath.MustParse("foo")))
	assert.False(t, refs.Has(relpath.MustParse("bar")))
}

func TestEagerLoadsOrderAndScopes(t *testing.T) {
	scope := func(alias string) sq.Sqlizer { return sq.Expr(alias + ".x = 1") }

	loads := NewEagerLoads()
	loads.Add(relpath.MustParse("b"))
	loads.Add(relpath.MustParse("a"), scope)
	loads.Add(relpath.MustParse("b"), scope)

	assert.Equal(t, []string{"b", "a"}, pathStrings(loads.Paths()))
	assert.Len(t, loads.Scopes(relpath.MustParse("b")), 1)

	clone := loads.Clone()
	loads.Remove(relpath.MustParse("b"))
	loads.Remove(relpath.MustParse("missing"))
	assert.Equal(t, []string{"a"}, pathStrings(loads.Paths()))
	assert.False(t, loads.Has(relpath.MustParse("b")))
	assert.Equal(t, 2, clone.Len())
}
