package aliascodec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleeping-owl/with-join/internal/relpath"
)

func TestEncodeMatchesPrefixFor(t *testing.T) {
	prefix := Encode(Encode("", "bar"), "foo")
	assert.Equal(t, "__f__bar---__f__foo---", prefix)
	assert.Equal(t, prefix, PrefixFor(relpath.MustParse("bar.foo")))
	assert.Equal(t, "__f__bar---__f__foo---title", Column(prefix, "title"))
}

func TestRoundTrip(t *testing.T) {
	paths := []string{
		"foo",
		"bar.foo",
		"bom.bar.foo",
		"a.b.c.d",
		"a_b.c_d.e_f.g_h.i_j",
		"_x.y_",
	}
	fields := []string{"id", "title", "foo_id", "created_at", "__weird"}

	for _, raw := range paths {
		for _, field := range fields {
			path := relpath.MustParse(raw)
			key := Column(PrefixFor(path), field)

			gotPath, gotField, nested, err := Decode(key)
			require.NoError(t, err, key)
			assert.True(t, nested, key)
			assert.True(t, gotPath.Equal(path), "%s: got path %v", key, gotPath)
			assert.Equal(t, field, gotField, key)
		}
	}
}

func TestDecodeRootField(t *testing.T) {
	path, field, nested, err := Decode("title")
	require.NoError(t, err)
	assert.False(t, nested)
	assert.Nil(t, path)
	assert.Equal(t, "title", field)
}

func TestDecodeMalformed(t *testing.T) {
	for _, key := range []string{
		"__f__foo",
		"__f__---id",
		"__f__foo---",
		"__f__foo---__f__bar",
	} {
		_, _, nested, err := Decode(key)
		assert.True(t, nested, key)
		assert.True(t, errors.Is(err, ErrMalformedAlias), key)
	}
}

func TestDistinctPathsNeverShareKeys(t *testing.T) {
	// Candidates that would collide under naive concatenation.
	paths := []relpath.Path{
		{"a", "b"},
		{"a_b"},
		{"ab"},
		{"a", "b", "c"},
		{"a", "bc"},
	}
	seen := map[string]string{}
	for _, p := range paths {
		key := Column(PrefixFor(p), "id")
		if prev, ok := seen[key]; ok {
			t.Fatalf("paths %s and %s both encode to %s", prev, p.String(), key)
		}
		seen[key] = p.String()
	}
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("foo"))
	assert.True(t, ValidName("foo_bar"))
	assert.True(t, ValidName("_private"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("foo-bar"))
	assert.False(t, ValidName("foo.bar"))
	assert.False(t, ValidName("1foo"))
	assert.False(t, ValidName("x__f__y"))
}

func TestTableAlias(t *testing.T) {
	assert.Equal(t, "foo", TableAlias(relpath.MustParse("foo")))
	assert.Equal(t, "bar.foo", TableAlias(relpath.MustParse("bar.foo")))
}

func TestValidColumn(t *testing.T) {
	assert.True(t, ValidColumn("title"))
	assert.True(t, ValidColumn("legacy---x"))
	assert.True(t, ValidColumn("x__f__y"))
	assert.False(t, ValidColumn(""))
	assert.False(t, ValidColumn("__f__legacy---x"))

	// A sentinel-led column under "foo" reads back as a column of "foo.legacy".
	path, field, _, err := Decode(Column(PrefixFor(relpath.MustParse("foo")), "__f__legacy---x"))
	require.NoError(t, err)
	assert.Equal(t, "foo.legacy", path.String())
	assert.Equal(t, "x", field)
}
