// Package aliascodec maps relation paths to flat column aliases and back.
//
// A joined column is selected as <prefix><column>, where the prefix encodes the
// full relation path. For the path bar -> foo and column title:
//
//	__f__bar---__f__foo---title
//
// Every segment is introduced by Sentinel and terminated by Separator. Relation
// names are restricted to identifier characters (see ValidName), so neither token
// can occur inside a segment and decoding is unambiguous.
package aliascodec

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sleeping-owl/with-join/internal/relpath"
)

const (
	// Sentinel opens every encoded path segment.
	Sentinel = "__f__"
	// Separator closes every encoded path segment.
	Separator = "---"
)

// ErrMalformedAlias is returned when a key starts like an encoded alias but cannot be decoded.
var ErrMalformedAlias = errors.New("malformed column alias")

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether name can be used as a relation name.
func ValidName(name string) bool {
	return namePattern.MatchString(name) && !strings.Contains(name, Sentinel)
}

// Encode extends an encoded parent prefix with one relation segment.
// The root prefix is "".
func Encode(parentPrefix, relation string) string {
	return parentPrefix + Sentinel + relation + Separator
}

// PrefixFor encodes a whole relation path.
func PrefixFor(path relpath.Path) string {
	var b strings.Builder
	for _, name := range path {
		b.WriteString(Sentinel)
		b.WriteString(name)
		b.WriteString(Separator)
	}
	return b.String()
}

// Column builds the output alias for a column selected under prefix.
func Column(prefix, column string) string {
	return prefix + column
}

// TableAlias is the SQL table alias used for the join that satisfies path.
func TableAlias(path relpath.Path) string {
	return path.String()
}

// ValidColumn reports whether a joined table's column name decodes back to
// itself once prefixed. Names starting with Sentinel would read as a deeper path.
func ValidColumn(name string) bool {
	return name != "" && !IsEncoded(name)
}

// IsEncoded reports whether key carries an encoded relation path.
func IsEncoded(key string) bool {
	return strings.HasPrefix(key, Sentinel)
}

// Decode splits a column key into its relation path and field name.
// Keys without a leading Sentinel are root fields and return a nil path and
// nested=false.
func Decode(key string) (path relpath.Path, field string, nested bool, err error) {
	if !IsEncoded(key) {
		return nil, key, false, nil
	}

	rest := key
	for strings.HasPrefix(rest, Sentinel) {
		rest = rest[len(Sentinel):]
		end := strings.Index(rest, Separator)
		if end <= 0 {
			return nil, "", true, fmt.Errorf("%w: %q", ErrMalformedAlias, key)
		}
		path = append(path, rest[:end])
		rest = rest[end+len(Separator):]
	}
	if rest == "" {
		return nil, "", true, fmt.Errorf("%w: %q has no field name", ErrMalformedAlias, key)
	}
	return path, rest, true, nil
}
