package store

import (
	"sort"
	"strconv"
	"strings"
)

// The clause builders translate a field->value mapping into parameterized
// SQL fragments. Field names are trusted inputs from calling code; only
// values are parameterized. Fragments are written with `?` markers and
// rebound to ordered $N placeholders with Rebind once the full statement is
// assembled.

// BuildWhere produces a conjunctive predicate from conds, skipping nil
// values. overrides may replace the default "field = ?" fragment for
// specific fields (e.g. a range comparison); overridden fragments still use
// `?` markers for their values. With no usable conditions the always-true
// clause "1=1" is returned.
func BuildWhere(conds map[string]any, overrides map[string]string) (string, []any) {
	var (
		parts []string
		args  []any
	)
	for _, field := range sortedKeys(conds) {
		value := conds[field]
		if value == nil {
			continue
		}
		fragment, ok := overrides[field]
		if !ok {
			fragment = field + " = ?"
		}
		parts = append(parts, fragment)
		args = append(args, value)
	}
	if len(parts) == 0 {
		return "1=1", nil
	}
	return strings.Join(parts, " AND "), args
}

// BuildUpdate produces a comma-joined assignment fragment from data,
// skipping nil values. The identity field "id" is always excluded, along
// with any additional protected fields. An all-nil map yields an empty
// clause, which callers must treat as a no-op.
func BuildUpdate(data map[string]any, exclude ...string) (string, []any) {
	protected := map[string]struct{}{"id": {}}
	for _, field := range exclude {
		protected[field] = struct{}{}
	}
	var (
		parts []string
		args  []any
	)
	for _, field := range sortedKeys(data) {
		value := data[field]
		if value == nil {
			continue
		}
		if _, ok := protected[field]; ok {
			continue
		}
		parts = append(parts, field+" = ?")
		args = append(args, value)
	}
	return strings.Join(parts, ", "), args
}

// Rebind rewrites `?` markers to PostgreSQL $N placeholders, numbering from
// start.
func Rebind(query string, start int) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := start
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
		n++
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
