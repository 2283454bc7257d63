/**
 * @description
 * One uniform accessor over the semi-structured records the Mercury API
 * returns. A record may arrive as a JSON mapping (map[string]any) or as a
 * typed struct (test fixtures, pre-decoded payloads); FieldSource hides the
 * difference. Lookups accept both camelCase wire names and snake_case
 * equivalents, so callers always ask for the semantic field name.
 *
 * @dependencies
 * - reflect, strings: Standard Go libraries for struct access and name folding.
 */
package coerce

import (
	"reflect"
	"strings"
)

// FieldSource is the common access contract over heterogeneous records.
type FieldSource interface {
	Get(name string) (any, bool)
}

// MapSource adapts a string-keyed mapping.
type MapSource map[string]any

// Get looks a field up by exact key first, then by folded name so that
// "posted_at" matches "postedAt" and vice versa.
func (m MapSource) Get(name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	want := foldName(name)
	for k, v := range m {
		if foldName(k) == want {
			return v, true
		}
	}
	return nil, false
}

// StructSource adapts a typed record via reflection. Field names and json tags
// both participate in the lookup.
type StructSource struct {
	value reflect.Value
}

// Get resolves a field by folded name against struct field names and json tags.
func (s StructSource) Get(name string) (any, bool) {
	v := s.value
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}

	want := foldName(name)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := strings.Split(field.Tag.Get("json"), ",")[0]
		if foldName(field.Name) == want || (tag != "" && foldName(tag) == want) {
			return v.Field(i).Interface(), true
		}
	}
	return nil, false
}

// From wraps any record shape in a FieldSource. Unknown shapes yield an empty
// source whose lookups all miss; callers fall back to their defaults.
func From(rec any) FieldSource {
	switch r := rec.(type) {
	case nil:
		return MapSource(nil)
	case FieldSource:
		return r
	case map[string]any:
		return MapSource(r)
	}
	v := reflect.ValueOf(rec)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return MapSource(nil)
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		return StructSource{value: v}
	}
	return MapSource(nil)
}

// Lookup fetches a named field from any record shape.
func Lookup(rec any, name string) (any, bool) {
	return From(rec).Get(name)
}

// foldName lowercases and strips separators so camelCase, snake_case and
// kebab-case spellings of a field compare equal.
func foldName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r == '_' || r == '-' || r == ' ' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UnwrapList normalizes adapter payloads that arrive either as a flat sequence
// or as a container with a named list member (e.g. {"transactions": [...]}).
func UnwrapList(payload any, member string) []any {
	switch p := payload.(type) {
	case nil:
		return nil
	case []any:
		return p
	case []map[string]any:
		items := make([]any, len(p))
		for i := range p {
			items[i] = p[i]
		}
		return items
	}
	if v := reflect.ValueOf(payload); v.Kind() == reflect.Slice {
		items := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			items[i] = v.Index(i).Interface()
		}
		return items
	}
	if inner, ok := Lookup(payload, member); ok && inner != nil {
		return UnwrapList(inner, member)
	}
	return nil
}
