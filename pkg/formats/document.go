// Package formats renders export documents.
//
// A document is a tree of mappings with scalar leaves. Mappings are either
// an ordered *Map, whose keys render in insertion order, or a plain
// map[string]any, whose keys render sorted. Two encoders are provided:
// HierEncoder writes the indentation-based report format and JSONEncoder
// writes strict JSON of the same shape.
package formats

import (
	"sort"
)

// Map is a mapping that remembers insertion order.
type Map struct {
	keys   []string
	values map[string]any
}

// NewMap creates an empty Map sized for capacity entries.
func NewMap(capacity int) *Map {
	return &Map{
		keys:   make([]string, 0, capacity),
		values: make(map[string]any, capacity),
	}
}

// Set binds key to v. A new key is appended; an existing key keeps its
// position.
func (m *Map) Set(key string, v any) *Map {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
	return m
}

// Get returns the value bound to key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for each entry in order until fn returns false.
func (m *Map) Range(fn func(key string, v any) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// mapping adapts the supported mapping types. ok is false for anything
// that is not a mapping.
func mapping(v any) (keys []string, get func(string) any, ok bool) {
	switch m := v.(type) {
	case *Map:
		return m.Keys(), func(k string) any { return m.values[k] }, true
	case map[string]any:
		keys = make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, func(k string) any { return m[k] }, true
	default:
		return nil, nil, false
	}
}
