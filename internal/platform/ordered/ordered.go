// Package ordered provides an insertion-ordered map and the key arrangement
// used when rendering schema-less objects: preferred keys first, then the
// remaining keys in the order they were first seen.
package ordered

// Map is a map that remembers the order in which keys were first inserted.
// Re-setting an existing key replaces its value but keeps its position.
// The zero value is ready to use.
type Map[K comparable, V any] struct {
	keys []K
	vals map[K]V
}

// New returns an empty Map with room for n entries.
func New[K comparable, V any](n int) *Map[K, V] {
	return &Map[K, V]{
		keys: make([]K, 0, n),
		vals: make(map[K]V, n),
	}
}

// Set stores v under k.
func (m *Map[K, V]) Set(k K, v V) {
	if m.vals == nil {
		m.vals = make(map[K]V)
	}
	if _, ok := m.vals[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.vals[k] = v
}

// Get returns the value stored under k.
func (m *Map[K, V]) Get(k K) (V, bool) {
	if m == nil {
		var zero V
		return zero, false
	}
	v, ok := m.vals[k]
	return v, ok
}

// Has reports whether k is present.
func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.Get(k)
	return ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	if m == nil {
		return nil
	}
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *Map[K, V]) Range(fn func(k K, v V) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.vals[k]) {
			return
		}
	}
}

// Arrange returns the keys of m with every preferred key that is present
// first, in preferred order, followed by the remaining keys in insertion
// order. No key is returned twice.
func Arrange[K comparable, V any](m *Map[K, V], preferred []K) []K {
	out := make([]K, 0, m.Len())
	seen := make(map[K]struct{}, m.Len())

	for _, k := range preferred {
		if _, dup := seen[k]; dup || !m.Has(k) {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	m.Range(func(k K, _ V) bool {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
		return true
	})
	return out
}
