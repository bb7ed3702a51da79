package insights

// orderedMap is a map that remembers first-insertion order of its keys.
type orderedMap[K comparable, V any] struct {
	index map[K]int
	keys  []K
	vals  []V
}

func newOrderedMap[K comparable, V any]() *orderedMap[K, V] {
	return &orderedMap[K, V]{index: make(map[K]int)}
}

// upsert returns a pointer to the value for k, inserting the zero value if absent.
func (m *orderedMap[K, V]) upsert(k K) *V {
	if i, ok := m.index[k]; ok {
		return &m.vals[i]
	}
	m.index[k] = len(m.keys)
	m.keys = append(m.keys, k)
	var zero V
	m.vals = append(m.vals, zero)
	return &m.vals[len(m.vals)-1]
}

func (m *orderedMap[K, V]) len() int {
	return len(m.keys)
}

// each visits entries in insertion order.
func (m *orderedMap[K, V]) each(fn func(K, V)) {
	for i, k := range m.keys {
		fn(k, m.vals[i])
	}
}
