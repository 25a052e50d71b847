package trace

import "sort"

// MapLocals is a map-backed variable store for replayed frames. Set
// always succeeds, creating the variable when it does not exist.
type MapLocals map[string]any

// NewMapLocals returns an empty store.
func NewMapLocals() MapLocals {
	return make(MapLocals)
}

func (m MapLocals) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

func (m MapLocals) Set(name string, value any) bool {
	m[name] = value
	return true
}

func (m MapLocals) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
