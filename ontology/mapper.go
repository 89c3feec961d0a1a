package ontology

import (
	"fmt"
	"sort"
	"sync"
)

// Mapper applies a Table and remembers every raw term it could not map.
type Mapper struct {
	table *Table

	mu       sync.Mutex
	unmapped map[string]struct{}
}

// NewMapper creates a Mapper over t.
func NewMapper(t *Table) *Mapper {
	return &Mapper{table: t, unmapped: make(map[string]struct{})}
}

// Map returns the canonical term for raw, or an error wrapping
// ErrUnmappedCategory or ErrUnmappedPredicate.
func (m *Mapper) Map(raw string) (string, error) {
	if v, ok := m.table.Lookup(raw); ok {
		return v, nil
	}
	m.mu.Lock()
	m.unmapped[raw] = struct{}{}
	m.mu.Unlock()
	return "", fmt.Errorf("%w: %q", m.table.kind.unmapped(), raw)
}

// Unmapped returns every raw term Map has rejected so far, sorted.
func (m *Mapper) Unmapped() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.unmapped))
	for k := range m.unmapped {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Table returns the underlying table.
func (m *Mapper) Table() *Table { return m.table }
