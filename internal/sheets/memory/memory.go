package memory

import (
	"context"
	"slices"
	"sync"

	ports "finanzas/internal/sheets"
)

// Mirror is an in-process spreadsheet: rows per tab in append order.
type Mirror struct {
	mu   sync.Mutex
	tabs map[ports.Tab][][]string
}

var _ ports.Mirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{tabs: make(map[ports.Tab][][]string)}
}

func (m *Mirror) ReplaceRow(_ context.Context, tab ports.Tab, key string, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(tab, key)
	m.tabs[tab] = append(m.tabs[tab], slices.Clone(row))
	return nil
}

func (m *Mirror) DeleteRows(_ context.Context, tab ports.Tab, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(tab, key), nil
}

func (m *Mirror) removeLocked(tab ports.Tab, key string) int {
	rows := m.tabs[tab]
	kept := rows[:0]
	for _, r := range rows {
		if len(r) > 0 && r[0] == key {
			continue
		}
		kept = append(kept, r)
	}
	m.tabs[tab] = kept
	return len(rows) - len(kept)
}

// Rows returns a copy of the rows of tab.
func (m *Mirror) Rows(tab ports.Tab) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.tabs[tab]))
	for i, r := range m.tabs[tab] {
		out[i] = slices.Clone(r)
	}
	return out
}

// Row returns the row keyed by key, if any.
func (m *Mirror) Row(tab ports.Tab, key string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.tabs[tab] {
		if len(r) > 0 && r[0] == key {
			return slices.Clone(r), true
		}
	}
	return nil, false
}
