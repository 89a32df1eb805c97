package memory

import (
	"context"
	"sort"
	"sync"

	"otakuwallet/internal/core"
	ports "otakuwallet/internal/sheets"
)

// Mirror keeps mirrored rows in memory. The worker uses it when no
// spreadsheet is configured.
type Mirror struct {
	mu   sync.Mutex
	rows map[string]core.Expense
}

// Ensure interface conformance
var _ ports.Mirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{rows: make(map[string]core.Expense)}
}

// Upsert stores the expense under its row key.
func (m *Mirror) Upsert(_ context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[ports.RowKey(e.Owner, e.ID)] = e
	return nil
}

// Remove drops the row for owner/id if present.
func (m *Mirror) Remove(_ context.Context, owner string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, ports.RowKey(owner, id))
	return nil
}

// Rows returns a snapshot ordered by row key.
func (m *Mirror) Rows() []core.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Expense, 0, len(m.rows))
	for _, e := range m.rows {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len reports how many rows are mirrored.
func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
