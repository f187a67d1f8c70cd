package document

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/jobtrail/internal/model"
)

// Memory is an in-memory Store. A Memory with no table reads as missing.
type Memory struct {
	mu     sync.Mutex
	table  *model.Table
	writes int

	// ReadErr and WriteErr, when set, fail the next calls.
	ReadErr  error
	WriteErr error
}

// NewMemory returns a store holding t.
func NewMemory(t model.Table) *Memory {
	c := cloneTable(t)
	return &Memory{table: &c}
}

// Read implements Source.
func (m *Memory) Read(_ context.Context) (model.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return model.Table{}, m.ReadErr
	}
	if m.table == nil {
		return model.Table{}, ErrNotFound
	}
	return cloneTable(*m.table), nil
}

// Write implements Store.
func (m *Memory) Write(_ context.Context, t model.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	c := cloneTable(t)
	m.table = &c
	m.writes++
	return nil
}

// Writes returns the number of successful writes.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Table returns the stored table and whether one exists.
func (m *Memory) Table() (model.Table, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.table == nil {
		return model.Table{}, false
	}
	return cloneTable(*m.table), true
}

func cloneTable(t model.Table) model.Table {
	out := model.Table{Columns: slices.Clone(t.Columns), Enrichment: slices.Clone(t.Enrichment)}
	if t.Records != nil {
		out.Records = make([]map[string]string, len(t.Records))
		for i, r := range t.Records {
			out.Records[i] = maps.Clone(r)
		}
	}
	return out
}
