package testutil

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/publish"
)

// Record is one record held by a FakeStore.
type Record struct {
	ID     string
	Values map[string]string
}

// StoreCalls counts FakeStore calls by operation.
type StoreCalls struct {
	EnsureSchema int
	Find         int
	Create       int
	Update       int
}

// FakeStore is an in-memory publish.Store. Find follows the hosted store's
// contract: a record whose Identity matches is preferred over one matching a
// fallback property.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeStore struct {
	mu      sync.Mutex
	records []Record
	nextID  int
	schema  map[string]string
	calls   StoreCalls

	// EnsureErr is returned by EnsureSchema when set.
	EnsureErr error

	// FailFind, FailCreate and FailUpdate inject per-row failures. FailFind
	// and FailCreate are keyed by identity key, FailUpdate by record id.
	FailFind   map[string]error
	FailCreate map[string]error
	FailUpdate map[string]error
}

// NewFakeStore creates an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		schema:     map[string]string{},
		FailFind:   map[string]error{},
		FailCreate: map[string]error{},
		FailUpdate: map[string]error{},
	}
}

// Seed inserts a record directly, as if created by an earlier tool version,
// and returns its id.
func (s *FakeStore) Seed(values map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(values)
}

func (s *FakeStore) insert(values map[string]string) string {
	s.nextID++
	id := fmt.Sprintf("page-%d", s.nextID)
	s.records = append(s.records, Record{ID: id, Values: maps.Clone(values)})
	return id
}

// EnsureSchema implements publish.Store.
func (s *FakeStore) EnsureSchema(_ context.Context, properties map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.EnsureSchema++
	if s.EnsureErr != nil {
		return s.EnsureErr
	}
	maps.Copy(s.schema, properties)
	return nil
}

// Find implements publish.Store.
func (s *FakeStore) Find(_ context.Context, l publish.Lookup) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Find++
	if err := s.FailFind[l.Key]; err != nil {
		return "", false, err
	}
	for _, r := range s.records {
		if l.Key != "" && r.Values[model.PropertyIdentity] == l.Key {
			return r.ID, true, nil
		}
	}
	for _, r := range s.records {
		for _, fb := range l.Fallbacks {
			if fb.Value != "" && r.Values[fb.Property] == fb.Value {
				return r.ID, true, nil
			}
		}
	}
	return "", false, nil
}

// Create implements publish.Store.
func (s *FakeStore) Create(_ context.Context, values map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Create++
	if err := s.FailCreate[values[model.PropertyIdentity]]; err != nil {
		return "", err
	}
	return s.insert(values), nil
}

// Update implements publish.Store.
func (s *FakeStore) Update(_ context.Context, id string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Update++
	if err := s.FailUpdate[id]; err != nil {
		return err
	}
	for i := range s.records {
		if s.records[i].ID == id {
			maps.Copy(s.records[i].Values, values)
			return nil
		}
	}
	return fmt.Errorf("record %s not found", id)
}

// Delete removes a record, simulating a deletion in the hosted store.
func (s *FakeStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return
		}
	}
}

// Records returns a copy of every record in creation order.
func (s *FakeStore) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = Record{ID: r.ID, Values: maps.Clone(r.Values)}
	}
	return out
}

// CountByIdentity returns how many records carry each Identity value.
func (s *FakeStore) CountByIdentity() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{}
	for _, r := range s.records {
		out[r.Values[model.PropertyIdentity]]++
	}
	return out
}

// Schema returns the properties declared through EnsureSchema.
func (s *FakeStore) Schema() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.schema)
}

// Calls returns call counts so far.
func (s *FakeStore) Calls() StoreCalls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
