// Package memory provides the in-memory record store. It is safe for
// concurrent use and is the default backend for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Coffee-Network/coffee_ledger/internal/domain/coffee"
	"github.com/Coffee-Network/coffee_ledger/internal/storage"
)

// Store is an in-memory implementation of storage.CoffeeStore.
type Store struct {
	mu      sync.RWMutex
	records map[string]coffee.Record
	order   []string
}

var _ storage.CoffeeStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]coffee.Record)}
}

func (s *Store) InsertCoffee(_ context.Context, rec coffee.Record) (coffee.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		return coffee.Record{}, fmt.Errorf("record id is required")
	}
	if _, exists := s.records[rec.ID]; exists {
		return coffee.Record{}, fmt.Errorf("record %s already exists", rec.ID)
	}

	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return rec, nil
}

func (s *Store) GetCoffee(_ context.Context, id string) (coffee.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return coffee.Record{}, fmt.Errorf("record %s: %w", id, storage.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) DeleteCoffee(_ context.Context, id string) (coffee.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return coffee.Record{}, fmt.Errorf("record %s: %w", id, storage.ErrNotFound)
	}
	delete(s.records, id)
	for i, key := range s.order {
		if key == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return rec, nil
}

func (s *Store) UpdateCoffee(_ context.Context, id string, patch coffee.Patch) (coffee.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return coffee.Record{}, fmt.Errorf("record %s: %w", id, storage.ErrNotFound)
	}
	if patch.Name != nil {
		rec.Name = *patch.Name
	}
	if patch.Message != nil {
		rec.Message = *patch.Message
	}
	s.records[id] = rec
	return rec, nil
}

func (s *Store) ListCoffees(_ context.Context) ([]coffee.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]coffee.Record, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.records[id])
	}
	return result, nil
}
