// Package records serves read and maintenance operations over donation
// records. It contains no transfer logic; the payment gate is the only
// writer of new records.
package records

import (
	"context"
	"errors"
	"strings"

	"github.com/Coffee-Network/coffee_ledger/internal/domain/coffee"
	apperrors "github.com/Coffee-Network/coffee_ledger/internal/errors"
	"github.com/Coffee-Network/coffee_ledger/internal/storage"
	"github.com/Coffee-Network/coffee_ledger/pkg/logger"
)

// Service exposes record CRUD, search and pagination.
type Service struct {
	store storage.CoffeeStore
	log   *logger.Logger
}

// New constructs a record service.
func New(store storage.CoffeeStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("records")
	}
	return &Service{store: store, log: log}
}

// Get returns the record with the given id.
func (s *Service) Get(ctx context.Context, id string) (coffee.Record, error) {
	rec, err := s.store.GetCoffee(ctx, id)
	if err != nil {
		return coffee.Record{}, mapNotFound(err, id)
	}
	return rec, nil
}

// List returns all records in insertion order.
func (s *Service) List(ctx context.Context) ([]coffee.Record, error) {
	return s.store.ListCoffees(ctx)
}

// Delete removes a record and returns it.
func (s *Service) Delete(ctx context.Context, id string) (coffee.Record, error) {
	rec, err := s.store.DeleteCoffee(ctx, id)
	if err != nil {
		return coffee.Record{}, mapNotFound(err, id)
	}
	s.log.Infof("deleted record %s", id)
	return rec, nil
}

// Update replaces the mutable fields of a record. Id, amount and timestamp
// never change.
func (s *Service) Update(ctx context.Context, id string, patch coffee.Patch) (coffee.Record, error) {
	if patch.Name == nil && patch.Message == nil {
		return coffee.Record{}, apperrors.InvalidArgument("nothing to update")
	}
	rec, err := s.store.UpdateCoffee(ctx, id, patch)
	if err != nil {
		return coffee.Record{}, mapNotFound(err, id)
	}
	s.log.Infof("updated record %s", id)
	return rec, nil
}

// Search returns records whose name and message contain the criteria
// substrings, case-insensitively. Empty criteria match everything.
func (s *Service) Search(ctx context.Context, criteria coffee.SearchCriteria) ([]coffee.Record, error) {
	all, err := s.store.ListCoffees(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.ToLower(criteria.Name)
	message := strings.ToLower(criteria.Message)
	result := make([]coffee.Record, 0, len(all))
	for _, rec := range all {
		if name != "" && !strings.Contains(strings.ToLower(rec.Name), name) {
			continue
		}
		if message != "" && !strings.Contains(strings.ToLower(rec.Message), message) {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

// Page returns one page of records, 1-based. Non-positive arguments fail
// with InvalidPage; a page past the end is an empty list.
func (s *Service) Page(ctx context.Context, pageSize, page int) ([]coffee.Record, error) {
	if pageSize <= 0 || page <= 0 {
		return nil, apperrors.InvalidPage(page, pageSize)
	}

	all, err := s.store.ListCoffees(ctx)
	if err != nil {
		return nil, err
	}

	start := (page - 1) * pageSize
	if start >= len(all) {
		return []coffee.Record{}, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func mapNotFound(err error, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.RecordNotFound(id)
	}
	return err
}
