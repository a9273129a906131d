// Package storage defines the persistence interfaces for donation records.
package storage

import (
	"context"
	"errors"

	"github.com/Coffee-Network/coffee_ledger/internal/domain/coffee"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("record not found")

// CoffeeStore persists donation records keyed by id. ListCoffees returns
// records in insertion order of the underlying store; that order is not
// guaranteed stable across deletes.
type CoffeeStore interface {
	InsertCoffee(ctx context.Context, rec coffee.Record) (coffee.Record, error)
	GetCoffee(ctx context.Context, id string) (coffee.Record, error)
	DeleteCoffee(ctx context.Context, id string) (coffee.Record, error)
	UpdateCoffee(ctx context.Context, id string, patch coffee.Patch) (coffee.Record, error)
	ListCoffees(ctx context.Context) ([]coffee.Record, error)
}
