// Package postgres provides the PostgreSQL-backed record store.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Coffee-Network/coffee_ledger/internal/domain/coffee"
	"github.com/Coffee-Network/coffee_ledger/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements storage.CoffeeStore backed by PostgreSQL. Insertion
// order is preserved via a sequence column.
type Store struct {
	db *sqlx.DB
}

var _ storage.CoffeeStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database, applies pending migrations and returns a
// ready store.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// Migrate applies pending schema migrations.
func Migrate(db *sqlx.DB) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) InsertCoffee(ctx context.Context, rec coffee.Record) (coffee.Record, error) {
	if rec.ID == "" {
		return coffee.Record{}, fmt.Errorf("record id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coffees (id, name, message, amount, timestamp)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.Name, rec.Message, int64(rec.Amount), int64(rec.Timestamp))
	if err != nil {
		return coffee.Record{}, err
	}
	return rec, nil
}

func (s *Store) GetCoffee(ctx context.Context, id string) (coffee.Record, error) {
	var rec coffee.Record
	err := s.db.GetContext(ctx, &rec, `
		SELECT id, name, message, amount, timestamp FROM coffees WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return coffee.Record{}, fmt.Errorf("record %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return coffee.Record{}, err
	}
	return rec, nil
}

func (s *Store) DeleteCoffee(ctx context.Context, id string) (coffee.Record, error) {
	var rec coffee.Record
	err := s.db.GetContext(ctx, &rec, `
		DELETE FROM coffees WHERE id = $1
		RETURNING id, name, message, amount, timestamp
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return coffee.Record{}, fmt.Errorf("record %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return coffee.Record{}, err
	}
	return rec, nil
}

func (s *Store) UpdateCoffee(ctx context.Context, id string, patch coffee.Patch) (coffee.Record, error) {
	var rec coffee.Record
	err := s.db.GetContext(ctx, &rec, `
		UPDATE coffees
		SET name = COALESCE($2, name), message = COALESCE($3, message)
		WHERE id = $1
		RETURNING id, name, message, amount, timestamp
	`, id, patch.Name, patch.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return coffee.Record{}, fmt.Errorf("record %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return coffee.Record{}, err
	}
	return rec, nil
}

func (s *Store) ListCoffees(ctx context.Context) ([]coffee.Record, error) {
	records := []coffee.Record{}
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, name, message, amount, timestamp FROM coffees ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	return records, nil
}
