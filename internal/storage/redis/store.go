// Package redis provides the Redis-backed record store. Records live as
// JSON values keyed by id; a list key tracks insertion order.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"github.com/Coffee-Network/coffee_ledger/internal/domain/coffee"
	"github.com/Coffee-Network/coffee_ledger/internal/storage"
)

const (
	recordKeyPrefix = "coffee:"
	orderKey        = "coffee:order"
)

// Store implements storage.CoffeeStore backed by Redis.
type Store struct {
	client *goredis.Client
}

var _ storage.CoffeeStore = (*Store)(nil)

// New creates a store over an existing client.
func New(client *goredis.Client) *Store {
	return &Store{client: client}
}

// Open connects to Redis using the given URL (redis://...).
func Open(url string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client), nil
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func recordKey(id string) string { return recordKeyPrefix + id }

func (s *Store) InsertCoffee(ctx context.Context, rec coffee.Record) (coffee.Record, error) {
	if rec.ID == "" {
		return coffee.Record{}, fmt.Errorf("record id is required")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return coffee.Record{}, err
	}

	ok, err := s.client.SetNX(ctx, recordKey(rec.ID), payload, 0).Result()
	if err != nil {
		return coffee.Record{}, err
	}
	if !ok {
		return coffee.Record{}, fmt.Errorf("record %s already exists", rec.ID)
	}
	if err := s.client.RPush(ctx, orderKey, rec.ID).Err(); err != nil {
		return coffee.Record{}, err
	}
	return rec, nil
}

func (s *Store) GetCoffee(ctx context.Context, id string) (coffee.Record, error) {
	payload, err := s.client.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return coffee.Record{}, fmt.Errorf("record %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return coffee.Record{}, err
	}
	var rec coffee.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return coffee.Record{}, err
	}
	return rec, nil
}

func (s *Store) DeleteCoffee(ctx context.Context, id string) (coffee.Record, error) {
	rec, err := s.GetCoffee(ctx, id)
	if err != nil {
		return coffee.Record{}, err
	}
	if err := s.client.Del(ctx, recordKey(id)).Err(); err != nil {
		return coffee.Record{}, err
	}
	if err := s.client.LRem(ctx, orderKey, 1, id).Err(); err != nil {
		return coffee.Record{}, err
	}
	return rec, nil
}

func (s *Store) UpdateCoffee(ctx context.Context, id string, patch coffee.Patch) (coffee.Record, error) {
	rec, err := s.GetCoffee(ctx, id)
	if err != nil {
		return coffee.Record{}, err
	}
	if patch.Name != nil {
		rec.Name = *patch.Name
	}
	if patch.Message != nil {
		rec.Message = *patch.Message
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return coffee.Record{}, err
	}
	if err := s.client.Set(ctx, recordKey(id), payload, 0).Err(); err != nil {
		return coffee.Record{}, err
	}
	return rec, nil
}

func (s *Store) ListCoffees(ctx context.Context) ([]coffee.Record, error) {
	ids, err := s.client.LRange(ctx, orderKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	records := make([]coffee.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetCoffee(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
