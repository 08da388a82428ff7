package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps each owner's history as a list of ids (newest at the head)
// plus a hash of id to invoice JSON.
type RedisStore struct {
	R      *redis.Client
	Prefix string
}

// NewRedisStore constructs a RedisStore with the default key prefix.
func NewRedisStore(r *redis.Client) *RedisStore {
	return &RedisStore{R: r, Prefix: "invoices:"}
}

func (s *RedisStore) listKey(owner string) string { return s.prefix() + owner }
func (s *RedisStore) dataKey(owner string) string { return s.prefix() + owner + ":data" }

func (s *RedisStore) prefix() string {
	if s.Prefix == "" {
		return "invoices:"
	}
	return s.Prefix
}

// Save prepends inv to the owner's history.
func (s *RedisStore) Save(ctx context.Context, inv Invoice) error {
	if err := validate(inv); err != nil {
		return err
	}
	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invoice: %w", err)
	}
	pipe := s.R.TxPipeline()
	pipe.HSet(ctx, s.dataKey(inv.Owner), inv.ID, payload)
	pipe.LPush(ctx, s.listKey(inv.Owner), inv.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save invoice: %w", err)
	}
	return nil
}

// List returns every invoice for owner, newest first.
func (s *RedisStore) List(ctx context.Context, owner string) ([]Invoice, error) {
	ids, err := s.R.LRange(ctx, s.listKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	if len(ids) == 0 {
		return []Invoice{}, nil
	}
	vals, err := s.R.HMGet(ctx, s.dataKey(owner), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load invoices: %w", err)
	}
	out := make([]Invoice, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var inv Invoice
		if err := json.Unmarshal([]byte(raw), &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, nil
}

// Get loads one invoice by id.
func (s *RedisStore) Get(ctx context.Context, owner, id string) (Invoice, error) {
	raw, err := s.R.HGet(ctx, s.dataKey(owner), id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, fmt.Errorf("load invoice: %w", err)
	}
	var inv Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return Invoice{}, fmt.Errorf("decode invoice: %w", err)
	}
	return inv, nil
}

// Latest returns the most recently saved invoice.
func (s *RedisStore) Latest(ctx context.Context, owner string) (Invoice, error) {
	id, err := s.R.LIndex(ctx, s.listKey(owner), 0).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, fmt.Errorf("latest invoice: %w", err)
	}
	return s.Get(ctx, owner, id)
}

// Clear deletes the owner's entire history.
func (s *RedisStore) Clear(ctx context.Context, owner string) error {
	return s.R.Del(ctx, s.listKey(owner), s.dataKey(owner)).Err()
}
