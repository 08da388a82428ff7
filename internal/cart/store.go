package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Store persists carts in Redis. Each owner has a JSON item list and an
// optional promo code, both expiring after TTL of inactivity.
type Store struct {
	R      *redis.Client
	Prefix string
	TTL    time.Duration
}

func (s *Store) prefix() string {
	if s.Prefix == "" {
		return "cart:"
	}
	return s.Prefix
}

func (s *Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Store) itemsKey(owner string) string { return s.prefix() + owner }
func (s *Store) promoKey(owner string) string { return s.prefix() + owner + ":promo" }

// Load returns the owner's items. A missing cart is empty.
func (s *Store) Load(ctx context.Context, owner string) ([]Item, error) {
	raw, err := s.R.Get(ctx, s.itemsKey(owner)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Item{}, nil
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// Save replaces the owner's items and refreshes the expiry of the cart and
// its promo code. Saving an empty list removes the items key.
func (s *Store) Save(ctx context.Context, owner string, items []Item) error {
	pipe := s.R.TxPipeline()
	if len(items) == 0 {
		pipe.Del(ctx, s.itemsKey(owner))
	} else {
		payload, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("encode cart: %w", err)
		}
		pipe.Set(ctx, s.itemsKey(owner), payload, s.ttl())
	}
	pipe.Expire(ctx, s.promoKey(owner), s.ttl())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Promo returns the stored promo code, or "" when none is applied.
func (s *Store) Promo(ctx context.Context, owner string) (string, error) {
	code, err := s.R.Get(ctx, s.promoKey(owner)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("load promo: %w", err)
	}
	return code, nil
}

// SetPromo stores code for owner.
func (s *Store) SetPromo(ctx context.Context, owner, code string) error {
	return s.R.Set(ctx, s.promoKey(owner), code, s.ttl()).Err()
}

// ClearPromo removes any stored promo code.
func (s *Store) ClearPromo(ctx context.Context, owner string) error {
	return s.R.Del(ctx, s.promoKey(owner)).Err()
}

// Delete removes the owner's items and promo code.
func (s *Store) Delete(ctx context.Context, owner string) error {
	return s.R.Del(ctx, s.itemsKey(owner), s.promoKey(owner)).Err()
}

// Transfer writes items and promo to target and deletes the source cart in a
// single transaction, so the lines are never missing from both carts.
func (s *Store) Transfer(ctx context.Context, source, target string, items []Item, promo string) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	pipe := s.R.TxPipeline()
	pipe.Set(ctx, s.itemsKey(target), payload, s.ttl())
	if promo != "" {
		pipe.Set(ctx, s.promoKey(target), promo, s.ttl())
	}
	pipe.Del(ctx, s.itemsKey(source), s.promoKey(source))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("transfer cart: %w", err)
	}
	return nil
}
