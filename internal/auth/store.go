package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var errUserExists = errors.New("auth: user already exists")
var errUserNotFound = errors.New("auth: user not found")

type userRecord struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore keeps accounts in Redis: a hash per email plus an id index.
type UserStore struct {
	R      *redis.Client
	Prefix string
}

func (s UserStore) prefix() string {
	if s.Prefix == "" {
		return "users:"
	}
	return s.Prefix
}

func (s UserStore) emailKey(email string) string { return s.prefix() + email }
func (s UserStore) idKey(id string) string       { return s.prefix() + "id:" + id }

var createUserScript = redis.NewScript(`if redis.call("exists", KEYS[1]) == 1 then
  return 0
end
redis.call("hset", KEYS[1], "id", ARGV[1], "email", ARGV[2], "password_hash", ARGV[3], "created_at", ARGV[4])
redis.call("set", KEYS[2], ARGV[2])
return 1`)

func (s UserStore) create(ctx context.Context, u userRecord) error {
	created, err := createUserScript.Run(ctx, s.R,
		[]string{s.emailKey(u.Email), s.idKey(u.ID)},
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if created == 0 {
		return errUserExists
	}
	return nil
}

func (s UserStore) byEmail(ctx context.Context, email string) (userRecord, error) {
	fields, err := s.R.HGetAll(ctx, s.emailKey(email)).Result()
	if err != nil {
		return userRecord{}, fmt.Errorf("load user: %w", err)
	}
	if len(fields) == 0 || strings.TrimSpace(fields["id"]) == "" {
		return userRecord{}, errUserNotFound
	}
	created, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	return userRecord{
		ID:           fields["id"],
		Email:        fields["email"],
		PasswordHash: fields["password_hash"],
		CreatedAt:    created,
	}, nil
}

func (s UserStore) byID(ctx context.Context, id string) (userRecord, error) {
	email, err := s.R.Get(ctx, s.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return userRecord{}, errUserNotFound
		}
		return userRecord{}, fmt.Errorf("load user: %w", err)
	}
	return s.byEmail(ctx, email)
}
