package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/alexedwards/argon2id"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/solar-symphony/internal/common"
)

var fastHash = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, err := NewService(Config{Redis: client, Secret: "test-secret", AccessTokenTTL: time.Minute, HashParams: fastHash})
	require.NoError(t, err)
	return svc, mr
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Code
}

func TestNewServiceRequiresSecretAndRedis(t *testing.T) {
	_, err := NewService(Config{Secret: "x"})
	require.Error(t, err)
	_, err = NewService(Config{Redis: redis.NewClient(&redis.Options{}), Secret: "  "})
	require.Error(t, err)
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "no-at-sign.com", "secret1")
	require.Equal(t, "VALIDATION_ERROR", appCode(t, err))

	_, err = svc.Register(ctx, "user@localhost", "secret1")
	require.Equal(t, "VALIDATION_ERROR", appCode(t, err))

	_, err = svc.Register(ctx, "user@example.com", "12345")
	require.Equal(t, "VALIDATION_ERROR", appCode(t, err))
}

func TestRegisterStoresHashNotPassword(t *testing.T) {
	svc, mr := newTestService(t)
	user, err := svc.Register(context.Background(), " User@Example.com ", "secret1")
	require.NoError(t, err)
	require.Equal(t, "user@example.com", user.Email)
	require.NotEmpty(t, user.ID)

	stored := mr.HGet("users:user@example.com", "password_hash")
	require.NotEqual(t, "secret1", stored)
	ok, err := argon2id.ComparePasswordAndHash("secret1", stored)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Register(context.Background(), "dup@example.com", "secret1")
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), "DUP@example.com", "another1")
	require.Equal(t, "EMAIL_ALREADY_USED", appCode(t, err))
}

func TestLoginAndParseToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, "sun@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "sun@example.com", "wrong-pass")
	require.Equal(t, "INVALID_CREDENTIALS", appCode(t, err))
	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	require.Equal(t, "INVALID_CREDENTIALS", appCode(t, err))

	res, err := svc.Login(ctx, "SUN@example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, user.ID, res.User.ID)

	subject, err := svc.ParseAccessToken(ctx, res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, subject)

	me, err := svc.Me(ctx, subject)
	require.NoError(t, err)
	require.Equal(t, "sun@example.com", me.Email)
}

func TestAccessTokenExpires(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return now })
	_, err := svc.Register(ctx, "sun@example.com", "secret1")
	require.NoError(t, err)
	res, err := svc.Login(ctx, "sun@example.com", "secret1")
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return now.Add(2 * time.Minute) })
	_, err = svc.ParseAccessToken(ctx, res.AccessToken)
	require.Equal(t, "UNAUTHORIZED", appCode(t, err))
}

func TestTokenSignedWithOtherSecretRejected(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "sun@example.com", "secret1")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	other, err := NewService(Config{Redis: client, Secret: "other-secret", HashParams: fastHash})
	require.NoError(t, err)
	res, err := other.Login(ctx, "sun@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.ParseAccessToken(ctx, res.AccessToken)
	require.Equal(t, "UNAUTHORIZED", appCode(t, err))
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "sun@example.com", "secret1")
	require.NoError(t, err)
	res, err := svc.Login(ctx, "sun@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.AccessToken))
	_, err = svc.ParseAccessToken(ctx, res.AccessToken)
	require.Equal(t, "UNAUTHORIZED", appCode(t, err))

	require.NoError(t, svc.Logout(ctx, "garbage"))
}
