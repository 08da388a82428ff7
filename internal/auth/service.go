package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/solar-symphony/internal/common"
)

const (
	defaultAccessTTL  = time.Hour
	minPasswordLength = 6
)

// Service handles registration, login and access token verification.
type Service struct {
	users     UserStore
	redis     *redis.Client
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	clockSkew time.Duration
	params    *argon2id.Params
}

// Config configures the auth service.
type Config struct {
	Redis          *redis.Client
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
	// HashParams overrides argon2id.DefaultParams.
	HashParams *argon2id.Params
}

// User is the public view of an account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResult bundles the access token returned after a successful login.
type LoginResult struct {
	User         User      `json:"user"`
	AccessToken  string    `json:"access_token"`
	AccessExpiry time.Time `json:"access_expires_at"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Redis == nil {
		return nil, errors.New("auth: redis client is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "solar-symphony"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "solar-symphony-web"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}
	params := cfg.HashParams
	if params == nil {
		params = argon2id.DefaultParams
	}

	return &Service{
		users:     UserStore{R: cfg.Redis},
		redis:     cfg.Redis,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		params:    params,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. The email must contain "@" and "." and the
// password must be at least six characters.
func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	normalized := normalizeEmail(email)
	details := map[string]string{}
	if !strings.Contains(normalized, "@") || !strings.Contains(normalized, ".") {
		details["email"] = "please enter a valid email address"
	}
	if len(password) < minPasswordLength {
		details["password"] = "password must be at least 6 characters long"
	}
	if len(details) > 0 {
		return User{}, common.ValidationError("invalid registration details", details)
	}

	hash, err := argon2id.CreateHash(password, s.params)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	rec := userRecord{
		ID:           uuid.NewString(),
		Email:        normalized,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.create(ctx, rec); err != nil {
		if errors.Is(err, errUserExists) {
			return User{}, common.NewAppError("EMAIL_ALREADY_USED", "an account with this email already exists", http.StatusConflict, err)
		}
		return User{}, err
	}
	return toUser(rec), nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	invalid := common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
	normalized := normalizeEmail(email)
	if normalized == "" || password == "" {
		return LoginResult{}, invalid
	}
	rec, err := s.users.byEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, errUserNotFound) {
			return LoginResult{}, invalid
		}
		return LoginResult{}, err
	}
	ok, err := argon2id.ComparePasswordAndHash(password, rec.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalid
	}

	token, expiry, err := s.signAccessToken(rec.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	return LoginResult{User: toUser(rec), AccessToken: token, AccessExpiry: expiry}, nil
}

// Me returns the account for userID.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	rec, err := s.users.byID(ctx, userID)
	if err != nil {
		if errors.Is(err, errUserNotFound) {
			return User{}, common.NewAppError("NOT_FOUND", "user not found", http.StatusNotFound, err)
		}
		return User{}, err
	}
	return toUser(rec), nil
}

// Logout revokes token until its natural expiry.
func (s *Service) Logout(ctx context.Context, token string) error {
	parsed, err := s.parse(token)
	if err != nil {
		return nil
	}
	jti := parsed.JwtID()
	if jti == "" {
		return nil
	}
	ttl := parsed.Expiration().Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.redis.Set(ctx, revokedKey(jti), "1", ttl).Err()
}

// ParseAccessToken validates an access token and returns the subject (user ID).
func (s *Service) ParseAccessToken(ctx context.Context, token string) (string, error) {
	parsed, err := s.parse(token)
	if err != nil {
		return "", err
	}
	if jti := parsed.JwtID(); jti != "" {
		revoked, err := s.redis.Exists(ctx, revokedKey(jti)).Result()
		if err != nil {
			return "", fmt.Errorf("check revocation: %w", err)
		}
		if revoked > 0 {
			return "", common.NewAppError("UNAUTHORIZED", "token revoked", http.StatusUnauthorized, nil)
		}
	}
	return parsed.Subject(), nil
}

func (s *Service) parse(token string) (jwt.Token, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return nil, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return nil, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return nil, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return nil, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	return parsed, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" {
		return "", errors.New("auth: token missing algorithm")
	}
	if alg == jwa.NoSignature {
		return "", errors.New("auth: token uses none algorithm")
	}
	return alg, nil
}

func (s *Service) signAccessToken(userID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func revokedKey(jti string) string { return "auth:revoked:" + jti }

func toUser(rec userRecord) User {
	return User{ID: rec.ID, Email: rec.Email, CreatedAt: rec.CreatedAt}
}
