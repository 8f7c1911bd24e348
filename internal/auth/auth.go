// Package auth issues and verifies bearer tokens for the survey API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-survey-service/cache"
	"github.com/goliatone/go-survey-service/internal/store"
)

var (
	// ErrUnauthenticated covers every failed authentication: bad password,
	// unknown or inactive user, missing, expired or malformed token.
	ErrUnauthenticated = errors.New("auth: could not validate credentials")
)

const userMemoName = "user"

// Config tunes token issuance.
type Config struct {
	Secret     string        `mapstructure:"secret"`
	Algorithm  string        `mapstructure:"algorithm"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

func DefaultConfig() Config {
	return Config{
		Algorithm:  "HS256",
		TokenTTL:   30 * time.Minute,
		BcryptCost: bcrypt.DefaultCost,
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Secret, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.Algorithm, validation.Required, validation.In("HS256", "HS384", "HS512")),
		validation.Field(&c.TokenTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.BcryptCost, validation.Min(bcrypt.MinCost), validation.Max(bcrypt.MaxCost)),
	)
}

// Users is the store lookup used to resolve principals.
type Users interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

// Token is the OAuth2 style token response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type Option func(*Service)

// WithMemo caches resolved principals in process.
func WithMemo(m cache.Memo) Option {
	return func(s *Service) {
		s.memo = m
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for token issuance and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service authenticates users and resolves bearer tokens.
type Service struct {
	users  Users
	memo   cache.Memo
	cfg    Config
	method jwt.SigningMethod
	keys   cache.KeySerializer
	now    func() time.Time
	logger *zap.Logger
}

func New(users Users, cfg Config, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: users store is required")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("auth: invalid config: %w", err)
	}

	s := &Service{
		users:  users,
		cfg:    cfg,
		method: jwt.GetSigningMethod(cfg.Algorithm),
		keys:   cache.NewDefaultKeySerializer(),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HashPassword returns the bcrypt hash of password.
func (s *Service) HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticate verifies a username and password pair against the store.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*store.User, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.HashedPassword, password) {
		return nil, ErrUnauthenticated
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: inactive user", ErrUnauthenticated)
	}
	return u, nil
}

// IssueToken signs an access token for username.
func (s *Service) IssueToken(username string) (Token, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Token{AccessToken: signed, TokenType: "bearer"}, nil
}

// ParseToken validates a token and returns its subject. A "Bearer " prefix
// is accepted.
func (s *Service) ParseToken(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}

func (s *Service) memoKey(username string) string {
	return s.keys.SerializeKey(userMemoName, username)
}

// CurrentIdentity resolves the user behind a bearer token. Principals are
// memoized in process; inactive users are rejected.
func (s *Service) CurrentIdentity(ctx context.Context, token string) (*store.User, error) {
	username, err := s.ParseToken(token)
	if err != nil {
		return nil, err
	}

	fetch := cache.FetchFn[*store.User](func(ctx context.Context) (*store.User, error) {
		return s.users.GetUserByUsername(ctx, username)
	})

	var u *store.User
	if s.memo != nil {
		u, err = cache.Memoize(ctx, s.memo, s.memoKey(username), fetch)
	} else {
		u, err = fetch(ctx)
	}
	if errors.Is(err, store.ErrNotFound) || (err == nil && u == nil) {
		return nil, fmt.Errorf("%w: unknown user", ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: inactive user", ErrUnauthenticated)
	}
	return u, nil
}

// Forget drops the memoized principal so the next lookup reads the store.
func (s *Service) Forget(ctx context.Context, username string) error {
	if s.memo == nil {
		return nil
	}
	if err := s.memo.Delete(ctx, s.memoKey(username)); err != nil {
		s.logger.Warn("principal not forgotten", zap.String("username", username), zap.Error(err))
		return err
	}
	return nil
}
