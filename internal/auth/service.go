// Package auth implements the credential store, token issuance and the
// request authentication resolver: the two independent schemes (short-lived
// bearer tokens and long-lived API keys) backed by one hashed credential
// store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/memogarden/memogarden-core/internal/store"
)

// Authentication methods reported by the resolver.
const (
	MethodJWT    = "jwt"
	MethodAPIKey = "api_key"
)

// Identity is the resolved caller of an authenticated request.
type Identity struct {
	UserID   string
	Username string
	IsAdmin  bool
	Method   string
}

// Service manages user accounts and API keys on top of the entity store.
// It owns secret hashing; the store only ever sees hashes.
type Service struct {
	store *store.Store
	cost  int
	now   func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBcryptCost sets the hashing work factor.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// WithClock overrides the time source. Useful for tests.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(st *store.Store, opts ...ServiceOption) *Service {
	s := &Service{store: st, cost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser registers an account. The username is normalized to lowercase
// before storage; a duplicate fails with store.ErrConflict.
func (s *Service) CreateUser(ctx context.Context, username, password string, isAdmin bool) (store.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return store.User{}, errors.New("auth: username is required")
	}
	if password == "" {
		return store.User{}, errors.New("auth: password is required")
	}
	hash, err := HashSecret(password, s.cost)
	if err != nil {
		return store.User{}, err
	}
	core, err := s.store.Core(ctx)
	if err != nil {
		return store.User{}, err
	}
	defer core.Release()
	return core.Users().Create(ctx, username, hash, isAdmin)
}

// GetUser fetches an account by id.
func (s *Service) GetUser(ctx context.Context, id string) (store.User, error) {
	core, err := s.store.Core(ctx)
	if err != nil {
		return store.User{}, err
	}
	defer core.Release()
	return core.Users().ByID(ctx, id)
}

// VerifyCredentials checks a username/password pair. The username match is
// case-insensitive, the password check is not. Unknown user and wrong
// password fail identically with ErrInvalidCredential.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (store.User, error) {
	core, err := s.store.Core(ctx)
	if err != nil {
		return store.User{}, err
	}
	defer core.Release()

	user, err := core.Users().ByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredential
	}
	if err != nil {
		return store.User{}, err
	}
	if !VerifySecret(user.PasswordHash, password) {
		return store.User{}, ErrInvalidCredential
	}
	return user, nil
}

// HasAdminUser reports whether initial setup has completed.
func (s *Service) HasAdminUser(ctx context.Context) (bool, error) {
	core, err := s.store.Core(ctx)
	if err != nil {
		return false, err
	}
	defer core.Release()
	return core.Users().HasAdmin(ctx)
}

// CountUsers returns the number of registered accounts.
func (s *Service) CountUsers(ctx context.Context) (int, error) {
	core, err := s.store.Core(ctx)
	if err != nil {
		return 0, err
	}
	defer core.Release()
	return core.Users().Count(ctx)
}

// resolveAPIKey verifies a presented API key secret against the active key
// set, advances last_seen on the match and loads the owning account. Wrong
// secret, revoked key and expired key all fail with the same error.
func (s *Service) resolveAPIKey(ctx context.Context, secret string) (Identity, error) {
	if !strings.HasPrefix(secret, KeyPrefix) {
		return Identity{}, ErrInvalidCredential
	}
	core, err := s.store.Core(ctx)
	if err != nil {
		return Identity{}, err
	}
	defer core.Release()

	active, err := core.APIKeys().Active(ctx, s.now().UTC())
	if err != nil {
		return Identity{}, err
	}
	for _, key := range active {
		if !verifyKeySecret(key.KeyHash, secret) {
			continue
		}
		if err := core.APIKeys().TouchLastSeen(ctx, key.ID); err != nil {
			return Identity{}, fmt.Errorf("touch api key: %w", err)
		}
		user, err := core.Users().ByID(ctx, key.UserID)
		if err != nil {
			return Identity{}, err
		}
		return Identity{
			UserID:   user.ID,
			Username: user.Username,
			IsAdmin:  user.IsAdmin,
			Method:   MethodAPIKey,
		}, nil
	}
	return Identity{}, ErrInvalidCredential
}
