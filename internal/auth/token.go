package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed payload of a bearer token: the subject user id plus
// the display name and admin flag the HTTP layer needs without a database
// round-trip.
type Claims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 bearer tokens with a fixed
// configured lifetime.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source. Useful for tests.
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService builds a TokenService around the configured signing
// secret and token lifetime.
func NewTokenService(secret string, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is not configured")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	s := &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for the given user. The expiry is issuance time plus
// the configured lifetime.
func (s *TokenService) Issue(userID, username string, isAdmin bool) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("auth: user id is required")
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate verifies the signature and expiry. Past-expiry tokens fail with
// ErrExpiredCredential; every other failure, including tokens signed with a
// different secret or missing required claims, is ErrInvalidCredential.
func (s *TokenService) Validate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidCredential
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		return nil, ErrInvalidCredential
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidCredential
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}

// DecodeUnverified extracts claims without checking the signature. It
// exists for introspection and debugging only and must never be used to
// authorize a request.
func (s *TokenService) DecodeUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}

// ExpiryRemaining reports the remaining validity of a token. The second
// return is false for an already-expired or malformed token.
func (s *TokenService) ExpiryRemaining(token string) (time.Duration, bool) {
	claims, err := s.DecodeUnverified(token)
	if err != nil || claims.ExpiresAt == nil {
		return 0, false
	}
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// IsExpired treats malformed tokens as expired, failing closed.
func (s *TokenService) IsExpired(token string) bool {
	_, ok := s.ExpiryRemaining(token)
	return !ok
}
