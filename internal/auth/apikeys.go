package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/memogarden/memogarden-core/internal/store"
)

// KeyPrefix is the fixed, non-secret prefix of every API key. It lets both
// humans and the resolver recognize one of our keys at a glance; the
// entropy follows it.
const KeyPrefix = "mg_sk_agent_"

const keySecretBytes = 32

// CreatedAPIKey carries the full secret alongside the stored metadata. The
// secret is shown exactly once, at creation; it cannot be retrieved again.
type CreatedAPIKey struct {
	store.APIKey
	Key string `json:"key"`
}

// GenerateKey produces a fresh API key secret: the fixed prefix followed by
// 64 hex characters of cryptographic entropy.
func GenerateKey() (string, error) {
	buf := make([]byte, keySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}

// keyDigest reduces an API key secret to a fixed-width digest before
// bcrypt. The full secret is 76 bytes, past bcrypt's 72-byte input limit;
// the hex digest is always 64 bytes.
func keyDigest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func hashKeySecret(secret string, cost int) (string, error) {
	return HashSecret(keyDigest(secret), cost)
}

func verifyKeySecret(hash, secret string) bool {
	return VerifySecret(hash, keyDigest(secret))
}

// CreateAPIKey mints a key for a user, stores only its bcrypt hash and
// prefix, and returns the full secret this one time.
func (s *Service) CreateAPIKey(ctx context.Context, userID, name string, expiresAt *time.Time) (CreatedAPIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CreatedAPIKey{}, errors.New("auth: api key name is required")
	}
	secret, err := GenerateKey()
	if err != nil {
		return CreatedAPIKey{}, err
	}
	hash, err := hashKeySecret(secret, s.cost)
	if err != nil {
		return CreatedAPIKey{}, err
	}

	core, err := s.store.Core(ctx)
	if err != nil {
		return CreatedAPIKey{}, err
	}
	defer core.Release()

	key, err := core.APIKeys().Create(ctx, userID, name, hash, KeyPrefix, expiresAt)
	if err != nil {
		return CreatedAPIKey{}, err
	}
	return CreatedAPIKey{APIKey: key, Key: secret}, nil
}

// ListAPIKeys returns a user's keys: prefix and metadata only, never the
// secret or its hash.
func (s *Service) ListAPIKeys(ctx context.Context, userID string) ([]store.APIKey, error) {
	core, err := s.store.Core(ctx)
	if err != nil {
		return nil, err
	}
	defer core.Release()
	keys, err := core.APIKeys().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].KeyHash = ""
	}
	return keys, nil
}

// RevokeAPIKey terminally revokes a key owned by userID.
func (s *Service) RevokeAPIKey(ctx context.Context, id, userID string) error {
	core, err := s.store.Core(ctx)
	if err != nil {
		return err
	}
	defer core.Release()
	return core.APIKeys().Revoke(ctx, id, userID)
}
