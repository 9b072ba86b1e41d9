package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret hashes a password or API key secret with bcrypt at the given
// cost. bcrypt salts internally, so hashing the same secret twice yields
// different strings.
func HashSecret(secret string, cost int) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret is empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret compares a candidate secret against a stored hash using
// bcrypt's own comparison, never string equality.
func VerifySecret(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
