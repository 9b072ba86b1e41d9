// Package config collects process configuration from the environment so the
// rest of the service receives plain values instead of reading env vars.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const envPrefix = "MEMOGARDEN_"

// Config holds everything the process needs at boot.
type Config struct {
	Addr            string
	DatabaseDSN     string
	MigrationsDir   string
	JWTSecret       string
	JWTExpiry       time.Duration
	BcryptCost      int
	DefaultCurrency string

	// BypassLocalhostCheck makes localhost-only endpoints reject every
	// caller. Used by tests exercising the non-localhost path.
	BypassLocalhostCheck bool
}

// Load reads configuration from MEMOGARDEN_* environment variables.
func Load() (Config, error) {
	cfg := Config{
		Addr:            getenv("ADDR", ":8080"),
		DatabaseDSN:     getenv("PG_DSN", ""),
		MigrationsDir:   getenv("MIGRATIONS_DIR", "migrations"),
		JWTSecret:       getenv("JWT_SECRET", ""),
		DefaultCurrency: getenv("DEFAULT_CURRENCY", "SGD"),
	}
	if cfg.DatabaseDSN == "" {
		return Config{}, errors.New("config: " + envPrefix + "PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("config: " + envPrefix + "JWT_SECRET is required")
	}

	expiryDays, err := getint("JWT_EXPIRY_DAYS", 30)
	if err != nil {
		return Config{}, err
	}
	if expiryDays <= 0 {
		return Config{}, errors.New("config: " + envPrefix + "JWT_EXPIRY_DAYS must be positive")
	}
	cfg.JWTExpiry = time.Duration(expiryDays) * 24 * time.Hour

	cfg.BcryptCost, err = getint("BCRYPT_COST", bcrypt.DefaultCost)
	if err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return Config{}, fmt.Errorf("config: %sBCRYPT_COST out of range [%d,%d]", envPrefix, bcrypt.MinCost, bcrypt.MaxCost)
	}

	cfg.BypassLocalhostCheck = getenv("BYPASS_LOCALHOST_CHECK", "") == "true"
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) (int, error) {
	raw := os.Getenv(envPrefix + key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
	}
	return v, nil
}
