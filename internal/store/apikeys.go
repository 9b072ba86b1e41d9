package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// APIKey is an API key row. Only the one-way hash and the display prefix
// are stored; the full secret exists nowhere after creation.
type APIKey struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	KeyHash   string     `json:"-"`
	KeyPrefix string     `json:"prefix"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	LastSeen  *time.Time `json:"last_seen"`
	RevokedAt *time.Time `json:"revoked_at"`
}

const apiKeyColumns = `id, user_id, name, key_hash, key_prefix, expires_at, created_at, last_seen, revoked_at`

// APIKeyOps stores API key rows; secret generation and hash comparison live
// in the auth package.
type APIKeyOps struct {
	core *Core
}

// Create registers an entity of kind "api_keys" and inserts the key row.
func (o *APIKeyOps) Create(ctx context.Context, userID, name, keyHash, keyPrefix string, expiresAt *time.Time) (APIKey, error) {
	if o.core == nil {
		return APIKey{}, fmt.Errorf("%w: api key operations require a unit of work", ErrConfiguration)
	}
	var k APIKey
	err := o.core.withTx(ctx, func(q querier) error {
		now := o.core.now()
		id, err := insertEntity(ctx, q, now, KindAPIKey, Provenance{})
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			insert into api_keys (id, user_id, name, key_hash, key_prefix, expires_at, created_at)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, id, userID, name, keyHash, keyPrefix, expiresAt, now)
		if err != nil {
			return fmt.Errorf("insert api key: %w", err)
		}
		k = APIKey{ID: id, UserID: userID, Name: name, KeyHash: keyHash, KeyPrefix: keyPrefix, ExpiresAt: expiresAt, CreatedAt: now}
		return nil
	})
	if err != nil {
		return APIKey{}, err
	}
	return k, nil
}

// ByID fetches a key row.
func (o *APIKeyOps) ByID(ctx context.Context, id string) (APIKey, error) {
	if err := o.core.guard(); err != nil {
		return APIKey{}, err
	}
	row := o.core.q().QueryRowContext(ctx,
		`select `+apiKeyColumns+` from api_keys where id = $1`, id)
	k, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return APIKey{}, &NotFoundError{Kind: "API key", ID: id}
	}
	if err != nil {
		return APIKey{}, err
	}
	return k, nil
}

// ListByUser returns all keys owned by a user, newest first, revoked ones
// included.
func (o *APIKeyOps) ListByUser(ctx context.Context, userID string) ([]APIKey, error) {
	if err := o.core.guard(); err != nil {
		return nil, err
	}
	rows, err := o.core.q().QueryContext(ctx,
		`select `+apiKeyColumns+` from api_keys where user_id = $1 order by created_at desc`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAPIKeys(rows)
}

// Active returns every key that is neither revoked nor expired as of now.
// Verification walks this set comparing hashes.
func (o *APIKeyOps) Active(ctx context.Context, now time.Time) ([]APIKey, error) {
	if err := o.core.guard(); err != nil {
		return nil, err
	}
	rows, err := o.core.q().QueryContext(ctx, `
		select `+apiKeyColumns+` from api_keys
		where revoked_at is null and (expires_at is null or expires_at > $1)
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAPIKeys(rows)
}

// Revoke sets the terminal revocation timestamp on a key owned by userID.
// Revoking a missing, foreign or already revoked key reports NotFound; the
// caller cannot tell which.
func (o *APIKeyOps) Revoke(ctx context.Context, id, userID string) error {
	if err := o.core.guard(); err != nil {
		return err
	}
	res, err := o.core.q().ExecContext(ctx, `
		update api_keys set revoked_at = $1
		where id = $2 and user_id = $3 and revoked_at is null
	`, o.core.now(), id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "API key", ID: id}
	}
	return nil
}

// TouchLastSeen records a successful verification.
func (o *APIKeyOps) TouchLastSeen(ctx context.Context, id string) error {
	if err := o.core.guard(); err != nil {
		return err
	}
	_, err := o.core.q().ExecContext(ctx,
		`update api_keys set last_seen = $1 where id = $2`, o.core.now(), id)
	return err
}

func collectAPIKeys(rows *sql.Rows) ([]APIKey, error) {
	var res []APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, k)
	}
	return res, rows.Err()
}

func scanAPIKey(r rowScanner) (APIKey, error) {
	var k APIKey
	err := r.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.ExpiresAt, &k.CreatedAt, &k.LastSeen, &k.RevokedAt)
	return k, err
}
