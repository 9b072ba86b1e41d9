package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User is a user account row. The password hash never leaves this layer
// except to the auth package for verification.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserOps stores user account rows. Hashing happens in the auth package;
// this layer only persists what it is given. Usernames are stored and
// matched lowercase.
type UserOps struct {
	core *Core
}

// Create registers an entity of kind "users" and inserts the account row. A
// duplicate username surfaces as ErrConflict.
func (o *UserOps) Create(ctx context.Context, username, passwordHash string, isAdmin bool) (User, error) {
	if o.core == nil {
		return User{}, fmt.Errorf("%w: user operations require a unit of work", ErrConfiguration)
	}
	username = strings.ToLower(strings.TrimSpace(username))
	var u User
	err := o.core.withTx(ctx, func(q querier) error {
		now := o.core.now()
		id, err := insertEntity(ctx, q, now, KindUser, Provenance{})
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			insert into users (id, username, password_hash, is_admin, created_at)
			values ($1, $2, $3, $4, $5)
		`, id, username, passwordHash, isAdmin, now)
		if isUniqueViolation(err) {
			return fmt.Errorf("username %q already taken: %w", username, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		u = User{ID: id, Username: username, PasswordHash: passwordHash, IsAdmin: isAdmin, CreatedAt: now}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// ByID fetches a user account.
func (o *UserOps) ByID(ctx context.Context, id string) (User, error) {
	if err := o.core.guard(); err != nil {
		return User{}, err
	}
	return o.scanOne(o.core.q().QueryRowContext(ctx,
		`select id, username, password_hash, is_admin, created_at from users where id = $1`, id), id)
}

// ByUsername fetches a user account, matching case-insensitively.
func (o *UserOps) ByUsername(ctx context.Context, username string) (User, error) {
	if err := o.core.guard(); err != nil {
		return User{}, err
	}
	username = strings.ToLower(strings.TrimSpace(username))
	return o.scanOne(o.core.q().QueryRowContext(ctx,
		`select id, username, password_hash, is_admin, created_at from users where username = $1`, username), username)
}

// HasAdmin reports whether any admin account exists. Bootstrap gating uses
// it to decide whether first-time registration is still open.
func (o *UserOps) HasAdmin(ctx context.Context) (bool, error) {
	if err := o.core.guard(); err != nil {
		return false, err
	}
	var n int
	err := o.core.q().QueryRowContext(ctx,
		`select count(*) from users where is_admin`).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the total number of user accounts.
func (o *UserOps) Count(ctx context.Context) (int, error) {
	if err := o.core.guard(); err != nil {
		return 0, err
	}
	var n int
	err := o.core.q().QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (o *UserOps) scanOne(row *sql.Row, ref string) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, &NotFoundError{Kind: "User", ID: ref}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}
