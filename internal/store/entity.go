package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/memogarden/memogarden-core/internal/ids"
)

// Registered entity kinds. The kind tags which domain table owns a row.
const (
	KindTransaction = "transactions"
	KindRecurrence  = "recurrences"
	KindUser        = "users"
	KindAPIKey      = "api_keys"
)

// Entity is the identity row every domain record is anchored to. Once
// superseded it is immutable history; ids are never reused across kinds.
type Entity struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	GroupID      *string    `json:"group_id"`
	DerivedFrom  *string    `json:"derived_from"`
	SupersededBy *string    `json:"superseded_by"`
	SupersededAt *time.Time `json:"superseded_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Provenance carries the optional registry links set at creation. GroupID
// clusters related entities; DerivedFrom records what an entity was
// computed or copied from. Neither implies ownership.
type Provenance struct {
	GroupID     string
	DerivedFrom string
}

// EntityOps is the entity registry: every record of any kind gets exactly
// one row here.
type EntityOps struct {
	core *Core
}

// idRetries bounds id regeneration on a UUID collision.
const idRetries = 3

// Create inserts a registry row with a freshly generated id and returns it.
// Exhausting every collision retry surfaces as ErrConflict.
func (o *EntityOps) Create(ctx context.Context, kind string, prov Provenance) (string, error) {
	if err := o.core.guard(); err != nil {
		return "", err
	}
	return insertEntity(ctx, o.core.q(), o.core.now(), kind, prov)
}

// Get fetches a registry row. kindLabel names the entity in the NotFound
// message (e.g. "Transaction").
func (o *EntityOps) Get(ctx context.Context, id, kindLabel string) (Entity, error) {
	if err := o.core.guard(); err != nil {
		return Entity{}, err
	}
	row := o.core.q().QueryRowContext(ctx, `
		select id, kind, group_id, derived_from, superseded_by, superseded_at, created_at, updated_at
		from entity where id = $1
	`, id)
	var e Entity
	err := row.Scan(&e.ID, &e.Kind, &e.GroupID, &e.DerivedFrom, &e.SupersededBy, &e.SupersededAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entity{}, &NotFoundError{Kind: kindLabel, ID: id}
	}
	if err != nil {
		return Entity{}, err
	}
	return e, nil
}

// Supersede marks oldID as logically replaced by newID. Supersession is
// terminal: a second call on the same entity fails with ErrConflict, and
// superseded_by never reverts to null. Both ids must already exist.
func (o *EntityOps) Supersede(ctx context.Context, oldID, newID string) error {
	if err := o.core.guard(); err != nil {
		return err
	}
	return supersedeEntity(ctx, o.core.q(), o.core.now(), oldID, newID)
}

// Touch advances updated_at only.
func (o *EntityOps) Touch(ctx context.Context, id string) error {
	if err := o.core.guard(); err != nil {
		return err
	}
	res, err := o.core.q().ExecContext(ctx,
		`update entity set updated_at = $1 where id = $2`, o.core.now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "Entity", ID: id}
	}
	return nil
}

// insertEntity is shared by EntityOps.Create and the record operations so a
// domain create can register its identity inside the same transaction.
// Inside a transaction each attempt runs under a savepoint: a unique
// violation aborts the enclosing Postgres transaction otherwise, and the
// collision retry would fail with 25P02 instead of retrying.
func insertEntity(ctx context.Context, q querier, now time.Time, kind string, prov Provenance) (string, error) {
	_, inTx := q.(*sql.Tx)
	for attempt := 0; attempt < idRetries; attempt++ {
		if inTx {
			if _, err := q.ExecContext(ctx, `savepoint entity_insert`); err != nil {
				return "", err
			}
		}
		id := ids.NewEntityID()
		_, err := q.ExecContext(ctx, `
			insert into entity (id, kind, group_id, derived_from, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $5)
		`, id, kind, nullable(prov.GroupID), nullable(prov.DerivedFrom), now)
		if err == nil {
			if inTx {
				if _, err := q.ExecContext(ctx, `release savepoint entity_insert`); err != nil {
					return "", err
				}
			}
			return id, nil
		}
		if !isUniqueViolation(err) {
			return "", fmt.Errorf("insert entity: %w", err)
		}
		if inTx {
			if _, err := q.ExecContext(ctx, `rollback to savepoint entity_insert`); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("entity id generation exhausted %d retries: %w", idRetries, ErrConflict)
}

func supersedeEntity(ctx context.Context, q querier, now time.Time, oldID, newID string) error {
	res, err := q.ExecContext(ctx, `
		update entity
		set superseded_by = $1, superseded_at = $2, updated_at = $2
		where id = $3 and superseded_by is null
	`, newID, now, oldID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// Zero rows: either the entity is missing or it is already superseded.
	var existing sql.NullString
	err = q.QueryRowContext(ctx, `select superseded_by from entity where id = $1`, oldID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Kind: "Entity", ID: oldID}
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("entity %q already superseded by %q: %w", oldID, existing.String, ErrConflict)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
