package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Recurrence is a template that scheduled materialization derives
// transactions from. Entries holds the JSON-encoded transaction prototypes;
// the rrule states the schedule.
type Recurrence struct {
	ID           string     `json:"id"`
	RRule        string     `json:"rrule"`
	Entries      string     `json:"entries"`
	ValidFrom    time.Time  `json:"valid_from"`
	ValidUntil   *time.Time `json:"valid_until"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	SupersededBy *string    `json:"superseded_by"`
	SupersededAt *time.Time `json:"superseded_at"`
	GroupID      *string    `json:"group_id"`
	DerivedFrom  *string    `json:"derived_from"`
}

// RecurrenceFields is the create payload.
type RecurrenceFields struct {
	RRule      string
	Entries    string
	ValidFrom  time.Time
	ValidUntil *time.Time
	Provenance Provenance
}

// RecurrencePatch is a partial update; nil fields are left untouched.
type RecurrencePatch struct {
	RRule      *string
	Entries    *string
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

const recurrenceColumns = `
	id, rrule, entries, valid_from, valid_until,
	created_at, updated_at, superseded_by, superseded_at, group_id, derived_from`

// RecurrenceOps provides recurrence record CRUD, coordinated with the
// entity registry the same way transactions are.
type RecurrenceOps struct {
	core *Core
}

// Create registers an entity of kind "recurrences" and inserts the domain
// row in the same transaction scope.
func (o *RecurrenceOps) Create(ctx context.Context, f RecurrenceFields) (string, error) {
	if o.core == nil {
		return "", fmt.Errorf("%w: recurrence operations require a unit of work", ErrConfiguration)
	}
	var id string
	err := o.core.withTx(ctx, func(q querier) error {
		var err error
		id, err = insertEntity(ctx, q, o.core.now(), KindRecurrence, f.Provenance)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			insert into recurrences (id, rrule, entries, valid_from, valid_until)
			values ($1, $2, $3, $4, $5)
		`, id, f.RRule, f.Entries, f.ValidFrom, f.ValidUntil)
		if err != nil {
			return fmt.Errorf("insert recurrence: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the joined view of a recurrence.
func (o *RecurrenceOps) Get(ctx context.Context, id string) (Recurrence, error) {
	if err := o.core.guard(); err != nil {
		return Recurrence{}, err
	}
	row := o.core.q().QueryRowContext(ctx,
		`select`+recurrenceColumns+` from recurrences_view where id = $1`, id)
	rec, err := scanRecurrence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recurrence{}, &NotFoundError{Kind: "Recurrence", ID: id}
	}
	if err != nil {
		return Recurrence{}, err
	}
	return rec, nil
}

// List returns recurrences, newest first, excluding superseded ones unless
// includeSuperseded is set.
func (o *RecurrenceOps) List(ctx context.Context, includeSuperseded bool, limit, offset int) ([]Recurrence, error) {
	if err := o.core.guard(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	where := "1=1"
	if !includeSuperseded {
		where = "e.superseded_by is null"
	}
	query := Rebind(fmt.Sprintf(`
		select r.id, r.rrule, r.entries, r.valid_from, r.valid_until,
		       e.created_at, e.updated_at, e.superseded_by, e.superseded_at, e.group_id, e.derived_from
		from recurrences r
		join entity e on r.id = e.id
		where %s
		order by r.valid_from desc, e.created_at desc
		limit ? offset ?
	`, where), 1)

	rows, err := o.core.q().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Recurrence
	for rows.Next() {
		rec, err := scanRecurrence(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Update applies the non-nil fields of the patch and advances the owning
// entity's updated_at. An empty patch is a no-op.
func (o *RecurrenceOps) Update(ctx context.Context, id string, p RecurrencePatch) error {
	data := map[string]any{
		"rrule":   nilOr(p.RRule),
		"entries": nilOr(p.Entries),
	}
	if p.ValidFrom != nil {
		data["valid_from"] = *p.ValidFrom
	}
	if p.ValidUntil != nil {
		data["valid_until"] = *p.ValidUntil
	}
	clause, args := BuildUpdate(data)
	if clause == "" {
		return nil
	}
	return o.core.withTx(ctx, func(q querier) error {
		stmt := Rebind(fmt.Sprintf(`update recurrences set %s where id = ?`, clause), 1)
		res, err := q.ExecContext(ctx, stmt, append(args, id)...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &NotFoundError{Kind: "Recurrence", ID: id}
		}
		_, err = q.ExecContext(ctx, `update entity set updated_at = $1 where id = $2`, o.core.now(), id)
		return err
	})
}

// Delete supersedes the recurrence with a tombstone entity and returns the
// tombstone id.
func (o *RecurrenceOps) Delete(ctx context.Context, id string) (string, error) {
	var tombstone string
	err := o.core.withTx(ctx, func(q querier) error {
		var one int
		err := q.QueryRowContext(ctx, `select 1 from recurrences where id = $1`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return &NotFoundError{Kind: "Recurrence", ID: id}
		}
		if err != nil {
			return err
		}
		tombstone, err = insertEntity(ctx, q, o.core.now(), KindRecurrence, Provenance{DerivedFrom: id})
		if err != nil {
			return err
		}
		return supersedeEntity(ctx, q, o.core.now(), id, tombstone)
	})
	if err != nil {
		return "", err
	}
	return tombstone, nil
}

func scanRecurrence(r rowScanner) (Recurrence, error) {
	var rec Recurrence
	err := r.Scan(
		&rec.ID, &rec.RRule, &rec.Entries, &rec.ValidFrom, &rec.ValidUntil,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.SupersededBy, &rec.SupersededAt, &rec.GroupID, &rec.DerivedFrom,
	)
	return rec, err
}
