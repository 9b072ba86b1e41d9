package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAuthor is recorded when a transaction is created without an
// explicit author.
const DefaultAuthor = "system"

// Transaction is the joined view of a transaction record: domain fields
// plus the registry metadata of its entity.
type Transaction struct {
	ID           string          `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Date         time.Time       `json:"transaction_date"`
	Description  string          `json:"description"`
	Account      string          `json:"account"`
	Category     *string         `json:"category"`
	Author       string          `json:"author"`
	Notes        *string         `json:"notes"`
	RecurrenceID *string         `json:"recurrence_id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	SupersededBy *string         `json:"superseded_by"`
	SupersededAt *time.Time      `json:"superseded_at"`
	GroupID      *string         `json:"group_id"`
	DerivedFrom  *string         `json:"derived_from"`
}

// TransactionFields is the create payload.
type TransactionFields struct {
	Amount       decimal.Decimal
	Currency     string
	Date         time.Time
	Description  string
	Account      string
	Category     *string
	Notes        *string
	Author       string
	RecurrenceID *string
	Provenance   Provenance
}

// TransactionPatch is a partial update; nil fields are left untouched. The
// identity field is not patchable.
type TransactionPatch struct {
	Amount       *decimal.Decimal
	Currency     *string
	Date         *time.Time
	Description  *string
	Account      *string
	Category     *string
	Notes        *string
	RecurrenceID *string
}

// TransactionFilter selects transactions for List. Zero-valued fields are
// not applied. Superseded records are suppressed unless IncludeSuperseded
// is set.
type TransactionFilter struct {
	Account           string
	Category          string
	StartDate         string // ISO date, inclusive
	EndDate           string // ISO date, inclusive
	IncludeSuperseded bool
}

var transactionFilterSQL = map[string]string{
	"account":    "t.account = ?",
	"category":   "t.category = ?",
	"start_date": "t.transaction_date >= ?",
	"end_date":   "t.transaction_date <= ?",
}

const transactionColumns = `
	id, amount, currency, transaction_date, description, account, category, author, notes, recurrence_id,
	created_at, updated_at, superseded_by, superseded_at, group_id, derived_from`

// TransactionOps provides transaction record CRUD coordinated with the
// entity registry through its unit of work.
type TransactionOps struct {
	core *Core
}

// Create registers a new entity of kind "transactions" and inserts the
// domain row in the same transaction scope, returning the generated id.
func (o *TransactionOps) Create(ctx context.Context, f TransactionFields) (string, error) {
	if o.core == nil {
		return "", fmt.Errorf("%w: transaction operations require a unit of work", ErrConfiguration)
	}
	if f.Currency == "" {
		f.Currency = "SGD"
	}
	if f.Author == "" {
		f.Author = DefaultAuthor
	}
	var id string
	err := o.core.withTx(ctx, func(q querier) error {
		var err error
		id, err = insertEntity(ctx, q, o.core.now(), KindTransaction, f.Provenance)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			insert into transactions
				(id, amount, currency, transaction_date, description, account, category, author, notes, recurrence_id)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, id, f.Amount, f.Currency, f.Date, f.Description, f.Account, f.Category, f.Author, f.Notes, f.RecurrenceID)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the joined view of a transaction, superseded or not.
func (o *TransactionOps) Get(ctx context.Context, id string) (Transaction, error) {
	if err := o.core.guard(); err != nil {
		return Transaction{}, err
	}
	row := o.core.q().QueryRowContext(ctx,
		`select`+transactionColumns+` from transactions_view where id = $1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, &NotFoundError{Kind: "Transaction", ID: id}
	}
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// List returns transactions matching the filter, most recent first
// (transaction date, then registry creation time), bounded by limit and
// offset. limit defaults to 100.
func (o *TransactionOps) List(ctx context.Context, f TransactionFilter, limit, offset int) ([]Transaction, error) {
	if err := o.core.guard(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	conds := map[string]any{
		"account":    nilIfEmpty(f.Account),
		"category":   nilIfEmpty(f.Category),
		"start_date": nilIfEmpty(f.StartDate),
		"end_date":   nilIfEmpty(f.EndDate),
	}
	where, args := BuildWhere(conds, transactionFilterSQL)
	// The superseded predicate takes no placeholder, so it is appended
	// outside the builder.
	if !f.IncludeSuperseded {
		if where == "1=1" {
			where = "e.superseded_by is null"
		} else {
			where += " AND e.superseded_by is null"
		}
	}

	query := Rebind(fmt.Sprintf(`
		select t.id, t.amount, t.currency, t.transaction_date, t.description, t.account, t.category, t.author, t.notes, t.recurrence_id,
		       e.created_at, e.updated_at, e.superseded_by, e.superseded_at, e.group_id, e.derived_from
		from transactions t
		join entity e on t.id = e.id
		where %s
		order by t.transaction_date desc, e.created_at desc
		limit ? offset ?
	`, where), 1)
	args = append(args, limit, offset)

	rows, err := o.core.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// Update applies the non-nil fields of the patch and advances the owning
// entity's updated_at. An empty patch performs no writes at all.
func (o *TransactionOps) Update(ctx context.Context, id string, p TransactionPatch) error {
	data := map[string]any{
		"amount":        nilOr(p.Amount),
		"currency":      nilOr(p.Currency),
		"description":   nilOr(p.Description),
		"account":       nilOr(p.Account),
		"category":      nilOr(p.Category),
		"notes":         nilOr(p.Notes),
		"recurrence_id": nilOr(p.RecurrenceID),
	}
	if p.Date != nil {
		data["transaction_date"] = *p.Date
	}
	clause, args := BuildUpdate(data)
	if clause == "" {
		return nil
	}
	return o.core.withTx(ctx, func(q querier) error {
		stmt := Rebind(fmt.Sprintf(`update transactions set %s where id = ?`, clause), 1)
		res, err := q.ExecContext(ctx, stmt, append(args, id)...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &NotFoundError{Kind: "Transaction", ID: id}
		}
		_, err = q.ExecContext(ctx, `update entity set updated_at = $1 where id = $2`, o.core.now(), id)
		return err
	})
}

// Delete is never physical: it creates a tombstone entity derived from the
// record and supersedes the record's entity with it, returning the
// tombstone id. Deleting twice fails with ErrConflict.
func (o *TransactionOps) Delete(ctx context.Context, id string) (string, error) {
	var tombstone string
	err := o.core.withTx(ctx, func(q querier) error {
		var one int
		err := q.QueryRowContext(ctx, `select 1 from transactions where id = $1`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return &NotFoundError{Kind: "Transaction", ID: id}
		}
		if err != nil {
			return err
		}
		tombstone, err = insertEntity(ctx, q, o.core.now(), KindTransaction, Provenance{DerivedFrom: id})
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(r rowScanner) (Transaction, error) {
	var t Transaction
	err := r.Scan(
		&t.ID, &t.Amount, &t.Currency, &t.Date, &t.Description, &t.Account, &t.Category, &t.Author, &t.Notes, &t.RecurrenceID,
		&t.CreatedAt, &t.UpdatedAt, &t.SupersededBy, &t.SupersededAt, &t.GroupID, &t.DerivedFrom,
	)
	return t, err
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nilOr widens a typed nil pointer into an untyped nil for the clause
// builders, which treat nil as "absent".
func nilOr[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
