package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is the errors.Is target for every missing-row failure.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict covers unique constraint violations, exhausted id
	// collision retries and attempts to supersede twice.
	ErrConflict = errors.New("store: conflict")

	// ErrConfiguration marks programming errors: operations invoked on a
	// released unit of work or without one at all. Never retried.
	ErrConfiguration = errors.New("store: configuration error")

	// ErrCoreReleased is returned when a unit of work is used after its
	// scope ended.
	ErrCoreReleased = fmt.Errorf("%w: unit of work already released", ErrConfiguration)
)

// NotFoundError reports a missing entity or record together with the
// human-readable kind label used in error messages.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
