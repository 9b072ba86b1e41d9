package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var testClock = func() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, WithClock(testClock)), mock
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// expectEntityInsert expects the statement sequence insertEntity runs
// inside a transaction: savepoint, insert, release savepoint.
func expectEntityInsert(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`^savepoint entity_insert$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into entity").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("release savepoint entity_insert").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestAtomicCommitsOnNilError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	expectEntityInsert(mock)
	mock.ExpectCommit()

	err := st.Atomic(context.Background(), func(c *Core) error {
		_, err := c.Entities().Create(context.Background(), KindTransaction, Provenance{})
		return err
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}
	expectMet(t, mock)
}

func TestAtomicRollsBackOnError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	expectEntityInsert(mock)
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := st.Atomic(context.Background(), func(c *Core) error {
		if _, err := c.Entities().Create(context.Background(), KindTransaction, Provenance{}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error back, got %v", err)
	}
	expectMet(t, mock)
}

func TestCoreUnusableAfterAtomicScope(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	var escaped *Core
	err := st.Atomic(context.Background(), func(c *Core) error {
		escaped = c
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	if _, err := escaped.Entities().Create(context.Background(), KindTransaction, Provenance{}); !errors.Is(err, ErrCoreReleased) {
		t.Fatalf("expected ErrCoreReleased, got %v", err)
	}
	if err := escaped.Entities().Touch(context.Background(), "x"); !errors.Is(err, ErrCoreReleased) {
		t.Fatalf("expected ErrCoreReleased, got %v", err)
	}
	expectMet(t, mock)
}

func TestCoreReleaseIdempotent(t *testing.T) {
	st, mock := newMockStore(t)

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	core.Release()
	core.Release()

	if _, err := core.Entities().Get(context.Background(), "x", "Entity"); !errors.Is(err, ErrCoreReleased) {
		t.Fatalf("expected ErrCoreReleased, got %v", err)
	}
	expectMet(t, mock)
}

func TestAutocommitOperationsRunIndependently(t *testing.T) {
	st, mock := newMockStore(t)
	// Two entity creates on an autocommit Core: no surrounding Begin/Commit.
	mock.ExpectExec("insert into entity").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into entity").WillReturnResult(sqlmock.NewResult(0, 1))

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	first, err := core.Entities().Create(context.Background(), KindTransaction, Provenance{})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := core.Entities().Create(context.Background(), KindRecurrence, Provenance{})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct ids, both %q", first)
	}
	expectMet(t, mock)
}
