package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var recCols = []string{
	"id", "rrule", "entries", "valid_from", "valid_until",
	"created_at", "updated_at", "superseded_by", "superseded_at", "group_id", "derived_from",
}

func TestRecurrenceCreatePairsEntityAndRow(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	expectEntityInsert(mock)
	mock.ExpectExec("insert into recurrences").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	id, err := core.Recurrences().Create(context.Background(), RecurrenceFields{
		RRule:     "FREQ=MONTHLY;BYMONTHDAY=1",
		Entries:   `{"note": "rent"}`,
		ValidFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("expected id")
	}
	expectMet(t, mock)
}

func TestRecurrenceGetNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("from recurrences_view").WillReturnError(sql.ErrNoRows)

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	_, err = core.Recurrences().Get(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestRecurrenceListExcludesSupersededByDefault(t *testing.T) {
	st, mock := newMockStore(t)
	now := testClock()
	mock.ExpectQuery("superseded_by is null").
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows(recCols).
			AddRow("r-1", "FREQ=WEEKLY", "{}", now, nil, now, now, nil, nil, nil, nil))

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	items, err := core.Recurrences().List(context.Background(), false, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].RRule != "FREQ=WEEKLY" {
		t.Fatalf("unexpected items %+v", items)
	}
	expectMet(t, mock)
}

func TestRecurrenceUpdateEmptyPatchIsNoop(t *testing.T) {
	st, mock := newMockStore(t)

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	if err := core.Recurrences().Update(context.Background(), "r-1", RecurrencePatch{}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	expectMet(t, mock)
}

func TestRecurrenceDeleteCreatesTombstone(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from recurrences").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	expectEntityInsert(mock)
	mock.ExpectExec("update entity").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	tombstone, err := core.Recurrences().Delete(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if tombstone == "" {
		t.Fatal("expected tombstone id")
	}
	expectMet(t, mock)
}
