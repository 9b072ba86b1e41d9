package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

var txCols = []string{
	"id", "amount", "currency", "transaction_date", "description", "account",
	"category", "author", "notes", "recurrence_id",
	"created_at", "updated_at", "superseded_by", "superseded_at", "group_id", "derived_from",
}

func sampleTxRow() *sqlmock.Rows {
	now := testClock()
	return sqlmock.NewRows(txCols).AddRow(
		"tx-1", "-4.50", "SGD", time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		"Kopi and toast", "DBS Savings", nil, "system", nil, nil,
		now, now, nil, nil, nil, nil,
	)
}

func TestTransactionCreatePairsEntityAndRow(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	expectEntityInsert(mock)
	mock.ExpectExec("insert into transactions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	id, err := core.Transactions().Create(context.Background(), TransactionFields{
		Amount:      decimal.RequireFromString("-4.50"),
		Date:        time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		Description: "Kopi and toast",
		Account:     "DBS Savings",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("expected id")
	}
	expectMet(t, mock)
}

func TestTransactionCreateRollsBackWhenRowInsertFails(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	expectEntityInsert(mock)
	mock.ExpectExec("insert into transactions").WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	_, err = core.Transactions().Create(context.Background(), TransactionFields{
		Amount:  decimal.NewFromInt(1),
		Date:    testClock(),
		Account: "cash",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	expectMet(t, mock)
}

func TestTransactionCreateWithoutCore(t *testing.T) {
	ops := &TransactionOps{}
	_, err := ops.Create(context.Background(), TransactionFields{})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestTransactionGetNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("from transactions_view").WillReturnError(sql.ErrNoRows)

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	_, err = core.Transactions().Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "Transaction" || nf.ID != "missing" {
		t.Fatalf("expected typed NotFoundError, got %v", err)
	}
	expectMet(t, mock)
}

func TestTransactionGetReturnsSupersededRecords(t *testing.T) {
	st, mock := newMockStore(t)
	now := testClock()
	rows := sqlmock.NewRows(txCols).AddRow(
		"tx-old", "10.00", "SGD", now, "old", "cash",
		nil, "system", nil, nil,
		now, now, "tx-tombstone", now, nil, nil,
	)
	mock.ExpectQuery("from transactions_view").WillReturnRows(rows)

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	tx, err := core.Transactions().Get(context.Background(), "tx-old")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tx.SupersededBy == nil || *tx.SupersededBy != "tx-tombstone" {
		t.Fatalf("expected superseded metadata, got %+v", tx)
	}
	expectMet(t, mock)
}

func TestTransactionListExcludesSupersededByDefault(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("superseded_by is null").
		WithArgs(100, 0).
		WillReturnRows(sampleTxRow())

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	items, err := core.Transactions().List(context.Background(), TransactionFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if !items[0].Amount.Equal(decimal.RequireFromString("-4.50")) {
		t.Fatalf("unexpected amount %s", items[0].Amount)
	}
	expectMet(t, mock)
}

func TestTransactionListIncludeSuperseded(t *testing.T) {
	st, mock := newMockStore(t)
	// With no filters and IncludeSuperseded the where collapses to 1=1.
	mock.ExpectQuery("where 1=1").
		WithArgs(100, 0).
		WillReturnRows(sampleTxRow())

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	if _, err := core.Transactions().List(context.Background(), TransactionFilter{IncludeSuperseded: true}, 0, 0); err != nil {
		t.Fatalf("List: %v", err)
	}
	expectMet(t, mock)
}

func TestTransactionListFilters(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(`t.account = \$1 AND t.transaction_date >= \$2`).
		WithArgs("cash", "2026-01-01", 50, 10).
		WillReturnRows(sqlmock.NewRows(txCols))

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	filter := TransactionFilter{Account: "cash", StartDate: "2026-01-01", IncludeSuperseded: true}
	items, err := core.Transactions().List(context.Background(), filter, 50, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty result, got %d", len(items))
	}
	expectMet(t, mock)
}

func TestTransactionUpdateEmptyPatchIsNoop(t *testing.T) {
	st, mock := newMockStore(t)

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	if err := core.Transactions().Update(context.Background(), "tx-1", TransactionPatch{}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// No SQL at all may run for an all-nil patch.
	expectMet(t, mock)
}

func TestTransactionUpdateAppliesPatchAndTouchesEntity(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`update transactions set notes = \$1 where id = \$2`).
		WithArgs("updated note", "tx-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update entity set updated_at").
		WithArgs(testClock(), "tx-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	notes := "updated note"
	if err := core.Transactions().Update(context.Background(), "tx-1", TransactionPatch{Notes: &notes}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	expectMet(t, mock)
}

func TestTransactionUpdateNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("update transactions set").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	notes := "x"
	err = core.Transactions().Update(context.Background(), "ghost", TransactionPatch{Notes: &notes})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestTransactionDeleteCreatesTombstone(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from transactions").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	expectEntityInsert(mock)
	mock.ExpectExec("update entity").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	tombstone, err := core.Transactions().Delete(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if tombstone == "" || tombstone == "tx-1" {
		t.Fatalf("expected fresh tombstone id, got %q", tombstone)
	}
	expectMet(t, mock)
}

func TestTransactionDeleteTwiceConflicts(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from transactions").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	expectEntityInsert(mock)
	// Supersede misses: the entity already carries a tombstone.
	mock.ExpectExec("update entity").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select superseded_by from entity").
		WillReturnRows(sqlmock.NewRows([]string{"superseded_by"}).AddRow("first-tombstone"))
	mock.ExpectRollback()

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	_, err = core.Transactions().Delete(context.Background(), "tx-1")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectMet(t, mock)
}

func TestTransactionDeleteMissing(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from transactions").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	_, err = core.Transactions().Delete(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}
