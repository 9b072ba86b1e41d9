package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestUserCreateLowercasesUsername(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	expectEntityInsert(mock)
	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), "gardener", "hash", true, testClock()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	u, err := core.Users().Create(context.Background(), "  Gardener ", "hash", true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Username != "gardener" {
		t.Fatalf("expected lowercase username, got %q", u.Username)
	}
	if !u.IsAdmin {
		t.Fatal("expected admin flag")
	}
	expectMet(t, mock)
}

func TestUserCreateDuplicateUsername(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	expectEntityInsert(mock)
	mock.ExpectExec("insert into users").WillReturnError(uniqueViolation())
	mock.ExpectRollback()

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	_, err = core.Users().Create(context.Background(), "gardener", "hash", false)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectMet(t, mock)
}

func TestUserByUsernameMatchesCaseInsensitively(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("from users where username").
		WithArgs("gardener").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "is_admin", "created_at"}).
			AddRow("u-1", "gardener", "hash", true, testClock()))

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	u, err := core.Users().ByUsername(context.Background(), "GARDENER")
	if err != nil {
		t.Fatalf("ByUsername: %v", err)
	}
	if u.ID != "u-1" {
		t.Fatalf("unexpected user %+v", u)
	}
	expectMet(t, mock)
}

func TestUserByIDNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("from users where id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "is_admin", "created_at"}))

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	_, err = core.Users().ByID(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestHasAdmin(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("count").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	ok, err := core.Users().HasAdmin(context.Background())
	if err != nil {
		t.Fatalf("HasAdmin: %v", err)
	}
	if !ok {
		t.Fatal("expected admin present")
	}
	expectMet(t, mock)
}
