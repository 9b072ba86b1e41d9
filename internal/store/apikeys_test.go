package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var apiKeyCols = []string{
	"id", "user_id", "name", "key_hash", "key_prefix",
	"expires_at", "created_at", "last_seen", "revoked_at",
}

func TestAPIKeyCreatePairsEntityAndRow(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	expectEntityInsert(mock)
	mock.ExpectExec("insert into api_keys").
		WithArgs(sqlmock.AnyArg(), "u-1", "automation", "hash", "mg_sk_agent_ab12", nil, testClock()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	k, err := core.APIKeys().Create(context.Background(), "u-1", "automation", "hash", "mg_sk_agent_ab12", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if k.UserID != "u-1" || k.Name != "automation" {
		t.Fatalf("unexpected key %+v", k)
	}
	expectMet(t, mock)
}

func TestAPIKeyActiveFiltersRevokedAndExpired(t *testing.T) {
	st, mock := newMockStore(t)
	now := testClock()
	mock.ExpectQuery(`revoked_at is null and \(expires_at is null or expires_at > \$1\)`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows(apiKeyCols).
			AddRow("k-1", "u-1", "live", "hash1", "mg_sk_agent_aa11", nil, now, nil, nil))

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	keys, err := core.APIKeys().Active(context.Background(), now)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != "k-1" {
		t.Fatalf("unexpected keys %+v", keys)
	}
	expectMet(t, mock)
}

func TestAPIKeyRevokeScopedToOwner(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec("update api_keys set revoked_at").
		WithArgs(testClock(), "k-1", "u-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	err = core.APIKeys().Revoke(context.Background(), "k-1", "u-2")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign key, got %v", err)
	}
	expectMet(t, mock)
}

func TestAPIKeyListByUserNewestFirst(t *testing.T) {
	st, mock := newMockStore(t)
	now := testClock()
	revoked := now.Add(-time.Hour)
	mock.ExpectQuery("order by created_at desc").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(apiKeyCols).
			AddRow("k-2", "u-1", "new", "h2", "mg_sk_agent_bb22", nil, now, nil, nil).
			AddRow("k-1", "u-1", "old", "h1", "mg_sk_agent_aa11", nil, now.Add(-2*time.Hour), nil, revoked))

	core, err := st.Core(context.Background())
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	defer core.Release()

	keys, err := core.APIKeys().ListByUser(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected both keys (revoked included), got %d", len(keys))
	}
	if keys[1].RevokedAt == nil {
		t.Fatal("expected revoked timestamp on old key")
	}
	expectMet(t, mock)
}
