package commands

import (
	"context"
	"testing"
	"time"

	types "github.com/yungbote/benefits-backend/internal/domain"
	"github.com/yungbote/benefits-backend/internal/data/repos/testutil"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
)

func record(key, hash string, created time.Time, ttl time.Duration) *types.IdempotencyRecord {
	return &types.IdempotencyRecord{
		Key:          key,
		RequestHash:  hash,
		ResponseBody: []byte(`{"id":"x","success":true}`),
		StatusCode:   201,
		CreatedAt:    created,
		ExpiresAt:    created.Add(ttl),
	}
}

func TestIdempotencyInsertIsFirstWriterWins(t *testing.T) {
	db := testutil.SQLite(t)
	repo := NewIdempotencyRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	now := time.Now().UTC()

	inserted, err := repo.Insert(dbc, record("k1", "h1", now, time.Hour))
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = repo.Insert(dbc, record("k1", "h2", now, time.Hour))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatalf("second insert should be a no-op")
	}
	got, err := repo.Get(dbc, "k1")
	if err != nil || got == nil {
		t.Fatalf("Get: got=%v err=%v", got, err)
	}
	if got.RequestHash != "h1" {
		t.Fatalf("hash overwritten: want=h1 got=%s", got.RequestHash)
	}
}

func TestIdempotencyDeleteExpired(t *testing.T) {
	db := testutil.SQLite(t)
	repo := NewIdempotencyRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	now := time.Now().UTC()

	if _, err := repo.Insert(dbc, record("old", "h", now.Add(-48*time.Hour), 24*time.Hour)); err != nil {
		t.Fatalf("seed old: %v", err)
	}
	if _, err := repo.Insert(dbc, record("fresh", "h", now, 24*time.Hour)); err != nil {
		t.Fatalf("seed fresh: %v", err)
	}
	n, err := repo.DeleteExpired(dbc, now)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted: want=1 got=%d", n)
	}
	if got, _ := repo.Get(dbc, "old"); got != nil {
		t.Fatalf("expired record still present")
	}
	if got, _ := repo.Get(dbc, "fresh"); got == nil {
		t.Fatalf("fresh record removed")
	}
	n, err = repo.DeleteExpiredKey(dbc, "fresh", now)
	if err != nil || n != 0 {
		t.Fatalf("DeleteExpiredKey on live key: n=%d err=%v", n, err)
	}
}
