package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func sqliteSetup(t *testing.T) *SQLiteStore {
	t.Helper()

	return sqliteSetupWithVisibility(t, time.Minute)
}

func sqliteSetupWithVisibility(t *testing.T, visibility time.Duration) *SQLiteStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	// One :memory: database per connection; keep the pool at one.
	db.SetMaxOpenConns(1)

	s := NewSQLiteStore(db, visibility)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return s
}

func TestSQLiteEnqueuePopComplete(t *testing.T) {
	ctx := context.Background()
	s := sqliteSetup(t)

	id, err := s.Enqueue(ctx, []byte("blob-1"), 0)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	rec, err := s.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop() error: %v", err)
	}
	if rec == nil || rec.ID != id || string(rec.Payload) != "blob-1" {
		t.Fatalf("Pop() = %+v, want id %s payload blob-1", rec, id)
	}

	if again, _ := s.Pop(ctx); again != nil {
		t.Fatalf("second Pop() = %+v, claimed record must be invisible", again)
	}

	if err := s.Complete(ctx, id); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if err := s.Complete(ctx, id); err != nil {
		t.Fatalf("repeat Complete() error: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if st.Pending != 0 || st.Processing != 0 || st.Failed != 0 {
		t.Errorf("Stats = %+v, want all zero", st)
	}
}

func TestSQLitePopSkipsDelayedRecords(t *testing.T) {
	ctx := context.Background()
	s := sqliteSetup(t)

	if _, err := s.Enqueue(ctx, []byte("later"), time.Hour); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	now, err := s.Enqueue(ctx, []byte("now"), 0)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	rec, err := s.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop() error: %v", err)
	}
	if rec == nil || rec.ID != now {
		t.Fatalf("Pop() = %+v, want the immediately available record %s", rec, now)
	}
	if rec, _ := s.Pop(ctx); rec != nil {
		t.Fatalf("Pop() = %+v, delayed record must stay invisible", rec)
	}
}

func TestSQLiteRetryReschedules(t *testing.T) {
	ctx := context.Background()
	s := sqliteSetup(t)

	id, err := s.Enqueue(ctx, []byte("v1"), 0)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if rec, _ := s.Pop(ctx); rec == nil {
		t.Fatal("Pop() returned nil")
	}

	if err := s.Retry(ctx, id, []byte("v2"), 80*time.Millisecond); err != nil {
		t.Fatalf("Retry() error: %v", err)
	}
	if rec, _ := s.Pop(ctx); rec != nil {
		t.Fatalf("Pop() = %+v before the retry delay elapsed", rec)
	}

	time.Sleep(120 * time.Millisecond)

	rec, err := s.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop() error: %v", err)
	}
	if rec == nil || string(rec.Payload) != "v2" {
		t.Fatalf("Pop() after delay = %+v, want rewritten payload v2", rec)
	}
}

func TestSQLiteRetryUnknownID(t *testing.T) {
	s := sqliteSetup(t)
	if err := s.Retry(context.Background(), "nope", []byte("x"), 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Retry(unknown) = %v, want ErrNotFound", err)
	}
}

func TestSQLiteFailMovesRecordToFailedTable(t *testing.T) {
	ctx := context.Background()
	s := sqliteSetup(t)

	id, err := s.Enqueue(ctx, []byte("doomed"), 0)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if rec, _ := s.Pop(ctx); rec == nil {
		t.Fatal("Pop() returned nil")
	}

	if err := s.Fail(ctx, id, []byte("doomed"), "it broke"); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}

	if rec, _ := s.Pop(ctx); rec != nil {
		t.Fatalf("Pop() = %+v, failed record must never be popped again", rec)
	}

	failed, err := s.ListFailed(ctx, 10)
	if err != nil {
		t.Fatalf("ListFailed() error: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != id || failed[0].Reason != "it broke" {
		t.Fatalf("ListFailed() = %+v", failed)
	}
}

func TestSQLiteFailWithNilPayloadKeepsStoredBlob(t *testing.T) {
	ctx := context.Background()
	s := sqliteSetup(t)

	id, err := s.Enqueue(ctx, []byte("garbage"), 0)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if rec, _ := s.Pop(ctx); rec == nil {
		t.Fatal("Pop() returned nil")
	}

	if err := s.Fail(ctx, id, nil, "undecodable"); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}

	failed, err := s.ListFailed(ctx, 1)
	if err != nil {
		t.Fatalf("ListFailed() error: %v", err)
	}
	if len(failed) != 1 || string(failed[0].Payload) != "garbage" {
		t.Fatalf("ListFailed() = %+v, want the stored blob preserved", failed)
	}
}

func TestSQLiteReleaseStuck(t *testing.T) {
	ctx := context.Background()
	s := sqliteSetupWithVisibility(t, 50*time.Millisecond)

	if _, err := s.Enqueue(ctx, []byte("stuck"), 0); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if rec, _ := s.Pop(ctx); rec == nil {
		t.Fatal("Pop() returned nil")
	}

	if n, _ := s.ReleaseStuck(ctx, time.Now()); n != 0 {
		t.Fatalf("ReleaseStuck() = %d inside the visibility window, want 0", n)
	}

	time.Sleep(80 * time.Millisecond)

	n, err := s.ReleaseStuck(ctx, time.Now())
	if err != nil {
		t.Fatalf("ReleaseStuck() error: %v", err)
	}
	if n != 1 {
		t.Fatalf("ReleaseStuck() = %d, want 1", n)
	}
	if rec, _ := s.Pop(ctx); rec == nil {
		t.Fatal("released record must be poppable again")
	}
}
