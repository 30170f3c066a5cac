package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"triage/internal/sqlstore"
)

func TestInitSchemaCreatesAndVerifies(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := sqlstore.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	schema := "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);"
	if err := sqlstore.InitSchema(ctx, db, schema, 1); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO items (name) VALUES ('a')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// second init on the same version is a no-op
	if err := sqlstore.InitSchema(ctx, db, schema, 1); err != nil {
		t.Fatalf("InitSchema again: %v", err)
	}
	if err := sqlstore.InitSchema(ctx, db, schema, 2); !errors.Is(err, sqlstore.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
	_ = db.Close()
}

func TestIsBusy(t *testing.T) {
	if sqlstore.IsBusy(nil) {
		t.Fatal("nil is not busy")
	}
	if !sqlstore.IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatal("expected locked message to be busy")
	}
	if sqlstore.IsBusy(errors.New("UNIQUE constraint failed")) {
		t.Fatal("constraint failure is not busy")
	}
}

func TestRetryOnBusy(t *testing.T) {
	calls := 0
	permanent := errors.New("constraint failed")
	err := sqlstore.RetryOnBusy(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("expected one call returning permanent error, got calls=%d err=%v", calls, err)
	}

	calls = 0
	err = sqlstore.RetryOnBusy(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third attempt, got calls=%d err=%v", calls, err)
	}

	calls = 0
	err = sqlstore.RetryOnBusy(context.Background(), func(context.Context) error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil || calls != 5 {
		t.Fatalf("expected give up after 5 attempts, got calls=%d err=%v", calls, err)
	}
}
