package testsupport

import (
	"context"
	"testing"

	"triage/internal/casedb"
)

// MustOpenCase opens a case database in dir and registers cleanup.
func MustOpenCase(t testing.TB, dir string) *casedb.Store {
	t.Helper()

	store, err := casedb.Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("casedb.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
