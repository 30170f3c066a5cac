package casedb

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"path/filepath"
	"time"

	"triage/internal/sqlstore"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// DatabaseName is the case database file inside the output directory.
const DatabaseName = "case.db"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the SQLite-backed case database.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the case database in dir.
func Open(ctx context.Context, dir string) (*Store, error) {
	return OpenPath(ctx, filepath.Join(dir, DatabaseName))
}

// OpenPath creates or opens the case database at an explicit path.
func OpenPath(ctx context.Context, path string) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := sqlstore.Open(path)
	if err != nil {
		return nil, err
	}
	if err := sqlstore.InitSchema(ctx, db, schemaSQL, schemaVersion); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := sqlstore.RetryOnBusy(ctx, func(ctx context.Context) error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int64, valid bool) any {
	if !valid {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
