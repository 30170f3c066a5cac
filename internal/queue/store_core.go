package queue

import (
	"context"
	"database/sql"
	_ "embed"

	"triage/internal/sqlstore"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// Store is the durable Queue backend backed by SQLite.
type Store struct {
	db       *sql.DB
	path     string
	observer LengthObserver
}

// OpenStore initializes or connects to the task database at path.
func OpenStore(ctx context.Context, path string, opts ...Option) (*Store, error) {
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
	o := buildOptions(opts)
	return &Store{db: db, path: path, observer: o.observer}, nil
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
