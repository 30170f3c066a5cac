package casedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Run is the persisted outcome of one scheduler run.
type Run struct {
	ID         string
	ImagePath  string
	State      string
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
	// Summary is stored as JSON.
	Summary json.RawMessage
}

// RecordRun inserts or replaces a run row.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	summary := run.Summary
	if len(summary) == 0 {
		summary = json.RawMessage(`{}`)
	}
	var finished any
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.exec(ctx,
		`INSERT INTO runs (id, image_path, state, started_at, finished_at, error, summary_json)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET state = excluded.state, finished_at = excluded.finished_at,
             error = excluded.error, summary_json = excluded.summary_json`,
		run.ID, run.ImagePath, run.State, run.StartedAt.UTC().Format(time.RFC3339Nano),
		finished, nullableString(run.Error), string(summary),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// Runs returns recorded runs oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, image_path, state, started_at, finished_at, error, summary_json FROM runs ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			startedRaw string
			finished   sql.NullString
			errMsg     sql.NullString
			summary    string
		)
		if err := rows.Scan(&r.ID, &r.ImagePath, &r.State, &startedRaw, &finished, &errMsg, &summary); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(startedRaw)
		if finished.Valid {
			r.FinishedAt = parseTime(finished.String)
		}
		r.Error = errMsg.String
		r.Summary = json.RawMessage(summary)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
