package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"triage/internal/sqlstore"
)

// Enqueue appends task to the tail.
func (s *Store) Enqueue(ctx context.Context, task Task) error {
	if !task.Kind.Valid() {
		return ErrInvalidTask
	}
	err := sqlstore.RetryOnBusy(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO tasks (kind, target_id, enqueued_at) VALUES (?, ?, ?)`,
			string(task.Kind), task.ID, time.Now().UTC().Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task, err)
	}
	s.notify(ctx)
	return nil
}

// Next claims the head task by deleting its row in the same transaction that
// reads it.
func (s *Store) Next(ctx context.Context) (Task, bool, error) {
	var (
		task  Task
		found bool
	)
	err := sqlstore.RetryOnBusy(ctx, func(ctx context.Context) error {
		found = false
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var (
			seq  int64
			kind string
		)
		row := tx.QueryRowContext(ctx, `SELECT seq, kind, target_id FROM tasks ORDER BY seq LIMIT 1`)
		if err := row.Scan(&seq, &kind, &task.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE seq = ?`, seq); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		task.Kind = Kind(kind)
		found = true
		return nil
	})
	if err != nil {
		return Task{}, false, fmt.Errorf("dequeue task: %w", err)
	}
	if !found {
		return Task{}, false, nil
	}
	s.notify(ctx)
	return task, true, nil
}

// Len returns the number of pending tasks.
func (s *Store) Len(ctx context.Context) (int, error) {
	var count int
	err := sqlstore.RetryOnBusy(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks`).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

// Pending lists queued tasks head first without claiming them.
func (s *Store) Pending(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, target_id FROM tasks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			kind string
			id   int64
		)
		if err := rows.Scan(&kind, &id); err != nil {
			return nil, err
		}
		tasks = append(tasks, Task{Kind: Kind(kind), ID: id})
	}
	return tasks, rows.Err()
}

func (s *Store) notify(ctx context.Context) {
	if n, err := s.Len(ctx); err == nil {
		s.observer(n)
	}
}
