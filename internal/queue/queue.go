package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"triage/internal/config"
)

// DatabaseName is the durable queue file created inside the output directory.
const DatabaseName = "tasks.db"

// ErrInvalidTask is returned when a task without a kind is enqueued.
var ErrInvalidTask = errors.New("task kind is empty")

// Queue is the global FIFO shared by producers and the drain loop.
type Queue interface {
	// Enqueue appends task at the tail. The task is visible to Next before
	// Enqueue returns.
	Enqueue(ctx context.Context, task Task) error
	// Next removes and returns the head. ok is false when the queue is empty.
	Next(ctx context.Context) (task Task, ok bool, err error)
	// Len returns the number of pending tasks.
	Len(ctx context.Context) (int, error)
	Close() error
}

// LengthObserver is called with the new queue length after every change.
// It must not block.
type LengthObserver func(int)

// Option customizes a queue at construction.
type Option func(*options)

type options struct {
	observer LengthObserver
}

// WithLengthObserver installs a callback fired on every length change.
func WithLengthObserver(observer LengthObserver) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{observer: func(int) {}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open constructs the backend selected by scheduler.queue_backend. The sqlite
// backend stores its database in outDir.
func Open(ctx context.Context, cfg *config.Config, outDir string, opts ...Option) (Queue, error) {
	backend := config.QueueBackendMemory
	if cfg != nil {
		backend = cfg.Scheduler.QueueBackend
	}
	switch backend {
	case config.QueueBackendMemory, "":
		return NewMemoryQueue(opts...), nil
	case config.QueueBackendSQLite:
		return OpenStore(ctx, filepath.Join(outDir, DatabaseName), opts...)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", backend)
	}
}
