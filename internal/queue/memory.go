package queue

import (
	"context"
	"sync"

	"github.com/ef-ds/deque"
)

// MemoryQueue is an unbounded in-process FIFO.
type MemoryQueue struct {
	mu       sync.Mutex
	tasks    deque.Deque
	observer LengthObserver
}

// NewMemoryQueue returns an empty queue.
func NewMemoryQueue(opts ...Option) *MemoryQueue {
	o := buildOptions(opts)
	return &MemoryQueue{observer: o.observer}
}

// Enqueue appends task to the tail.
func (q *MemoryQueue) Enqueue(_ context.Context, task Task) error {
	if !task.Kind.Valid() {
		return ErrInvalidTask
	}
	q.mu.Lock()
	q.tasks.PushBack(task)
	length := q.tasks.Len()
	q.mu.Unlock()

	q.observer(length)
	return nil
}

// Next removes and returns the head task.
func (q *MemoryQueue) Next(_ context.Context) (Task, bool, error) {
	q.mu.Lock()
	head, ok := q.tasks.PopFront()
	length := q.tasks.Len()
	q.mu.Unlock()

	if !ok {
		return Task{}, false, nil
	}
	q.observer(length)
	return head.(Task), true, nil
}

// Len returns the number of pending tasks.
func (q *MemoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len(), nil
}

// Close is a no-op.
func (q *MemoryQueue) Close() error {
	return nil
}
