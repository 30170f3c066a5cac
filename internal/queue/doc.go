// Package queue holds the run's global task FIFO.
//
// A Task is a (kind, id) pair. Producers (extraction, carve preparation, carve
// modules) append with Enqueue; the scheduler drain loop is the only consumer
// and takes the head with Next. A dequeued task is gone: there is no
// acknowledgement, requeue, or second delivery. An empty queue is terminal for
// the batch.
//
// Two backends satisfy Queue. MemoryQueue keeps tasks in a deque for the life
// of the process. Store keeps them in a SQLite file inside the case output
// directory so the pending work survives inspection after a crash; claiming a
// task deletes its row in the same transaction that reads it.
package queue
