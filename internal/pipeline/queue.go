package pipeline

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned by Send when the queue is at capacity.
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueClosed is returned by Send and Receive once the queue is closed.
	ErrQueueClosed = errors.New("queue is closed")
)

// Queue is a bounded FIFO of pending jobs. Any number of goroutines may
// send; a single worker receives. Jobs come out in the order they went in.
type Queue struct {
	jobs chan Job
	done chan struct{}
	once sync.Once
}

// NewQueue creates a queue holding at most capacity jobs.
func NewQueue(capacity int) *Queue {
	return &Queue{
		jobs: make(chan Job, capacity),
		done: make(chan struct{}),
	}
}

// Send enqueues a job without blocking. A full queue rejects the job with
// ErrQueueFull; the caller decides what that means. Send never panics,
// even on a closed queue.
func (q *Queue) Send(job Job) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrQueueClosed
	default:
		return ErrQueueFull
	}
}

// Receive blocks until a job arrives, the queue closes, or the context is
// cancelled. A closed queue is the receiver's signal to stop for good:
// jobs still buffered at that point are not delivered.
func (q *Queue) Receive(ctx context.Context) (Job, error) {
	// Shutdown wins over buffered work.
	select {
	case <-q.done:
		return Job{}, ErrQueueClosed
	case <-ctx.Done():
		return Job{}, ctx.Err()
	default:
	}

	select {
	case job := <-q.jobs:
		return job, nil
	case <-q.done:
		return Job{}, ErrQueueClosed
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Close marks the queue closed. Safe to call more than once. Jobs still
// buffered are abandoned; Len reports how many.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.done)
	})
}

// Len reports how many jobs are waiting.
func (q *Queue) Len() int {
	return len(q.jobs)
}
