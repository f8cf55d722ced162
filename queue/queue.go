// Package queue provides a single-concurrency job queue.
//
// A buffered channel is the queue: it is FIFO, goroutine-safe and blocks when
// full, so the capacity doubles as a high-water mark. One worker goroutine
// drains it, which means at most one job ever runs at a time.
//
//	caller A ──Do──┐
//	caller B ──Do──┼──→ [ jobs chan ] ──→ worker ──→ fn(ctx) one at a time
//	caller C ──Do──┘
package queue

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("queue closed")

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error // buffered, so the worker never blocks on an abandoned caller
}

// Queue runs submitted jobs one at a time in submission order.
type Queue struct {
	jobs      chan *job
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New creates a queue holding up to capacity waiting jobs and starts its worker.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{
		jobs:    make(chan *job, capacity),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go q.worker()
	return q
}

// Do enqueues fn and waits until it has run.
//
// If ctx is done while the job is still waiting, the job is skipped. If ctx is
// done while fn runs, Do returns ctx.Err() right away; fn receives the same ctx
// and is expected to abort on its own.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case <-q.quit:
		return ErrClosed
	default:
	}

	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.quit:
		return ErrClosed
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stopped:
		select {
		case err := <-j.done:
			return err
		default:
			return ErrClosed
		}
	}
}

// Len returns the number of jobs waiting for their turn. The running job is not counted.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Close stops the worker after the running job and fails every waiting job with ErrClosed.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.quit)
	})
	<-q.stopped
}

func (q *Queue) worker() {
	defer close(q.stopped)
	for {
		// quit has priority over pending work
		select {
		case <-q.quit:
			q.drain()
			return
		default:
		}

		select {
		case j := <-q.jobs:
			// select picks at random when both are ready
			select {
			case <-q.quit:
				j.done <- ErrClosed
				q.drain()
				return
			default:
			}
			if err := j.ctx.Err(); err != nil {
				j.done <- err
				continue
			}
			j.done <- j.fn(j.ctx)
		case <-q.quit:
			q.drain()
			return
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case j := <-q.jobs:
			j.done <- ErrClosed
		default:
			return
		}
	}
}
