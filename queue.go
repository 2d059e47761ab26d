package rxdb

import (
	"context"
	"log/slog"
	"sync"
)

// queueJob carries one locked operation through the worker.
type queueJob struct {
	ctx  context.Context
	op   func(ctx context.Context) error
	done chan error
}

// execQueue serializes a database's administrative operations. Jobs
// run strictly in submission order on a single worker goroutine, so
// two collection creations or a creation racing a destroy never
// interleave. A failing job reports its error to its own submitter
// and the queue keeps draining.
//
// Jobs must not submit further jobs to the same queue: the worker
// would be waiting on itself.
type execQueue struct {
	logger *slog.Logger

	mu      sync.Mutex
	jobs    []*queueJob
	pending int           // queued plus running
	idleCh  chan struct{} // closed while pending == 0
	closed  bool

	kick   chan struct{}
	doneCh chan struct{}
}

func newExecQueue(logger *slog.Logger) *execQueue {
	idle := make(chan struct{})
	close(idle)
	q := &execQueue{
		logger: logger,
		idleCh: idle,
		kick:   make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
	go q.worker()
	return q
}

// Run submits op and waits for its result. The op receives the
// submitter's context. When ctx expires before the op has run, Run
// returns ctx.Err() but the op still executes in its turn; callers
// that need the result must outlive their slot.
func (q *execQueue) Run(ctx context.Context, op func(ctx context.Context) error) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrDestroyed
	}
	job := &queueJob{ctx: ctx, op: op, done: make(chan error, 1)}
	if q.pending == 0 {
		q.idleCh = make(chan struct{})
	}
	q.pending++
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	q.wake()

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLocked is Run for operations that produce a value.
func runLocked[T any](ctx context.Context, q *execQueue, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	results := make(chan T, 1)
	err := q.Run(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		results <- v
		return nil
	})
	if err != nil {
		return zero, err
	}
	return <-results, nil
}

// Barrier blocks until every job submitted before the call has
// finished. On an idle queue it returns immediately.
func (q *execQueue) Barrier(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idleCh
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth reports queued plus running jobs.
func (q *execQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Close rejects new submissions, drains the jobs already accepted and
// stops the worker. Safe to call more than once.
func (q *execQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.doneCh
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.wake()
	<-q.doneCh
}

func (q *execQueue) wake() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

func (q *execQueue) worker() {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			if q.closed {
				q.mu.Unlock()
				close(q.doneCh)
				return
			}
			q.mu.Unlock()
			<-q.kick
			continue
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		err := job.op(job.ctx)
		if err != nil {
			q.logger.Debug("locked operation failed", "error", err)
		}
		job.done <- err

		q.mu.Lock()
		q.pending--
		if q.pending == 0 {
			close(q.idleCh)
		}
		q.mu.Unlock()
	}
}
