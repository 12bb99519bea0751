package downloader

import (
	"context"
	"sync/atomic"
	"time"
)

// jobQueue is the only structure shared across workers. A job is owned by
// exactly one worker between dequeue and its terminal report or requeue. The
// channel is sized for the whole plan, so requeues never block; the pending
// countdown closes it once every job has reached a terminal state.
type jobQueue struct {
	jobs    chan *Job
	pending atomic.Int64
}

func newJobQueue(jobs []*Job) *jobQueue {
	q := &jobQueue{jobs: make(chan *Job, len(jobs))}
	q.pending.Store(int64(len(jobs)))

	for _, job := range jobs {
		q.jobs <- job
	}

	return q
}

// terminal marks one job as done and reports whether it was the last one.
// The last terminal job closes the queue, which is what lets idle workers
// drain out.
func (q *jobQueue) terminal() bool {
	if q.pending.Add(-1) == 0 {
		close(q.jobs)

		return true
	}

	return false
}

// requeue makes the job eligible for redelivery after delay. A retried
// window may therefore complete later than windows queued after it; output
// is keyed by window identity, so ordering does not matter. On cancellation
// the job is abandoned un-reported: the run is returning ctx.Err() anyway.
func (q *jobQueue) requeue(ctx context.Context, job *Job, delay time.Duration) {
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
		case <-timer.C:
			q.jobs <- job
		}
	}()
}
