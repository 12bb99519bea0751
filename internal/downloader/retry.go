package downloader

import (
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/reolink-tools/daygrab/internal/nvr"
)

const (
	// DefaultMaxAttempts bounds every job, overload failures included: a
	// window that keeps failing must surface in the report, not spin forever.
	DefaultMaxAttempts = 3

	defaultInitialBackoff  = 2 * time.Second
	overloadInitialBackoff = 5 * time.Second
	maxBackoffInterval     = 60 * time.Second
	backoffMultiplier      = 1.6
)

// Decision is the outcome of classifying a failed job.
type Decision struct {
	Requeue bool
	Delay   time.Duration
}

// RetryPolicy decides, per failed job, whether and when to re-enqueue it.
// Overload responses are expected under parallel load and get a slower
// backoff curve; everything transient or not shares the same attempt ceiling.
type RetryPolicy struct {
	MaxAttempts int

	initialInterval  time.Duration
	overloadInterval time.Duration
	maxInterval      time.Duration
}

func NewRetryPolicy(maxAttempts int) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &RetryPolicy{
		MaxAttempts:      maxAttempts,
		initialInterval:  defaultInitialBackoff,
		overloadInterval: overloadInitialBackoff,
		maxInterval:      maxBackoffInterval,
	}
}

// OnFailure records err against the job and returns the scheduling decision.
// The job's attempt counter must already reflect the failed attempt.
func (p *RetryPolicy) OnFailure(job *Job, err error) Decision {
	job.LastErr = err

	if job.Attempts >= p.MaxAttempts {
		return Decision{}
	}

	if job.backoff == nil {
		job.backoff = p.newBackOff(err)
	}

	return Decision{Requeue: true, Delay: job.backoff.NextBackOff()}
}

func (p *RetryPolicy) newBackOff(err error) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initialInterval
	bo.Multiplier = backoffMultiplier
	bo.MaxInterval = p.maxInterval

	if nvr.IsTransient(err) {
		bo.InitialInterval = p.overloadInterval
	}

	bo.Reset()

	return bo
}
