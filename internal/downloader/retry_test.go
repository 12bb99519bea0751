package downloader

import (
	"errors"
	"testing"
	"time"

	"github.com/reolink-tools/daygrab/internal/nvr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_AttemptBound(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(3)
	job := &Job{}
	failure := errors.New("stream reset")

	for attempt := 1; attempt < 3; attempt++ {
		job.Attempts = attempt

		decision := policy.OnFailure(job, failure)
		assert.True(t, decision.Requeue, "attempt %d should be retried", attempt)
		assert.Greater(t, decision.Delay, time.Duration(0))
	}

	job.Attempts = 3

	decision := policy.OnFailure(job, failure)
	assert.False(t, decision.Requeue, "attempt ceiling must be final")
	assert.Equal(t, failure, job.LastErr)
}

func TestRetryPolicy_OverloadBoundLikeAnyOther(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(2)
	job := &Job{Attempts: 2}

	decision := policy.OnFailure(job, &nvr.OverloadError{StatusCode: 503})
	assert.False(t, decision.Requeue, "overload shares the same attempt ceiling")
}

func TestRetryPolicy_OverloadBacksOffSlower(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(5)

	overloaded := &Job{Attempts: 1}
	overloadDecision := policy.OnFailure(overloaded, &nvr.OverloadError{StatusCode: 503})
	require.True(t, overloadDecision.Requeue)

	broken := &Job{Attempts: 1}
	defaultDecision := policy.OnFailure(broken, errors.New("connection reset"))
	require.True(t, defaultDecision.Requeue)

	// Both intervals carry jitter, so compare against each curve's own
	// jitter bounds instead of against each other.
	assert.GreaterOrEqual(t, overloadDecision.Delay, overloadInitialBackoff/2)
	assert.LessOrEqual(t, defaultDecision.Delay, defaultInitialBackoff*3/2)
}

func TestRetryPolicy_DelayGrowsAcrossAttempts(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(10)
	job := &Job{}

	var previous time.Duration

	for attempt := 1; attempt <= 5; attempt++ {
		job.Attempts = attempt

		decision := policy.OnFailure(job, errors.New("timeout"))
		require.True(t, decision.Requeue)

		if attempt > 2 {
			// Jitter can shuffle adjacent intervals; after a couple of
			// doublings the trend has to be upward.
			assert.Greater(t, decision.Delay, previous/2)
		}

		previous = decision.Delay
	}
}

func TestNewRetryPolicy_DefaultsInvalidAttempts(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(0)
	assert.Equal(t, DefaultMaxAttempts, policy.MaxAttempts)

	policy = NewRetryPolicy(-4)
	assert.Equal(t, DefaultMaxAttempts, policy.MaxAttempts)
}
