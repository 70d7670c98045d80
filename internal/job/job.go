package job

import (
	"context"
	"time"
)

// Job is a unit of deferred work. Concrete types embed Base for the
// attempt bookkeeping and implement Handle and Failed.
type Job interface {
	// Name identifies the job type; it keys deserialization.
	Name() string

	// Payload returns the fields the job was constructed with.
	Payload() map[string]any

	Attempts() int
	SetAttempts(n int)
	MaxAttempts() int

	// RetryDelay is how long the job stays invisible after a failed
	// attempt, before it may be popped again.
	RetryDelay() time.Duration

	// Handle performs the work. A nil return completes the job; any
	// error is treated as transient and retried until MaxAttempts.
	Handle(ctx context.Context) error

	// Failed runs exactly once, after the final attempt is exhausted.
	// It must not be relied on to return: the worker guards it.
	Failed(ctx context.Context, jobErr error)
}

// Base carries the retry policy shared by all job types.
type Base struct {
	attempts    int
	maxAttempts int
	retryDelay  time.Duration
}

func NewBase(maxAttempts int, retryDelay time.Duration) Base {
	return Base{
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

func (b *Base) Attempts() int { return b.attempts }

func (b *Base) SetAttempts(n int) { b.attempts = n }

func (b *Base) MaxAttempts() int { return b.maxAttempts }

func (b *Base) RetryDelay() time.Duration { return b.retryDelay }

// setPolicy restores the stored retry policy on decode, so a blob
// written under an older default round-trips unchanged.
func (b *Base) setPolicy(maxAttempts int, retryDelay time.Duration) {
	b.maxAttempts = maxAttempts
	b.retryDelay = retryDelay
}
