package worker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/benchhub/internal/errdefs"
	"github.com/torosent/benchhub/internal/metrics"
)

const (
	baseRetryDelay = 50 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including the first
	Delay       time.Duration                              // fixed delay, used when DelayFunc is nil
	ShouldRetry func(error) bool                           // nil retries every error
	DelayFunc   func(attempt int, err error) time.Duration // attempt is 1-based
}

// BackpressurePolicy retries batches the server refused because its queue
// was full, with exponential backoff and jitter. Every other error is final:
// a malformed batch stays malformed, and an unknown client or a server that
// is shutting down will not recover by waiting.
func BackpressurePolicy(retries int) RetryPolicy {
	jitter := &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
	return RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: func(err error) bool {
			return errors.Is(err, errdefs.ErrBackpressure)
		},
		DelayFunc: func(attempt int, _ error) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			backoff := baseRetryDelay << uint(min(attempt-1, 16))
			if backoff > maxRetryDelay {
				backoff = maxRetryDelay
			}
			return backoff + jitter.jitter(backoff/2)
		},
	}
}

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}

// RetryingSubmitter is a Submitter that retries according to a policy.
type RetryingSubmitter struct {
	inner   Submitter
	policy  RetryPolicy
	retries atomic.Int64
}

// WithRetry wraps s with retry logic.
func WithRetry(s Submitter, policy RetryPolicy) *RetryingSubmitter {
	return &RetryingSubmitter{inner: s, policy: policy}
}

// Retries returns how many extra attempts have been made.
func (r *RetryingSubmitter) Retries() int64 { return r.retries.Load() }

func (r *RetryingSubmitter) Submit(ctx context.Context, batch metrics.SampleBatch) error {
	attempts := max(r.policy.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > 1 {
			r.retries.Add(1)
		}
		lastErr = r.inner.Submit(ctx, batch)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if r.policy.ShouldRetry != nil && !r.policy.ShouldRetry(lastErr) {
			return lastErr
		}

		delay := r.policy.Delay
		if r.policy.DelayFunc != nil {
			delay = r.policy.DelayFunc(attempt, lastErr)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	return lastErr
}
