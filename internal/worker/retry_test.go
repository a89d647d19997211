package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/benchhub/internal/errdefs"
	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/worker"
)

// flakySubmitter fails with err until it has been called failUntil times.
type flakySubmitter struct {
	attempts  atomic.Int64
	failUntil int64
	err       error
}

func (f *flakySubmitter) Submit(context.Context, metrics.SampleBatch) error {
	if f.attempts.Add(1) <= f.failUntil {
		return f.err
	}
	return nil
}

func TestRetryRespectsMaxAttempts(t *testing.T) {
	sub := &flakySubmitter{failUntil: 3, err: errors.New("flaky")}
	r := worker.WithRetry(sub, worker.RetryPolicy{
		MaxAttempts: 5,
		DelayFunc:   func(attempt int, _ error) time.Duration { return time.Duration(attempt) * time.Millisecond },
	})

	if err := r.Submit(context.Background(), metrics.SampleBatch{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got := sub.attempts.Load(); got != 4 {
		t.Errorf("attempts = %d, want 4", got)
	}
	if r.Retries() != 3 {
		t.Errorf("Retries() = %d, want 3", r.Retries())
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	sub := &flakySubmitter{failUntil: 100, err: errors.New("down")}
	r := worker.WithRetry(sub, worker.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond})

	if err := r.Submit(context.Background(), metrics.SampleBatch{}); err == nil {
		t.Fatal("expected an error")
	}
	if got := sub.attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestBackpressurePolicy(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantAttempts int64
		wantErr      bool
	}{
		{"backpressure is retried", fmt.Errorf("submit: %w", errdefs.ErrBackpressure), 3, false},
		{"malformed is final", errdefs.ErrMalformed, 1, true},
		{"unknown client is final", errdefs.ErrUnknownClient, 1, true},
		{"shutdown is final", errdefs.ErrShuttingDown, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &flakySubmitter{failUntil: 2, err: tt.err}
			policy := worker.BackpressurePolicy(4)
			policy.DelayFunc = nil
			policy.Delay = time.Millisecond

			err := worker.WithRetry(sub, policy).Submit(context.Background(), metrics.SampleBatch{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Submit() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := sub.attempts.Load(); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
		})
	}
}

func TestBackpressurePolicyBackoffGrows(t *testing.T) {
	policy := worker.BackpressurePolicy(10)
	if policy.MaxAttempts != 11 {
		t.Fatalf("MaxAttempts = %d, want 11", policy.MaxAttempts)
	}
	first := policy.DelayFunc(1, errdefs.ErrBackpressure)
	if first < 50*time.Millisecond || first >= 75*time.Millisecond {
		t.Errorf("first delay %s outside [50ms, 75ms)", first)
	}
	third := policy.DelayFunc(3, errdefs.ErrBackpressure)
	if third < 200*time.Millisecond || third >= 300*time.Millisecond {
		t.Errorf("third delay %s outside [200ms, 300ms)", third)
	}
	capped := policy.DelayFunc(40, errdefs.ErrBackpressure)
	if capped < 2*time.Second || capped >= 3*time.Second {
		t.Errorf("capped delay %s outside [2s, 3s)", capped)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	sub := &flakySubmitter{failUntil: 100, err: errdefs.ErrBackpressure}
	r := worker.WithRetry(sub, worker.RetryPolicy{MaxAttempts: 10, Delay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Submit(ctx, metrics.SampleBatch{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if got := sub.attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}
