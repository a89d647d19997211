// Package admission provides capacity-gated connection counters.
//
// A Counter is a lock-free gate: Increment admits a caller only while the
// count is below the ceiling, Decrement releases a slot. Each subsystem owns
// its own Counter; the ingestion service and the metrics server never share
// one.
package admission

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/torosent/benchhub/internal/errdefs"
)

// ZeroPolicy decides what a ceiling of zero means.
type ZeroPolicy string

const (
	// ZeroRejects treats a zero ceiling literally: nobody is admitted.
	ZeroRejects ZeroPolicy = "reject"
	// ZeroUnlimited treats a zero ceiling as "no ceiling".
	ZeroUnlimited ZeroPolicy = "unlimited"
)

// ParseZeroPolicy parses a policy name. The empty string selects ZeroRejects.
func ParseZeroPolicy(s string) (ZeroPolicy, error) {
	switch ZeroPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ZeroRejects:
		return ZeroRejects, nil
	case ZeroUnlimited:
		return ZeroUnlimited, nil
	default:
		return "", fmt.Errorf("zero ceiling policy must be %q or %q, got %q", ZeroRejects, ZeroUnlimited, s)
	}
}

// Gate is the capability the service and metrics server depend on.
type Gate interface {
	Increment() (int64, error)
	Decrement() int64
	Count() int64
}

// Counter is an atomic connection counter with a capacity ceiling.
type Counter struct {
	name       string
	ceiling    int64
	unlimited  bool
	count      atomic.Int64
	underflows atomic.Int64
}

var _ Gate = (*Counter)(nil)

// New creates a Counter. A negative ceiling is treated as zero.
func New(name string, ceiling int64, policy ZeroPolicy) *Counter {
	if ceiling < 0 {
		ceiling = 0
	}
	return &Counter{
		name:      name,
		ceiling:   ceiling,
		unlimited: ceiling == 0 && policy == ZeroUnlimited,
	}
}

// Increment admits one more connection and returns the new count. It fails
// with errdefs.ErrAdmissionDenied when the ceiling is already reached. The
// check and the commit happen in a single compare-and-swap.
func (c *Counter) Increment() (int64, error) {
	for {
		cur := c.count.Load()
		if !c.unlimited && cur >= c.ceiling {
			return cur, fmt.Errorf("%s: %d/%d: %w", c.name, cur, c.ceiling, errdefs.ErrAdmissionDenied)
		}
		if c.count.CompareAndSwap(cur, cur+1) {
			return cur + 1, nil
		}
	}
}

// Decrement releases one connection and returns the new count. It never goes
// below zero; an attempt to do so is recorded in Underflows.
func (c *Counter) Decrement() int64 {
	for {
		cur := c.count.Load()
		if cur <= 0 {
			c.underflows.Add(1)
			return 0
		}
		if c.count.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

// Count returns the current number of admitted connections.
func (c *Counter) Count() int64 { return c.count.Load() }

// Ceiling returns the configured ceiling and whether it is enforced.
func (c *Counter) Ceiling() (int64, bool) { return c.ceiling, !c.unlimited }

// Underflows returns how many Decrement calls found the counter at zero.
func (c *Counter) Underflows() int64 { return c.underflows.Load() }

// Name returns the label given at construction.
func (c *Counter) Name() string { return c.name }
