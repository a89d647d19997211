package worker

import (
	"context"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

type arrivalController interface {
	Wait(ctx context.Context) error
}

func newArrivalController(opt Options) arrivalController {
	if opt.Arrival == ArrivalPoisson && opt.RatePerSecond > 0 {
		sampler := opt.PoissonSampler
		if sampler == nil {
			sampler = rand.New(rand.NewSource(opt.RandomSeed)).ExpFloat64
		}
		return &poissonArrival{rate: opt.RatePerSecond, sample: sampler}
	}
	return &uniformArrival{limiter: opt.LimiterFactory(opt.RatePerSecond)}
}

func burstFor(rps float64) int {
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}
	return burst
}

// uniformArrival spaces batches evenly with a token bucket.
type uniformArrival struct {
	limiter *rate.Limiter
}

func (u *uniformArrival) Wait(ctx context.Context) error {
	if u.limiter == nil {
		return nil
	}
	return u.limiter.Wait(ctx)
}

// poissonArrival draws exponential gaps. It is only used from the single
// scheduler goroutine, so sample needs no locking.
type poissonArrival struct {
	rate   float64
	sample func() float64
}

func (p *poissonArrival) Wait(ctx context.Context) error {
	delay := p.nextDelay()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *poissonArrival) nextDelay() time.Duration {
	if p.rate <= 0 || p.sample == nil {
		return 0
	}
	delay := float64(time.Second) * p.sample() / p.rate
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
