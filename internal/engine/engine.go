// Package engine merges sample batches from many producers into rolling
// windows.
//
// Producers hand batches to [Engine.Enqueue], which never blocks longer than
// the configured enqueue timeout. A single consumer goroutine owns the active
// window: it waits for batches with a bounded timed receive, merges whatever
// is available, and flushes the window to the reporter every flush interval
// whether or not traffic arrived.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/benchhub/internal/errdefs"
	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/reporter"
)

const (
	defaultIdleInterval = 100 * time.Millisecond
	shutdownPoll        = time.Millisecond
)

// Config controls queue bounds and flush cadence.
type Config struct {
	QueueEntries   int           // maximum queued batches (>= 1)
	QueueBytes     int64         // maximum queued payload bytes (0 means unlimited)
	FlushInterval  time.Duration // window length
	IdleInterval   time.Duration // longest single wait for a batch (0 means min(FlushInterval, 100ms))
	EnqueueTimeout time.Duration // how long Enqueue may wait for a free slot (0 means fail fast)
	Window         metrics.WindowConfig
}

// Validate reports every problem with c.
func (c Config) Validate() error {
	switch {
	case c.QueueEntries < 1:
		return fmt.Errorf("queue entries must be >= 1, got %d", c.QueueEntries)
	case c.QueueBytes < 0:
		return fmt.Errorf("queue bytes must be >= 0, got %d", c.QueueBytes)
	case c.FlushInterval <= 0:
		return fmt.Errorf("flush interval must be > 0, got %s", c.FlushInterval)
	case c.IdleInterval < 0:
		return fmt.Errorf("idle interval must be >= 0, got %s", c.IdleInterval)
	case c.EnqueueTimeout < 0:
		return fmt.Errorf("enqueue timeout must be >= 0, got %s", c.EnqueueTimeout)
	}
	return c.Window.Validate()
}

func (c Config) idleInterval() time.Duration {
	if c.IdleInterval > 0 {
		return c.IdleInterval
	}
	if c.FlushInterval < defaultIdleInterval {
		return c.FlushInterval
	}
	return defaultIdleInterval
}

// Engine is the bounded multi-producer, single-consumer aggregation loop.
type Engine struct {
	cfg      Config
	reporter reporter.Reporter
	log      *zap.Logger
	idle     time.Duration

	queue        chan metrics.SampleBatch
	pendingBytes atomic.Int64
	rejected     atomic.Int64
	inflight     atomic.Int64
	stopping     atomic.Bool
	flushes      atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}

	// Owned by the consumer goroutine once started.
	window *metrics.Window
	totals *metrics.Window
}

// New validates cfg and allocates the window histograms. An error here is
// fatal for the server: it happens before any traffic is accepted.
func New(cfg Config, rep reporter.Reporter, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if rep == nil {
		rep = reporter.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now()
	window, err := metrics.NewWindow(cfg.Window, now)
	if err != nil {
		return nil, err
	}
	totals, err := metrics.NewWindow(cfg.Window, now)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		reporter: rep,
		log:      logger.Named("engine"),
		idle:     cfg.idleInterval(),
		queue:    make(chan metrics.SampleBatch, cfg.QueueEntries),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		window:   window,
		totals:   totals,
	}, nil
}

// Enqueue hands b to the consumer without waiting for it to be merged.
//
// It fails with errdefs.ErrMalformed for batches that cannot be merged,
// errdefs.ErrBackpressure when the queue is full (immediately, or after
// EnqueueTimeout when one is configured) and errdefs.ErrShuttingDown once
// Stop has been called.
func (e *Engine) Enqueue(ctx context.Context, b metrics.SampleBatch) error {
	if err := b.Validate(); err != nil {
		e.rejected.Add(1)
		return err
	}
	size := b.PayloadSize()
	if e.cfg.QueueBytes > 0 && size > e.cfg.QueueBytes {
		e.rejected.Add(1)
		return fmt.Errorf("%w: batch of %d bytes exceeds queue limit of %d", errdefs.ErrMalformed, size, e.cfg.QueueBytes)
	}

	// Stop waits for inflight to reach zero after setting stopping, so a
	// producer that gets past this check always finishes before the drain.
	e.inflight.Add(1)
	defer e.inflight.Add(-1)
	if e.stopping.Load() {
		return errdefs.ErrShuttingDown
	}

	if !e.reserve(size) {
		return fmt.Errorf("%w: %d bytes queued", errdefs.ErrBackpressure, e.pendingBytes.Load())
	}

	select {
	case e.queue <- b:
		return nil
	default:
	}
	if e.cfg.EnqueueTimeout <= 0 {
		e.pendingBytes.Add(-size)
		return fmt.Errorf("%w: %d entries queued", errdefs.ErrBackpressure, len(e.queue))
	}

	timer := time.NewTimer(e.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case e.queue <- b:
		return nil
	case <-timer.C:
		e.pendingBytes.Add(-size)
		return fmt.Errorf("%w: no slot within %s", errdefs.ErrBackpressure, e.cfg.EnqueueTimeout)
	case <-e.stopCh:
		e.pendingBytes.Add(-size)
		return errdefs.ErrShuttingDown
	case <-ctx.Done():
		e.pendingBytes.Add(-size)
		return ctx.Err()
	}
}

func (e *Engine) reserve(size int64) bool {
	if e.cfg.QueueBytes <= 0 {
		e.pendingBytes.Add(size)
		return true
	}
	for {
		cur := e.pendingBytes.Load()
		if cur+size > e.cfg.QueueBytes {
			return false
		}
		if e.pendingBytes.CompareAndSwap(cur, cur+size) {
			return true
		}
	}
}

// Start launches the consumer goroutine. Cancelling ctx has the same effect
// as calling Stop. Calling Start more than once is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		now := time.Now()
		e.window.Reset(now)
		e.totals.Reset(now)
		go e.run(ctx)
	})
}

// Stop refuses new batches, waits for the consumer to drain everything
// already queued, report the final window and the cumulative totals, and
// exit. It returns early with ctx's error if ctx ends first; the drain still
// completes in the background.
func (e *Engine) Stop(ctx context.Context) error {
	e.requestStop()
	// A never-started engine still owes its queued batches and totals.
	e.Start(context.Background())

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) requestStop() {
	e.stopOnce.Do(func() {
		e.stopping.Store(true)
		close(e.stopCh)
	})
}

// Done is closed after the totals have been reported.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Reject counts a batch that was refused before reaching Enqueue, such as
// one that could not be decoded off the wire.
func (e *Engine) Reject() { e.rejected.Add(1) }

// Depth returns the number of queued batches.
func (e *Engine) Depth() int { return len(e.queue) }

// PendingBytes returns the payload bytes currently queued.
func (e *Engine) PendingBytes() int64 { return e.pendingBytes.Load() }

// Flushes returns how many windows have been flushed.
func (e *Engine) Flushes() int64 { return e.flushes.Load() }

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	timer := time.NewTimer(e.idle)
	defer timer.Stop()

	nextFlush := e.window.Start().Add(e.cfg.FlushInterval)
	for {
		wait := e.idle
		if until := time.Until(nextFlush); until < wait {
			wait = until
		}
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)

		select {
		case b := <-e.queue:
			e.merge(b)
			e.drainAvailable()
		case <-timer.C:
		case <-e.stopCh:
			e.shutdown()
			return
		case <-ctx.Done():
			e.requestStop()
			e.shutdown()
			return
		}

		if now := time.Now(); !now.Before(nextFlush) {
			e.flush(now)
			nextFlush = nextFlush.Add(e.cfg.FlushInterval)
			if nextFlush.Before(now) {
				// The consumer fell more than a whole interval behind;
				// skip the missed ticks instead of flushing empty windows
				// back to back.
				nextFlush = now.Add(e.cfg.FlushInterval)
			}
		}
	}
}

// drainAvailable merges every batch that is already queued, without waiting.
func (e *Engine) drainAvailable() {
	for {
		select {
		case b := <-e.queue:
			e.merge(b)
		default:
			return
		}
	}
}

func (e *Engine) merge(b metrics.SampleBatch) {
	e.pendingBytes.Add(-b.PayloadSize())
	if dropped := e.window.Merge(b); dropped > 0 {
		e.log.Warn("discarded overflowing values from batch",
			zap.Int("dropped", dropped),
			zap.Int64("write_count", b.WriteCount),
			zap.Int64("write_bytes", b.WriteBytes),
			zap.Int64("read_count", b.ReadCount),
			zap.Int64("read_bytes", b.ReadBytes),
		)
	}
}

func (e *Engine) flush(now time.Time) {
	e.window.AddRejected(e.rejected.Swap(0))
	stats := e.window.Stats(now)
	e.reporter.ReportWindow(stats)
	e.fold(now)
	e.flushes.Add(1)

	e.log.Debug("flushed window",
		zap.Int64("batches", stats.Batches),
		zap.Int64("records", stats.Records()),
		zap.Int64("bytes", stats.Bytes()),
		zap.Duration("duration", stats.Duration),
	)
}

// fold moves the active window into the totals and reopens it.
func (e *Engine) fold(now time.Time) {
	if dropped := e.totals.Absorb(e.window); dropped > 0 {
		e.log.Warn("cumulative totals overflowed", zap.Int("dropped", dropped))
	}
	e.window.Reset(now)
}

func (e *Engine) shutdown() {
	for {
		e.drainAvailable()
		if e.inflight.Load() == 0 && len(e.queue) == 0 {
			break
		}
		select {
		case b := <-e.queue:
			e.merge(b)
		case <-time.After(shutdownPoll):
		}
	}

	now := time.Now()
	e.window.AddRejected(e.rejected.Swap(0))
	if e.window.Active() {
		e.reporter.ReportWindow(e.window.Stats(now))
		e.flushes.Add(1)
	}
	e.fold(now)

	totals := e.totals.Stats(now)
	e.reporter.ReportTotals(totals)
	e.log.Info("aggregation stopped",
		zap.Int64("batches", totals.Batches),
		zap.Int64("records", totals.Records()),
		zap.Int64("bytes", totals.Bytes()),
		zap.Int64("rejected", totals.Rejected),
	)
}
