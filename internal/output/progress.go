package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Status is a point-in-time view of the ingestion side of the server.
type Status struct {
	Connections  int64
	Clients      int
	Readers      int64
	Writers      int64
	QueueDepth   int
	PendingBytes int64
	Flushes      int64
}

// StatusFunc returns the current Status. It is called from the progress
// goroutine and must be safe for concurrent use.
type StatusFunc func() Status

// ProgressReporter displays real-time ingestion status.
type ProgressReporter struct {
	status   StatusFunc
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(status StatusFunc, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		status:   status,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+formatStatus(p.status(), time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

func formatStatus(s Status, elapsed time.Duration) string {
	return fmt.Sprintf("Up: %s | Connections: %d | Clients: %d | Writers: %d | Readers: %d | Queued: %d (%d bytes) | Windows: %d",
		elapsed.Truncate(time.Second), s.Connections, s.Clients, s.Writers, s.Readers, s.QueueDepth, s.PendingBytes, s.Flushes)
}
