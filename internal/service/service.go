// Package service implements the four ingestion operations independent of
// any wire protocol: RegisterClient, CloseClient, SubmitSamples and
// GetConfig.
//
// The service holds no mutable state of its own beyond reader/writer
// bookkeeping. Admission goes through an admission.Gate, client identity
// through the registry, and batches through the aggregation engine.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/benchhub/internal/admission"
	"github.com/torosent/benchhub/internal/errdefs"
	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/registry"
	"github.com/torosent/benchhub/internal/reporter"
)

// Enqueuer is the part of the aggregation engine the service uses.
type Enqueuer interface {
	Enqueue(ctx context.Context, batch metrics.SampleBatch) error
}

// Rejecter is implemented by engines that count batches refused before
// they could be enqueued.
type Rejecter interface {
	Reject()
}

// ConfigSnapshot is the read-only server configuration returned by GetConfig.
type ConfigSnapshot struct {
	MaxConnections     int64         `json:"max_connections"`
	ZeroPolicy         string        `json:"zero_policy"`
	QueueEntries       int           `json:"queue_entries"`
	QueueBytes         int64         `json:"queue_bytes"`
	FlushInterval      time.Duration `json:"flush_interval"`
	IdleInterval       time.Duration `json:"idle_interval"`
	EnqueueTimeout     time.Duration `json:"enqueue_timeout"`
	LatencyUnit        string        `json:"latency_unit"`
	MinLatency         int64         `json:"min_latency"`
	MaxLatency         int64         `json:"max_latency"`
	SignificantFigures int           `json:"significant_figures"`
	Percentiles        []float64     `json:"percentiles"`
	Connections        int64         `json:"connections"`
}

// Service orchestrates admission, the client registry and the engine.
type Service struct {
	gate     admission.Gate
	clients  *registry.Registry
	engine   Enqueuer
	rw       reporter.ReaderWriterSetter
	snapshot ConfigSnapshot
	log      *zap.Logger

	// Guards worker counts so the setter always sees them in order.
	mu         sync.Mutex
	readers    int64
	writers    int64
	maxReaders int64
	maxWriters int64
}

// New builds a Service. rw receives reader/writer counts whenever a client
// registers or closes; it may be nil.
func New(gate admission.Gate, clients *registry.Registry, engine Enqueuer, rw reporter.ReaderWriterSetter, snapshot ConfigSnapshot, logger *zap.Logger) *Service {
	if rw == nil {
		rw = reporter.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	snapshot.Percentiles = append([]float64(nil), snapshot.Percentiles...)
	return &Service{
		gate:     gate,
		clients:  clients,
		engine:   engine,
		rw:       rw,
		snapshot: snapshot,
		log:      logger.Named("service"),
	}
}

// RegisterClient admits a new client and returns its id.
func (s *Service) RegisterClient(_ context.Context, cfg registry.ClientConfig) (registry.ClientID, error) {
	if err := validateClientConfig(cfg); err != nil {
		return "", err
	}
	count, err := s.gate.Increment()
	if err != nil {
		s.log.Info("registration denied", zap.String("storage", cfg.StorageName), zap.Error(err))
		return "", err
	}

	id := s.clients.Register(cfg)
	s.adjustWorkers(int64(cfg.Readers), int64(cfg.Writers))
	s.log.Info("client registered",
		zap.String("client_id", string(id)),
		zap.String("storage", cfg.StorageName),
		zap.Int("readers", cfg.Readers),
		zap.Int("writers", cfg.Writers),
		zap.Int64("connections", count),
	)
	return id, nil
}

// CloseClient removes id and releases its admission slot. Closing an id
// that is unknown (or already closed) fails with errdefs.ErrUnknownClient
// and changes nothing.
func (s *Service) CloseClient(_ context.Context, id registry.ClientID) error {
	cfg, ok := s.clients.Remove(id)
	if !ok {
		return fmt.Errorf("close %q: %w", id, errdefs.ErrUnknownClient)
	}
	count := s.gate.Decrement()
	s.adjustWorkers(-int64(cfg.Readers), -int64(cfg.Writers))
	s.log.Info("client closed", zap.String("client_id", string(id)), zap.Int64("connections", count))
	return nil
}

// SubmitSamples forwards batch to the engine without waiting for the merge.
func (s *Service) SubmitSamples(ctx context.Context, id registry.ClientID, batch metrics.SampleBatch) error {
	if _, ok := s.clients.Lookup(id); !ok {
		return fmt.Errorf("submit from %q: %w", id, errdefs.ErrUnknownClient)
	}
	if err := s.engine.Enqueue(ctx, batch); err != nil {
		return fmt.Errorf("submit from %q: %w", id, err)
	}
	return nil
}

// RejectBatch records a submission whose payload could not be decoded. The
// batch counts as rejected when the engine keeps that tally. The returned
// error wraps errdefs.ErrMalformed.
func (s *Service) RejectBatch(cause error) error {
	if r, ok := s.engine.(Rejecter); ok {
		r.Reject()
	}
	s.log.Debug("rejected undecodable batch", zap.Error(cause))
	return fmt.Errorf("%w: %v", errdefs.ErrMalformed, cause)
}

// GetConfig returns the server configuration and the current connection
// count. It has no side effects.
func (s *Service) GetConfig(context.Context) ConfigSnapshot {
	snap := s.snapshot
	snap.Percentiles = append([]float64(nil), s.snapshot.Percentiles...)
	snap.Connections = s.gate.Count()
	return snap
}

// Connections returns the number of admitted clients.
func (s *Service) Connections() int64 { return s.gate.Count() }

// Clients returns the number of registry entries.
func (s *Service) Clients() int { return s.clients.Len() }

// Workers returns the active and peak reader/writer counts.
func (s *Service) Workers() (readers, maxReaders, writers, maxWriters int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readers, s.maxReaders, s.writers, s.maxWriters
}

func (s *Service) adjustWorkers(readers, writers int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers += readers
	s.writers += writers
	s.rw.SetReaders(int(s.readers))
	s.rw.SetWriters(int(s.writers))
	if s.readers > s.maxReaders {
		s.maxReaders = s.readers
		s.rw.SetMaxReaders(int(s.maxReaders))
	}
	if s.writers > s.maxWriters {
		s.maxWriters = s.writers
		s.rw.SetMaxWriters(int(s.maxWriters))
	}
}

func validateClientConfig(cfg registry.ClientConfig) error {
	var issues []string
	if cfg.Readers < 0 {
		issues = append(issues, "readers must be >= 0")
	}
	if cfg.Writers < 0 {
		issues = append(issues, "writers must be >= 0")
	}
	if cfg.MaxConnections < 0 {
		issues = append(issues, "max_connections must be >= 0")
	}
	if len(issues) > 0 {
		return fmt.Errorf("%w: %s", errdefs.ErrMalformed, strings.Join(issues, "; "))
	}
	return nil
}
