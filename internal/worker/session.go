package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/registry"
)

// API is the subset of the Aggregator client a session needs.
type API interface {
	RegisterClient(ctx context.Context, cfg registry.ClientConfig) (registry.ClientID, error)
	CloseClient(ctx context.Context, id registry.ClientID) error
	SubmitSamples(ctx context.Context, id registry.ClientID, batch metrics.SampleBatch) error
}

// Session is one registration with the aggregation server.
type Session struct {
	api API
	id  registry.ClientID
	cfg registry.ClientConfig

	closeOnce sync.Once
	closeErr  error
}

var _ Submitter = (*Session)(nil)

// Open registers cfg with the server.
func Open(ctx context.Context, api API, cfg registry.ClientConfig) (*Session, error) {
	id, err := api.RegisterClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("register %s client: %w", cfg.StorageName, err)
	}
	return &Session{api: api, id: id, cfg: cfg}, nil
}

// ID returns the id the server issued.
func (s *Session) ID() registry.ClientID { return s.id }

// Config returns the configuration the session registered with.
func (s *Session) Config() registry.ClientConfig { return s.cfg }

// Submit sends batch under this session's id.
func (s *Session) Submit(ctx context.Context, batch metrics.SampleBatch) error {
	return s.api.SubmitSamples(ctx, s.id, batch)
}

// Close ends the session. Later calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if err := s.api.CloseClient(ctx, s.id); err != nil {
			s.closeErr = fmt.Errorf("close client %s: %w", s.id, err)
		}
	})
	return s.closeErr
}
