package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/torosent/benchhub/internal/errdefs"
	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/registry"
	"github.com/torosent/benchhub/internal/worker"
)

type fakeAPI struct {
	registered  []registry.ClientConfig
	closed      []registry.ClientID
	submitted   map[registry.ClientID]int
	registerErr error
}

func (f *fakeAPI) RegisterClient(_ context.Context, cfg registry.ClientConfig) (registry.ClientID, error) {
	if f.registerErr != nil {
		return "", f.registerErr
	}
	f.registered = append(f.registered, cfg)
	return "client-1", nil
}

func (f *fakeAPI) CloseClient(_ context.Context, id registry.ClientID) error {
	for _, c := range f.closed {
		if c == id {
			return errdefs.ErrUnknownClient
		}
	}
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeAPI) SubmitSamples(_ context.Context, id registry.ClientID, _ metrics.SampleBatch) error {
	if f.submitted == nil {
		f.submitted = map[registry.ClientID]int{}
	}
	f.submitted[id]++
	return nil
}

func TestSessionLifecycle(t *testing.T) {
	api := &fakeAPI{}
	ctx := context.Background()

	sess, err := worker.Open(ctx, api, registry.ClientConfig{StorageName: "s3", Writers: 2})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if sess.ID() != "client-1" || sess.Config().Writers != 2 {
		t.Fatalf("unexpected session %s %+v", sess.ID(), sess.Config())
	}

	for i := 0; i < 3; i++ {
		if err := sess.Submit(ctx, metrics.SampleBatch{WriteCount: 1}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	if api.submitted["client-1"] != 3 {
		t.Errorf("submitted %d batches, want 3", api.submitted["client-1"])
	}

	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sess.Close(ctx); err != nil {
		t.Errorf("second Close() should be a no-op, got %v", err)
	}
	if len(api.closed) != 1 {
		t.Errorf("CloseClient called %d times, want 1", len(api.closed))
	}
}

func TestOpenWrapsRegistrationError(t *testing.T) {
	api := &fakeAPI{registerErr: errdefs.ErrAdmissionDenied}
	_, err := worker.Open(context.Background(), api, registry.ClientConfig{StorageName: "file"})
	if !errors.Is(err, errdefs.ErrAdmissionDenied) {
		t.Fatalf("expected ErrAdmissionDenied, got %v", err)
	}
}
