package registry_test

import (
	"sync"
	"testing"

	"github.com/torosent/benchhub/internal/registry"
)

func TestRegisterLookupRemove(t *testing.T) {
	r := registry.New()
	id := r.Register(registry.ClientConfig{StorageName: "s3", Writers: 2, MaxConnections: 2})
	if id == "" {
		t.Fatal("expected a non-empty id")
	}

	cfg, ok := r.Lookup(id)
	if !ok {
		t.Fatal("expected registered id to be found")
	}
	if cfg.StorageName != "s3" || cfg.Writers != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.RegisteredAt.IsZero() {
		t.Fatal("expected registration time to be stamped")
	}

	if _, ok := r.Remove(id); !ok {
		t.Fatal("expected remove to report the entry")
	}
	if _, ok := r.Lookup(id); ok {
		t.Fatal("removed id must not be found")
	}
	if _, ok := r.Remove(id); ok {
		t.Fatal("second remove must report missing")
	}
}

func TestRegisterIDsAreUniqueUnderConcurrency(t *testing.T) {
	r := registry.New()
	const workers, perWorker = 16, 250

	ids := make(chan registry.ClientID, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ids <- r.Register(registry.ClientConfig{StorageName: "mem"})
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[registry.ClientID]struct{}, workers*perWorker)
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
	if r.Len() != workers*perWorker {
		t.Fatalf("expected %d clients, got %d", workers*perWorker, r.Len())
	}
}

func TestTotalsAndList(t *testing.T) {
	r := registry.New()
	a := r.Register(registry.ClientConfig{StorageName: "a", Readers: 1, Writers: 3})
	b := r.Register(registry.ClientConfig{StorageName: "b", Readers: 4})

	totals := r.Totals()
	if totals.Clients != 2 || totals.Readers != 5 || totals.Writers != 3 {
		t.Fatalf("unexpected totals %+v", totals)
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	if list[0].ID != a || list[1].ID != b {
		t.Fatalf("expected registration order [%s %s], got [%s %s]", a, b, list[0].ID, list[1].ID)
	}

	r.Remove(a)
	if got := r.Totals(); got.Readers != 4 || got.Writers != 0 {
		t.Fatalf("unexpected totals after remove %+v", got)
	}
}
