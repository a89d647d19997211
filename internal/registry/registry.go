// Package registry tracks registered benchmark clients.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ClientID identifies one registered producer session.
type ClientID string

// ClientConfig is the configuration a client negotiated at registration.
// It is never mutated after Register returns.
type ClientConfig struct {
	StorageName    string    `json:"storage_name"`
	Readers        int       `json:"readers"`
	Writers        int       `json:"writers"`
	MaxConnections int       `json:"max_connections"`
	RegisteredAt   time.Time `json:"registered_at"`
}

// Entry is a registered client as returned by List.
type Entry struct {
	ID     ClientID
	Config ClientConfig
}

// Totals sums the requested readers and writers of all registered clients.
type Totals struct {
	Clients int
	Readers int
	Writers int
}

// Registry issues client ids and stores their configuration.
type Registry struct {
	mu      sync.RWMutex
	clients map[ClientID]ClientConfig
	now     func() time.Time
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		clients: make(map[ClientID]ClientConfig),
		now:     time.Now,
	}
}

// Register stores cfg under a fresh id. Ids are ULIDs from a process-wide
// monotonic source, so they never repeat.
func (r *Registry) Register(cfg ClientConfig) ClientID {
	if cfg.RegisteredAt.IsZero() {
		cfg.RegisteredAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := ClientID(ulid.Make().String())
	for {
		if _, taken := r.clients[id]; !taken {
			break
		}
		id = ClientID(ulid.Make().String())
	}
	r.clients[id] = cfg
	return id
}

// Lookup returns the configuration stored for id.
func (r *Registry) Lookup(id ClientID) (ClientConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.clients[id]
	return cfg, ok
}

// Remove deletes id and returns the configuration it held.
func (r *Registry) Remove(id ClientID) (ClientConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	return cfg, ok
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Totals returns the summed reader/writer requests of all clients.
func (r *Registry) Totals() Totals {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := Totals{Clients: len(r.clients)}
	for _, cfg := range r.clients {
		t.Readers += cfg.Readers
		t.Writers += cfg.Writers
	}
	return t
}

// List returns all entries ordered by registration time, oldest first.
// Policies such as stale-client expiry can be built on List and Remove.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.clients))
	for id, cfg := range r.clients {
		entries = append(entries, Entry{ID: id, Config: cfg})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Config.RegisteredAt.Equal(entries[j].Config.RegisteredAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Config.RegisteredAt.Before(entries[j].Config.RegisteredAt)
	})
	return entries
}
