package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/absmach/flcoord/pkg/client"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/storage"
)

const DefaultLivenessTimeout = 30 * time.Second

var (
	ErrClientNotFound = pkgerrors.New("client_not_found", "client not found", pkgerrors.ErrNotFound)
	ErrEmptyClientID  = pkgerrors.New("invalid_client", "empty client id", pkgerrors.ErrValidation)
)

// ChangeKind describes what happened to a client.
type ChangeKind uint8

const (
	// Joined is reported the first time a client id is seen.
	Joined ChangeKind = iota
	// Refreshed is reported when a known client registers or heartbeats.
	Refreshed
	// WentOffline is reported when a client disconnects or misses its liveness window.
	WentOffline
)

func (k ChangeKind) String() string {
	switch k {
	case Joined:
		return "joined"
	case Refreshed:
		return "refreshed"
	case WentOffline:
		return "went_offline"
	default:
		return "unknown"
	}
}

// Observer is notified after a change has been applied. Observers run
// outside the registry lock.
type Observer func(kind ChangeKind, c client.Client)

// Registry tracks client presence and reported sample counts.
type Registry struct {
	mu        sync.RWMutex
	clients   map[string]client.Client
	observers []Observer

	repo    storage.ClientRepository
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Registry)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func New(repo storage.ClientRepository, timeout time.Duration, logger *slog.Logger, opts ...Option) *Registry {
	if timeout <= 0 {
		timeout = DefaultLivenessTimeout
	}
	r := &Registry{
		clients: make(map[string]client.Client),
		repo:    repo,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// OnChange registers an observer.
func (r *Registry) OnChange(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observers = append(r.observers, o)
}

// Load hydrates the registry from the repository. Restored clients stay
// offline until they register or heartbeat again.
func (r *Registry) Load(ctx context.Context) error {
	clients, _, err := r.repo.List(ctx, 0, math.MaxUint64)
	if err != nil {
		return fmt.Errorf("failed to load clients: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range clients {
		c.Status = client.Offline
		r.clients[c.ID] = c
	}
	r.logger.Info("client registry loaded", slog.Int("clients", len(clients)))

	return nil
}

// Register upserts a client, marking it online with its latest sample count.
func (r *Registry) Register(ctx context.Context, id string, samples uint64) (client.Client, error) {
	if id == "" {
		return client.Client{}, ErrEmptyClientID
	}

	r.mu.Lock()
	now := r.now()
	c, known := r.clients[id]
	if !known {
		c = client.Client{ID: id, RegisteredAt: now}
	}
	c.TotalSamples = samples
	c.Touch(now)
	if err := r.repo.Save(ctx, c); err != nil {
		r.mu.Unlock()

		return client.Client{}, fmt.Errorf("failed to persist client %s: %w", id, err)
	}
	r.clients[id] = c
	observers := r.observers
	r.mu.Unlock()

	kind := Refreshed
	if !known {
		kind = Joined
	}
	notify(observers, kind, c)

	return c, nil
}

// Heartbeat refreshes the liveness of a known client.
func (r *Registry) Heartbeat(ctx context.Context, id string) (client.Client, error) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if !ok {
		r.mu.Unlock()

		return client.Client{}, ErrClientNotFound
	}
	c.Touch(r.now())
	if err := r.repo.Save(ctx, c); err != nil {
		r.mu.Unlock()

		return client.Client{}, fmt.Errorf("failed to persist client %s: %w", id, err)
	}
	r.clients[id] = c
	observers := r.observers
	r.mu.Unlock()

	notify(observers, Refreshed, c)

	return c, nil
}

// MarkOffline records an explicit disconnect.
func (r *Registry) MarkOffline(ctx context.Context, id string) (client.Client, error) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if !ok {
		r.mu.Unlock()

		return client.Client{}, ErrClientNotFound
	}
	wasOnline := c.Online()
	c.Status = client.Offline
	if err := r.repo.Save(ctx, c); err != nil {
		r.mu.Unlock()

		return client.Client{}, fmt.Errorf("failed to persist client %s: %w", id, err)
	}
	r.clients[id] = c
	observers := r.observers
	r.mu.Unlock()

	if wasOnline {
		notify(observers, WentOffline, c)
	}

	return c, nil
}

// Sweep marks every client whose liveness window elapsed as offline and
// returns their ids in order.
func (r *Registry) Sweep(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	now := r.now()
	var (
		expired []client.Client
		errs    []error
	)
	for id, c := range r.clients {
		if !c.Expired(now, r.timeout) {
			continue
		}
		c.Status = client.Offline
		if err := r.repo.Save(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("failed to persist client %s: %w", id, err))
		}
		r.clients[id] = c
		expired = append(expired, c)
	}
	observers := r.observers
	r.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	ids := make([]string, len(expired))
	for i, c := range expired {
		ids[i] = c.ID
		r.logger.Info("client missed liveness window", slog.String("client_id", c.ID), slog.Time("last_seen", c.LastSeen))
		notify(observers, WentOffline, c)
	}

	return ids, errors.Join(errs...)
}

func (r *Registry) Get(_ context.Context, id string) (client.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok {
		return client.Client{}, ErrClientNotFound
	}

	return c, nil
}

// List returns all known clients ordered by id.
func (r *Registry) List(_ context.Context) []client.Client {
	return r.filter(func(client.Client) bool { return true })
}

// ListOnline returns online clients ordered by id.
func (r *Registry) ListOnline(_ context.Context) []client.Client {
	return r.filter(client.Client.Online)
}

// Count returns the number of clients matching pred.
func (r *Registry) Count(pred func(client.Client) bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.clients {
		if pred(c) {
			n++
		}
	}

	return n
}

func (r *Registry) CountOnline() int {
	return r.Count(client.Client.Online)
}

func (r *Registry) filter(pred func(client.Client) bool) []client.Client {
	r.mu.RLock()
	out := make([]client.Client, 0, len(r.clients))
	for _, c := range r.clients {
		if pred(c) {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

func notify(observers []Observer, kind ChangeKind, c client.Client) {
	for _, o := range observers {
		o(kind, c)
	}
}
