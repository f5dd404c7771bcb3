package registry_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/registry"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) observe(kind registry.ChangeKind, c client.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, kind.String()+":"+c.ID)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.events...)
}

func newRegistry(t *testing.T) (*registry.Registry, storage.ClientRepository, *clock, *recorder) {
	t.Helper()

	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	repo := storage.NewMemoryClientRepository(storage.NewInMemoryStorage())
	reg := registry.New(repo, 10*time.Second, slog.Default(), registry.WithClock(clk.Now))
	rec := &recorder{}
	reg.OnChange(rec.observe)

	return reg, repo, clk, rec
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		desc    string
		id      string
		samples uint64
		err     error
	}{
		{desc: "register new client", id: "hospital_a", samples: 800},
		{desc: "register with empty id", id: "", err: registry.ErrEmptyClientID},
		{desc: "register with zero samples", id: "hospital_b"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			reg, repo, _, _ := newRegistry(t)
			c, err := reg.Register(ctx, tc.id, tc.samples)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.id, c.ID)
			assert.Equal(t, client.Online, c.Status)
			assert.Equal(t, tc.samples, c.TotalSamples)

			stored, err := repo.Get(ctx, tc.id)
			require.NoError(t, err)
			assert.Equal(t, c, stored)
		})
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, _, clk, rec := newRegistry(t)

	first, err := reg.Register(ctx, "c1", 100)
	require.NoError(t, err)
	clk.Advance(time.Second)
	second, err := reg.Register(ctx, "c1", 150)
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Count(func(client.Client) bool { return true }))
	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)
	assert.Equal(t, uint64(150), second.TotalSamples)
	assert.True(t, second.LastSeen.After(first.LastSeen))
	assert.Equal(t, []string{"joined:c1", "refreshed:c1"}, rec.all())
}

func TestHeartbeat(t *testing.T) {
	ctx := context.Background()
	reg, _, clk, _ := newRegistry(t)
	_, err := reg.Register(ctx, "c1", 10)
	require.NoError(t, err)
	_, err = reg.MarkOffline(ctx, "c1")
	require.NoError(t, err)

	cases := []struct {
		desc string
		id   string
		err  error
	}{
		{desc: "heartbeat unknown client", id: "ghost", err: registry.ErrClientNotFound},
		{desc: "heartbeat offline client brings it back", id: "c1"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			clk.Advance(time.Second)
			c, err := reg.Heartbeat(ctx, tc.id)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.True(t, c.Online())
			assert.Equal(t, clk.Now(), c.LastSeen)
		})
	}
}

func TestMarkOffline(t *testing.T) {
	ctx := context.Background()
	reg, _, _, rec := newRegistry(t)
	_, err := reg.Register(ctx, "c1", 10)
	require.NoError(t, err)

	c, err := reg.MarkOffline(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, client.Offline, c.Status)

	_, err = reg.MarkOffline(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"joined:c1", "went_offline:c1"}, rec.all())

	_, err = reg.MarkOffline(ctx, "ghost")
	assert.ErrorIs(t, err, registry.ErrClientNotFound)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	reg, repo, clk, rec := newRegistry(t)

	_, err := reg.Register(ctx, "b", 1)
	require.NoError(t, err)
	_, err = reg.Register(ctx, "a", 1)
	require.NoError(t, err)
	clk.Advance(8 * time.Second)
	_, err = reg.Register(ctx, "c", 1)
	require.NoError(t, err)

	clk.Advance(5 * time.Second)
	expired, err := reg.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, expired)
	assert.Equal(t, 1, reg.CountOnline())

	stored, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, client.Offline, stored.Status)

	expired, err = reg.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)
	assert.Contains(t, rec.all(), "went_offline:a")
	assert.Contains(t, rec.all(), "went_offline:b")
}

func TestListOrdering(t *testing.T) {
	ctx := context.Background()
	reg, _, _, _ := newRegistry(t)
	for _, id := range []string{"zeta", "alpha", "mu"} {
		_, err := reg.Register(ctx, id, 1)
		require.NoError(t, err)
	}
	_, err := reg.MarkOffline(ctx, "mu")
	require.NoError(t, err)

	ids := func(cs []client.Client) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.ID
		}

		return out
	}
	assert.Equal(t, []string{"alpha", "mu", "zeta"}, ids(reg.List(ctx)))
	assert.Equal(t, []string{"alpha", "zeta"}, ids(reg.ListOnline(ctx)))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryClientRepository(storage.NewInMemoryStorage())
	require.NoError(t, repo.Save(ctx, client.Client{ID: "c1", Status: client.Online, TotalSamples: 5}))

	reg := registry.New(repo, time.Second, slog.Default())
	require.NoError(t, reg.Load(ctx))

	c, err := reg.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, client.Offline, c.Status)
	assert.Equal(t, uint64(5), c.TotalSamples)
	assert.Zero(t, reg.CountOnline())
}

func TestConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	reg, _, _, _ := newRegistry(t)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Register(ctx, "shared", uint64(i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, reg.Count(func(client.Client) bool { return true }))
	assert.Equal(t, 1, reg.CountOnline())
}
