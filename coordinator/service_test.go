package coordinator_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/ledger"
	"github.com/absmach/flcoord/pkg/mqtt/mocks"
	"github.com/absmach/flcoord/pkg/registry"
	"github.com/absmach/flcoord/pkg/session"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	svc   coordinator.Service
	repos *storage.Repositories
	sub   *events.Subscription
}

func newHarness(t *testing.T, opts ...coordinator.Option) *harness {
	t.Helper()

	return newHarnessWithRepos(t, storage.NewMemoryRepositories(), opts...)
}

func newHarnessWithRepos(t *testing.T, repos *storage.Repositories, opts ...coordinator.Option) *harness {
	t.Helper()

	logger := slog.Default()
	reg := registry.New(repos.Clients, time.Minute, logger)
	b := events.NewBroadcaster(512, logger)
	sub := b.Subscribe()
	svc := coordinator.NewService(reg, ledger.New(repos.Metrics, logger), repos.Sessions, repos.Models, b, logger, opts...)
	t.Cleanup(func() {
		_ = svc.Shutdown(context.Background())
	})

	return &harness{svc: svc, repos: repos, sub: sub}
}

func (h *harness) register(t *testing.T, samples map[string]uint64) {
	t.Helper()
	for id, n := range samples {
		_, err := h.svc.RegisterClient(context.Background(), id, n)
		require.NoError(t, err)
	}
}

func (h *harness) drain() []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-h.sub.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func count(evs []events.Event, typ events.Type) int {
	n := 0
	for _, e := range evs {
		if e.Type == typ {
			n++
		}
	}

	return n
}

func update(clientID string, round, samples uint64, acc float64) fl.Update {
	return fl.Update{
		ClientID:   clientID,
		Round:      round,
		Weights:    fl.Weights{"dense": {float64(samples) / 100, 1}},
		NumSamples: samples,
		Loss:       1 - acc,
		Accuracy:   acc,
	}
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, map[string]uint64{"hospital_a": 100, "hospital_b": 150, "hospital_c": 250})

	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "cardio", TotalRounds: 2, MinClients: 3})
	require.NoError(t, err)
	assert.Equal(t, session.RoundActive, s.State)
	assert.Equal(t, uint64(1), s.CurrentRound)

	submissions := []struct {
		client  string
		samples uint64
		acc     float64
	}{
		{client: "hospital_a", samples: 100, acc: 0.70},
		{client: "hospital_b", samples: 150, acc: 0.75},
		{client: "hospital_c", samples: 250, acc: 0.80},
	}

	for round := uint64(1); round <= 2; round++ {
		for i, sub := range submissions {
			res, err := h.svc.SubmitUpdate(ctx, update(sub.client, round, sub.samples, sub.acc))
			require.NoError(t, err)
			assert.True(t, res.Accepted)
			assert.Equal(t, s.ID, res.SessionID)
			assert.Equal(t, i == len(submissions)-1, res.Aggregated)
		}

		rec, err := h.svc.LatestMetrics(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, round, rec.Round)
		assert.InDelta(t, 0.765, rec.Accuracy, 1e-9)
		assert.Equal(t, uint64(3), rec.NumClients)
		assert.Equal(t, uint64(500), rec.TotalSamples)
	}

	got, err := h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Completed, got.State)
	assert.Equal(t, session.StatusComplete, got.Status)
	assert.Equal(t, uint64(2), got.CurrentRound)

	evs := h.drain()
	assert.Equal(t, 1, count(evs, events.TrainingStarted))
	assert.Equal(t, 2, count(evs, events.RoundStarted))
	assert.Equal(t, 2, count(evs, events.MetricsUpdate))
	assert.Equal(t, 1, count(evs, events.TrainingCompleted))
	assert.Equal(t, 3, count(evs, events.ClientRegistered))
	assert.Zero(t, count(evs, events.TrainingFailed))

	model, err := h.svc.GlobalModel(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), model.Version)
	assert.InDelta(t, (1.0*100+1.5*150+2.5*250)/500, model.Weights["dense"][0], 1e-9)

	history, err := h.svc.MetricsHistory(ctx, s.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), history.Total)
	assert.Len(t, history.Records, 2)
}

func TestStartSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.StartSession(ctx, session.Config{ProjectID: "busy", TotalRounds: 1, MinClients: 2})
	require.NoError(t, err)

	cases := []struct {
		desc string
		cfg  session.Config
		err  error
	}{
		{
			desc: "zero rounds",
			cfg:  session.Config{ProjectID: "p", MinClients: 1},
			err:  coordinator.ErrInvalidConfig,
		},
		{
			desc: "zero min clients",
			cfg:  session.Config{ProjectID: "p", TotalRounds: 1},
			err:  coordinator.ErrInvalidConfig,
		},
		{
			desc: "project already has an active session",
			cfg:  session.Config{ProjectID: "busy", TotalRounds: 1, MinClients: 1},
			err:  coordinator.ErrSessionActive,
		},
		{
			desc: "other project may run concurrently",
			cfg:  session.Config{ProjectID: "other", TotalRounds: 1, MinClients: 2},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			s, err := h.svc.StartSession(ctx, tc.cfg)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, session.AwaitingQuorum, s.State)
			assert.Equal(t, coordinator.DefaultQuorumTimeout, s.QuorumTimeout.Std())
		})
	}
}

func TestQuorumReachedByRegistration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 2})
	require.NoError(t, err)
	assert.Equal(t, session.AwaitingQuorum, s.State)

	h.register(t, map[string]uint64{"a": 10})
	got, err := h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.AwaitingQuorum, got.State)

	h.register(t, map[string]uint64{"b": 10})
	got, err = h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.RoundActive, got.State)
	assert.Equal(t, uint64(1), got.CurrentRound)
}

func TestDeadlines(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		desc    string
		clients map[string]uint64
		submit  []fl.Update
		state   session.State
		reason  session.Reason
		records int
	}{
		{
			desc:   "quorum never reached",
			state:  session.Failed,
			reason: session.ReasonQuorumTimeout,
		},
		{
			desc:    "round deadline with empty pool",
			clients: map[string]uint64{"a": 1, "b": 1},
			state:   session.Failed,
			reason:  session.ReasonRoundTimeout,
		},
		{
			desc:    "round deadline aggregates partial pool",
			clients: map[string]uint64{"a": 1, "b": 1},
			submit:  []fl.Update{update("a", 1, 40, 0.5)},
			state:   session.Completed,
			records: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			h := newHarness(t)
			h.register(t, tc.clients)

			s, err := h.svc.StartSession(ctx, session.Config{
				ProjectID:     "p",
				TotalRounds:   1,
				MinClients:    2,
				QuorumTimeout: session.Duration(30 * time.Millisecond),
				RoundTimeout:  session.Duration(30 * time.Millisecond),
			})
			require.NoError(t, err)
			for _, u := range tc.submit {
				res, err := h.svc.SubmitUpdate(ctx, u)
				require.NoError(t, err)
				require.True(t, res.Accepted)
			}

			assert.Eventually(t, func() bool {
				got, err := h.svc.GetSession(ctx, s.ID)

				return err == nil && got.State == tc.state
			}, waitFor, tick)

			got, err := h.svc.GetSession(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.reason, got.Reason)

			history, err := h.svc.MetricsHistory(ctx, s.ID, 0, 10)
			require.NoError(t, err)
			assert.Len(t, history.Records, tc.records)
			if tc.records > 0 {
				assert.Equal(t, uint64(1), history.Records[0].NumClients)
			}
		})
	}
}

func TestStaleUpdateLeavesPoolUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, map[string]uint64{"a": 1, "b": 1})

	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 3, MinClients: 2})
	require.NoError(t, err)

	for _, id := range []string{"a", "b"} {
		_, err := h.svc.SubmitUpdate(ctx, update(id, 1, 10, 0.5))
		require.NoError(t, err)
	}

	res, err := h.svc.SubmitUpdate(ctx, update("a", 1, 10, 0.9))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, coordinator.RejectStaleRound, res.Reason)

	status, err := h.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.ID, status.SessionID)
	assert.Equal(t, uint64(2), status.CurrentRound)
	assert.Equal(t, session.Running, status.Status)
	assert.Zero(t, status.PoolSize)

	res, err = h.svc.SubmitUpdate(ctx, update("a", 2, 10, 0.6))
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	res, err = h.svc.SubmitUpdate(ctx, update("a", 2, 20, 0.7))
	require.NoError(t, err)
	assert.True(t, res.Replaced)

	status, err = h.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.PoolSize)
}

func TestSubmitRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, map[string]uint64{"a": 1, "b": 1})

	res, err := h.svc.SubmitUpdate(ctx, update("a", 1, 10, 0.5))
	require.NoError(t, err)
	assert.Equal(t, coordinator.RejectSessionNotRunning, res.Reason)

	first, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p1", TotalRounds: 2, MinClients: 2})
	require.NoError(t, err)

	cases := []struct {
		desc   string
		update fl.Update
		reason coordinator.RejectReason
		err    error
	}{
		{
			desc:   "unknown client",
			update: update("ghost", 1, 10, 0.5),
			reason: coordinator.RejectUnknownClient,
		},
		{
			desc:   "future round",
			update: update("a", 2, 10, 0.5),
			reason: coordinator.RejectFutureRound,
		},
		{
			desc:   "empty client id",
			update: update("", 1, 10, 0.5),
			err:    coordinator.ErrInvalidUpdate,
		},
		{
			desc:   "round zero",
			update: update("a", 0, 10, 0.5),
			err:    coordinator.ErrInvalidUpdate,
		},
		{
			desc: "unknown session id",
			update: func() fl.Update {
				u := update("a", 1, 10, 0.5)
				u.SessionID = "missing"

				return u
			}(),
			err: coordinator.ErrSessionNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			res, err := h.svc.SubmitUpdate(ctx, tc.update)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.False(t, res.Accepted)
			assert.Equal(t, tc.reason, res.Reason)
		})
	}

	second, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p2", TotalRounds: 1, MinClients: 1})
	require.NoError(t, err)
	require.Equal(t, session.RoundActive, second.State)

	_, err = h.svc.SubmitUpdate(ctx, update("a", 1, 10, 0.5))
	assert.ErrorIs(t, err, coordinator.ErrAmbiguousSession)

	u := update("a", 1, 10, 0.5)
	u.SessionID = first.ID
	res, err = h.svc.SubmitUpdate(ctx, u)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, first.ID, res.SessionID)
}

func TestCancelSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 5})
	require.NoError(t, err)

	cases := []struct {
		desc string
		id   string
		err  error
	}{
		{desc: "cancel active session", id: s.ID},
		{desc: "cancel finished session", id: s.ID, err: coordinator.ErrSessionTerminal},
		{desc: "cancel unknown session", id: "nope", err: coordinator.ErrSessionNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := h.svc.CancelSession(ctx, tc.id)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, session.Failed, got.State)
			assert.Equal(t, session.ReasonCancelled, got.Reason)
		})
	}

	evs := h.drain()
	assert.Equal(t, 1, count(evs, events.TrainingFailed))

	_, err = h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 1})
	assert.NoError(t, err)
}

func TestQuorumLost(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, map[string]uint64{"a": 1, "b": 1})

	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 2})
	require.NoError(t, err)

	_, err = h.svc.DisconnectClient(ctx, "a")
	require.NoError(t, err)
	got, err := h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.RoundActive, got.State)

	_, err = h.svc.DisconnectClient(ctx, "b")
	require.NoError(t, err)
	got, err = h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Failed, got.State)
	assert.Equal(t, session.ReasonQuorumLost, got.Reason)
}

func TestAggregationFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, map[string]uint64{"a": 0, "b": 0})

	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 2})
	require.NoError(t, err)
	for _, id := range []string{"a", "b"} {
		_, err := h.svc.SubmitUpdate(ctx, update(id, 1, 0, 0.5))
		require.NoError(t, err)
	}

	got, err := h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Failed, got.State)
	assert.Equal(t, session.ReasonAggregationFailed, got.Reason)

	_, err = h.svc.GlobalModel(ctx, s.ID)
	assert.ErrorIs(t, err, coordinator.ErrModelNotFound)
}

type failingAggregator struct{}

func (failingAggregator) Aggregate([]fl.Update) (fl.Result, error) {
	return fl.Result{}, fl.ErrShapeMismatch
}

func TestCustomAggregatorFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, coordinator.WithAggregator(failingAggregator{}))
	h.register(t, map[string]uint64{"a": 10})

	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 2, MinClients: 1})
	require.NoError(t, err)
	res, err := h.svc.SubmitUpdate(ctx, update("a", 1, 10, 0.5))
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	got, err := h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ReasonAggregationFailed, got.Reason)
	assert.Equal(t, 1, count(h.drain(), events.TrainingFailed))
}

func TestGlobalModel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, map[string]uint64{"a": 1})

	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 2, MinClients: 1})
	require.NoError(t, err)

	_, err = h.svc.GlobalModel(ctx, s.ID)
	assert.ErrorIs(t, err, coordinator.ErrModelNotFound)
	_, err = h.svc.GlobalModel(ctx, "unknown")
	assert.ErrorIs(t, err, coordinator.ErrSessionNotFound)

	_, err = h.svc.SubmitUpdate(ctx, update("a", 1, 10, 0.5))
	require.NoError(t, err)

	m, err := h.svc.GlobalModel(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, s.ID, m.SessionID)
	assert.Equal(t, uint64(1), m.Version)

	stored, err := h.repos.Models.Latest(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Weights, stored.Weights)
}

func TestStatusAndSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	status, err := h.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Idle, status.State)
	assert.Empty(t, status.SessionID)

	h.register(t, map[string]uint64{"b": 1, "a": 1})
	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 4, MinClients: 2})
	require.NoError(t, err)

	status, err = h.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.ID, status.SessionID)
	assert.Equal(t, uint64(4), status.TotalRounds)
	assert.Equal(t, 2, status.OnlineClients)

	snap, err := h.svc.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Session)
	assert.Equal(t, s.ID, snap.Session.ID)
	require.Len(t, snap.Clients, 2)
	assert.Equal(t, "a", snap.Clients[0].ID)
}

func TestRecoverInterruptedSessions(t *testing.T) {
	ctx := context.Background()
	repos := storage.NewMemoryRepositories()
	now := time.Now()

	running := session.New("0001", session.Config{ProjectID: "p", TotalRounds: 3, MinClients: 1}, now)
	running.SetState(session.RoundActive, now)
	require.NoError(t, repos.Sessions.Create(ctx, running))
	done := session.New("0002", session.Config{ProjectID: "q", TotalRounds: 1, MinClients: 1}, now.Add(time.Second))
	done.SetState(session.Completed, now)
	require.NoError(t, repos.Sessions.Create(ctx, done))

	h := newHarnessWithRepos(t, repos)
	require.NoError(t, h.svc.RecoverInterruptedSessions(ctx))

	got, err := h.svc.GetSession(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Failed, got.State)
	assert.Equal(t, session.ReasonInterrupted, got.Reason)

	got, err = h.svc.GetSession(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Completed, got.State)

	status, err := h.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, done.ID, status.SessionID)

	_, err = h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 1})
	assert.NoError(t, err)
}

func TestRoundInvitations(t *testing.T) {
	ctx := context.Background()
	pubsub := new(mocks.MockPubSub)
	pubsub.On("Publish", mock.Anything, "fl/rounds/start", mock.MatchedBy(func(inv coordinator.RoundInvitation) bool {
		return inv.Round == 1 && len(inv.Participants) == 2
	})).Return(nil).Once()

	h := newHarness(t, coordinator.WithNotifier(coordinator.NewMQTTNotifier(pubsub, "fl")))
	h.register(t, map[string]uint64{"a": 1, "b": 1, "c": 1})
	_, err := h.svc.DisconnectClient(ctx, "c")
	require.NoError(t, err)

	_, err = h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 2})
	require.NoError(t, err)

	require.NoError(t, h.svc.Shutdown(ctx))
	pubsub.AssertExpectations(t)
}

func TestShutdown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 3})
	require.NoError(t, err)
	require.NoError(t, h.svc.Shutdown(ctx))

	got, err := h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Failed, got.State)
	assert.Equal(t, session.ReasonInterrupted, got.Reason)

	_, err = h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 3})
	assert.ErrorIs(t, err, coordinator.ErrShuttingDown)
	_, err = h.svc.Subscribe(ctx)
	assert.ErrorIs(t, err, coordinator.ErrShuttingDown)
	assert.NoError(t, h.svc.Shutdown(ctx))
}

func TestLatestMetricsAcrossSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.LatestMetrics(ctx, "")
	assert.ErrorIs(t, err, ledger.ErrNoRecords)

	h.register(t, map[string]uint64{"a": 1})
	first, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p1", TotalRounds: 1, MinClients: 1})
	require.NoError(t, err)
	_, err = h.svc.SubmitUpdate(ctx, update("a", 1, 10, 0.5))
	require.NoError(t, err)

	rec, err := h.svc.LatestMetrics(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, rec.SessionID)
	assert.Equal(t, uint64(1), rec.Round)

	second, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p2", TotalRounds: 2, MinClients: 5})
	require.NoError(t, err)
	require.Equal(t, session.AwaitingQuorum, second.State)

	rec, err = h.svc.LatestMetrics(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, rec.SessionID)
	assert.Equal(t, uint64(1), rec.Round)

	_, err = h.svc.LatestMetrics(ctx, second.ID)
	assert.ErrorIs(t, err, ledger.ErrNoRecords)
}

func TestClosedRoundUpdateIsStale(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, map[string]uint64{"a": 1, "b": 1})

	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 3, MinClients: 2})
	require.NoError(t, err)

	_, err = h.svc.SubmitUpdate(ctx, update("a", 1, 10, 0.5))
	require.NoError(t, err)
	_, err = h.svc.DisconnectClient(ctx, "a")
	require.NoError(t, err)
	res, err := h.svc.SubmitUpdate(ctx, update("b", 1, 10, 0.5))
	require.NoError(t, err)
	require.True(t, res.Aggregated)

	got, err := h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, session.AwaitingQuorum, got.State)
	require.Equal(t, uint64(1), got.CurrentRound)

	cases := []struct {
		desc   string
		round  uint64
		reason coordinator.RejectReason
	}{
		{desc: "update for the aggregated round", round: 1, reason: coordinator.RejectStaleRound},
		{desc: "update for the round not yet opened", round: 2, reason: coordinator.RejectSessionNotRunning},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			res, err := h.svc.SubmitUpdate(ctx, update("b", tc.round, 10, 0.5))
			require.NoError(t, err)
			assert.False(t, res.Accepted)
			assert.Equal(t, tc.reason, res.Reason)
		})
	}
}

func TestGlobalModelAfterCompletion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, map[string]uint64{"a": 1})

	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 1})
	require.NoError(t, err)
	_, err = h.svc.SubmitUpdate(ctx, update("a", 1, 10, 0.5))
	require.NoError(t, err)

	stored, err := h.repos.Models.Latest(ctx, s.ID)
	require.NoError(t, err)
	stored.Weights = fl.Weights{"dense": {42}}
	require.NoError(t, h.repos.Models.Save(ctx, stored))

	m, err := h.svc.GlobalModel(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Version)
	assert.Equal(t, fl.Weights{"dense": {42}}, m.Weights)
}

func TestConcurrentRounds(t *testing.T) {
	const (
		clients = 20
		rounds  = 3
	)
	ctx := context.Background()
	h := newHarness(t)

	ids := make([]string, clients)
	for i := range ids {
		ids[i] = fmt.Sprintf("client-%02d", i)
		_, err := h.svc.RegisterClient(ctx, ids[i], uint64(i+1))
		require.NoError(t, err)
	}

	s, err := h.svc.StartSession(ctx, session.Config{ProjectID: "p", TotalRounds: rounds, MinClients: clients})
	require.NoError(t, err)

	var rejected, aggregated atomic.Int64
	for round := uint64(1); round <= rounds; round++ {
		var wg sync.WaitGroup
		for i, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := h.svc.RegisterClient(ctx, id, uint64(i+1)); err != nil {
					rejected.Add(1)
				}
				res, err := h.svc.SubmitUpdate(ctx, update(id, round, uint64(i+1), 0.5))
				if err != nil || !res.Accepted {
					rejected.Add(1)
				}
				if res.Aggregated {
					aggregated.Add(1)
				}
				if _, err := h.svc.Status(ctx); err != nil {
					rejected.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int64(round), aggregated.Load())
	}
	assert.Zero(t, rejected.Load())

	got, err := h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Completed, got.State)
	assert.Equal(t, uint64(rounds), got.CurrentRound)

	history, err := h.svc.MetricsHistory(ctx, s.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(rounds), history.Total)
	for i, rec := range history.Records {
		assert.Equal(t, uint64(i+1), rec.Round)
		assert.Equal(t, uint64(clients), rec.NumClients)
	}
	assert.Empty(t, history.Gaps)

	assert.Equal(t, 1, count(h.drain(), events.TrainingCompleted))
}
