package testutil

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/absmach/flcoord/pkg/client"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/session"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRepositoryTests exercises a backend through the storage contracts.
func RunRepositoryTests(t *testing.T, repos *storage.Repositories) {
	t.Helper()

	t.Run("clients", func(t *testing.T) { testClients(t, repos.Clients) })
	t.Run("sessions", func(t *testing.T) { testSessions(t, repos.Sessions) })
	t.Run("metrics", func(t *testing.T) { testMetrics(t, repos.Metrics) })
	t.Run("models", func(t *testing.T) { testModels(t, repos.Models) })
}

func testClients(t *testing.T, repo storage.ClientRepository) {
	ctx := context.Background()
	id := "client-" + uuid.NewString()

	c := TestClient(id)
	require.NoError(t, repo.Save(ctx, c))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, client.Online, got.Status)
	assert.Equal(t, c.TotalSamples, got.TotalSamples)
	assert.True(t, c.LastSeen.Equal(got.LastSeen))

	c.Status = client.Offline
	c.TotalSamples = 300
	require.NoError(t, repo.Save(ctx, c), "save is an upsert")

	got, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, client.Offline, got.Status)
	assert.Equal(t, uint64(300), got.TotalSamples)

	_, err = repo.Get(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	other := TestClient(id + "-b")
	require.NoError(t, repo.Save(ctx, other))

	clients, total, err := repo.List(ctx, 0, math.MaxUint64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, uint64(2))
	assert.Len(t, clients, int(total))
	for i := 1; i < len(clients); i++ {
		assert.Less(t, clients[i-1].ID, clients[i].ID, "clients are listed by id")
	}

	page, _, err := repo.List(ctx, 0, 1)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func testSessions(t *testing.T, repo storage.SessionRepository) {
	ctx := context.Background()

	s := TestSession("project-" + uuid.NewString())
	require.NoError(t, repo.Create(ctx, s))
	assert.ErrorIs(t, repo.Create(ctx, s), pkgerrors.ErrEntityExists)

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ProjectID, got.ProjectID)
	assert.Equal(t, session.Idle, got.State)
	assert.Equal(t, session.Pending, got.Status)
	assert.Equal(t, s.RoundTimeout, got.RoundTimeout)
	assert.True(t, got.StartedAt.IsZero())

	now := time.Now().UTC().Truncate(time.Millisecond)
	s.CurrentRound = 1
	s.SetState(session.RoundActive, now)
	require.NoError(t, repo.Update(ctx, s))

	got, err = repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.RoundActive, got.State)
	assert.Equal(t, session.Running, got.Status)
	assert.Equal(t, uint64(1), got.CurrentRound)
	assert.True(t, now.Equal(got.StartedAt))

	s.Fail(session.ReasonQuorumLost, "all clients left", now)
	require.NoError(t, repo.Update(ctx, s))

	got, err = repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Failed, got.State)
	assert.Equal(t, session.ReasonQuorumLost, got.Reason)
	assert.Equal(t, "all clients left", got.Message)

	missing := TestSession("missing")
	assert.ErrorIs(t, repo.Update(ctx, missing), pkgerrors.ErrNotFound)
	_, err = repo.Get(ctx, missing.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	next := TestSession(s.ProjectID)
	next.CreatedAt = s.CreatedAt.Add(time.Millisecond)
	require.NoError(t, repo.Create(ctx, next))

	sessions, total, err := repo.List(ctx, 0, math.MaxUint64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, uint64(2))
	pos := map[string]int{}
	for i, ss := range sessions {
		pos[ss.ID] = i
	}
	assert.Less(t, pos[s.ID], pos[next.ID], "sessions are listed in creation order")
}

func testMetrics(t *testing.T, repo storage.MetricsRepository) {
	ctx := context.Background()
	sessionID := uuid.NewString()
	base := time.Now()

	for round := uint64(1); round <= 3; round++ {
		require.NoError(t, repo.Append(ctx, TestRoundMetrics(sessionID, round, base.Add(time.Duration(round)*time.Second))))
	}
	assert.ErrorIs(t, repo.Append(ctx, TestRoundMetrics(sessionID, 2, base)), pkgerrors.ErrEntityExists)

	records, total, err := repo.List(ctx, sessionID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, uint64(i+1), rec.Round)
	}
	assert.Len(t, records[0].Contributions, 2)

	page, total, err := repo.List(ctx, sessionID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(2), page[0].Round)

	latest, err := repo.Latest(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), latest.Round)

	_, err = repo.Latest(ctx, uuid.NewString())
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	future := uuid.NewString()
	require.NoError(t, repo.Append(ctx, TestRoundMetrics(future, 1, base.Add(24*time.Hour))))
	latest, err = repo.Latest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, future, latest.SessionID)
}

func testModels(t *testing.T, repo storage.ModelRepository) {
	ctx := context.Background()
	sessionID := uuid.NewString()

	_, err := repo.Latest(ctx, sessionID)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	for _, v := range []uint64{0, 2, 1, 10} {
		require.NoError(t, repo.Save(ctx, TestModel(sessionID, v)))
	}

	latest, err := repo.Latest(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), latest.Version)

	m, err := repo.Get(ctx, sessionID, 2)
	require.NoError(t, err)
	assert.Equal(t, TestModel(sessionID, 2).Weights, m.Weights)

	_, err = repo.Get(ctx, sessionID, 3)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}
