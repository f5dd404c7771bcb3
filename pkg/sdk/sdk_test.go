package sdk_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/coordinator/api"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/ledger"
	"github.com/absmach/flcoord/pkg/registry"
	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "secret"

func newCoordinator(t *testing.T) (sdk.SDK, string) {
	t.Helper()

	logger := slog.Default()
	repos := storage.NewMemoryRepositories()
	reg := registry.New(repos.Clients, time.Minute, logger)
	svc := coordinator.NewService(reg, ledger.New(repos.Metrics, logger), repos.Sessions, repos.Models, events.NewBroadcaster(64, logger), logger)
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "test", token))
	t.Cleanup(func() {
		ts.Close()
		_ = svc.Shutdown(context.Background())
	})

	return sdk.NewSDK(sdk.Config{CoordinatorURL: ts.URL, Token: token}), ts.URL
}

func update(client string, round uint64, w float64, samples uint64, acc float64) sdk.Update {
	return sdk.Update{
		ClientID:   client,
		Round:      round,
		Weights:    fl.Weights{"w": {w}},
		NumSamples: samples,
		Loss:       1 - acc,
		Accuracy:   acc,
	}
}

func TestTrainingLifecycle(t *testing.T) {
	c, _ := newCoordinator(t)

	for id, n := range map[string]uint64{"a": 100, "b": 300} {
		cl, err := c.RegisterClient(id, n)
		require.NoError(t, err)
		assert.Equal(t, n, cl.TotalSamples)
	}

	s, err := c.StartSession(sdk.SessionConfig{ProjectID: "cardio", TotalRounds: 1, MinClients: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)

	_, err = c.StartSession(sdk.SessionConfig{ProjectID: "cardio", TotalRounds: 1, MinClients: 2})
	var sdkErr *sdk.Error
	require.True(t, errors.As(err, &sdkErr))
	assert.Equal(t, http.StatusConflict, sdkErr.StatusCode)
	assert.Equal(t, "session_active", sdkErr.Code)

	res, err := c.SubmitUpdate(update("a", 1, 2, 100, 0.7))
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	res, err = c.SubmitUpdate(update("a", 2, 2, 100, 0.7))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "future_round", res.Reason)

	_, err = c.SubmitUpdate(update("a", 0, 2, 100, 0.7))
	require.True(t, errors.As(err, &sdkErr))
	assert.Equal(t, http.StatusBadRequest, sdkErr.StatusCode)
	assert.Equal(t, "invalid_update", sdkErr.Code)

	res, err = c.SubmitUpdateCBOR(update("b", 1, 4, 300, 0.8))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, res.Aggregated)

	m, err := c.GlobalModel(s.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, m.Weights["w"][0], 1e-9)

	rec, err := c.LatestRecord("")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Round)
	assert.InDelta(t, 0.775, rec.Accuracy, 1e-9)

	page, err := c.ListRecords(s.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), page.Total)

	status, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)

	sessions, err := c.ListSessions(0, 0)
	require.NoError(t, err)
	assert.Len(t, sessions.Sessions, 1)
}

func TestClients(t *testing.T) {
	c, _ := newCoordinator(t)

	_, err := c.RegisterClient("a", 10)
	require.NoError(t, err)

	cases := []struct {
		desc   string
		call   func() (sdk.Client, error)
		status string
		code   int
	}{
		{desc: "heartbeat", call: func() (sdk.Client, error) { return c.Heartbeat("a") }, status: "online"},
		{desc: "disconnect", call: func() (sdk.Client, error) { return c.DisconnectClient("a") }, status: "offline"},
		{desc: "get", call: func() (sdk.Client, error) { return c.GetClient("a") }, status: "offline"},
		{desc: "get unknown", call: func() (sdk.Client, error) { return c.GetClient("ghost") }, code: http.StatusNotFound},
		{desc: "heartbeat unknown", call: func() (sdk.Client, error) { return c.Heartbeat("ghost") }, code: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cl, err := tc.call()
			if tc.code != 0 {
				var sdkErr *sdk.Error
				require.True(t, errors.As(err, &sdkErr))
				assert.Equal(t, tc.code, sdkErr.StatusCode)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.status, string(cl.Status))
		})
	}

	online, err := c.ListClients(true)
	require.NoError(t, err)
	assert.Empty(t, online.Clients)

	all, err := c.ListClients(false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), all.Total)
}

func TestUnauthorized(t *testing.T) {
	_, url := newCoordinator(t)
	anon := sdk.NewSDK(sdk.Config{CoordinatorURL: url})

	snap, err := anon.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, snap.Session)

	_, err = anon.RegisterClient("a", 1)
	var sdkErr *sdk.Error
	require.True(t, errors.As(err, &sdkErr))
	assert.Equal(t, http.StatusUnauthorized, sdkErr.StatusCode)
}

func TestWatch(t *testing.T) {
	c, _ := newCoordinator(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	frames := make(chan []byte, 4)
	done := make(chan error, 1)
	go func() {
		n := 0
		done <- c.Watch(ctx, func(frame []byte) error {
			frames <- frame
			n++
			if n == 2 {
				return errors.New("enough")
			}

			return nil
		})
	}()

	var first struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(<-frames, &first))
	assert.Equal(t, "snapshot", first.Type)

	_, err := c.RegisterClient("a", 1)
	require.NoError(t, err)

	select {
	case frame := <-frames:
		e, err := events.Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, events.ClientRegistered, e.Type)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
	assert.EqualError(t, <-done, "enough")
}
