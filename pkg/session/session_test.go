package session_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/absmach/flcoord/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		desc string
		cfg  session.Config
		err  error
	}{
		{
			desc: "valid config",
			cfg:  session.Config{ProjectID: "p", TotalRounds: 2, MinClients: 3},
		},
		{
			desc: "missing project",
			cfg:  session.Config{TotalRounds: 2, MinClients: 3},
			err:  session.ErrEmptyID,
		},
		{
			desc: "zero rounds",
			cfg:  session.Config{ProjectID: "p", MinClients: 3},
			err:  session.ErrZeroRounds,
		},
		{
			desc: "zero clients",
			cfg:  session.Config{ProjectID: "p", TotalRounds: 1},
			err:  session.ErrZeroClients,
		},
		{
			desc: "negative timeout",
			cfg:  session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 1, RoundTimeout: -1},
			err:  session.ErrTimeout,
		},
		{
			desc: "cohort below quorum",
			cfg:  session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 3, MaxParticipants: 2},
			err:  session.ErrCohort,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.ErrorIs(t, tc.cfg.Validate(), tc.err)
		})
	}
}

func TestStateTransitions(t *testing.T) {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	s := session.New("s1", session.Config{ProjectID: "p", TotalRounds: 2, MinClients: 1}, start)
	assert.Equal(t, session.Pending, s.Status)

	cases := []struct {
		state    session.State
		status   session.Status
		terminal bool
	}{
		{state: session.AwaitingQuorum, status: session.Pending},
		{state: session.RoundActive, status: session.Running},
		{state: session.Aggregating, status: session.Running},
		{state: session.RoundActive, status: session.Running},
		{state: session.Completed, status: session.StatusComplete, terminal: true},
	}

	for i, tc := range cases {
		now := start.Add(time.Duration(i+1) * time.Second)
		s.SetState(tc.state, now)
		assert.Equal(t, tc.status, s.Status, string(tc.state))
		assert.Equal(t, tc.terminal, s.Terminal(), string(tc.state))
	}
	assert.Equal(t, start.Add(2*time.Second), s.StartedAt)
	assert.Equal(t, start.Add(5*time.Second), s.FinishedAt)

	f := session.New("s2", session.Config{ProjectID: "p", TotalRounds: 1, MinClients: 1}, start)
	f.Fail(session.ReasonCancelled, "stop", start)
	assert.Equal(t, session.StatusFailed, f.Status)
	assert.Equal(t, session.ReasonCancelled, f.Reason)
}

func TestDurationJSON(t *testing.T) {
	cases := []struct {
		desc string
		data string
		want time.Duration
		err  bool
	}{
		{desc: "duration string", data: `"1m30s"`, want: 90 * time.Second},
		{desc: "seconds number", data: `45`, want: 45 * time.Second},
		{desc: "null", data: `null`},
		{desc: "bad string", data: `"soon"`, err: true},
		{desc: "bad type", data: `true`, err: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			var d session.Duration
			err := json.Unmarshal([]byte(tc.data), &d)
			if tc.err {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Std())
		})
	}

	data, err := json.Marshal(session.Duration(2 * time.Minute))
	require.NoError(t, err)
	assert.JSONEq(t, `"2m0s"`, string(data))
}
