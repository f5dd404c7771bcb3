package scheduler_test

import (
	"testing"

	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clients(spec map[string]uint64, offline ...string) []client.Client {
	down := make(map[string]bool, len(offline))
	for _, id := range offline {
		down[id] = true
	}
	out := make([]client.Client, 0, len(spec))
	for id, samples := range spec {
		status := client.Online
		if down[id] {
			status = client.Offline
		}
		out = append(out, client.Client{ID: id, Status: status, TotalSamples: samples})
	}

	return out
}

func TestSelectParticipants(t *testing.T) {
	pool := map[string]uint64{"a": 10, "b": 500, "c": 300, "d": 50}

	cases := []struct {
		desc    string
		policy  string
		clients []client.Client
		limit   uint64
		want    []string
		err     error
	}{
		{
			desc:    "all online without limit",
			policy:  scheduler.PolicyAll,
			clients: clients(pool, "d"),
			want:    []string{"a", "b", "c"},
		},
		{
			desc:    "all online with limit",
			policy:  scheduler.PolicyAll,
			clients: clients(pool),
			limit:   2,
			want:    []string{"a", "b"},
		},
		{
			desc:    "largest sample holders",
			policy:  scheduler.PolicySamples,
			clients: clients(pool),
			limit:   2,
			want:    []string{"b", "c"},
		},
		{
			desc:    "samples policy skips offline clients",
			policy:  scheduler.PolicySamples,
			clients: clients(pool, "b"),
			limit:   2,
			want:    []string{"c", "d"},
		},
		{
			desc:   "no clients",
			policy: scheduler.PolicyRoundRobin,
			err:    scheduler.ErrNoClient,
		},
		{
			desc:    "every client offline",
			policy:  scheduler.PolicyAll,
			clients: clients(pool, "a", "b", "c", "d"),
			err:     scheduler.ErrNoLiveClients,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			s, err := scheduler.New(tc.policy)
			require.NoError(t, err)

			got, err := s.SelectParticipants(1, tc.clients, tc.limit)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRoundRobinRotates(t *testing.T) {
	s := scheduler.NewRoundRobin()
	cs := clients(map[string]uint64{"a": 1, "b": 1, "c": 1, "d": 1, "e": 1})

	want := [][]string{
		{"a", "b"},
		{"c", "d"},
		{"a", "e"},
		{"b", "c"},
	}
	for round, expected := range want {
		got, err := s.SelectParticipants(uint64(round+1), cs, 2)
		require.NoError(t, err)
		assert.Equal(t, expected, got, "round %d", round+1)
	}

	got, err := s.SelectParticipants(5, cs, 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestUnknownPolicy(t *testing.T) {
	_, err := scheduler.New("lottery")
	assert.ErrorIs(t, err, scheduler.ErrUnknownPolicy)
}
