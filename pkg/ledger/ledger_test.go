package ledger_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/flcoord/pkg/ledger"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/absmach/flcoord/pkg/storage/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger() (*ledger.Ledger, storage.MetricsRepository) {
	repo := storage.NewMemoryMetricsRepository(storage.NewInMemoryStorage())

	return ledger.New(repo, slog.Default()), repo
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	now := time.Now()

	cases := []struct {
		desc    string
		session string
		round   uint64
		err     error
	}{
		{desc: "append first round", session: "s1", round: 1},
		{desc: "append next round", session: "s1", round: 2},
		{desc: "append with gap", session: "s1", round: 5},
		{desc: "reject round behind last", session: "s1", round: 3, err: ledger.ErrOutOfOrder},
		{desc: "reject repeated round", session: "s1", round: 5, err: ledger.ErrOutOfOrder},
		{desc: "reject round zero", session: "s1", round: 0, err: ledger.ErrInvalidRound},
		{desc: "reject empty session", session: "", round: 1, err: ledger.ErrEmptySession},
		{desc: "sessions are independent", session: "s2", round: 1},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := l.Append(ctx, testutil.TestRoundMetrics(tc.session, tc.round, now))
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			assert.NoError(t, err)
		})
	}

	assert.Equal(t, []ledger.Gap{{After: 2, Before: 5}}, l.Gaps("s1"))
	assert.Empty(t, l.Gaps("s2"))

	page, err := l.Page(ctx, "s1", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []ledger.Gap{{After: 2, Before: 5}}, page.Gaps)
	page, err = l.Page(ctx, "s2", 0, 10)
	require.NoError(t, err)
	assert.Nil(t, page.Gaps)
	assert.Len(t, page.Records, 1)

	latest, err := l.Latest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), latest.Round)
}

func TestAppendResumesFromStorage(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryMetricsRepository(storage.NewInMemoryStorage())
	require.NoError(t, repo.Append(ctx, testutil.TestRoundMetrics("s1", 4, time.Now())))

	l := ledger.New(repo, slog.Default())
	err := l.Append(ctx, testutil.TestRoundMetrics("s1", 3, time.Now()))
	assert.ErrorIs(t, err, ledger.ErrOutOfOrder)
	assert.NoError(t, l.Append(ctx, testutil.TestRoundMetrics("s1", 5, time.Now())))
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	base := time.Now()

	_, err := l.Latest(ctx, "")
	assert.ErrorIs(t, err, ledger.ErrNoRecords)

	require.NoError(t, l.Append(ctx, testutil.TestRoundMetrics("s1", 1, base)))
	require.NoError(t, l.Append(ctx, testutil.TestRoundMetrics("s2", 1, base.Add(time.Second))))
	require.NoError(t, l.Append(ctx, testutil.TestRoundMetrics("s1", 2, base.Add(2*time.Second))))

	cases := []struct {
		desc    string
		session string
		want    string
		round   uint64
		err     error
	}{
		{desc: "latest of session", session: "s2", want: "s2", round: 1},
		{desc: "latest across sessions", session: "", want: "s1", round: 2},
		{desc: "latest of unknown session", session: "s3", err: ledger.ErrNoRecords},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			r, err := l.Latest(ctx, tc.session)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, r.SessionID)
			assert.Equal(t, tc.round, r.Round)
		})
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	for round := uint64(1); round <= 250; round++ {
		require.NoError(t, l.Append(ctx, testutil.TestRoundMetrics("s1", round, time.Now())))
	}

	var rounds []uint64
	for r, err := range l.History(ctx, "s1") {
		require.NoError(t, err)
		rounds = append(rounds, r.Round)
	}
	require.Len(t, rounds, 250)
	for i, r := range rounds {
		assert.Equal(t, uint64(i+1), r)
	}

	n := 0
	for range l.History(ctx, "s1") {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)

	for _, err := range l.History(ctx, "unknown") {
		t.Fatalf("unexpected record, err %v", err)
	}

	page, err := l.Page(ctx, "s1", 240, 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), page.Total)
	assert.Len(t, page.Records, 10)

	page, err = l.Page(ctx, "unknown", 0, 20)
	require.NoError(t, err)
	assert.NotNil(t, page.Records)
	assert.Zero(t, page.Total)
}

func TestHistoryCancelled(t *testing.T) {
	l, _ := newLedger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, err := range l.History(ctx, "s1") {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
