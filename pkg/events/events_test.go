package events_test

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestEncodeDecode(t *testing.T) {
	cases := []struct {
		desc    string
		payload events.Payload
	}{
		{desc: "training started", payload: events.TrainingStartedData{SessionID: "s1"}},
		{
			desc: "round started",
			payload: events.RoundStartedData{
				SessionID: "s1", Round: 2, ModelVersion: 1, Participants: []string{"a", "b"},
			},
		},
		{
			desc: "metrics update",
			payload: events.MetricsUpdateData{
				SessionID: "s1", Round: 1, Accuracy: 0.765, Loss: 0.4, NumClients: 3,
			},
		},
		{desc: "client registered", payload: events.ClientRegisteredData{ClientID: "hospital_a"}},
		{desc: "training completed", payload: events.TrainingCompletedData{SessionID: "s1"}},
		{
			desc: "training failed",
			payload: events.TrainingFailedData{
				SessionID: "s1", Reason: session.ReasonQuorumTimeout, Message: "no quorum",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			e := events.New(tc.payload, ts)
			data, err := events.Encode(e)
			require.NoError(t, err)

			got, err := events.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, e.Type, got.Type)
			assert.True(t, ts.Equal(got.Timestamp))
			assert.Equal(t, tc.payload, got.Data)
		})
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	cases := []struct {
		desc string
		data string
		err  error
	}{
		{desc: "not json", data: "{", err: events.ErrMalformed},
		{desc: "unknown type", data: `{"type":"nope","data":{}}`, err: events.ErrUnknownType},
		{desc: "missing data", data: `{"type":"training_started"}`, err: events.ErrMalformed},
		{desc: "wrong data shape", data: `{"type":"round_started","data":{"round":"x"}}`, err: events.ErrMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := events.Decode([]byte(tc.data))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestEncodeRejectsMismatchedType(t *testing.T) {
	_, err := events.Encode(events.Event{Type: events.TrainingFailed, Data: events.TrainingStartedData{}})
	assert.ErrorIs(t, err, events.ErrMalformed)
}

func TestBroadcasterOrder(t *testing.T) {
	b := events.NewBroadcaster(16, slog.Default())
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	for i := range uint64(5) {
		b.Publish(events.New(events.MetricsUpdateData{Round: i + 1}, ts))
	}

	for _, s := range []*events.Subscription{s1, s2} {
		for i := range uint64(5) {
			e := <-s.Events()
			assert.Equal(t, i+1, e.Data.(events.MetricsUpdateData).Round)
		}
	}
}

func TestBroadcasterSlowSubscriberDoesNotBlock(t *testing.T) {
	b := events.NewBroadcaster(2, slog.Default())
	slow := b.Subscribe()
	fast := b.Subscribe()

	var wg sync.WaitGroup
	received := 0
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range fast.Events() {
			received++
		}
	}()

	done := make(chan struct{})
	go func() {
		for range 10 {
			b.Publish(events.New(events.TrainingStartedData{SessionID: "s"}, ts))
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Equal(t, uint64(8), slow.Dropped())
	fast.Close()
	wg.Wait()
	assert.GreaterOrEqual(t, received, 2)
}

func TestBroadcasterCloseAndUnsubscribe(t *testing.T) {
	b := events.NewBroadcaster(4, slog.Default())
	s := b.Subscribe()
	assert.Equal(t, 1, b.Len())

	s.Close()
	s.Close()
	assert.Zero(t, b.Len())
	_, ok := <-s.Events()
	assert.False(t, ok)

	other := b.Subscribe()
	b.Close()
	_, ok = <-other.Events()
	assert.False(t, ok)

	late := b.Subscribe()
	_, ok = <-late.Events()
	assert.False(t, ok)

	b.Publish(events.New(events.TrainingStartedData{}, ts))
}
