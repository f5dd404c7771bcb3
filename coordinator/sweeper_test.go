package coordinator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/coordinator/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestSweeper(t *testing.T) {
	cases := []struct {
		desc string
		ids  []string
		err  error
	}{
		{desc: "sweep marks clients offline", ids: []string{"a", "b"}},
		{desc: "sweep error keeps the loop alive", err: errors.New("storage down")},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			svc := new(mocks.MockService)
			swept := make(chan struct{}, 16)
			svc.On("SweepClients", mock.Anything).
				Run(func(mock.Arguments) {
					select {
					case swept <- struct{}{}:
					default:
					}
				}).
				Return(tc.ids, tc.err)

			s := coordinator.NewSweeper(svc, 5*time.Millisecond, testLogger())
			done := make(chan error, 1)
			go func() { done <- s.Start(context.Background()) }()

			for range 2 {
				select {
				case <-swept:
				case <-time.After(waitFor):
					t.Fatal("sweeper did not tick")
				}
			}
			s.Stop()
			assert.NoError(t, <-done)
		})
	}
}

func TestSweeperStopsWithContext(t *testing.T) {
	svc := new(mocks.MockService)
	svc.On("SweepClients", mock.Anything).Return([]string(nil), nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	s := coordinator.NewSweeper(svc, time.Hour, testLogger())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
