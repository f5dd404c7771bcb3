package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/coordinator/middleware"
	"github.com/absmach/flcoord/coordinator/mocks"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestDecoratorsDelegate(t *testing.T) {
	inner := new(mocks.MockService)
	counter := generic.NewCounter("requests")
	latency := generic.NewHistogram("latency", 10)

	svc := middleware.Logging(slog.Default(), inner)
	svc = middleware.Tracing(noop.NewTracerProvider().Tracer("test"), svc)
	svc = middleware.Metrics(counter, latency, svc)

	cfg := session.Config{ProjectID: "p", TotalRounds: 2, MinClients: 1}
	inner.On("StartSession", mock.Anything, cfg).Return(session.Session{ID: "s1"}, nil).Once()
	inner.On("CancelSession", mock.Anything, "missing").Return(session.Session{}, coordinator.ErrSessionNotFound).Once()
	inner.On("SubmitUpdate", mock.Anything, mock.AnythingOfType("fl.Update")).
		Return(coordinator.SubmitResult{Reason: coordinator.RejectStaleRound}, nil).Once()

	cases := []struct {
		desc string
		call func() error
		err  error
	}{
		{
			desc: "start session",
			call: func() error {
				s, err := svc.StartSession(context.Background(), cfg)
				assert.Equal(t, "s1", s.ID)

				return err
			},
		},
		{
			desc: "cancel unknown session",
			call: func() error {
				_, err := svc.CancelSession(context.Background(), "missing")

				return err
			},
			err: coordinator.ErrSessionNotFound,
		},
		{
			desc: "rejected update",
			call: func() error {
				res, err := svc.SubmitUpdate(context.Background(), fl.Update{ClientID: "a", Round: 1})
				assert.False(t, res.Accepted)

				return err
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.call()
			assert.True(t, errors.Is(err, tc.err), "expected %v got %v", tc.err, err)
		})
	}

	inner.AssertExpectations(t)
	// three calls plus one rejection
	assert.Equal(t, float64(4), counter.Value())
}
