package mocks

import (
	"context"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
	"github.com/stretchr/testify/mock"
)

var _ coordinator.Service = (*MockService)(nil)

// MockService is a mock implementation of the coordinator.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) StartSession(ctx context.Context, cfg session.Config) (session.Session, error) {
	args := m.Called(ctx, cfg)

	return args.Get(0).(session.Session), args.Error(1)
}

func (m *MockService) CancelSession(ctx context.Context, sessionID string) (session.Session, error) {
	args := m.Called(ctx, sessionID)

	return args.Get(0).(session.Session), args.Error(1)
}

func (m *MockService) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	args := m.Called(ctx, sessionID)

	return args.Get(0).(session.Session), args.Error(1)
}

func (m *MockService) ListSessions(ctx context.Context, offset, limit uint64) (session.Page, error) {
	args := m.Called(ctx, offset, limit)

	return args.Get(0).(session.Page), args.Error(1)
}

func (m *MockService) Status(ctx context.Context) (coordinator.StatusReport, error) {
	args := m.Called(ctx)

	return args.Get(0).(coordinator.StatusReport), args.Error(1)
}

func (m *MockService) RegisterClient(ctx context.Context, clientID string, samples uint64) (client.Client, error) {
	args := m.Called(ctx, clientID, samples)

	return args.Get(0).(client.Client), args.Error(1)
}

func (m *MockService) Heartbeat(ctx context.Context, clientID string) (client.Client, error) {
	args := m.Called(ctx, clientID)

	return args.Get(0).(client.Client), args.Error(1)
}

func (m *MockService) DisconnectClient(ctx context.Context, clientID string) (client.Client, error) {
	args := m.Called(ctx, clientID)

	return args.Get(0).(client.Client), args.Error(1)
}

func (m *MockService) GetClient(ctx context.Context, clientID string) (client.Client, error) {
	args := m.Called(ctx, clientID)

	return args.Get(0).(client.Client), args.Error(1)
}

func (m *MockService) ListClients(ctx context.Context, onlineOnly bool) ([]client.Client, error) {
	args := m.Called(ctx, onlineOnly)

	return args.Get(0).([]client.Client), args.Error(1)
}

func (m *MockService) SubmitUpdate(ctx context.Context, update fl.Update) (coordinator.SubmitResult, error) {
	args := m.Called(ctx, update)

	return args.Get(0).(coordinator.SubmitResult), args.Error(1)
}

func (m *MockService) SubmitUpdateCBOR(ctx context.Context, data []byte) (coordinator.SubmitResult, error) {
	args := m.Called(ctx, data)

	return args.Get(0).(coordinator.SubmitResult), args.Error(1)
}

func (m *MockService) GlobalModel(ctx context.Context, sessionID string) (fl.Model, error) {
	args := m.Called(ctx, sessionID)

	return args.Get(0).(fl.Model), args.Error(1)
}

func (m *MockService) LatestMetrics(ctx context.Context, sessionID string) (fl.RoundMetrics, error) {
	args := m.Called(ctx, sessionID)

	return args.Get(0).(fl.RoundMetrics), args.Error(1)
}

func (m *MockService) MetricsHistory(ctx context.Context, sessionID string, offset, limit uint64) (fl.RoundMetricsPage, error) {
	args := m.Called(ctx, sessionID, offset, limit)

	return args.Get(0).(fl.RoundMetricsPage), args.Error(1)
}

func (m *MockService) Snapshot(ctx context.Context) (events.Snapshot, error) {
	args := m.Called(ctx)

	return args.Get(0).(events.Snapshot), args.Error(1)
}

func (m *MockService) Subscribe(ctx context.Context) (*events.Subscription, error) {
	args := m.Called(ctx)

	sub, _ := args.Get(0).(*events.Subscription)

	return sub, args.Error(1)
}

func (m *MockService) SweepClients(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)

	ids, _ := args.Get(0).([]string)

	return ids, args.Error(1)
}

func (m *MockService) RecoverInterruptedSessions(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockService) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
