package middleware

import (
	"context"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) observe(method string, begin time.Time) {
	mm.counter.With("method", method).Add(1)
	mm.latency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mm *metricsMiddleware) StartSession(ctx context.Context, cfg session.Config) (session.Session, error) {
	defer mm.observe("start-session", time.Now())

	return mm.svc.StartSession(ctx, cfg)
}

func (mm *metricsMiddleware) CancelSession(ctx context.Context, sessionID string) (session.Session, error) {
	defer mm.observe("cancel-session", time.Now())

	return mm.svc.CancelSession(ctx, sessionID)
}

func (mm *metricsMiddleware) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	defer mm.observe("get-session", time.Now())

	return mm.svc.GetSession(ctx, sessionID)
}

func (mm *metricsMiddleware) ListSessions(ctx context.Context, offset, limit uint64) (session.Page, error) {
	defer mm.observe("list-sessions", time.Now())

	return mm.svc.ListSessions(ctx, offset, limit)
}

func (mm *metricsMiddleware) Status(ctx context.Context) (coordinator.StatusReport, error) {
	defer mm.observe("status", time.Now())

	return mm.svc.Status(ctx)
}

func (mm *metricsMiddleware) RegisterClient(ctx context.Context, clientID string, samples uint64) (client.Client, error) {
	defer mm.observe("register-client", time.Now())

	return mm.svc.RegisterClient(ctx, clientID, samples)
}

func (mm *metricsMiddleware) Heartbeat(ctx context.Context, clientID string) (client.Client, error) {
	defer mm.observe("heartbeat", time.Now())

	return mm.svc.Heartbeat(ctx, clientID)
}

func (mm *metricsMiddleware) DisconnectClient(ctx context.Context, clientID string) (client.Client, error) {
	defer mm.observe("disconnect-client", time.Now())

	return mm.svc.DisconnectClient(ctx, clientID)
}

func (mm *metricsMiddleware) GetClient(ctx context.Context, clientID string) (client.Client, error) {
	defer mm.observe("get-client", time.Now())

	return mm.svc.GetClient(ctx, clientID)
}

func (mm *metricsMiddleware) ListClients(ctx context.Context, onlineOnly bool) ([]client.Client, error) {
	defer mm.observe("list-clients", time.Now())

	return mm.svc.ListClients(ctx, onlineOnly)
}

func (mm *metricsMiddleware) SubmitUpdate(ctx context.Context, u fl.Update) (res coordinator.SubmitResult, err error) {
	defer func(begin time.Time) {
		mm.observe("submit-update", begin)
		if err == nil && !res.Accepted {
			mm.counter.With("method", "reject-update").Add(1)
		}
	}(time.Now())

	return mm.svc.SubmitUpdate(ctx, u)
}

func (mm *metricsMiddleware) SubmitUpdateCBOR(ctx context.Context, data []byte) (res coordinator.SubmitResult, err error) {
	defer func(begin time.Time) {
		mm.observe("submit-update-cbor", begin)
		if err == nil && !res.Accepted {
			mm.counter.With("method", "reject-update").Add(1)
		}
	}(time.Now())

	return mm.svc.SubmitUpdateCBOR(ctx, data)
}

func (mm *metricsMiddleware) GlobalModel(ctx context.Context, sessionID string) (fl.Model, error) {
	defer mm.observe("global-model", time.Now())

	return mm.svc.GlobalModel(ctx, sessionID)
}

func (mm *metricsMiddleware) LatestMetrics(ctx context.Context, sessionID string) (fl.RoundMetrics, error) {
	defer mm.observe("latest-metrics", time.Now())

	return mm.svc.LatestMetrics(ctx, sessionID)
}

func (mm *metricsMiddleware) MetricsHistory(ctx context.Context, sessionID string, offset, limit uint64) (fl.RoundMetricsPage, error) {
	defer mm.observe("metrics-history", time.Now())

	return mm.svc.MetricsHistory(ctx, sessionID, offset, limit)
}

func (mm *metricsMiddleware) Snapshot(ctx context.Context) (events.Snapshot, error) {
	defer mm.observe("snapshot", time.Now())

	return mm.svc.Snapshot(ctx)
}

func (mm *metricsMiddleware) Subscribe(ctx context.Context) (*events.Subscription, error) {
	defer mm.observe("subscribe", time.Now())

	return mm.svc.Subscribe(ctx)
}

func (mm *metricsMiddleware) SweepClients(ctx context.Context) ([]string, error) {
	defer mm.observe("sweep-clients", time.Now())

	return mm.svc.SweepClients(ctx)
}

func (mm *metricsMiddleware) RecoverInterruptedSessions(ctx context.Context) error {
	defer mm.observe("recover-interrupted-sessions", time.Now())

	return mm.svc.RecoverInterruptedSessions(ctx)
}

func (mm *metricsMiddleware) Shutdown(ctx context.Context) error {
	defer mm.observe("shutdown", time.Now())

	return mm.svc.Shutdown(ctx)
}
