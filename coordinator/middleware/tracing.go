package middleware

import (
	"context"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) StartSession(ctx context.Context, cfg session.Config) (session.Session, error) {
	ctx, span := tm.tracer.Start(ctx, "start-session", trace.WithAttributes(
		attribute.String("project_id", cfg.ProjectID),
		attribute.Int64("total_rounds", int64(cfg.TotalRounds)),
		attribute.Int64("min_clients", int64(cfg.MinClients)),
	))
	defer span.End()

	return tm.svc.StartSession(ctx, cfg)
}

func (tm *tracing) CancelSession(ctx context.Context, sessionID string) (session.Session, error) {
	ctx, span := tm.tracer.Start(ctx, "cancel-session", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	return tm.svc.CancelSession(ctx, sessionID)
}

func (tm *tracing) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	ctx, span := tm.tracer.Start(ctx, "get-session", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	return tm.svc.GetSession(ctx, sessionID)
}

func (tm *tracing) ListSessions(ctx context.Context, offset, limit uint64) (session.Page, error) {
	ctx, span := tm.tracer.Start(ctx, "list-sessions", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListSessions(ctx, offset, limit)
}

func (tm *tracing) Status(ctx context.Context) (coordinator.StatusReport, error) {
	ctx, span := tm.tracer.Start(ctx, "status")
	defer span.End()

	return tm.svc.Status(ctx)
}

func (tm *tracing) RegisterClient(ctx context.Context, clientID string, samples uint64) (client.Client, error) {
	ctx, span := tm.tracer.Start(ctx, "register-client", trace.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Int64("samples", int64(samples)),
	))
	defer span.End()

	return tm.svc.RegisterClient(ctx, clientID, samples)
}

func (tm *tracing) Heartbeat(ctx context.Context, clientID string) (client.Client, error) {
	ctx, span := tm.tracer.Start(ctx, "heartbeat", trace.WithAttributes(
		attribute.String("client_id", clientID),
	))
	defer span.End()

	return tm.svc.Heartbeat(ctx, clientID)
}

func (tm *tracing) DisconnectClient(ctx context.Context, clientID string) (client.Client, error) {
	ctx, span := tm.tracer.Start(ctx, "disconnect-client", trace.WithAttributes(
		attribute.String("client_id", clientID),
	))
	defer span.End()

	return tm.svc.DisconnectClient(ctx, clientID)
}

func (tm *tracing) GetClient(ctx context.Context, clientID string) (client.Client, error) {
	ctx, span := tm.tracer.Start(ctx, "get-client", trace.WithAttributes(
		attribute.String("client_id", clientID),
	))
	defer span.End()

	return tm.svc.GetClient(ctx, clientID)
}

func (tm *tracing) ListClients(ctx context.Context, onlineOnly bool) ([]client.Client, error) {
	ctx, span := tm.tracer.Start(ctx, "list-clients", trace.WithAttributes(
		attribute.Bool("online_only", onlineOnly),
	))
	defer span.End()

	return tm.svc.ListClients(ctx, onlineOnly)
}

func (tm *tracing) SubmitUpdate(ctx context.Context, u fl.Update) (coordinator.SubmitResult, error) {
	ctx, span := tm.tracer.Start(ctx, "submit-update", trace.WithAttributes(
		attribute.String("client_id", u.ClientID),
		attribute.String("session_id", u.SessionID),
		attribute.Int64("round", int64(u.Round)),
	))
	defer span.End()

	res, err := tm.svc.SubmitUpdate(ctx, u)
	if res.Reason != "" {
		span.SetAttributes(attribute.String("reject_reason", string(res.Reason)))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	return res, err
}

func (tm *tracing) SubmitUpdateCBOR(ctx context.Context, data []byte) (coordinator.SubmitResult, error) {
	ctx, span := tm.tracer.Start(ctx, "submit-update-cbor", trace.WithAttributes(
		attribute.Int("size", len(data)),
	))
	defer span.End()

	return tm.svc.SubmitUpdateCBOR(ctx, data)
}

func (tm *tracing) GlobalModel(ctx context.Context, sessionID string) (fl.Model, error) {
	ctx, span := tm.tracer.Start(ctx, "global-model", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	return tm.svc.GlobalModel(ctx, sessionID)
}

func (tm *tracing) LatestMetrics(ctx context.Context, sessionID string) (fl.RoundMetrics, error) {
	ctx, span := tm.tracer.Start(ctx, "latest-metrics", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	return tm.svc.LatestMetrics(ctx, sessionID)
}

func (tm *tracing) MetricsHistory(ctx context.Context, sessionID string, offset, limit uint64) (fl.RoundMetricsPage, error) {
	ctx, span := tm.tracer.Start(ctx, "metrics-history", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.MetricsHistory(ctx, sessionID, offset, limit)
}

func (tm *tracing) Snapshot(ctx context.Context) (events.Snapshot, error) {
	ctx, span := tm.tracer.Start(ctx, "snapshot")
	defer span.End()

	return tm.svc.Snapshot(ctx)
}

// Subscribe hands the caller's context to the service unchanged so the
// subscription lives past the span.
func (tm *tracing) Subscribe(ctx context.Context) (*events.Subscription, error) {
	_, span := tm.tracer.Start(ctx, "subscribe")
	defer span.End()

	return tm.svc.Subscribe(ctx)
}

func (tm *tracing) SweepClients(ctx context.Context) ([]string, error) {
	ctx, span := tm.tracer.Start(ctx, "sweep-clients")
	defer span.End()

	return tm.svc.SweepClients(ctx)
}

func (tm *tracing) RecoverInterruptedSessions(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "recover-interrupted-sessions")
	defer span.End()

	return tm.svc.RecoverInterruptedSessions(ctx)
}

func (tm *tracing) Shutdown(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "shutdown")
	defer span.End()

	return tm.svc.Shutdown(ctx)
}
