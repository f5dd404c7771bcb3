package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) StartSession(ctx context.Context, cfg session.Config) (s session.Session, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("session",
				slog.String("id", s.ID),
				slog.String("project_id", cfg.ProjectID),
				slog.Uint64("total_rounds", cfg.TotalRounds),
				slog.Uint64("min_clients", cfg.MinClients),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Start session failed", args...)

			return
		}
		lm.logger.Info("Start session completed successfully", args...)
	}(time.Now())

	return lm.svc.StartSession(ctx, cfg)
}

func (lm *loggingMiddleware) CancelSession(ctx context.Context, sessionID string) (s session.Session, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("session",
				slog.String("id", sessionID),
				slog.String("state", string(s.State)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Cancel session failed", args...)

			return
		}
		lm.logger.Info("Cancel session completed successfully", args...)
	}(time.Now())

	return lm.svc.CancelSession(ctx, sessionID)
}

func (lm *loggingMiddleware) GetSession(ctx context.Context, sessionID string) (s session.Session, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("session",
				slog.String("id", sessionID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get session failed", args...)

			return
		}
		lm.logger.Info("Get session completed successfully", args...)
	}(time.Now())

	return lm.svc.GetSession(ctx, sessionID)
}

func (lm *loggingMiddleware) ListSessions(ctx context.Context, offset, limit uint64) (resp session.Page, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List sessions failed", args...)

			return
		}
		lm.logger.Info("List sessions completed successfully", args...)
	}(time.Now())

	return lm.svc.ListSessions(ctx, offset, limit)
}

func (lm *loggingMiddleware) Status(ctx context.Context) (resp coordinator.StatusReport, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", resp.SessionID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Status failed", args...)

			return
		}
		lm.logger.Debug("Status completed successfully", args...)
	}(time.Now())

	return lm.svc.Status(ctx)
}

func (lm *loggingMiddleware) RegisterClient(ctx context.Context, clientID string, samples uint64) (c client.Client, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("client",
				slog.String("id", clientID),
				slog.Uint64("samples", samples),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Register client failed", args...)

			return
		}
		lm.logger.Info("Register client completed successfully", args...)
	}(time.Now())

	return lm.svc.RegisterClient(ctx, clientID, samples)
}

func (lm *loggingMiddleware) Heartbeat(ctx context.Context, clientID string) (c client.Client, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("client_id", clientID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Heartbeat failed", args...)

			return
		}
		lm.logger.Debug("Heartbeat completed successfully", args...)
	}(time.Now())

	return lm.svc.Heartbeat(ctx, clientID)
}

func (lm *loggingMiddleware) DisconnectClient(ctx context.Context, clientID string) (c client.Client, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("client_id", clientID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Disconnect client failed", args...)

			return
		}
		lm.logger.Info("Disconnect client completed successfully", args...)
	}(time.Now())

	return lm.svc.DisconnectClient(ctx, clientID)
}

func (lm *loggingMiddleware) GetClient(ctx context.Context, clientID string) (c client.Client, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("client_id", clientID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get client failed", args...)

			return
		}
		lm.logger.Info("Get client completed successfully", args...)
	}(time.Now())

	return lm.svc.GetClient(ctx, clientID)
}

func (lm *loggingMiddleware) ListClients(ctx context.Context, onlineOnly bool) (resp []client.Client, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Bool("online_only", onlineOnly),
			slog.Int("count", len(resp)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List clients failed", args...)

			return
		}
		lm.logger.Info("List clients completed successfully", args...)
	}(time.Now())

	return lm.svc.ListClients(ctx, onlineOnly)
}

func (lm *loggingMiddleware) SubmitUpdate(ctx context.Context, u fl.Update) (res coordinator.SubmitResult, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("update",
				slog.String("client_id", u.ClientID),
				slog.String("session_id", res.SessionID),
				slog.Uint64("round", u.Round),
				slog.Uint64("num_samples", u.NumSamples),
			),
			slog.Bool("accepted", res.Accepted),
		}
		if res.Reason != "" {
			args = append(args, slog.String("reason", string(res.Reason)))
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Submit update failed", args...)

			return
		}
		lm.logger.Info("Submit update completed successfully", args...)
	}(time.Now())

	return lm.svc.SubmitUpdate(ctx, u)
}

func (lm *loggingMiddleware) SubmitUpdateCBOR(ctx context.Context, data []byte) (res coordinator.SubmitResult, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("size", len(data)),
			slog.String("session_id", res.SessionID),
			slog.Bool("accepted", res.Accepted),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Submit CBOR update failed", args...)

			return
		}
		lm.logger.Info("Submit CBOR update completed successfully", args...)
	}(time.Now())

	return lm.svc.SubmitUpdateCBOR(ctx, data)
}

func (lm *loggingMiddleware) GlobalModel(ctx context.Context, sessionID string) (m fl.Model, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("model",
				slog.String("session_id", sessionID),
				slog.Uint64("version", m.Version),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get global model failed", args...)

			return
		}
		lm.logger.Info("Get global model completed successfully", args...)
	}(time.Now())

	return lm.svc.GlobalModel(ctx, sessionID)
}

func (lm *loggingMiddleware) LatestMetrics(ctx context.Context, sessionID string) (rec fl.RoundMetrics, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", sessionID),
			slog.Uint64("round", rec.Round),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get latest metrics failed", args...)

			return
		}
		lm.logger.Info("Get latest metrics completed successfully", args...)
	}(time.Now())

	return lm.svc.LatestMetrics(ctx, sessionID)
}

func (lm *loggingMiddleware) MetricsHistory(ctx context.Context, sessionID string, offset, limit uint64) (resp fl.RoundMetricsPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", sessionID),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get metrics history failed", args...)

			return
		}
		lm.logger.Info("Get metrics history completed successfully", args...)
	}(time.Now())

	return lm.svc.MetricsHistory(ctx, sessionID, offset, limit)
}

func (lm *loggingMiddleware) Snapshot(ctx context.Context) (snap events.Snapshot, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("online_clients", len(snap.Clients)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Snapshot failed", args...)

			return
		}
		lm.logger.Info("Snapshot completed successfully", args...)
	}(time.Now())

	return lm.svc.Snapshot(ctx)
}

func (lm *loggingMiddleware) Subscribe(ctx context.Context) (sub *events.Subscription, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Subscribe to events failed", args...)

			return
		}
		lm.logger.Info("Subscribe to events completed successfully", args...)
	}(time.Now())

	return lm.svc.Subscribe(ctx)
}

func (lm *loggingMiddleware) SweepClients(ctx context.Context) (ids []string, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Any("offline", ids),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Sweep clients failed", args...)

			return
		}
		lm.logger.Debug("Sweep clients completed successfully", args...)
	}(time.Now())

	return lm.svc.SweepClients(ctx)
}

func (lm *loggingMiddleware) RecoverInterruptedSessions(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Recover interrupted sessions failed", args...)

			return
		}
		lm.logger.Info("Recover interrupted sessions completed successfully", args...)
	}(time.Now())

	return lm.svc.RecoverInterruptedSessions(ctx)
}

func (lm *loggingMiddleware) Shutdown(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Shutdown failed", args...)

			return
		}
		lm.logger.Info("Shutdown completed successfully", args...)
	}(time.Now())

	return lm.svc.Shutdown(ctx)
}
