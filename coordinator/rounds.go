package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/registry"
	"github.com/absmach/flcoord/pkg/session"
)

type deadline uint8

const (
	quorumDeadline deadline = iota
	roundDeadline
)

func (svc *service) SubmitUpdate(ctx context.Context, u fl.Update) (SubmitResult, error) {
	if err := u.Validate(); err != nil {
		return SubmitResult{}, errors.Join(ErrInvalidUpdate, err)
	}
	if _, err := svc.registry.Heartbeat(ctx, u.ClientID); err != nil {
		if errors.Is(err, registry.ErrClientNotFound) {
			return SubmitResult{SessionID: u.SessionID, Round: u.Round, Reason: RejectUnknownClient}, nil
		}

		return SubmitResult{}, err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	r, reject, err := svc.resolve(ctx, u.SessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	res := SubmitResult{SessionID: u.SessionID, Round: u.Round}
	if r == nil {
		res.Reason = reject

		return res, nil
	}
	res.SessionID = r.sess.ID

	closed := r.sess.State != session.RoundActive && r.sess.CurrentRound > 0
	switch {
	case u.Round < r.sess.CurrentRound, u.Round == r.sess.CurrentRound && closed:
		res.Reason = RejectStaleRound
	case r.sess.State != session.RoundActive:
		res.Reason = RejectSessionNotRunning
	case u.Round > r.sess.CurrentRound:
		res.Reason = RejectFutureRound
	}
	if res.Reason != "" {
		svc.logger.InfoContext(ctx, "round update rejected",
			slog.String("session_id", r.sess.ID),
			slog.String("client_id", u.ClientID),
			slog.Uint64("round", u.Round),
			slog.Uint64("current_round", r.sess.CurrentRound),
			slog.String("reason", string(res.Reason)),
		)

		return res, nil
	}

	u.SessionID = r.sess.ID
	u.ReceivedAt = svc.now()
	replaced, err := r.pool.Accumulate(u)
	if err != nil {
		return SubmitResult{}, err
	}
	res.Accepted = true
	res.Replaced = replaced

	if uint64(r.pool.Len()) >= r.sess.MinClients {
		svc.aggregate(ctx, r)
		res.Aggregated = true
	}

	return res, nil
}

// resolve finds the run an update targets. Must be called with svc.mu held.
func (svc *service) resolve(ctx context.Context, sessionID string) (*run, RejectReason, error) {
	if sessionID != "" {
		if r, ok := svc.runs[sessionID]; ok {
			return r, "", nil
		}
		if _, err := svc.storedSession(ctx, sessionID); err != nil {
			return nil, "", err
		}

		return nil, RejectSessionNotRunning, nil
	}

	var found *run
	for _, r := range svc.runs {
		if r.sess.State != session.RoundActive {
			continue
		}
		if found != nil {
			return nil, "", ErrAmbiguousSession
		}
		found = r
	}
	if found == nil {
		return nil, RejectSessionNotRunning, nil
	}

	return found, "", nil
}

// awaitQuorum opens the next round when enough clients are online, or
// waits for them until the quorum deadline. Must be called with svc.mu held.
func (svc *service) awaitQuorum(ctx context.Context, r *run) {
	online := uint64(svc.registry.CountOnline())
	if online >= r.sess.MinClients {
		svc.startRound(ctx, r)

		return
	}

	if r.sess.State != session.AwaitingQuorum {
		r.sess.SetState(session.AwaitingQuorum, svc.now())
		svc.persist(ctx, r)
	}
	svc.arm(r, r.sess.QuorumTimeout.Std(), quorumDeadline)
	svc.logger.InfoContext(ctx, "waiting for quorum",
		slog.String("session_id", r.sess.ID),
		slog.Uint64("online", online),
		slog.Uint64("min_clients", r.sess.MinClients),
	)
}

// startRound must be called with svc.mu held.
func (svc *service) startRound(ctx context.Context, r *run) {
	round := r.sess.CurrentRound + 1
	participants, err := svc.scheduler.SelectParticipants(round, svc.registry.ListOnline(ctx), r.sess.MaxParticipants)
	if err != nil {
		svc.logger.WarnContext(ctx, "failed to select round participants",
			slog.String("session_id", r.sess.ID),
			slog.Uint64("round", round),
			slog.Any("error", err),
		)
	}

	now := svc.now()
	r.sess.CurrentRound = round
	r.sess.SetState(session.RoundActive, now)
	r.pool.Reset(round)
	svc.persist(ctx, r)
	svc.arm(r, r.sess.RoundTimeout.Std(), roundDeadline)

	var version uint64
	if m := r.model.Load(); m != nil {
		version = m.Version
	}
	svc.logger.InfoContext(ctx, "round started",
		slog.String("session_id", r.sess.ID),
		slog.Uint64("round", round),
		slog.Int("participants", len(participants)),
	)
	svc.publish(events.RoundStartedData{
		SessionID:    r.sess.ID,
		Round:        round,
		ModelVersion: version,
		Participants: participants,
	})
	svc.invite(RoundInvitation{
		SessionID:    r.sess.ID,
		Round:        round,
		ModelVersion: version,
		Participants: participants,
		Deadline:     now.Add(r.sess.RoundTimeout.Std()),
	})
}

// aggregate closes the current round. Must be called with svc.mu held.
func (svc *service) aggregate(ctx context.Context, r *run) {
	svc.disarm(r)
	now := svc.now()
	r.sess.SetState(session.Aggregating, now)
	round := r.sess.CurrentRound

	res, err := svc.aggregator.Aggregate(r.pool.Drain())
	if err != nil {
		svc.fail(ctx, r, session.ReasonAggregationFailed, err.Error())

		return
	}

	model := fl.Model{SessionID: r.sess.ID, Version: round, Weights: res.Weights, CreatedAt: now}
	r.model.Store(&model)
	if err := svc.models.Save(ctx, model); err != nil {
		svc.logger.ErrorContext(ctx, "failed to store global model",
			slog.String("session_id", r.sess.ID),
			slog.Uint64("version", model.Version),
			slog.Any("error", err),
		)
	}

	rec := fl.RoundMetrics{
		SessionID:     r.sess.ID,
		Round:         round,
		Accuracy:      res.Accuracy,
		Loss:          res.Loss,
		NumClients:    res.NumClients,
		TotalSamples:  res.TotalSamples,
		Contributions: res.Contributions,
		Timestamp:     now,
	}
	if err := svc.ledger.Append(ctx, rec); err != nil {
		svc.fail(ctx, r, session.ReasonLedgerIntegrity, err.Error())

		return
	}

	svc.logger.InfoContext(ctx, "round aggregated",
		slog.String("session_id", r.sess.ID),
		slog.Uint64("round", round),
		slog.Float64("accuracy", res.Accuracy),
		slog.Float64("loss", res.Loss),
		slog.Uint64("num_clients", res.NumClients),
	)
	svc.publish(events.MetricsUpdateData{
		SessionID:  r.sess.ID,
		Round:      round,
		Accuracy:   res.Accuracy,
		Loss:       res.Loss,
		NumClients: res.NumClients,
	})

	if round >= r.sess.TotalRounds {
		svc.complete(ctx, r)

		return
	}
	svc.awaitQuorum(ctx, r)
}

// complete must be called with svc.mu held.
func (svc *service) complete(ctx context.Context, r *run) {
	svc.disarm(r)
	r.sess.SetState(session.Completed, svc.now())
	svc.persist(ctx, r)
	svc.release(r)

	attrs := []any{
		slog.String("session_id", r.sess.ID),
		slog.Uint64("rounds", r.sess.CurrentRound),
	}
	if best, ok := svc.bestRound(ctx, r.sess.ID); ok {
		attrs = append(attrs,
			slog.Uint64("best_round", best.Round),
			slog.Float64("best_accuracy", best.Accuracy),
		)
	}
	svc.logger.InfoContext(ctx, "training session completed", attrs...)
	svc.publish(events.TrainingCompletedData{SessionID: r.sess.ID})

	if svc.exporter == nil {
		return
	}
	if m := r.model.Load(); m != nil {
		path, err := svc.exporter.Export(*m)
		if err != nil {
			svc.logger.WarnContext(ctx, "failed to export final model",
				slog.String("session_id", r.sess.ID),
				slog.Any("error", err),
			)

			return
		}
		svc.logger.InfoContext(ctx, "exported final model", slog.String("path", path))
	}
}

// bestRound finds the most accurate recorded round of a session.
func (svc *service) bestRound(ctx context.Context, sessionID string) (fl.RoundMetrics, bool) {
	var (
		best  fl.RoundMetrics
		found bool
	)
	for rec, err := range svc.ledger.History(ctx, sessionID) {
		if err != nil {
			svc.logger.WarnContext(ctx, "failed to read metrics history",
				slog.String("session_id", sessionID),
				slog.Any("error", err),
			)

			return fl.RoundMetrics{}, false
		}
		if !found || rec.Accuracy > best.Accuracy {
			best, found = rec, true
		}
	}

	return best, found
}

// fail must be called with svc.mu held.
func (svc *service) fail(ctx context.Context, r *run, reason session.Reason, msg string) {
	svc.disarm(r)
	r.pool.Drain()
	r.sess.Fail(reason, msg, svc.now())
	svc.persist(ctx, r)
	svc.release(r)

	svc.logger.WarnContext(ctx, "training session failed",
		slog.String("session_id", r.sess.ID),
		slog.Uint64("round", r.sess.CurrentRound),
		slog.String("reason", string(reason)),
		slog.String("message", msg),
	)
	svc.publish(events.TrainingFailedData{SessionID: r.sess.ID, Reason: reason, Message: msg})
}

// release forgets a finished run. Its last model stays readable from the
// model repository.
func (svc *service) release(r *run) {
	delete(svc.runs, r.sess.ID)
	svc.heads.Delete(r.sess.ID)
	if svc.projects[r.sess.ProjectID] == r.sess.ID {
		delete(svc.projects, r.sess.ProjectID)
	}
}

func (svc *service) persist(ctx context.Context, r *run) {
	if err := svc.sessions.Update(ctx, r.sess); err != nil {
		svc.logger.ErrorContext(ctx, "failed to store session state",
			slog.String("session_id", r.sess.ID),
			slog.String("state", string(r.sess.State)),
			slog.Any("error", err),
		)
	}
}

// arm replaces the run's deadline. A timer that fires after the run moved on
// finds a newer generation and does nothing.
func (svc *service) arm(r *run, d time.Duration, kind deadline) {
	svc.disarm(r)
	gen, id := r.gen, r.sess.ID
	r.timer = time.AfterFunc(d, func() {
		svc.onDeadline(id, gen, kind)
	})
}

func (svc *service) disarm(r *run) {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (svc *service) onDeadline(sessionID string, gen uint64, kind deadline) {
	ctx := context.Background()

	svc.mu.Lock()
	defer svc.mu.Unlock()

	r, ok := svc.runs[sessionID]
	if !ok || r.gen != gen {
		return
	}

	switch {
	case kind == quorumDeadline && r.sess.State == session.AwaitingQuorum:
		svc.fail(ctx, r, session.ReasonQuorumTimeout,
			fmt.Sprintf("fewer than %d clients online after %s", r.sess.MinClients, r.sess.QuorumTimeout.Std()))
	case kind == roundDeadline && r.sess.State == session.RoundActive:
		if r.pool.Len() == 0 {
			svc.fail(ctx, r, session.ReasonRoundTimeout,
				fmt.Sprintf("no updates received for round %d", r.sess.CurrentRound))

			return
		}
		svc.logger.WarnContext(ctx, "round deadline reached, aggregating partial pool",
			slog.String("session_id", r.sess.ID),
			slog.Uint64("round", r.sess.CurrentRound),
			slog.Int("updates", r.pool.Len()),
			slog.Uint64("min_clients", r.sess.MinClients),
		)
		svc.aggregate(ctx, r)
	}
}

// onClientChange reacts to registry changes. It runs outside the registry
// lock, so taking svc.mu here keeps the coordinator-then-registry order.
func (svc *service) onClientChange(kind registry.ChangeKind, c client.Client) {
	ctx := context.Background()

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.closed {
		return
	}
	if kind == registry.Joined {
		svc.publish(events.ClientRegisteredData{ClientID: c.ID})
	}

	for _, r := range svc.sortedRuns() {
		switch {
		case kind != registry.WentOffline && r.sess.State == session.AwaitingQuorum:
			if uint64(svc.registry.CountOnline()) >= r.sess.MinClients {
				svc.startRound(ctx, r)
			}
		case kind == registry.WentOffline && r.sess.State == session.RoundActive:
			if svc.registry.CountOnline() == 0 && r.pool.Len() == 0 {
				svc.fail(ctx, r, session.ReasonQuorumLost,
					fmt.Sprintf("every client went offline during round %d", r.sess.CurrentRound))
			}
		}
	}
}

func (svc *service) invite(inv RoundInvitation) {
	if svc.notifier == nil {
		return
	}

	svc.inflight.Add(1)
	go func() {
		defer svc.inflight.Done()
		if err := svc.notifier.NotifyRoundStart(context.Background(), inv); err != nil {
			svc.logger.Warn("failed to send round invitation",
				slog.String("session_id", inv.SessionID),
				slog.Uint64("round", inv.Round),
				slog.Any("error", err),
			)
		}
	}()
}
