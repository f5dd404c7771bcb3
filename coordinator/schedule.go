package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/absmach/flcoord/pkg/cron"
	"github.com/absmach/flcoord/pkg/session"
)

const defaultScheduleCheckInterval = 30 * time.Second

// SessionScheduler starts a session from a fixed template every time its
// cron schedule fires. A firing that finds the project still training is
// skipped.
type SessionScheduler interface {
	Start(ctx context.Context) error
	Stop()
	NextRun() time.Time
}

type sessionScheduler struct {
	service       Service
	schedule      *cron.Schedule
	template      session.Config
	logger        *slog.Logger
	checkInterval time.Duration
	now           func() time.Time
	next          chan time.Time
	stopChan      chan struct{}
}

func NewSessionScheduler(svc Service, schedule *cron.Schedule, template session.Config, checkInterval time.Duration, logger *slog.Logger) (SessionScheduler, error) {
	if err := template.Validate(); err != nil {
		return nil, err
	}
	if checkInterval <= 0 {
		checkInterval = defaultScheduleCheckInterval
	}

	s := &sessionScheduler{
		service:       svc,
		schedule:      schedule,
		template:      template,
		logger:        logger,
		checkInterval: checkInterval,
		now:           time.Now,
		next:          make(chan time.Time, 1),
		stopChan:      make(chan struct{}),
	}
	s.next <- schedule.Next(s.now())

	return s, nil
}

func (s *sessionScheduler) NextRun() time.Time {
	next := <-s.next
	s.next <- next

	return next
}

func (s *sessionScheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.logger.Info("session scheduler started",
		slog.String("schedule", s.schedule.String()),
		slog.Time("next_run", s.NextRun()))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session scheduler stopping")

			return ctx.Err()
		case <-s.stopChan:
			s.logger.Info("session scheduler stopped")

			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *sessionScheduler) Stop() {
	close(s.stopChan)
}

func (s *sessionScheduler) tick(ctx context.Context) {
	now := s.now()
	next := <-s.next
	if next.After(now) {
		s.next <- next

		return
	}
	s.next <- s.schedule.Next(now)

	sess, err := s.service.StartSession(ctx, s.template)
	switch {
	case errors.Is(err, ErrSessionActive):
		s.logger.Info("skipping scheduled session, project still training", slog.String("project_id", s.template.ProjectID))
	case err != nil:
		s.logger.Error("failed to start scheduled session",
			slog.String("project_id", s.template.ProjectID),
			slog.String("error", err.Error()))
	default:
		s.logger.Info("started scheduled session",
			slog.String("session_id", sess.ID),
			slog.String("project_id", sess.ProjectID))
	}
}
