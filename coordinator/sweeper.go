package coordinator

import (
	"context"
	"log/slog"
	"time"
)

const defaultSweepInterval = 5 * time.Second

// Sweeper periodically marks clients that stopped heartbeating as offline.
type Sweeper interface {
	Start(ctx context.Context) error
	Stop()
}

type sweeper struct {
	service  Service
	logger   *slog.Logger
	interval time.Duration
	stopChan chan struct{}
}

func NewSweeper(svc Service, interval time.Duration, logger *slog.Logger) Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return &sweeper{
		service:  svc,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("liveness sweeper started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("liveness sweeper stopping")

			return ctx.Err()
		case <-s.stopChan:
			s.logger.Info("liveness sweeper stopped")

			return nil
		case <-ticker.C:
			expired, err := s.service.SweepClients(ctx)
			if err != nil {
				s.logger.Error("error sweeping clients", slog.String("error", err.Error()))
			}
			if len(expired) > 0 {
				s.logger.Debug("clients marked offline", slog.Any("client_ids", expired))
			}
		}
	}
}

func (s *sweeper) Stop() {
	close(s.stopChan)
}
