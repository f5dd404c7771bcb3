package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/ledger"
	"github.com/absmach/flcoord/pkg/registry"
	"github.com/absmach/flcoord/pkg/scheduler"
	"github.com/absmach/flcoord/pkg/session"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/google/uuid"
)

const defLimit = 100

// RoundInvitation tells clients a round has opened.
type RoundInvitation struct {
	SessionID    string    `json:"session_id"`
	Round        uint64    `json:"round_number"`
	ModelVersion uint64    `json:"model_version"`
	Participants []string  `json:"participants"`
	Deadline     time.Time `json:"deadline"`
}

// RoundNotifier delivers round invitations to clients.
type RoundNotifier interface {
	NotifyRoundStart(ctx context.Context, inv RoundInvitation) error
}

// ModelExporter writes the final model of a completed session somewhere
// outside the repositories.
type ModelExporter interface {
	Export(m fl.Model) (string, error)
}

type Option func(*service)

func WithTimeouts(quorum, round time.Duration) Option {
	return func(svc *service) {
		if quorum > 0 {
			svc.quorumTimeout = quorum
		}
		if round > 0 {
			svc.roundTimeout = round
		}
	}
}

func WithScheduler(s scheduler.Scheduler) Option {
	return func(svc *service) {
		svc.scheduler = s
	}
}

func WithAggregator(a fl.Aggregator) Option {
	return func(svc *service) {
		svc.aggregator = a
	}
}

func WithNotifier(n RoundNotifier) Option {
	return func(svc *service) {
		svc.notifier = n
	}
}

func WithExporter(e ModelExporter) Option {
	return func(svc *service) {
		svc.exporter = e
	}
}

func WithClock(now func() time.Time) Option {
	return func(svc *service) {
		svc.now = now
	}
}

// run is the live state of a non-terminal session.
type run struct {
	sess  session.Session
	pool  *fl.Pool
	model *atomic.Pointer[fl.Model]
	gen   uint64
	timer *time.Timer
}

type service struct {
	mu       sync.Mutex
	runs     map[string]*run
	projects map[string]string
	latestID string
	closed   bool
	heads    sync.Map
	inflight sync.WaitGroup

	registry      *registry.Registry
	ledger        *ledger.Ledger
	sessions      storage.SessionRepository
	models        storage.ModelRepository
	broadcaster   *events.Broadcaster
	aggregator    fl.Aggregator
	scheduler     scheduler.Scheduler
	notifier      RoundNotifier
	exporter      ModelExporter
	quorumTimeout time.Duration
	roundTimeout  time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

func NewService(reg *registry.Registry, l *ledger.Ledger, sessions storage.SessionRepository, models storage.ModelRepository, b *events.Broadcaster, logger *slog.Logger, opts ...Option) Service {
	svc := &service{
		runs:          make(map[string]*run),
		projects:      make(map[string]string),
		registry:      reg,
		ledger:        l,
		sessions:      sessions,
		models:        models,
		broadcaster:   b,
		aggregator:    fl.NewFedAvgAggregator(),
		scheduler:     scheduler.NewAllOnline(),
		quorumTimeout: DefaultQuorumTimeout,
		roundTimeout:  DefaultRoundTimeout,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	reg.OnChange(svc.onClientChange)

	return svc
}

func (svc *service) StartSession(ctx context.Context, cfg session.Config) (session.Session, error) {
	if err := cfg.Validate(); err != nil {
		return session.Session{}, errors.Join(ErrInvalidConfig, err)
	}
	if cfg.QuorumTimeout == 0 {
		cfg.QuorumTimeout = session.Duration(svc.quorumTimeout)
	}
	if cfg.RoundTimeout == 0 {
		cfg.RoundTimeout = session.Duration(svc.roundTimeout)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.closed {
		return session.Session{}, ErrShuttingDown
	}
	if id, ok := svc.projects[cfg.ProjectID]; ok {
		return session.Session{}, fmt.Errorf("%w: project %s has session %s", ErrSessionActive, cfg.ProjectID, id)
	}

	now := svc.now()
	s := session.New(uuid.Must(uuid.NewV7()).String(), cfg, now)
	s.SetState(session.AwaitingQuorum, now)
	if err := svc.sessions.Create(ctx, s); err != nil {
		return session.Session{}, fmt.Errorf("failed to store session: %w", err)
	}

	r := &run{sess: s, pool: fl.NewPool(1), model: &atomic.Pointer[fl.Model]{}}
	svc.runs[s.ID] = r
	svc.projects[s.ProjectID] = s.ID
	svc.latestID = s.ID
	svc.heads.Store(s.ID, r.model)

	svc.logger.InfoContext(ctx, "training session started",
		slog.String("session_id", s.ID),
		slog.String("project_id", s.ProjectID),
		slog.Uint64("total_rounds", s.TotalRounds),
		slog.Uint64("min_clients", s.MinClients),
	)
	svc.publish(events.TrainingStartedData{SessionID: s.ID})
	svc.awaitQuorum(ctx, r)

	return r.sess, nil
}

func (svc *service) CancelSession(ctx context.Context, sessionID string) (session.Session, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	r, ok := svc.runs[sessionID]
	if !ok {
		s, err := svc.storedSession(ctx, sessionID)
		if err != nil {
			return session.Session{}, err
		}

		return s, ErrSessionTerminal
	}
	svc.fail(ctx, r, session.ReasonCancelled, "session cancelled on request")

	return r.sess, nil
}

func (svc *service) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	svc.mu.Lock()
	r, ok := svc.runs[sessionID]
	if ok {
		s := r.sess
		svc.mu.Unlock()

		return s, nil
	}
	svc.mu.Unlock()

	return svc.storedSession(ctx, sessionID)
}

func (svc *service) ListSessions(ctx context.Context, offset, limit uint64) (session.Page, error) {
	if limit == 0 {
		limit = defLimit
	}
	sessions, total, err := svc.sessions.List(ctx, offset, limit)
	if err != nil {
		return session.Page{}, fmt.Errorf("failed to list sessions: %w", err)
	}

	svc.mu.Lock()
	for i := range sessions {
		if r, ok := svc.runs[sessions[i].ID]; ok {
			sessions[i] = r.sess
		}
	}
	svc.mu.Unlock()

	return session.Page{
		Offset:   offset,
		Limit:    limit,
		Total:    total,
		Sessions: sessions,
	}, nil
}

func (svc *service) Status(ctx context.Context) (StatusReport, error) {
	svc.mu.Lock()
	latest := svc.latestID
	var (
		s      session.Session
		active bool
		pool   int
	)
	if r, ok := svc.runs[latest]; ok {
		s, active, pool = r.sess, true, r.pool.Len()
	}
	svc.mu.Unlock()

	report := StatusReport{OnlineClients: svc.registry.CountOnline()}
	if latest == "" {
		report.State = session.Idle
		report.Status = session.Idle.Status()

		return report, nil
	}
	if !active {
		var err error
		if s, err = svc.storedSession(ctx, latest); err != nil {
			return StatusReport{}, err
		}
	}

	report.SessionID = s.ID
	report.ProjectID = s.ProjectID
	report.State = s.State
	report.Status = s.Status
	report.CurrentRound = s.CurrentRound
	report.TotalRounds = s.TotalRounds
	report.PoolSize = pool
	report.Reason = s.Reason
	report.Message = s.Message

	return report, nil
}

func (svc *service) RegisterClient(ctx context.Context, clientID string, samples uint64) (client.Client, error) {
	return svc.registry.Register(ctx, clientID, samples)
}

func (svc *service) Heartbeat(ctx context.Context, clientID string) (client.Client, error) {
	return svc.registry.Heartbeat(ctx, clientID)
}

func (svc *service) DisconnectClient(ctx context.Context, clientID string) (client.Client, error) {
	return svc.registry.MarkOffline(ctx, clientID)
}

func (svc *service) GetClient(ctx context.Context, clientID string) (client.Client, error) {
	return svc.registry.Get(ctx, clientID)
}

func (svc *service) ListClients(ctx context.Context, onlineOnly bool) ([]client.Client, error) {
	if onlineOnly {
		return svc.registry.ListOnline(ctx), nil
	}

	return svc.registry.List(ctx), nil
}

func (svc *service) SubmitUpdateCBOR(ctx context.Context, data []byte) (SubmitResult, error) {
	u, err := fl.DecodeUpdateCBOR(data)
	if err != nil {
		return SubmitResult{}, errors.Join(ErrInvalidUpdate, err)
	}

	return svc.SubmitUpdate(ctx, u)
}

func (svc *service) GlobalModel(ctx context.Context, sessionID string) (fl.Model, error) {
	if sessionID == "" {
		svc.mu.Lock()
		sessionID = svc.latestID
		svc.mu.Unlock()
	}
	if v, ok := svc.heads.Load(sessionID); ok {
		if m := v.(*atomic.Pointer[fl.Model]).Load(); m != nil {
			return *m, nil
		}
	}

	m, err := svc.models.Latest(ctx, sessionID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fl.Model{}, fmt.Errorf("failed to read model: %w", err)
	}
	if _, err := svc.GetSession(ctx, sessionID); err != nil {
		return fl.Model{}, err
	}

	return fl.Model{}, ErrModelNotFound
}

// LatestMetrics returns the newest record of a session, or the newest one
// across all sessions when sessionID is empty.
func (svc *service) LatestMetrics(ctx context.Context, sessionID string) (fl.RoundMetrics, error) {
	return svc.ledger.Latest(ctx, sessionID)
}

func (svc *service) MetricsHistory(ctx context.Context, sessionID string, offset, limit uint64) (fl.RoundMetricsPage, error) {
	if limit == 0 {
		limit = defLimit
	}

	return svc.ledger.Page(ctx, sessionID, offset, limit)
}

func (svc *service) Snapshot(ctx context.Context) (events.Snapshot, error) {
	snap := events.Snapshot{
		Clients:   svc.registry.ListOnline(ctx),
		Timestamp: svc.now(),
	}

	svc.mu.Lock()
	latest := svc.latestID
	if r, ok := svc.runs[latest]; ok {
		s := r.sess
		snap.Session = &s
	}
	svc.mu.Unlock()

	if snap.Session == nil && latest != "" {
		s, err := svc.storedSession(ctx, latest)
		if err != nil {
			return events.Snapshot{}, err
		}
		snap.Session = &s
	}

	return snap, nil
}

// Subscribe returns a live event stream. It is closed when ctx ends.
func (svc *service) Subscribe(ctx context.Context) (*events.Subscription, error) {
	svc.mu.Lock()
	closed := svc.closed
	svc.mu.Unlock()
	if closed {
		return nil, ErrShuttingDown
	}

	sub := svc.broadcaster.Subscribe()
	context.AfterFunc(ctx, sub.Close)

	return sub, nil
}

func (svc *service) SweepClients(ctx context.Context) ([]string, error) {
	return svc.registry.Sweep(ctx)
}

// RecoverInterruptedSessions fails every stored session a previous process
// left unfinished. Nothing is retried. Sessions are listed in creation order,
// so the last one seen becomes the latest.
func (svc *service) RecoverInterruptedSessions(ctx context.Context) error {
	var (
		offset    uint64
		recovered int
		errs      []error
	)
	svc.mu.Lock()
	trackLatest := svc.latestID == ""
	svc.mu.Unlock()

	for {
		page, total, err := svc.sessions.List(ctx, offset, defLimit)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		for _, s := range page {
			svc.mu.Lock()
			_, live := svc.runs[s.ID]
			if trackLatest {
				svc.latestID = s.ID
			}
			svc.mu.Unlock()
			if live || s.Terminal() {
				continue
			}

			s.Fail(session.ReasonInterrupted, "coordinator restarted before the session finished", svc.now())
			if err := svc.sessions.Update(ctx, s); err != nil {
				errs = append(errs, fmt.Errorf("failed to update session %s: %w", s.ID, err))

				continue
			}
			recovered++
			svc.publish(events.TrainingFailedData{SessionID: s.ID, Reason: s.Reason, Message: s.Message})
		}
		offset += uint64(len(page))
		if len(page) == 0 || offset >= total {
			break
		}
	}

	if recovered > 0 {
		svc.logger.Warn("marked interrupted sessions as failed", slog.Int("count", recovered))
	}

	return errors.Join(errs...)
}

// Shutdown stops every deadline and fails the sessions still in progress.
func (svc *service) Shutdown(ctx context.Context) error {
	svc.mu.Lock()
	if svc.closed {
		svc.mu.Unlock()

		return nil
	}
	svc.closed = true
	for _, r := range svc.sortedRuns() {
		svc.fail(ctx, r, session.ReasonInterrupted, "coordinator shutting down")
	}
	svc.mu.Unlock()

	done := make(chan struct{})
	go func() {
		svc.inflight.Wait()
		close(done)
	}()

	defer svc.broadcaster.Close()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (svc *service) storedSession(ctx context.Context, sessionID string) (session.Session, error) {
	s, err := svc.sessions.Get(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return session.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to read session: %w", err)
	}

	return s, nil
}

// sortedRuns must be called with svc.mu held.
func (svc *service) sortedRuns() []*run {
	runs := make([]*run, 0, len(svc.runs))
	for _, r := range svc.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].sess.ID < runs[j].sess.ID })

	return runs
}

func (svc *service) publish(p events.Payload) {
	svc.broadcaster.Publish(events.New(p, svc.now()))
}
