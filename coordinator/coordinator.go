package coordinator

import (
	"context"
	"time"

	"github.com/absmach/flcoord/pkg/client"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
)

const (
	DefaultQuorumTimeout = 5 * time.Minute
	DefaultRoundTimeout  = 10 * time.Minute
)

var (
	ErrSessionActive    = pkgerrors.New("session_active", "a session is already active for this project", pkgerrors.ErrConflict)
	ErrSessionNotFound  = pkgerrors.New("session_not_found", "session not found", pkgerrors.ErrNotFound)
	ErrSessionTerminal  = pkgerrors.New("session_terminal", "session already finished", pkgerrors.ErrConflict)
	ErrAmbiguousSession = pkgerrors.New("ambiguous_session", "several sessions are running, session_id is required", pkgerrors.ErrValidation)
	ErrModelNotFound    = pkgerrors.New("model_not_found", "no global model has been produced yet", pkgerrors.ErrNotFound)
	ErrInvalidConfig    = pkgerrors.New("invalid_config", "invalid session configuration", pkgerrors.ErrValidation)
	ErrInvalidUpdate    = pkgerrors.New("invalid_update", "invalid round update", pkgerrors.ErrValidation)
	ErrShuttingDown     = pkgerrors.New("shutting_down", "coordinator is shutting down", pkgerrors.ErrUnavailable)
)

// RejectReason explains why a submitted update was not pooled.
type RejectReason string

const (
	RejectStaleRound        RejectReason = "stale_round"
	RejectFutureRound       RejectReason = "future_round"
	RejectSessionNotRunning RejectReason = "session_not_running"
	RejectUnknownClient     RejectReason = "unknown_client"
)

// SubmitResult reports the fate of one update.
type SubmitResult struct {
	Accepted   bool         `json:"accepted"`
	Reason     RejectReason `json:"reason,omitempty"`
	SessionID  string       `json:"session_id,omitempty"`
	Round      uint64       `json:"round"`
	Replaced   bool         `json:"replaced,omitempty"`
	Aggregated bool         `json:"aggregated,omitempty"`
}

// StatusReport is the pull view of the most recent session.
type StatusReport struct {
	SessionID     string         `json:"session_id,omitempty"`
	ProjectID     string         `json:"project_id,omitempty"`
	State         session.State  `json:"state"`
	Status        session.Status `json:"status"`
	CurrentRound  uint64         `json:"current_round"`
	TotalRounds   uint64         `json:"total_rounds"`
	PoolSize      int            `json:"pool_size"`
	OnlineClients int            `json:"online_clients"`
	Reason        session.Reason `json:"reason,omitempty"`
	Message       string         `json:"message,omitempty"`
}

type Service interface {
	StartSession(ctx context.Context, cfg session.Config) (session.Session, error)
	CancelSession(ctx context.Context, sessionID string) (session.Session, error)
	GetSession(ctx context.Context, sessionID string) (session.Session, error)
	ListSessions(ctx context.Context, offset, limit uint64) (session.Page, error)
	Status(ctx context.Context) (StatusReport, error)

	RegisterClient(ctx context.Context, clientID string, samples uint64) (client.Client, error)
	Heartbeat(ctx context.Context, clientID string) (client.Client, error)
	DisconnectClient(ctx context.Context, clientID string) (client.Client, error)
	GetClient(ctx context.Context, clientID string) (client.Client, error)
	ListClients(ctx context.Context, onlineOnly bool) ([]client.Client, error)

	SubmitUpdate(ctx context.Context, update fl.Update) (SubmitResult, error)
	SubmitUpdateCBOR(ctx context.Context, data []byte) (SubmitResult, error)

	GlobalModel(ctx context.Context, sessionID string) (fl.Model, error)
	LatestMetrics(ctx context.Context, sessionID string) (fl.RoundMetrics, error)
	MetricsHistory(ctx context.Context, sessionID string, offset, limit uint64) (fl.RoundMetricsPage, error)

	Snapshot(ctx context.Context) (events.Snapshot, error)
	Subscribe(ctx context.Context) (*events.Subscription, error)

	SweepClients(ctx context.Context) ([]string, error)
	RecoverInterruptedSessions(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
