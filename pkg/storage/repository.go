package storage

import (
	"context"

	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
)

// ClientRepository persists registry entries. Save is an upsert.
type ClientRepository interface {
	Save(ctx context.Context, c client.Client) error
	Get(ctx context.Context, id string) (client.Client, error)
	List(ctx context.Context, offset, limit uint64) ([]client.Client, uint64, error)
}

type SessionRepository interface {
	Create(ctx context.Context, s session.Session) error
	Get(ctx context.Context, id string) (session.Session, error)
	Update(ctx context.Context, s session.Session) error
	// List returns sessions ordered by id, which is creation order.
	List(ctx context.Context, offset, limit uint64) ([]session.Session, uint64, error)
}

// MetricsRepository is the append-only store behind the metrics ledger.
// Records of a session are listed in ascending round order.
type MetricsRepository interface {
	Append(ctx context.Context, m fl.RoundMetrics) error
	List(ctx context.Context, sessionID string, offset, limit uint64) ([]fl.RoundMetrics, uint64, error)
	// Latest returns the newest record of a session, or across all sessions
	// when sessionID is empty.
	Latest(ctx context.Context, sessionID string) (fl.RoundMetrics, error)
}

type ModelRepository interface {
	Save(ctx context.Context, m fl.Model) error
	Get(ctx context.Context, sessionID string, version uint64) (fl.Model, error)
	Latest(ctx context.Context, sessionID string) (fl.Model, error)
}
