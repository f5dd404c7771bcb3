package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/absmach/flcoord/pkg/session"
)

type SessionRepo struct {
	db *Database
}

func NewSessionRepository(db *Database) *SessionRepo {
	return &SessionRepo{db: db}
}

type dbSession struct {
	ID              string         `db:"id"`
	ProjectID       string         `db:"project_id"`
	State           string         `db:"state"`
	CurrentRound    uint64         `db:"current_round"`
	TotalRounds     uint64         `db:"total_rounds"`
	MinClients      uint64         `db:"min_clients"`
	MaxParticipants uint64         `db:"max_participants"`
	RoundTimeout    int64          `db:"round_timeout"`
	QuorumTimeout   int64          `db:"quorum_timeout"`
	Reason          sql.NullString `db:"reason"`
	Message         sql.NullString `db:"message"`
	CreatedAt       time.Time      `db:"created_at"`
	StartedAt       sql.NullTime   `db:"started_at"`
	FinishedAt      sql.NullTime   `db:"finished_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

const sessionColumns = `id, project_id, state, current_round, total_rounds, min_clients, max_participants,
	round_timeout, quorum_timeout, reason, message, created_at, started_at, finished_at, updated_at`

func (r *SessionRepo) Create(ctx context.Context, s session.Session) error {
	query := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.ProjectID, string(s.State), s.CurrentRound, s.TotalRounds, s.MinClients, s.MaxParticipants,
		int64(s.RoundTimeout), int64(s.QuorumTimeout), string(s.Reason), s.Message,
		s.CreatedAt.UTC(), nullTime(s.StartedAt.UTC()), nullTime(s.FinishedAt.UTC()), s.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEntityExists
		}

		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (session.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	var dbs dbSession
	if err := r.db.GetContext(ctx, &dbs, query, id); err != nil {
		if isNoRows(err) {
			return session.Session{}, ErrNotFound
		}

		return session.Session{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toSession(dbs), nil
}

func (r *SessionRepo) Update(ctx context.Context, s session.Session) error {
	query := `UPDATE sessions SET state = ?, current_round = ?, reason = ?, message = ?,
		started_at = ?, finished_at = ?, updated_at = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query,
		string(s.State), s.CurrentRound, string(s.Reason), s.Message,
		nullTime(s.StartedAt.UTC()), nullTime(s.FinishedAt.UTC()), s.UpdatedAt.UTC(), s.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *SessionRepo) List(ctx context.Context, offset, limit uint64) ([]session.Session, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sessions"); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at, id LIMIT ? OFFSET ?`

	var rows []dbSession
	if err := r.db.SelectContext(ctx, &rows, query, clampLimit(limit), offset); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	sessions := make([]session.Session, len(rows))
	for i, dbs := range rows {
		sessions[i] = toSession(dbs)
	}

	return sessions, total, nil
}

func toSession(dbs dbSession) session.Session {
	state := session.State(dbs.State)

	return session.Session{
		ID:              dbs.ID,
		ProjectID:       dbs.ProjectID,
		State:           state,
		Status:          state.Status(),
		CurrentRound:    dbs.CurrentRound,
		TotalRounds:     dbs.TotalRounds,
		MinClients:      dbs.MinClients,
		MaxParticipants: dbs.MaxParticipants,
		RoundTimeout:    session.Duration(dbs.RoundTimeout),
		QuorumTimeout:   session.Duration(dbs.QuorumTimeout),
		Reason:          session.Reason(dbs.Reason.String),
		Message:         dbs.Message.String,
		CreatedAt:       dbs.CreatedAt,
		StartedAt:       timeOf(dbs.StartedAt),
		FinishedAt:      timeOf(dbs.FinishedAt),
		UpdatedAt:       dbs.UpdatedAt,
	}
}
