package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
)

type ClientRepo struct {
	db *Database
}

func NewClientRepository(db *Database) *ClientRepo {
	return &ClientRepo{db: db}
}

type dbClient struct {
	ID           string    `db:"id"`
	Status       string    `db:"status"`
	TotalSamples int64     `db:"total_samples"`
	LastSeen     time.Time `db:"last_seen"`
	RegisteredAt time.Time `db:"registered_at"`
}

func (r *ClientRepo) Save(ctx context.Context, c client.Client) error {
	query := `INSERT INTO clients (id, status, total_samples, last_seen, registered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total_samples = EXCLUDED.total_samples,
			last_seen = EXCLUDED.last_seen`

	if _, err := r.db.ExecContext(ctx, query, c.ID, string(c.Status), int64(c.TotalSamples), c.LastSeen, c.RegisteredAt); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	return nil
}

func (r *ClientRepo) Get(ctx context.Context, id string) (client.Client, error) {
	query := `SELECT id, status, total_samples, last_seen, registered_at FROM clients WHERE id = $1`

	var dbc dbClient
	if err := r.db.GetContext(ctx, &dbc, query, id); err != nil {
		if isNoRows(err) {
			return client.Client{}, ErrNotFound
		}

		return client.Client{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toClient(dbc), nil
}

func (r *ClientRepo) List(ctx context.Context, offset, limit uint64) ([]client.Client, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM clients"); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	query := `SELECT id, status, total_samples, last_seen, registered_at FROM clients ORDER BY id COLLATE "C" LIMIT $1 OFFSET $2`

	var rows []dbClient
	if err := r.db.SelectContext(ctx, &rows, query, clampLimit(limit), clampLimit(offset)); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	clients := make([]client.Client, len(rows))
	for i, dbc := range rows {
		clients[i] = toClient(dbc)
	}

	return clients, total, nil
}

func toClient(dbc dbClient) client.Client {
	return client.Client{
		ID:           dbc.ID,
		Status:       client.Status(dbc.Status),
		TotalSamples: uint64(dbc.TotalSamples),
		LastSeen:     dbc.LastSeen,
		RegisteredAt: dbc.RegisteredAt,
	}
}

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
	CurrentRound    int64          `db:"current_round"`
	TotalRounds     int64          `db:"total_rounds"`
	MinClients      int64          `db:"min_clients"`
	MaxParticipants int64          `db:"max_participants"`
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.ProjectID, string(s.State), int64(s.CurrentRound), int64(s.TotalRounds), int64(s.MinClients), int64(s.MaxParticipants),
		int64(s.RoundTimeout), int64(s.QuorumTimeout), nullString(string(s.Reason)), nullString(s.Message),
		s.CreatedAt, nullTime(s.StartedAt), nullTime(s.FinishedAt), s.UpdatedAt,
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
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

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
	query := `UPDATE sessions SET state = $1, current_round = $2, reason = $3, message = $4,
		started_at = $5, finished_at = $6, updated_at = $7 WHERE id = $8`

	res, err := r.db.ExecContext(ctx, query,
		string(s.State), int64(s.CurrentRound), nullString(string(s.Reason)), nullString(s.Message),
		nullTime(s.StartedAt), nullTime(s.FinishedAt), s.UpdatedAt, s.ID,
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

	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at, id COLLATE "C" LIMIT $1 OFFSET $2`

	var rows []dbSession
	if err := r.db.SelectContext(ctx, &rows, query, clampLimit(limit), clampLimit(offset)); err != nil {
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
		CurrentRound:    uint64(dbs.CurrentRound),
		TotalRounds:     uint64(dbs.TotalRounds),
		MinClients:      uint64(dbs.MinClients),
		MaxParticipants: uint64(dbs.MaxParticipants),
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

type MetricsRepo struct {
	db *Database
}

func NewMetricsRepository(db *Database) *MetricsRepo {
	return &MetricsRepo{db: db}
}

type dbRoundMetrics struct {
	SessionID     string    `db:"session_id"`
	Round         int64     `db:"round"`
	Accuracy      float64   `db:"accuracy"`
	Loss          float64   `db:"loss"`
	NumClients    int64     `db:"num_clients"`
	TotalSamples  int64     `db:"total_samples"`
	ClientMetrics []byte    `db:"client_metrics"`
	Timestamp     time.Time `db:"timestamp"`
}

const metricsColumns = `session_id, round, accuracy, loss, num_clients, total_samples, client_metrics, timestamp`

func (r *MetricsRepo) Append(ctx context.Context, m fl.RoundMetrics) error {
	query := `INSERT INTO round_metrics (` + metricsColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	contributions, err := jsonText(m.Contributions)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		m.SessionID, int64(m.Round), m.Accuracy, m.Loss, int64(m.NumClients), int64(m.TotalSamples), contributions, m.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEntityExists
		}

		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *MetricsRepo) List(ctx context.Context, sessionID string, offset, limit uint64) ([]fl.RoundMetrics, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM round_metrics WHERE session_id = $1", sessionID); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	query := `SELECT ` + metricsColumns + ` FROM round_metrics WHERE session_id = $1 ORDER BY round LIMIT $2 OFFSET $3`

	var rows []dbRoundMetrics
	if err := r.db.SelectContext(ctx, &rows, query, sessionID, clampLimit(limit), clampLimit(offset)); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	records := make([]fl.RoundMetrics, len(rows))
	for i, row := range rows {
		rec, err := toRoundMetrics(row)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrDBScan, err)
		}
		records[i] = rec
	}

	return records, total, nil
}

func (r *MetricsRepo) Latest(ctx context.Context, sessionID string) (fl.RoundMetrics, error) {
	query := `SELECT ` + metricsColumns + ` FROM round_metrics ORDER BY timestamp DESC, round DESC LIMIT 1`
	args := []any{}
	if sessionID != "" {
		query = `SELECT ` + metricsColumns + ` FROM round_metrics WHERE session_id = $1 ORDER BY round DESC LIMIT 1`
		args = append(args, sessionID)
	}

	var row dbRoundMetrics
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNoRows(err) {
			return fl.RoundMetrics{}, ErrNotFound
		}

		return fl.RoundMetrics{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toRoundMetrics(row)
}

func toRoundMetrics(row dbRoundMetrics) (fl.RoundMetrics, error) {
	rec := fl.RoundMetrics{
		SessionID:    row.SessionID,
		Round:        uint64(row.Round),
		Accuracy:     row.Accuracy,
		Loss:         row.Loss,
		NumClients:   uint64(row.NumClients),
		TotalSamples: uint64(row.TotalSamples),
		Timestamp:    row.Timestamp,
	}
	if err := jsonUnmarshal(row.ClientMetrics, &rec.Contributions); err != nil {
		return fl.RoundMetrics{}, err
	}

	return rec, nil
}

type ModelRepo struct {
	db *Database
}

func NewModelRepository(db *Database) *ModelRepo {
	return &ModelRepo{db: db}
}

type dbModel struct {
	SessionID string    `db:"session_id"`
	Version   int64     `db:"version"`
	Weights   []byte    `db:"weights"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *ModelRepo) Save(ctx context.Context, m fl.Model) error {
	query := `INSERT INTO models (session_id, version, weights, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, version) DO UPDATE SET weights = EXCLUDED.weights, created_at = EXCLUDED.created_at`

	weights, err := jsonText(m.Weights)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, m.SessionID, int64(m.Version), weights, m.CreatedAt); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *ModelRepo) Get(ctx context.Context, sessionID string, version uint64) (fl.Model, error) {
	query := `SELECT session_id, version, weights, created_at FROM models WHERE session_id = $1 AND version = $2`

	return r.get(ctx, query, sessionID, int64(version))
}

func (r *ModelRepo) Latest(ctx context.Context, sessionID string) (fl.Model, error) {
	query := `SELECT session_id, version, weights, created_at FROM models WHERE session_id = $1 ORDER BY version DESC LIMIT 1`

	return r.get(ctx, query, sessionID)
}

func (r *ModelRepo) get(ctx context.Context, query string, args ...any) (fl.Model, error) {
	var row dbModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNoRows(err) {
			return fl.Model{}, ErrNotFound
		}

		return fl.Model{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	m := fl.Model{
		SessionID: row.SessionID,
		Version:   uint64(row.Version),
		CreatedAt: row.CreatedAt,
	}
	if err := jsonUnmarshal(row.Weights, &m.Weights); err != nil {
		return fl.Model{}, fmt.Errorf("%w: %w", ErrDBScan, err)
	}

	return m, nil
}
