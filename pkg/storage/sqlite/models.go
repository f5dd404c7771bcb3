package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/flcoord/pkg/fl"
)

type ModelRepo struct {
	db *Database
}

func NewModelRepository(db *Database) *ModelRepo {
	return &ModelRepo{db: db}
}

type dbModel struct {
	SessionID string    `db:"session_id"`
	Version   uint64    `db:"version"`
	Weights   []byte    `db:"weights"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *ModelRepo) Save(ctx context.Context, m fl.Model) error {
	query := `INSERT INTO models (session_id, version, weights, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, version) DO UPDATE SET weights = excluded.weights, created_at = excluded.created_at`

	weights, err := jsonBytes(m.Weights)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, m.SessionID, m.Version, weights, m.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *ModelRepo) Get(ctx context.Context, sessionID string, version uint64) (fl.Model, error) {
	query := `SELECT session_id, version, weights, created_at FROM models WHERE session_id = ? AND version = ?`

	return r.get(ctx, query, sessionID, version)
}

func (r *ModelRepo) Latest(ctx context.Context, sessionID string) (fl.Model, error) {
	query := `SELECT session_id, version, weights, created_at FROM models WHERE session_id = ? ORDER BY version DESC LIMIT 1`

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
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
	}
	if err := jsonUnmarshal(row.Weights, &m.Weights); err != nil {
		return fl.Model{}, fmt.Errorf("%w: %w", ErrDBScan, err)
	}

	return m, nil
}
