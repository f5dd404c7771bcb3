package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/flcoord/pkg/fl"
)

type MetricsRepo struct {
	db *Database
}

func NewMetricsRepository(db *Database) *MetricsRepo {
	return &MetricsRepo{db: db}
}

type dbRoundMetrics struct {
	SessionID     string    `db:"session_id"`
	Round         uint64    `db:"round"`
	Accuracy      float64   `db:"accuracy"`
	Loss          float64   `db:"loss"`
	NumClients    uint64    `db:"num_clients"`
	TotalSamples  uint64    `db:"total_samples"`
	ClientMetrics []byte    `db:"client_metrics"`
	Timestamp     time.Time `db:"timestamp"`
}

const metricsColumns = `session_id, round, accuracy, loss, num_clients, total_samples, client_metrics, timestamp`

func (r *MetricsRepo) Append(ctx context.Context, m fl.RoundMetrics) error {
	query := `INSERT INTO round_metrics (` + metricsColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	contributions, err := jsonBytes(m.Contributions)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		m.SessionID, m.Round, m.Accuracy, m.Loss, m.NumClients, m.TotalSamples, contributions, m.Timestamp.UTC())
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
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM round_metrics WHERE session_id = ?", sessionID); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	query := `SELECT ` + metricsColumns + ` FROM round_metrics WHERE session_id = ? ORDER BY round LIMIT ? OFFSET ?`

	var rows []dbRoundMetrics
	if err := r.db.SelectContext(ctx, &rows, query, sessionID, clampLimit(limit), offset); err != nil {
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
		query = `SELECT ` + metricsColumns + ` FROM round_metrics WHERE session_id = ? ORDER BY round DESC LIMIT 1`
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
		Round:        row.Round,
		Accuracy:     row.Accuracy,
		Loss:         row.Loss,
		NumClients:   row.NumClients,
		TotalSamples: row.TotalSamples,
		Timestamp:    row.Timestamp,
	}
	if err := jsonUnmarshal(row.ClientMetrics, &rec.Contributions); err != nil {
		return fl.RoundMetrics{}, err
	}

	return rec, nil
}
