package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/flcoord/pkg/client"
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
	TotalSamples uint64    `db:"total_samples"`
	LastSeen     time.Time `db:"last_seen"`
	RegisteredAt time.Time `db:"registered_at"`
}

func (r *ClientRepo) Save(ctx context.Context, c client.Client) error {
	query := `INSERT INTO clients (id, status, total_samples, last_seen, registered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total_samples = excluded.total_samples,
			last_seen = excluded.last_seen`

	if _, err := r.db.ExecContext(ctx, query, c.ID, string(c.Status), c.TotalSamples, c.LastSeen.UTC(), c.RegisteredAt.UTC()); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	return nil
}

func (r *ClientRepo) Get(ctx context.Context, id string) (client.Client, error) {
	query := `SELECT id, status, total_samples, last_seen, registered_at FROM clients WHERE id = ?`

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

	query := `SELECT id, status, total_samples, last_seen, registered_at FROM clients ORDER BY id LIMIT ? OFFSET ?`

	var rows []dbClient
	if err := r.db.SelectContext(ctx, &rows, query, clampLimit(limit), offset); err != nil {
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
		TotalSamples: dbc.TotalSamples,
		LastSeen:     dbc.LastSeen,
		RegisteredAt: dbc.RegisteredAt,
	}
}
