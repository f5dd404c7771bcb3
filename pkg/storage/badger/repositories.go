package badger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
)

func clientKey(id string) []byte {
	return []byte("c:" + id)
}

func sessionKey(id string) []byte {
	return []byte("s:" + id)
}

func metricsPrefix(sessionID string) []byte {
	return []byte("m:" + sessionID + ":")
}

func metricsKey(sessionID string, round uint64) []byte {
	return fmt.Appendf(nil, "m:%s:%020d", sessionID, round)
}

func modelPrefix(sessionID string) []byte {
	return []byte("md:" + sessionID + ":")
}

func modelKey(sessionID string, version uint64) []byte {
	return fmt.Appendf(nil, "md:%s:%020d", sessionID, version)
}

func decodeAll[T any](values [][]byte) ([]T, error) {
	out := make([]T, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &out[i]); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return out, nil
}

type ClientRepo struct {
	db *Database
}

func NewClientRepository(db *Database) *ClientRepo {
	return &ClientRepo{db: db}
}

func (r *ClientRepo) Save(_ context.Context, c client.Client) error {
	val, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set(clientKey(c.ID), val)
}

func (r *ClientRepo) Get(_ context.Context, id string) (client.Client, error) {
	val, err := r.db.get(clientKey(id))
	if err != nil {
		return client.Client{}, err
	}
	var c client.Client
	if err := json.Unmarshal(val, &c); err != nil {
		return client.Client{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return c, nil
}

func (r *ClientRepo) List(_ context.Context, offset, limit uint64) ([]client.Client, uint64, error) {
	prefix := []byte("c:")
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.db.listWithPrefix(prefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	clients, err := decodeAll[client.Client](values)
	if err != nil {
		return nil, 0, err
	}

	return clients, total, nil
}

type SessionRepo struct {
	db *Database
}

func NewSessionRepository(db *Database) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(_ context.Context, s session.Session) error {
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.create(sessionKey(s.ID), val)
}

func (r *SessionRepo) Get(_ context.Context, id string) (session.Session, error) {
	val, err := r.db.get(sessionKey(id))
	if err != nil {
		return session.Session{}, err
	}
	var s session.Session
	if err := json.Unmarshal(val, &s); err != nil {
		return session.Session{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return s, nil
}

func (r *SessionRepo) Update(_ context.Context, s session.Session) error {
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.replace(sessionKey(s.ID), val)
}

func (r *SessionRepo) List(_ context.Context, offset, limit uint64) ([]session.Session, uint64, error) {
	prefix := []byte("s:")
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.db.listWithPrefix(prefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	sessions, err := decodeAll[session.Session](values)
	if err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

type MetricsRepo struct {
	db *Database
}

func NewMetricsRepository(db *Database) *MetricsRepo {
	return &MetricsRepo{db: db}
}

func (r *MetricsRepo) Append(_ context.Context, m fl.RoundMetrics) error {
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.create(metricsKey(m.SessionID, m.Round), val)
}

func (r *MetricsRepo) List(_ context.Context, sessionID string, offset, limit uint64) ([]fl.RoundMetrics, uint64, error) {
	prefix := metricsPrefix(sessionID)
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.db.listWithPrefix(prefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	records, err := decodeAll[fl.RoundMetrics](values)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (r *MetricsRepo) Latest(_ context.Context, sessionID string) (fl.RoundMetrics, error) {
	if sessionID != "" {
		val, err := r.db.lastWithPrefix(metricsPrefix(sessionID))
		if err != nil {
			return fl.RoundMetrics{}, err
		}
		var m fl.RoundMetrics
		if err := json.Unmarshal(val, &m); err != nil {
			return fl.RoundMetrics{}, fmt.Errorf("unmarshal error: %w", err)
		}

		return m, nil
	}

	prefix := []byte("m:")
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return fl.RoundMetrics{}, err
	}
	if total == 0 {
		return fl.RoundMetrics{}, ErrNotFound
	}
	values, err := r.db.listWithPrefix(prefix, 0, total)
	if err != nil {
		return fl.RoundMetrics{}, err
	}
	records, err := decodeAll[fl.RoundMetrics](values)
	if err != nil {
		return fl.RoundMetrics{}, err
	}
	if len(records) == 0 {
		return fl.RoundMetrics{}, ErrNotFound
	}
	latest := records[0]
	for _, rec := range records[1:] {
		if rec.Timestamp.After(latest.Timestamp) {
			latest = rec
		}
	}

	return latest, nil
}

type ModelRepo struct {
	db *Database
}

func NewModelRepository(db *Database) *ModelRepo {
	return &ModelRepo{db: db}
}

func (r *ModelRepo) Save(_ context.Context, m fl.Model) error {
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set(modelKey(m.SessionID, m.Version), val)
}

func (r *ModelRepo) Get(_ context.Context, sessionID string, version uint64) (fl.Model, error) {
	val, err := r.db.get(modelKey(sessionID, version))
	if err != nil {
		return fl.Model{}, err
	}
	var m fl.Model
	if err := json.Unmarshal(val, &m); err != nil {
		return fl.Model{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return m, nil
}

func (r *ModelRepo) Latest(_ context.Context, sessionID string) (fl.Model, error) {
	val, err := r.db.lastWithPrefix(modelPrefix(sessionID))
	if err != nil {
		return fl.Model{}, err
	}
	var m fl.Model
	if err := json.Unmarshal(val, &m); err != nil {
		return fl.Model{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return m, nil
}
