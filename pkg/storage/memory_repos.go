package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/absmach/flcoord/pkg/client"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
)

const (
	clientPrefix  = "c:"
	sessionPrefix = "s:"
	metricsPrefix = "m:"
	modelPrefix   = "md:"
)

func metricsKey(sessionID string, round uint64) string {
	return fmt.Sprintf("%s%s:%020d", metricsPrefix, sessionID, round)
}

func modelKey(sessionID string, version uint64) string {
	return fmt.Sprintf("%s%s:%020d", modelPrefix, sessionID, version)
}

type memoryClientRepo struct {
	storage Storage
}

func NewMemoryClientRepository(s Storage) ClientRepository {
	return &memoryClientRepo{storage: s}
}

func (r *memoryClientRepo) Save(ctx context.Context, c client.Client) error {
	return r.storage.Put(ctx, clientPrefix+c.ID, c)
}

func (r *memoryClientRepo) Get(ctx context.Context, id string) (client.Client, error) {
	data, err := r.storage.Get(ctx, clientPrefix+id)
	if err != nil {
		return client.Client{}, err
	}
	c, ok := data.(client.Client)
	if !ok {
		return client.Client{}, pkgerrors.ErrInvalidData
	}

	return c, nil
}

func (r *memoryClientRepo) List(ctx context.Context, offset, limit uint64) ([]client.Client, uint64, error) {
	data, total, err := r.storage.ListPrefix(ctx, clientPrefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	clients := make([]client.Client, len(data))
	for i, d := range data {
		c, ok := d.(client.Client)
		if !ok {
			return nil, 0, pkgerrors.ErrInvalidData
		}
		clients[i] = c
	}

	return clients, total, nil
}

type memorySessionRepo struct {
	storage Storage
}

func NewMemorySessionRepository(s Storage) SessionRepository {
	return &memorySessionRepo{storage: s}
}

func (r *memorySessionRepo) Create(ctx context.Context, s session.Session) error {
	return r.storage.Create(ctx, sessionPrefix+s.ID, s)
}

func (r *memorySessionRepo) Get(ctx context.Context, id string) (session.Session, error) {
	data, err := r.storage.Get(ctx, sessionPrefix+id)
	if err != nil {
		return session.Session{}, err
	}
	s, ok := data.(session.Session)
	if !ok {
		return session.Session{}, pkgerrors.ErrInvalidData
	}

	return s, nil
}

func (r *memorySessionRepo) Update(ctx context.Context, s session.Session) error {
	return r.storage.Update(ctx, sessionPrefix+s.ID, s)
}

func (r *memorySessionRepo) List(ctx context.Context, offset, limit uint64) ([]session.Session, uint64, error) {
	data, total, err := r.storage.ListPrefix(ctx, sessionPrefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	sessions := make([]session.Session, len(data))
	for i, d := range data {
		s, ok := d.(session.Session)
		if !ok {
			return nil, 0, pkgerrors.ErrInvalidData
		}
		sessions[i] = s
	}

	return sessions, total, nil
}

type memoryMetricsRepo struct {
	storage Storage
}

func NewMemoryMetricsRepository(s Storage) MetricsRepository {
	return &memoryMetricsRepo{storage: s}
}

func (r *memoryMetricsRepo) Append(ctx context.Context, m fl.RoundMetrics) error {
	return r.storage.Create(ctx, metricsKey(m.SessionID, m.Round), m)
}

func (r *memoryMetricsRepo) List(ctx context.Context, sessionID string, offset, limit uint64) ([]fl.RoundMetrics, uint64, error) {
	data, total, err := r.storage.ListPrefix(ctx, metricsPrefix+sessionID+":", offset, limit)
	if err != nil {
		return nil, 0, err
	}

	return toRoundMetrics(data, total)
}

func (r *memoryMetricsRepo) Latest(ctx context.Context, sessionID string) (fl.RoundMetrics, error) {
	prefix := metricsPrefix
	if sessionID != "" {
		prefix += sessionID + ":"
	}
	data, _, err := r.storage.ListPrefix(ctx, prefix, 0, math.MaxUint64)
	if err != nil {
		return fl.RoundMetrics{}, err
	}
	records, _, err := toRoundMetrics(data, 0)
	if err != nil {
		return fl.RoundMetrics{}, err
	}
	if len(records) == 0 {
		return fl.RoundMetrics{}, pkgerrors.ErrNotFound
	}

	if sessionID != "" {
		return records[len(records)-1], nil
	}

	latest := records[0]
	for _, rec := range records[1:] {
		if rec.Timestamp.After(latest.Timestamp) {
			latest = rec
		}
	}

	return latest, nil
}

func toRoundMetrics(data []any, total uint64) ([]fl.RoundMetrics, uint64, error) {
	records := make([]fl.RoundMetrics, len(data))
	for i, d := range data {
		m, ok := d.(fl.RoundMetrics)
		if !ok {
			return nil, 0, pkgerrors.ErrInvalidData
		}
		records[i] = m
	}

	return records, total, nil
}

type memoryModelRepo struct {
	storage Storage
}

func NewMemoryModelRepository(s Storage) ModelRepository {
	return &memoryModelRepo{storage: s}
}

func (r *memoryModelRepo) Save(ctx context.Context, m fl.Model) error {
	m.Weights = m.Weights.Clone()

	return r.storage.Put(ctx, modelKey(m.SessionID, m.Version), m)
}

func (r *memoryModelRepo) Get(ctx context.Context, sessionID string, version uint64) (fl.Model, error) {
	data, err := r.storage.Get(ctx, modelKey(sessionID, version))
	if err != nil {
		return fl.Model{}, err
	}

	return toModel(data)
}

func (r *memoryModelRepo) Latest(ctx context.Context, sessionID string) (fl.Model, error) {
	prefix := modelPrefix + sessionID + ":"
	_, total, err := r.storage.ListPrefix(ctx, prefix, 0, 0)
	if err != nil {
		return fl.Model{}, err
	}
	if total == 0 {
		return fl.Model{}, pkgerrors.ErrNotFound
	}
	data, _, err := r.storage.ListPrefix(ctx, prefix, total-1, 1)
	if err != nil {
		return fl.Model{}, err
	}
	if len(data) == 0 {
		return fl.Model{}, pkgerrors.ErrNotFound
	}

	return toModel(data[0])
}

func toModel(data any) (fl.Model, error) {
	m, ok := data.(fl.Model)
	if !ok {
		return fl.Model{}, errors.Join(pkgerrors.ErrInvalidData, fmt.Errorf("unexpected model type %T", data))
	}

	return m, nil
}
