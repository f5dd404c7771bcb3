package storage

import (
	"fmt"
	"io"

	"github.com/absmach/flcoord/pkg/storage/badger"
	"github.com/absmach/flcoord/pkg/storage/postgres"
	"github.com/absmach/flcoord/pkg/storage/sqlite"
)

type Config struct {
	Type string `env:"FL_COORDINATOR_STORAGE_TYPE" envDefault:"memory"`

	PostgresHost    string `env:"FL_COORDINATOR_POSTGRES_HOST"    envDefault:"localhost"`
	PostgresPort    string `env:"FL_COORDINATOR_POSTGRES_PORT"    envDefault:"5432"`
	PostgresUser    string `env:"FL_COORDINATOR_POSTGRES_USER"    envDefault:"flcoord"`
	PostgresPass    string `env:"FL_COORDINATOR_POSTGRES_PASS"    envDefault:"flcoord"`
	PostgresDB      string `env:"FL_COORDINATOR_POSTGRES_DB"      envDefault:"flcoord"`
	PostgresSSLMode string `env:"FL_COORDINATOR_POSTGRES_SSLMODE" envDefault:"disable"`

	SQLitePath string `env:"FL_COORDINATOR_SQLITE_PATH" envDefault:"./flcoord.db"`

	BadgerPath string `env:"FL_COORDINATOR_BADGER_PATH" envDefault:"./data/badger"`
}

type Repositories struct {
	Clients  ClientRepository
	Sessions SessionRepository
	Metrics  MetricsRepository
	Models   ModelRepository
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory backend.
	Closer io.Closer
}

func NewRepositories(cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case "postgres":
		return newPostgresRepositories(cfg)
	case "sqlite":
		return newSQLiteRepositories(cfg)
	case "badger":
		return newBadgerRepositories(cfg)
	case "memory":
		return NewMemoryRepositories(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

func newPostgresRepositories(cfg Config) (*Repositories, error) {
	db, err := postgres.NewDatabase(
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPass,
		cfg.PostgresDB,
		cfg.PostgresSSLMode,
	)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Clients:  postgres.NewClientRepository(db),
		Sessions: postgres.NewSessionRepository(db),
		Metrics:  postgres.NewMetricsRepository(db),
		Models:   postgres.NewModelRepository(db),
		Closer:   db,
	}, nil
}

func newSQLiteRepositories(cfg Config) (*Repositories, error) {
	db, err := sqlite.NewDatabase(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Clients:  sqlite.NewClientRepository(db),
		Sessions: sqlite.NewSessionRepository(db),
		Metrics:  sqlite.NewMetricsRepository(db),
		Models:   sqlite.NewModelRepository(db),
		Closer:   db,
	}, nil
}

func newBadgerRepositories(cfg Config) (*Repositories, error) {
	db, err := badger.NewDatabase(cfg.BadgerPath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Clients:  badger.NewClientRepository(db),
		Sessions: badger.NewSessionRepository(db),
		Metrics:  badger.NewMetricsRepository(db),
		Models:   badger.NewModelRepository(db),
		Closer:   db,
	}, nil
}

func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Clients:  NewMemoryClientRepository(NewInMemoryStorage()),
		Sessions: NewMemorySessionRepository(NewInMemoryStorage()),
		Metrics:  NewMemoryMetricsRepository(NewInMemoryStorage()),
		Models:   NewMemoryModelRepository(NewInMemoryStorage()),
	}
}
