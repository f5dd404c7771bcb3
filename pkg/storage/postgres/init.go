package postgres

import (
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrDBScan       = errors.New("database scan error")
	ErrMigration    = errors.New("database migration error")
	ErrCreate       = errors.New("create error")
	ErrUpdate       = errors.New("update error")
	ErrNotFound     = pkgerrors.ErrNotFound
	ErrEntityExists = pkgerrors.ErrEntityExists
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(host, port, user, pass, name, sslMode string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, pass, name, sslMode)

	return Connect(dsn)
}

// Connect opens a database from a libpq style connection string.
func Connect(dsn string) (*Database, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}

	if err := database.Migrate(); err != nil {
		db.Close()

		return nil, err
	}

	return database, nil
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_tables",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS clients (
						id VARCHAR(255) PRIMARY KEY,
						status VARCHAR(16) NOT NULL,
						total_samples BIGINT NOT NULL DEFAULT 0,
						last_seen TIMESTAMPTZ NOT NULL,
						registered_at TIMESTAMPTZ NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_clients_status ON clients(status)`,
					`CREATE TABLE IF NOT EXISTS sessions (
						id VARCHAR(36) PRIMARY KEY,
						project_id VARCHAR(255) NOT NULL,
						state VARCHAR(32) NOT NULL,
						current_round BIGINT NOT NULL DEFAULT 0,
						total_rounds BIGINT NOT NULL,
						min_clients BIGINT NOT NULL,
						max_participants BIGINT NOT NULL DEFAULT 0,
						round_timeout BIGINT NOT NULL DEFAULT 0,
						quorum_timeout BIGINT NOT NULL DEFAULT 0,
						reason VARCHAR(64),
						message TEXT,
						created_at TIMESTAMPTZ NOT NULL,
						started_at TIMESTAMPTZ,
						finished_at TIMESTAMPTZ,
						updated_at TIMESTAMPTZ NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_sessions_project_id ON sessions(project_id)`,
					`CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at)`,
					`CREATE TABLE IF NOT EXISTS round_metrics (
						session_id VARCHAR(36) NOT NULL,
						round BIGINT NOT NULL,
						accuracy DOUBLE PRECISION NOT NULL,
						loss DOUBLE PRECISION NOT NULL,
						num_clients BIGINT NOT NULL,
						total_samples BIGINT NOT NULL,
						client_metrics JSONB,
						timestamp TIMESTAMPTZ NOT NULL,
						PRIMARY KEY (session_id, round)
					)`,
					`CREATE INDEX IF NOT EXISTS idx_round_metrics_timestamp ON round_metrics(timestamp DESC)`,
					`CREATE TABLE IF NOT EXISTS models (
						session_id VARCHAR(36) NOT NULL,
						version BIGINT NOT NULL,
						weights JSONB,
						created_at TIMESTAMPTZ NOT NULL,
						PRIMARY KEY (session_id, version)
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS models`,
					`DROP INDEX IF EXISTS idx_round_metrics_timestamp`,
					`DROP TABLE IF EXISTS round_metrics`,
					`DROP INDEX IF EXISTS idx_sessions_created_at`,
					`DROP INDEX IF EXISTS idx_sessions_project_id`,
					`DROP TABLE IF EXISTS sessions`,
					`DROP INDEX IF EXISTS idx_clients_status`,
					`DROP TABLE IF EXISTS clients`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "postgres", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
