package sqlite

import (
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
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

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
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
						id TEXT PRIMARY KEY,
						status TEXT NOT NULL,
						total_samples INTEGER NOT NULL DEFAULT 0,
						last_seen TIMESTAMP NOT NULL,
						registered_at TIMESTAMP NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_clients_status ON clients(status)`,
					`CREATE TABLE IF NOT EXISTS sessions (
						id TEXT PRIMARY KEY,
						project_id TEXT NOT NULL,
						state TEXT NOT NULL,
						current_round INTEGER NOT NULL DEFAULT 0,
						total_rounds INTEGER NOT NULL,
						min_clients INTEGER NOT NULL,
						max_participants INTEGER NOT NULL DEFAULT 0,
						round_timeout INTEGER NOT NULL DEFAULT 0,
						quorum_timeout INTEGER NOT NULL DEFAULT 0,
						reason TEXT,
						message TEXT,
						created_at TIMESTAMP NOT NULL,
						started_at TIMESTAMP,
						finished_at TIMESTAMP,
						updated_at TIMESTAMP NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_sessions_project_id ON sessions(project_id)`,
					`CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at)`,
					`CREATE TABLE IF NOT EXISTS round_metrics (
						session_id TEXT NOT NULL,
						round INTEGER NOT NULL,
						accuracy REAL NOT NULL,
						loss REAL NOT NULL,
						num_clients INTEGER NOT NULL,
						total_samples INTEGER NOT NULL,
						client_metrics TEXT,
						timestamp TIMESTAMP NOT NULL,
						PRIMARY KEY (session_id, round)
					)`,
					`CREATE INDEX IF NOT EXISTS idx_round_metrics_timestamp ON round_metrics(timestamp DESC)`,
					`CREATE TABLE IF NOT EXISTS models (
						session_id TEXT NOT NULL,
						version INTEGER NOT NULL,
						weights TEXT,
						created_at TIMESTAMP NOT NULL,
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

	if _, err := migrate.Exec(db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
