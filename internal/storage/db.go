package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection and provides health checks
type DB struct {
	conn *sqlx.DB
}

// DBConfig holds database configuration
type DBConfig struct {
	URL string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Query timeouts
	QueryTimeout time.Duration
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig() DBConfig {
	return DBConfig{
		URL:             "postgres://postgres@localhost:5432/watchgate?sslmode=disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
		QueryTimeout:    5 * time.Second,
	}
}

// NewDB creates a new database connection
func NewDB(cfg DBConfig) (*DB, error) {
	conn, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}

	return nil
}

// BeginTxx starts a new transaction
func (db *DB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// schema is applied at startup; idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS balances (
	subscriber_id TEXT PRIMARY KEY,
	amount        NUMERIC(20,6) NOT NULL DEFAULT 0 CHECK (amount >= 0),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS topics (
	id         TEXT PRIMARY KEY,
	question   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriptions (
	subscriber_id   TEXT NOT NULL,
	topic_id        TEXT NOT NULL,
	state           TEXT NOT NULL,
	last_charged_at TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	paused_at       TIMESTAMPTZ,
	removed_at      TIMESTAMPTZ,
	PRIMARY KEY (subscriber_id, topic_id)
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_topic_state
	ON subscriptions (topic_id, state);

CREATE TABLE IF NOT EXISTS usage_records (
	id            UUID PRIMARY KEY,
	subscriber_id TEXT NOT NULL,
	topic_id      TEXT NOT NULL,
	kind          TEXT NOT NULL,
	unit_cost     NUMERIC(20,6) NOT NULL CHECK (unit_cost > 0),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_usage_records_pair
	ON usage_records (subscriber_id, topic_id, created_at);

CREATE TABLE IF NOT EXISTS usage_summaries (
	subscriber_id TEXT NOT NULL,
	topic_id      TEXT NOT NULL,
	total_cost    NUMERIC(20,6) NOT NULL DEFAULT 0,
	record_count  BIGINT NOT NULL DEFAULT 0,
	first_seen    TIMESTAMPTZ NOT NULL,
	last_seen     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (subscriber_id, topic_id)
);
`

// EnsureSchema creates the tables if they do not exist yet
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
