package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gap-reversion-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN builds the libpq-style connection string
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode,
	)
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// The journal is a single low-rate writer
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logging.DatabaseContext("connect", "").Info("Connected to PostgreSQL", "database", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logging.DatabaseContext("close", "").Info("Database connection closed")
	}
}

// migrations are idempotent and run in order on every start
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS bot_events (
		id BIGSERIAL PRIMARY KEY,
		event_type VARCHAR(40) NOT NULL,
		symbol VARCHAR(20),
		payload JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bot_events_type ON bot_events(event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_bot_events_created_at ON bot_events(created_at)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(5) NOT NULL,
		quantity INTEGER NOT NULL,
		entry_price DECIMAL(20, 6) NOT NULL,
		exit_price DECIMAL(20, 6) NOT NULL,
		exit_reason VARCHAR(20) NOT NULL,
		pnl DECIMAL(20, 6) NOT NULL,
		dry_run BOOLEAN NOT NULL DEFAULT FALSE,
		opened_at TIMESTAMPTZ,
		closed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at)`,
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log := logging.DatabaseContext("migrate", "")
	log.Info("Running database migrations")

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info("Database migrations completed", "count", len(migrations))
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
