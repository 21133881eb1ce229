// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// ErrNotInitialized is returned by every query made before InitDB.
var ErrNotInitialized = fmt.Errorf("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// schemaSQL is idempotent. Token amounts are NUMERIC(78, 0), wide enough for any uint256.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS vault_state (
		id INTEGER PRIMARY KEY DEFAULT 1,
		packed BYTEA NOT NULL,
		ledger JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	CREATE TABLE IF NOT EXISTS rebalance_events (
		event_id UUID PRIMARY KEY,
		event_timestamp TIMESTAMPTZ NOT NULL,
		caller TEXT NOT NULL,
		branch VARCHAR(16) NOT NULL,
		urgency BIGINT NOT NULL,
		ratio_bps INTEGER NOT NULL,
		total_supply NUMERIC(78, 0) NOT NULL,
		inventory0 NUMERIC(78, 0) NOT NULL,
		inventory1 NUMERIC(78, 0) NOT NULL,
		main_lower INTEGER NOT NULL,
		main_upper INTEGER NOT NULL,
		tilt_lower INTEGER NOT NULL,
		tilt_upper INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		epoch BIGINT NOT NULL,
		reward_token SMALLINT NOT NULL,
		reward NUMERIC(78, 0) NOT NULL,
		gas_used BIGINT NOT NULL,
		budget0 NUMERIC(78, 0) NOT NULL,
		budget1 NUMERIC(78, 0) NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rebalance_events_timestamp ON rebalance_events(event_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_rebalance_events_branch ON rebalance_events(branch);

	CREATE TABLE IF NOT EXISTS liquidity_events (
		event_id UUID PRIMARY KEY,
		event_timestamp TIMESTAMPTZ NOT NULL,
		action VARCHAR(16) NOT NULL,
		owner TEXT NOT NULL,
		shares NUMERIC(78, 0) NOT NULL,
		amount0 NUMERIC(78, 0) NOT NULL,
		amount1 NUMERIC(78, 0) NOT NULL,
		total_supply NUMERIC(78, 0) NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_liquidity_events_timestamp ON liquidity_events(event_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_liquidity_events_owner ON liquidity_events(owner);

	-- Cycle counter table for persistent global cycle tracking
	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	-- Insert initial row if it doesn't exist
	INSERT INTO cycle_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrNotInitialized
	}

	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured")
	return nil
}

// DropSchema removes every table EnsureSchema creates.
func DropSchema() error {
	if DB == nil {
		return ErrNotInitialized
	}

	dropSQL := `
		DROP TABLE IF EXISTS vault_state CASCADE;
		DROP TABLE IF EXISTS rebalance_events CASCADE;
		DROP TABLE IF EXISTS liquidity_events CASCADE;
		DROP TABLE IF EXISTS cycle_counter CASCADE;
	`
	if _, err := DB.Exec(dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Warn().Msg("Database schema dropped")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
