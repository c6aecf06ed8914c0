// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	"github.com/boofi-labs/keeper/internal/config"
)

var ErrNotInitialized = errors.New("database not initialized")

// Store is the liquidation attempt journal.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open initializes the database connection pool.
func Open(ctx context.Context, cfg config.DBConfig) (*Store, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := NewStore(db)
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return s, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	log.Info().Msg("Closing database connection...")
	if err := s.db.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database connection")
	}
}

// Ping tests if the database connection is healthy
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS liquidation_attempts (
		attempt_id BIGSERIAL PRIMARY KEY,
		attempted_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		cycle_id UUID NOT NULL,
		vault CHAR(42) NOT NULL,
		success BOOLEAN NOT NULL,
		dry_run BOOLEAN NOT NULL DEFAULT FALSE,
		tx_hash CHAR(66),
		block_number BIGINT,
		gas_used BIGINT,
		message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_liquidation_attempts_timestamp ON liquidation_attempts(attempted_at DESC);
	CREATE INDEX IF NOT EXISTS idx_liquidation_attempts_vault ON liquidation_attempts(vault);
	CREATE INDEX IF NOT EXISTS idx_liquidation_attempts_cycle ON liquidation_attempts(cycle_id);

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

const dropSchemaSQL = `
	DROP TABLE IF EXISTS liquidation_attempts CASCADE;
	DROP TABLE IF EXISTS cycle_counter CASCADE;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every journal table. Used by the reset script.
func (s *Store) DropSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	if _, err := s.db.ExecContext(ctx, dropSchemaSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Warn().Msg("Dropped all journal tables")
	return nil
}
