// ./internal/state/attempts.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/boofi-labs/keeper/internal/types"
)

// undefinedTable is the PostgreSQL error code for a missing relation.
const undefinedTable = "42P01"

// Attempt is one journaled liquidation attempt.
type Attempt struct {
	ID          int64     `json:"id"`
	AttemptedAt time.Time `json:"attempted_at"`
	CycleID     string    `json:"cycle_id"`
	Vault       string    `json:"vault"`
	Success     bool      `json:"success"`
	DryRun      bool      `json:"dry_run"`
	TxHash      string    `json:"tx_hash,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	GasUsed     uint64    `json:"gas_used,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// AttemptStats represents aggregated journal data
type AttemptStats struct {
	Total       int        `json:"total"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
}

// RecordAttempt saves the outcome of one liquidation attempt.
func (s *Store) RecordAttempt(ctx context.Context, receipt types.LiquidationReceipt) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}

	var (
		txHash      sql.NullString
		blockNumber sql.NullInt64
		gasUsed     sql.NullInt64
		dryRun      bool
	)
	if r := receipt.Result; r != nil {
		dryRun = r.DryRun
		if r.TxHash != "" {
			txHash = sql.NullString{String: r.TxHash, Valid: true}
			blockNumber = sql.NullInt64{Int64: int64(r.BlockNumber), Valid: true}
			gasUsed = sql.NullInt64{Int64: int64(r.GasUsed), Valid: true}
		}
	}

	attemptedAt := receipt.Timestamp
	if attemptedAt.IsZero() {
		attemptedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO liquidation_attempts (
			attempted_at, cycle_id, vault, success, dry_run,
			tx_hash, block_number, gas_used, message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING attempt_id;
	`

	var attemptID int64
	err := s.db.QueryRowContext(ctx, query,
		attemptedAt, receipt.CycleID, receipt.Vault.Hex(), receipt.Success, dryRun,
		txHash, blockNumber, gasUsed, receipt.Message,
	).Scan(&attemptID)
	if err != nil {
		return 0, fmt.Errorf("failed to save liquidation attempt: %w", describePQError(err))
	}

	log.Debug().
		Int64("attempt_id", attemptID).
		Str("vault", receipt.Vault.Hex()).
		Bool("success", receipt.Success).
		Msg("Liquidation attempt saved to database")

	return attemptID, nil
}

// RecentAttempts returns the newest attempts first. When vaults is non-empty
// only attempts on those vaults are returned.
func (s *Store) RecentAttempts(ctx context.Context, limit int, vaults []common.Address) ([]Attempt, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}

	if limit <= 0 || limit > 100 {
		limit = 20 // Default limit
	}

	hexes := make([]string, 0, len(vaults))
	for _, v := range vaults {
		hexes = append(hexes, v.Hex())
	}

	query := `
		SELECT
			attempt_id, attempted_at, cycle_id, vault, success, dry_run,
			tx_hash, block_number, gas_used, message
		FROM liquidation_attempts
		WHERE cardinality($1::text[]) = 0 OR vault = ANY($1)
		ORDER BY attempted_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(hexes), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent attempts")
		return nil, fmt.Errorf("failed to query recent attempts: %w", describePQError(err))
	}
	defer rows.Close()

	attempts := []Attempt{}
	for rows.Next() {
		var (
			a           Attempt
			txHash      sql.NullString
			blockNumber sql.NullInt64
			gasUsed     sql.NullInt64
			message     sql.NullString
		)
		if err := rows.Scan(
			&a.ID, &a.AttemptedAt, &a.CycleID, &a.Vault, &a.Success, &a.DryRun,
			&txHash, &blockNumber, &gasUsed, &message,
		); err != nil {
			log.Error().Err(err).Msg("Failed to scan attempt row")
			continue // Skip this row and continue with others
		}
		a.TxHash = strings.TrimSpace(txHash.String)
		a.BlockNumber = uint64(blockNumber.Int64)
		a.GasUsed = uint64(gasUsed.Int64)
		a.Message = message.String
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempt rows: %w", err)
	}

	return attempts, nil
}

// GetAttemptStats aggregates the whole journal.
func (s *Store) GetAttemptStats(ctx context.Context) (AttemptStats, error) {
	var stats AttemptStats
	if s == nil || s.db == nil {
		return stats, ErrNotInitialized
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			MAX(attempted_at)
		FROM liquidation_attempts
	`

	var last sql.NullTime
	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Succeeded, &last); err != nil {
		return stats, fmt.Errorf("failed to get attempt stats: %w", describePQError(err))
	}
	stats.Failed = stats.Total - stats.Succeeded
	if last.Valid {
		t := last.Time
		stats.LastAttempt = &t
	}
	return stats, nil
}

func describePQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("%w (schema missing, run EnsureSchema)", err)
	}
	return err
}
