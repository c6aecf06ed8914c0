package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/boofi-labs/keeper/internal/liquidation"
	"github.com/boofi-labs/keeper/internal/logger"
	"github.com/boofi-labs/keeper/internal/metrics"
	"github.com/boofi-labs/keeper/internal/types"
	"github.com/boofi-labs/keeper/internal/utils"
	"github.com/boofi-labs/keeper/internal/vault"
)

const (
	defaultRetryInitialInterval = time.Second
	defaultRetryMaxInterval     = 15 * time.Second
)

// Executor submits one liquidation. *liquidation.Executor satisfies it.
type Executor interface {
	TriggerLiquidation(ctx context.Context, req types.LiquidationRequest) (*types.TransactionResult, error)
}

// Journal records attempts and numbers cycles. *state.Store satisfies it.
type Journal interface {
	IncrementCycleNumber(ctx context.Context) (int, error)
	RecordAttempt(ctx context.Context, receipt types.LiquidationReceipt) (int64, error)
}

// Config holds the dependencies of a Keeper.
type Config struct {
	Monitor  vault.PositionChecker
	Executor Executor
	// Schedule defaults to liquidation.EmptySchedule.
	Schedule liquidation.ScheduleProvider
	// Journal is optional.
	Journal Journal

	// QueryMaxRetries is the number of extra health factor queries per cycle.
	QueryMaxRetries      uint64
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// HaltOnQueryFailure makes RunLoop return when a cycle's query fails.
	HaltOnQueryFailure bool

	// HealthFactorDecimals is used only to render health factors in logs.
	HealthFactorDecimals int32
}

// Keeper drives the monitor and the executor, one cycle at a time.
type Keeper struct {
	logger   zerolog.Logger
	monitor  vault.PositionChecker
	executor Executor
	schedule liquidation.ScheduleProvider
	journal  Journal

	maxRetries    uint64
	retryInitial  time.Duration
	retryMax      time.Duration
	haltOnFailure bool
	decimals      int32

	cycleCount int
	latest     atomic.Pointer[types.CycleSnapshot]
}

// New creates a new Keeper instance with dependency injection
func New(cfg Config) (*Keeper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}

	k := &Keeper{
		logger:        logger.GetForComponent("keeper_core"),
		monitor:       cfg.Monitor,
		executor:      cfg.Executor,
		schedule:      cfg.Schedule,
		journal:       cfg.Journal,
		maxRetries:    cfg.QueryMaxRetries,
		retryInitial:  cfg.RetryInitialInterval,
		retryMax:      cfg.RetryMaxInterval,
		haltOnFailure: cfg.HaltOnQueryFailure,
		decimals:      cfg.HealthFactorDecimals,
	}
	if k.schedule == nil {
		k.schedule = liquidation.EmptySchedule{}
	}
	if k.retryInitial <= 0 {
		k.retryInitial = defaultRetryInitialInterval
	}
	if k.retryMax <= 0 {
		k.retryMax = defaultRetryMaxInterval
	}

	k.logger.Info().
		Uint64("queryMaxRetries", k.maxRetries).
		Bool("haltOnQueryFailure", k.haltOnFailure).
		Bool("journal", k.journal != nil).
		Msg("Keeper instance created successfully with dependency injection")

	return k, nil
}

func validateConfig(cfg Config) error {
	if cfg.Monitor == nil {
		return errors.New("position monitor cannot be nil")
	}
	if cfg.Executor == nil {
		return errors.New("liquidation executor cannot be nil")
	}
	if cfg.RetryInitialInterval < 0 || cfg.RetryMaxInterval < 0 {
		return errors.New("retry intervals cannot be negative")
	}
	return nil
}

// Latest returns a copy of the most recent cycle snapshot, or nil before the first cycle.
func (k *Keeper) Latest() *types.CycleSnapshot {
	snap := k.latest.Load()
	if snap == nil {
		return nil
	}
	cp := *snap
	cp.Receipts = append([]types.LiquidationReceipt(nil), snap.Receipts...)
	return &cp
}

// RunLoop runs cycles until ctx is done, sleeping interval after each one.
// A failed query pauses the loop for one interval; with HaltOnQueryFailure
// set the error is returned instead.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("loop interval must be positive, got %s", interval)
	}

	k.logger.Info().
		Dur("interval", interval).
		Msg("Starting keeper main loop")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return loopExitErr(ctx)
		case <-timer.C:
		}

		_, err := k.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
				return loopExitErr(ctx)
			}
			if k.haltOnFailure {
				k.logger.Error().Err(err).Msg("Keeper loop halted: health factor query failed")
				return err
			}
			k.logger.Error().Err(err).Dur("pause", interval).Msg("Cycle failed, pausing one interval before the next attempt")
		}

		timer.Reset(interval)
	}
}

func loopExitErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// RunCycle checks every vault once and tries to liquidate each unhealthy one
// in hub order. A failed liquidation never stops the cycle; a failed query
// (after retries) fails the whole cycle.
func (k *Keeper) RunCycle(ctx context.Context) (*types.CycleSnapshot, error) {
	cycleID := uuid.New().String()
	cycleLogger := k.logger.With().Str("cycle_id", cycleID).Logger()

	snapshot := &types.CycleSnapshot{
		CycleID:     cycleID,
		CycleNumber: k.nextCycleNumber(ctx),
		StartedAt:   time.Now().UTC(),
		Receipts:    make([]types.LiquidationReceipt, 0),
	}

	cycleLogger.Info().Int("cycleNumber", snapshot.CycleNumber).Msg("--- Starting Keeper Cycle ---")

	defer func() {
		snapshot.FinishedAt = time.Now().UTC()
		k.latest.Store(snapshot)
		metrics.CycleDuration.Observe(snapshot.Duration().Seconds())
		metrics.LastCycleTimestamp.Set(float64(snapshot.FinishedAt.Unix()))
	}()

	positions, err := k.checkWithRetry(ctx, cycleLogger)
	if err != nil {
		snapshot.QueryError = err.Error()
		metrics.CyclesTotal.WithLabelValues("query_failed").Inc()
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to check vault positions.")
		return snapshot, err
	}

	liquidatable := vault.Liquidatable(positions)
	snapshot.Scanned = len(positions)
	snapshot.Liquidatable = len(liquidatable)
	metrics.VaultsScanned.Set(float64(snapshot.Scanned))
	metrics.VaultsLiquidatable.Set(float64(snapshot.Liquidatable))

	cycleLogger.Info().
		Int("scanned", snapshot.Scanned).
		Int("liquidatable", snapshot.Liquidatable).
		Msg("Step 1: Vault positions checked.")

	for _, pos := range liquidatable {
		if ctx.Err() != nil {
			cycleLogger.Warn().Int("remaining", snapshot.Liquidatable-snapshot.Attempted).Msg("Cycle interrupted by context cancellation")
			metrics.CyclesTotal.WithLabelValues("interrupted").Inc()
			return snapshot, ctx.Err()
		}
		receipt := k.liquidate(ctx, cycleLogger, cycleID, pos, snapshot)
		snapshot.Receipts = append(snapshot.Receipts, receipt)
		k.record(ctx, cycleLogger, receipt)
	}

	metrics.CyclesTotal.WithLabelValues("completed").Inc()
	cycleLogger.Info().
		Int("attempted", snapshot.Attempted).
		Int("succeeded", snapshot.Succeeded).
		Int("failed", snapshot.Failed).
		Int("skipped", snapshot.Skipped).
		Str("cycleDuration", time.Since(snapshot.StartedAt).String()).
		Msg("--- Keeper Cycle Completed ---")

	return snapshot, nil
}

// checkWithRetry queries the monitor, retrying with exponential backoff up
// to maxRetries extra times.
func (k *Keeper) checkWithRetry(ctx context.Context, cycleLogger zerolog.Logger) ([]types.Position, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = k.retryInitial
	b.MaxInterval = k.retryMax
	b.MaxElapsedTime = 0

	var positions []types.Position
	op := func() error {
		var err error
		positions, err = k.monitor.CheckPositions(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		metrics.QueryRetries.Inc()
		cycleLogger.Warn().Err(err).Dur("retryIn", next).Msg("Health factor query failed, retrying")
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(b, k.maxRetries), ctx)
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, err
	}
	return positions, nil
}

func (k *Keeper) liquidate(ctx context.Context, cycleLogger zerolog.Logger, cycleID string, pos types.Position, snapshot *types.CycleSnapshot) types.LiquidationReceipt {
	receipt := types.LiquidationReceipt{
		CycleID:      cycleID,
		Vault:        pos.Address,
		HealthFactor: pos.HealthFactor,
		Timestamp:    time.Now().UTC(),
	}
	vaultLogger := cycleLogger.With().
		Str("vault", pos.Address.Hex()).
		Int("index", pos.Index).
		Str("healthFactor", utils.MustFormatUnits(pos.HealthFactor, k.decimals)).
		Logger()

	req, err := liquidation.BuildRequest(ctx, k.schedule, pos)
	if err != nil {
		snapshot.Failed++
		receipt.Message = err.Error()
		metrics.LiquidationAttempts.WithLabelValues(metrics.OutcomeFailed).Inc()
		vaultLogger.Error().Err(err).Msg("Failed to build liquidation request")
		return receipt
	}

	snapshot.Attempted++
	start := time.Now()
	result, err := k.executor.TriggerLiquidation(ctx, req)
	receipt.Result = result

	switch {
	case errors.Is(err, liquidation.ErrVaultInFlight):
		snapshot.Skipped++
		receipt.Message = err.Error()
		metrics.LiquidationAttempts.WithLabelValues(metrics.OutcomeSkipped).Inc()
		vaultLogger.Warn().Err(err).Msg("Liquidation skipped: vault already in flight")
	case err != nil:
		snapshot.Failed++
		receipt.Message = err.Error()
		outcome := metrics.OutcomeFailed
		if errors.Is(err, liquidation.ErrReverted) {
			outcome = metrics.OutcomeReverted
		}
		metrics.LiquidationAttempts.WithLabelValues(outcome).Inc()
		vaultLogger.Error().Err(err).Msg("Liquidation failed")
	case result != nil && result.DryRun:
		snapshot.Skipped++
		receipt.Message = "dry run"
		metrics.LiquidationAttempts.WithLabelValues(metrics.OutcomeDryRun).Inc()
		vaultLogger.Info().Msg("Liquidation not sent (dry run)")
	default:
		snapshot.Succeeded++
		receipt.Success = true
		metrics.LiquidationAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
		metrics.LiquidationDuration.Observe(time.Since(start).Seconds())
		txHash := ""
		if result != nil {
			txHash = result.TxHash
		}
		vaultLogger.Info().Str("txHash", txHash).Msg("Liquidation succeeded")
	}

	return receipt
}

func (k *Keeper) record(ctx context.Context, cycleLogger zerolog.Logger, receipt types.LiquidationReceipt) {
	if k.journal == nil {
		return
	}
	if _, err := k.journal.RecordAttempt(context.WithoutCancel(ctx), receipt); err != nil {
		cycleLogger.Warn().Err(err).Str("vault", receipt.Vault.Hex()).Msg("Failed to journal liquidation attempt")
	}
}

// nextCycleNumber increments the persistent cycle counter, falling back to a
// process-local counter when there is no journal or it fails.
func (k *Keeper) nextCycleNumber(ctx context.Context) int {
	k.cycleCount++
	if k.journal == nil {
		return k.cycleCount
	}
	n, err := k.journal.IncrementCycleNumber(ctx)
	if err != nil {
		k.logger.Error().Err(err).Msg("Failed to increment cycle number, using local counter")
		return k.cycleCount
	}
	return n
}
