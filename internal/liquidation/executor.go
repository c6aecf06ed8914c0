package liquidation

import (
	"context"
	"errors"
	"fmt"

	"github.com/boofi-labs/keeper/internal/logger"
	"github.com/boofi-labs/keeper/internal/types"
	"github.com/boofi-labs/keeper/internal/wallet"
)

// Error definitions for zero-tolerance error handling
var (
	ErrTransactionFailed = errors.New("liquidation transaction failed")
	ErrReverted          = errors.New("liquidation transaction reverted")
	ErrInvalidRequest    = errors.New("liquidation request is invalid")
	ErrVaultInFlight     = errors.New("vault already has a liquidation in flight")
	ErrInvalidConfig     = errors.New("executor configuration is invalid")
)

var execLogger = logger.GetForComponent("liquidation_executor")

// Config wires an Executor to the liquidator contract.
type Config struct {
	Liquidator wallet.Transactor
	// Guard defaults to a MemoryGuard when nil.
	Guard InFlightGuard
	// DryRun logs each request instead of sending it.
	DryRun bool
}

// Executor submits liquidation calls, one at a time per vault.
type Executor struct {
	liquidator wallet.Transactor
	guard      InFlightGuard
	dryRun     bool
}

func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Liquidator == nil && !cfg.DryRun {
		return nil, errors.Join(ErrInvalidConfig, errors.New("liquidator cannot be nil in live mode"))
	}
	guard := cfg.Guard
	if guard == nil {
		guard = NewMemoryGuard()
	}
	return &Executor{liquidator: cfg.Liquidator, guard: guard, dryRun: cfg.DryRun}, nil
}

// DryRun reports whether the executor only logs requests.
func (e *Executor) DryRun() bool {
	return e.dryRun
}

// TriggerLiquidation sends liquidation(vault, repayAddrs, repayAmts,
// receiptAddrs, receiptAmts) and waits for it to be mined. It never retries,
// and calling it twice for the same vault submits two transactions.
func (e *Executor) TriggerLiquidation(ctx context.Context, req types.LiquidationRequest) (*types.TransactionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, wrapInvalid(err)
	}

	release, err := e.guard.Acquire(ctx, req.Vault)
	if err != nil {
		if errors.Is(err, ErrVaultInFlight) {
			return nil, err
		}
		return nil, errors.Join(ErrTransactionFailed, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			execLogger.Warn().Err(err).Str("vault", req.Vault.Hex()).Msg("Failed to release in-flight lease")
		}
	}()

	repayAddrs, repayAmts, receiptAddrs, receiptAmts := req.Split()

	if e.dryRun {
		execLogger.Info().
			Str("vault", req.Vault.Hex()).
			Int("repayAssets", len(repayAddrs)).
			Int("receiptAssets", len(receiptAddrs)).
			Msg("DRY RUN: Skipping liquidation submission")
		return &types.TransactionResult{DryRun: true}, nil
	}

	execLogger.Info().
		Str("vault", req.Vault.Hex()).
		Int("repayAssets", len(repayAddrs)).
		Int("receiptAssets", len(receiptAddrs)).
		Msg("Submitting liquidation")

	result, err := e.liquidator.Transact(ctx, wallet.MethodLiquidation,
		req.Vault, repayAddrs, repayAmts, receiptAddrs, receiptAmts)
	if err != nil {
		return nil, errors.Join(ErrTransactionFailed, err)
	}
	if !result.Success {
		return result, fmt.Errorf("%w: %w: tx %s", ErrTransactionFailed, ErrReverted, result.TxHash)
	}

	execLogger.Info().
		Str("vault", req.Vault.Hex()).
		Str("txHash", result.TxHash).
		Uint64("block", result.BlockNumber).
		Uint64("gasUsed", result.GasUsed).
		Msg("Liquidation mined")

	return result, nil
}

func wrapInvalid(err error) error {
	return errors.Join(ErrInvalidRequest, err)
}
