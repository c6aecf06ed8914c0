/*

This file contains the types for vault positions and the liquidation calls built from them.

*/

package types

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrZeroVault    = errors.New("vault address is zero")
	ErrZeroAsset    = errors.New("asset address is zero")
	ErrInvalidAsset = errors.New("asset amount is invalid")
)

// Position is one vault as seen in a single monitoring cycle.
// It is rebuilt from the hub every cycle and never cached.
type Position struct {
	Address        common.Address `json:"address"`
	Index          int            `json:"index"`         // Ordinal in the hub's health factor list
	HealthFactor   *big.Int       `json:"health_factor"` // Raw value as returned by the hub
	IsLiquidatable bool           `json:"is_liquidatable"`
}

// AssetAmount pairs a token address with a raw on-chain amount.
type AssetAmount struct {
	Asset  common.Address `json:"asset"`
	Amount *big.Int       `json:"amount"`
}

// LiquidationRequest holds the arguments of one liquidation call.
type LiquidationRequest struct {
	Vault         common.Address `json:"vault"`
	RepayAssets   []AssetAmount  `json:"repay_assets"`   // Repaid by the liquidator on behalf of the vault
	ReceiptAssets []AssetAmount  `json:"receipt_assets"` // Collateral received by the liquidator
}

// NewLiquidationRequest copies the schedules so later edits by the caller do not leak in.
func NewLiquidationRequest(vault common.Address, repay, receipt []AssetAmount) LiquidationRequest {
	return LiquidationRequest{
		Vault:         vault,
		RepayAssets:   append([]AssetAmount{}, repay...),
		ReceiptAssets: append([]AssetAmount{}, receipt...),
	}
}

// Validate checks the request before it is sent.
func (r LiquidationRequest) Validate() error {
	if r.Vault == (common.Address{}) {
		return ErrZeroVault
	}
	if err := validateSchedule("repay", r.RepayAssets); err != nil {
		return err
	}
	return validateSchedule("receipt", r.ReceiptAssets)
}

func validateSchedule(side string, assets []AssetAmount) error {
	for i, a := range assets {
		if a.Asset == (common.Address{}) {
			return fmt.Errorf("%w: %s[%d]", ErrZeroAsset, side, i)
		}
		if a.Amount == nil || a.Amount.Sign() < 0 {
			return fmt.Errorf("%w: %s[%d] amount must be non-negative", ErrInvalidAsset, side, i)
		}
	}
	return nil
}

// Split returns the four parallel slices in the liquidator's argument order.
// Addresses and amounts of the same side always have equal length.
func (r LiquidationRequest) Split() (repayAddrs []common.Address, repayAmts []*big.Int, receiptAddrs []common.Address, receiptAmts []*big.Int) {
	repayAddrs, repayAmts = splitSchedule(r.RepayAssets)
	receiptAddrs, receiptAmts = splitSchedule(r.ReceiptAssets)
	return
}

func splitSchedule(assets []AssetAmount) ([]common.Address, []*big.Int) {
	addrs := make([]common.Address, 0, len(assets))
	amts := make([]*big.Int, 0, len(assets))
	for _, a := range assets {
		addrs = append(addrs, a.Asset)
		amts = append(amts, a.Amount)
	}
	return addrs, amts
}

// TransactionResult contains transaction execution details
type TransactionResult struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
	Status      uint64 `json:"status"`
	Success     bool   `json:"success"`
	DryRun      bool   `json:"dry_run,omitempty"`
}

// LiquidationReceipt records the outcome of one liquidation attempt.
type LiquidationReceipt struct {
	CycleID      string             `json:"cycle_id"`
	Vault        common.Address     `json:"vault"`
	HealthFactor *big.Int           `json:"health_factor"`
	Result       *TransactionResult `json:"result,omitempty"`
	Success      bool               `json:"success"`
	Message      string             `json:"message,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}
