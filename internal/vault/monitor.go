package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/boofi-labs/keeper/internal/logger"
	"github.com/boofi-labs/keeper/internal/types"
	"github.com/boofi-labs/keeper/internal/utils"
	"github.com/boofi-labs/keeper/internal/wallet"
)

// Error definitions for zero-tolerance error handling
var (
	ErrQueryFailed   = errors.New("health factor query failed")
	ErrInvalidConfig = errors.New("monitor configuration is invalid")
)

var vaultLogger = logger.GetForComponent("vault_monitor")

// Config wires a Monitor to the hub contract.
type Config struct {
	Hub       wallet.Caller
	Threshold *big.Int
	// Resolver defaults to IndexResolver when nil.
	Resolver AddressResolver
	// Decimals is used only to render health factors in logs.
	Decimals int32
}

// Monitor reads health factors from the hub and classifies each vault.
type Monitor struct {
	hub       wallet.Caller
	threshold *big.Int
	resolver  AddressResolver
	decimals  int32
}

// NewMonitor validates cfg and builds a Monitor.
func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.Hub == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("hub caller cannot be nil"))
	}
	if cfg.Threshold == nil || cfg.Threshold.Sign() < 0 {
		return nil, errors.Join(ErrInvalidConfig, errors.New("threshold must be non-negative"))
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = IndexResolver{}
	}
	return &Monitor{
		hub:       cfg.Hub,
		threshold: new(big.Int).Set(cfg.Threshold),
		resolver:  resolver,
		decimals:  cfg.Decimals,
	}, nil
}

// Threshold returns a copy of the liquidation threshold.
func (m *Monitor) Threshold() *big.Int {
	return new(big.Int).Set(m.threshold)
}

// CheckPositions queries getHealthFactors once and returns one position per
// entry, in hub order. It does not retry.
func (m *Monitor) CheckPositions(ctx context.Context) ([]types.Position, error) {
	factors, err := m.fetchHealthFactors(ctx)
	if err != nil {
		vaultLogger.Error().Err(err).Msg("Failed to fetch health factors")
		return nil, err
	}

	addresses, err := m.resolver.Resolve(ctx, len(factors))
	if err != nil {
		vaultLogger.Error().Err(err).Msg("Failed to resolve vault addresses")
		return nil, errors.Join(ErrQueryFailed, err)
	}
	if len(addresses) != len(factors) {
		return nil, fmt.Errorf("%w: resolved %d addresses for %d health factors", ErrQueryFailed, len(addresses), len(factors))
	}

	positions := make([]types.Position, 0, len(factors))
	for i, hf := range factors {
		p := types.Position{
			Address:        addresses[i],
			Index:          i,
			HealthFactor:   new(big.Int).Set(hf),
			IsLiquidatable: hf.Cmp(m.threshold) < 0,
		}
		positions = append(positions, p)

		vaultLogger.Debug().
			Int("index", i).
			Str("vault", p.Address.Hex()).
			Str("healthFactor", utils.MustFormatUnits(hf, m.decimals)).
			Bool("liquidatable", p.IsLiquidatable).
			Msg("Classified vault")
	}

	vaultLogger.Info().
		Int("vaults", len(positions)).
		Int("liquidatable", len(Liquidatable(positions))).
		Str("threshold", m.threshold.String()).
		Msg("Checked vault positions")

	return positions, nil
}

func (m *Monitor) fetchHealthFactors(ctx context.Context) ([]*big.Int, error) {
	results, err := m.hub.Call(ctx, wallet.MethodGetHealthFactors)
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: expected 1 return value, got %d", ErrQueryFailed, len(results))
	}
	factors, ok := results[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected return type %T", ErrQueryFailed, results[0])
	}
	for i, hf := range factors {
		if hf == nil {
			return nil, fmt.Errorf("%w: health factor %d is nil", ErrQueryFailed, i)
		}
	}
	return factors, nil
}

// Liquidatable returns the liquidatable positions, preserving order.
func Liquidatable(positions []types.Position) []types.Position {
	out := make([]types.Position, 0, len(positions))
	for _, p := range positions {
		if p.IsLiquidatable {
			out = append(out, p)
		}
	}
	return out
}

// IndexResolver derives each vault address from its list index, placed in
// the low-order bytes of an otherwise zero address.
type IndexResolver struct{}

func (IndexResolver) Resolve(_ context.Context, count int) ([]common.Address, error) {
	addrs := make([]common.Address, count)
	for i := range addrs {
		addrs[i] = common.BigToAddress(big.NewInt(int64(i)))
	}
	return addrs, nil
}

// HubVaultResolver reads the real vault addresses from the hub's getVaults().
type HubVaultResolver struct {
	Hub wallet.Caller
}

func (r HubVaultResolver) Resolve(ctx context.Context, count int) ([]common.Address, error) {
	if r.Hub == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("hub caller cannot be nil"))
	}
	results, err := r.Hub.Call(ctx, wallet.MethodGetVaults)
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("getVaults: expected 1 return value, got %d", len(results))
	}
	addrs, ok := results[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getVaults: unexpected return type %T", results[0])
	}
	if len(addrs) != count {
		return nil, fmt.Errorf("getVaults returned %d addresses, hub reports %d health factors", len(addrs), count)
	}
	return addrs, nil
}
