package vault

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/boofi-labs/keeper/internal/types"
)

// PositionChecker defines the interface for reading vault health from the hub.
// The keeper depends on this interface so the monitor can be replaced in tests.
type PositionChecker interface {
	// CheckPositions returns every vault known to the hub, in hub order,
	// classified against the configured threshold.
	CheckPositions(ctx context.Context) ([]types.Position, error)
}

// AddressResolver maps the hub's health factor list to vault addresses.
type AddressResolver interface {
	// Resolve returns exactly count addresses, one per health factor index.
	Resolve(ctx context.Context, count int) ([]common.Address, error)
}
