package liquidation

import (
	"context"

	"github.com/boofi-labs/keeper/internal/types"
)

// ScheduleProvider decides what a liquidation repays and what it receives.
type ScheduleProvider interface {
	Schedule(ctx context.Context, position types.Position) (repay, receipt []types.AssetAmount, err error)
}

// EmptySchedule submits no repay or receipt assets.
type EmptySchedule struct{}

func (EmptySchedule) Schedule(context.Context, types.Position) ([]types.AssetAmount, []types.AssetAmount, error) {
	return []types.AssetAmount{}, []types.AssetAmount{}, nil
}

// StaticSchedule uses the same configured schedule for every vault.
type StaticSchedule struct {
	Repay   []types.AssetAmount
	Receipt []types.AssetAmount
}

func (s StaticSchedule) Schedule(context.Context, types.Position) ([]types.AssetAmount, []types.AssetAmount, error) {
	return s.Repay, s.Receipt, nil
}

// BuildRequest asks provider for the schedules of position and assembles a
// validated request.
func BuildRequest(ctx context.Context, provider ScheduleProvider, position types.Position) (types.LiquidationRequest, error) {
	if provider == nil {
		provider = EmptySchedule{}
	}
	repay, receipt, err := provider.Schedule(ctx, position)
	if err != nil {
		return types.LiquidationRequest{}, wrapInvalid(err)
	}
	req := types.NewLiquidationRequest(position.Address, repay, receipt)
	if err := req.Validate(); err != nil {
		return types.LiquidationRequest{}, wrapInvalid(err)
	}
	return req, nil
}
