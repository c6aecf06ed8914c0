package vault

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/boofi-labs/keeper/internal/wallet"
)

type mockHub struct {
	mock.Mock
}

func (m *mockHub) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	ret := m.Called(ctx, method)
	if res := ret.Get(0); res != nil {
		return res.([]interface{}), ret.Error(1)
	}
	return nil, ret.Error(1)
}

func bigs(vals ...int64) []*big.Int {
	out := make([]*big.Int, len(vals))
	for i, v := range vals {
		out[i] = big.NewInt(v)
	}
	return out
}

func newTestMonitor(t *testing.T, hub wallet.Caller, resolver AddressResolver) *Monitor {
	t.Helper()
	m, err := NewMonitor(Config{Hub: hub, Threshold: big.NewInt(100), Resolver: resolver})
	require.NoError(t, err)
	return m
}

func TestCheckPositions_ClassifiesAgainstThreshold(t *testing.T) {
	hub := new(mockHub)
	hub.On("Call", mock.Anything, wallet.MethodGetHealthFactors).
		Return([]interface{}{bigs(150, 50, 99)}, nil).Once()

	positions, err := newTestMonitor(t, hub, nil).CheckPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 3)

	assert.False(t, positions[0].IsLiquidatable)
	assert.True(t, positions[1].IsLiquidatable)
	assert.True(t, positions[2].IsLiquidatable)

	for i, p := range positions {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, common.BigToAddress(big.NewInt(int64(i))), p.Address)
	}
	assert.Equal(t, int64(50), positions[1].HealthFactor.Int64())

	liq := Liquidatable(positions)
	require.Len(t, liq, 2)
	assert.Equal(t, 1, liq[0].Index)
	assert.Equal(t, 2, liq[1].Index)
	hub.AssertExpectations(t)
}

func TestCheckPositions_BoundaryIsHealthy(t *testing.T) {
	hub := new(mockHub)
	hub.On("Call", mock.Anything, wallet.MethodGetHealthFactors).
		Return([]interface{}{bigs(100, 0)}, nil)

	positions, err := newTestMonitor(t, hub, nil).CheckPositions(context.Background())
	require.NoError(t, err)
	assert.False(t, positions[0].IsLiquidatable)
	assert.True(t, positions[1].IsLiquidatable)
}

func TestCheckPositions_Empty(t *testing.T) {
	hub := new(mockHub)
	hub.On("Call", mock.Anything, wallet.MethodGetHealthFactors).
		Return([]interface{}{[]*big.Int{}}, nil)

	positions, err := newTestMonitor(t, hub, nil).CheckPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Empty(t, Liquidatable(positions))
}

func TestCheckPositions_QueryFailure(t *testing.T) {
	tests := []struct {
		name string
		ret  []interface{}
		err  error
	}{
		{"node error", nil, errors.New("connection refused")},
		{"no outputs", []interface{}{}, nil},
		{"wrong type", []interface{}{"150"}, nil},
		{"nil entry", []interface{}{[]*big.Int{big.NewInt(1), nil}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := new(mockHub)
			hub.On("Call", mock.Anything, wallet.MethodGetHealthFactors).Return(tt.ret, tt.err)

			positions, err := newTestMonitor(t, hub, nil).CheckPositions(context.Background())
			assert.ErrorIs(t, err, ErrQueryFailed)
			assert.Nil(t, positions)
		})
	}
}

func TestCheckPositions_HubVaultResolver(t *testing.T) {
	a := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	b := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	hub := new(mockHub)
	hub.On("Call", mock.Anything, wallet.MethodGetHealthFactors).
		Return([]interface{}{bigs(20, 500)}, nil)
	hub.On("Call", mock.Anything, wallet.MethodGetVaults).
		Return([]interface{}{[]common.Address{a, b}}, nil)

	positions, err := newTestMonitor(t, hub, HubVaultResolver{Hub: hub}).CheckPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, a, positions[0].Address)
	assert.True(t, positions[0].IsLiquidatable)
	assert.Equal(t, b, positions[1].Address)
	assert.False(t, positions[1].IsLiquidatable)
}

func TestCheckPositions_HubVaultResolverLengthMismatch(t *testing.T) {
	hub := new(mockHub)
	hub.On("Call", mock.Anything, wallet.MethodGetHealthFactors).
		Return([]interface{}{bigs(20, 500)}, nil)
	hub.On("Call", mock.Anything, wallet.MethodGetVaults).
		Return([]interface{}{[]common.Address{common.HexToAddress("0xa1")}}, nil)

	_, err := newTestMonitor(t, hub, HubVaultResolver{Hub: hub}).CheckPositions(context.Background())
	assert.ErrorIs(t, err, ErrQueryFailed)
}

func TestNewMonitor_Validation(t *testing.T) {
	_, err := NewMonitor(Config{Threshold: big.NewInt(100)})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMonitor(Config{Hub: new(mockHub)})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMonitor(Config{Hub: new(mockHub), Threshold: big.NewInt(-1)})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	threshold := big.NewInt(100)
	m, err := NewMonitor(Config{Hub: new(mockHub), Threshold: threshold})
	require.NoError(t, err)
	threshold.SetInt64(5)
	assert.Equal(t, int64(100), m.Threshold().Int64())
}

func TestIndexResolver(t *testing.T) {
	addrs, err := IndexResolver{}.Resolve(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, addrs, 3)
	assert.Equal(t, common.Address{}, addrs[0])
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000002"), addrs[2])
}
