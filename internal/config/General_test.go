package config

import (
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KEEPER_MODE", "live")
	t.Setenv("BASE_SEPOLIA_RPC_URL", "https://sepolia.base.org")
	t.Setenv("PRIVATE_KEY", "0x"+testKey)
	t.Setenv("LIQUIDATOR_FLASHLOAN_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("HUB_CONTRACT_ADDRESS", "0x2222222222222222222222222222222222222222")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeLive, cfg.Mode)
	assert.Equal(t, "https://sepolia.base.org", cfg.Endpoints.NodeRPC)
	assert.Equal(t, Defaults.RPCTimeout, cfg.Endpoints.RPCTimeout)
	assert.Equal(t, Defaults.TxTimeout, cfg.Endpoints.TxTimeout)
	assert.Equal(t, uint64(84532), cfg.ChainID.Uint64())
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), cfg.LiquidatorAddress)
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), cfg.HubAddress)
	assert.Equal(t, int64(100), cfg.HealthFactorThreshold.Int64())
	assert.Equal(t, 30*time.Second, cfg.LoopInterval)
	assert.Equal(t, uint64(3), cfg.QueryMaxRetries)
	assert.False(t, cfg.HaltOnQueryFailure)
	assert.False(t, cfg.HubVaultLookup)
	assert.Empty(t, cfg.RepayAssets)
	assert.Empty(t, cfg.ReceiptAssets)
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, "8080", cfg.WebPort)

	wantAddr := crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), wantAddr)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("KEEPER_MODE", "dry-run")
	t.Setenv("CHAIN_ID", "8453")
	t.Setenv("HEALTH_FACTOR_THRESHOLD", "1000000000000000000")
	t.Setenv("HEALTH_FACTOR_DECIMALS", "18")
	t.Setenv("LOOP_INTERVAL", "5s")
	t.Setenv("QUERY_MAX_RETRIES", "7")
	t.Setenv("HALT_ON_QUERY_FAILURE", "true")
	t.Setenv("HUB_VAULT_LOOKUP", "true")
	t.Setenv("REPAY_ASSETS", "0x036CbD53842c5426634e7929541eC2318f3dCF7e:100")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "keeper")
	t.Setenv("DB_NAME", "keeper")
	t.Setenv("WEB_PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeDryRun, cfg.Mode)
	assert.Equal(t, uint64(8453), cfg.ChainID.Uint64())
	assert.Equal(t, "1000000000000000000", cfg.HealthFactorThreshold.String())
	assert.Equal(t, int32(18), cfg.HealthFactorDecimals)
	assert.Equal(t, 5*time.Second, cfg.LoopInterval)
	assert.Equal(t, uint64(7), cfg.QueryMaxRetries)
	assert.True(t, cfg.HaltOnQueryFailure)
	assert.True(t, cfg.HubVaultLookup)
	require.Len(t, cfg.RepayAssets, 1)
	assert.Equal(t, int64(100), cfg.RepayAssets[0].Amount.Int64())
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "", cfg.WebPort)
}

func TestLoad_EmptyRPCURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BASE_SEPOLIA_RPC_URL", "")
	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_RPCURLFallback(t *testing.T) {
	setRequiredEnv(t)
	require.NoError(t, os.Unsetenv("BASE_SEPOLIA_RPC_URL"))
	t.Setenv("RPC_URL", "http://localhost:8545")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.Endpoints.NodeRPC)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantMsg string
	}{
		{"missing mode", "KEEPER_MODE", "", "KEEPER_MODE"},
		{"unknown mode", "KEEPER_MODE", "paper", "KEEPER_MODE"},
		{"missing key", "PRIVATE_KEY", "", "PRIVATE_KEY"},
		{"malformed key", "PRIVATE_KEY", "0xdeadbeef", "PRIVATE_KEY"},
		{"malformed liquidator", "LIQUIDATOR_FLASHLOAN_ADDRESS", "0x1234", "LIQUIDATOR_FLASHLOAN_ADDRESS"},
		{"zero hub", "HUB_CONTRACT_ADDRESS", "0x0000000000000000000000000000000000000000", "HUB_CONTRACT_ADDRESS"},
		{"bad threshold", "HEALTH_FACTOR_THRESHOLD", "-5", "HEALTH_FACTOR_THRESHOLD"},
		{"bad interval", "LOOP_INTERVAL", "soon", "LOOP_INTERVAL"},
		{"zero interval", "LOOP_INTERVAL", "0s", "LOOP_INTERVAL"},
		{"bad chain id", "CHAIN_ID", "base", "CHAIN_ID"},
		{"bad bool", "HALT_ON_QUERY_FAILURE", "maybe", "HALT_ON_QUERY_FAILURE"},
		{"bad schedule", "RECEIPT_ASSETS", "0xabc:1", "RECEIPT_ASSETS"},
		{"db without user", "DB_HOST", "localhost", "DB_USER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestRPCURLAlias(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RPC_URL", "http://localhost:8545")

	ep, err := loadEndpointConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://sepolia.base.org", ep.NodeRPC)
}
