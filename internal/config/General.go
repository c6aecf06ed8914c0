package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/boofi-labs/keeper/internal/types"
	"github.com/boofi-labs/keeper/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
)

// Mode is the safety switch for broadcasting transactions.
type Mode string

const (
	ModeLive   Mode = "live"
	ModeDryRun Mode = "dry-run"
)

// Config holds all application configuration. It is built once at startup
// and passed into constructors; nothing reads the environment afterwards.
type Config struct {
	Mode Mode

	// Chain
	ChainID    *big.Int
	PrivateKey *ecdsa.PrivateKey
	Endpoints  Endpoints

	// Contracts
	HubAddress        common.Address
	LiquidatorAddress common.Address

	// Monitor
	HealthFactorThreshold *big.Int
	HealthFactorDecimals  int32
	HubVaultLookup        bool

	// Loop
	LoopInterval       time.Duration
	QueryMaxRetries    uint64
	HaltOnQueryFailure bool

	// Liquidation schedules, empty unless configured
	RepayAssets   []types.AssetAmount
	ReceiptAssets []types.AssetAmount

	// In-flight guard
	RedisAddr     string
	RedisPassword string
	GuardTTL      time.Duration

	// Optional services
	Database DBConfig
	WebPort  string
	LogLevel string
	LogFile  string
}

// DBConfig holds journal database connection parameters.
// Host empty means the journal is disabled.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Enabled reports whether a database was configured.
func (d DBConfig) Enabled() bool {
	return d.Host != ""
}

// Load reads the configuration from environment variables.
// Required variables must be set; optional ones fall back to Defaults.
func Load() (*Config, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	cfg := &Config{}
	var err error

	mode, err := getEnv("KEEPER_MODE")
	if err != nil {
		return nil, err
	}
	switch Mode(mode) {
	case ModeLive, ModeDryRun:
		cfg.Mode = Mode(mode)
	default:
		return nil, fmt.Errorf("environment variable KEEPER_MODE must be %q or %q, got: %s", ModeLive, ModeDryRun, mode)
	}

	if cfg.Endpoints, err = loadEndpointConfig(); err != nil {
		return nil, err
	}

	chainID, err := getEnvAsUint64Default("CHAIN_ID", Defaults.ChainID)
	if err != nil {
		return nil, err
	}
	cfg.ChainID = new(big.Int).SetUint64(chainID)

	keyHex, err := getEnv("PRIVATE_KEY")
	if err != nil {
		return nil, err
	}
	if cfg.PrivateKey, err = ParsePrivateKey(keyHex); err != nil {
		return nil, err
	}

	if cfg.LiquidatorAddress, err = getEnvAsAddress("LIQUIDATOR_FLASHLOAN_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.HubAddress, err = getEnvAsAddress("HUB_CONTRACT_ADDRESS"); err != nil {
		return nil, err
	}

	threshold := getEnvDefault("HEALTH_FACTOR_THRESHOLD", Defaults.HealthFactorThreshold)
	if cfg.HealthFactorThreshold, err = utils.ParseUint256(threshold); err != nil {
		return nil, fmt.Errorf("environment variable HEALTH_FACTOR_THRESHOLD is invalid: %w", err)
	}
	decimals, err := getEnvAsUint64Default("HEALTH_FACTOR_DECIMALS", uint64(Defaults.HealthFactorDecimals))
	if err != nil {
		return nil, err
	}
	if decimals > 77 {
		return nil, errors.New("environment variable HEALTH_FACTOR_DECIMALS must be at most 77")
	}
	cfg.HealthFactorDecimals = int32(decimals)
	if cfg.HubVaultLookup, err = getEnvAsBoolDefault("HUB_VAULT_LOOKUP", false); err != nil {
		return nil, err
	}

	if cfg.LoopInterval, err = getEnvAsDurationDefault("LOOP_INTERVAL", Defaults.LoopInterval); err != nil {
		return nil, err
	}
	if cfg.LoopInterval <= 0 {
		return nil, errors.New("environment variable LOOP_INTERVAL must be positive")
	}
	if cfg.QueryMaxRetries, err = getEnvAsUint64Default("QUERY_MAX_RETRIES", Defaults.QueryMaxRetries); err != nil {
		return nil, err
	}
	if cfg.HaltOnQueryFailure, err = getEnvAsBoolDefault("HALT_ON_QUERY_FAILURE", false); err != nil {
		return nil, err
	}

	if cfg.RepayAssets, err = utils.ParseAssetAmounts(os.Getenv("REPAY_ASSETS")); err != nil {
		return nil, fmt.Errorf("environment variable REPAY_ASSETS is invalid: %w", err)
	}
	if cfg.ReceiptAssets, err = utils.ParseAssetAmounts(os.Getenv("RECEIPT_ASSETS")); err != nil {
		return nil, fmt.Errorf("environment variable RECEIPT_ASSETS is invalid: %w", err)
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.GuardTTL, err = getEnvAsDurationDefault("GUARD_TTL", Defaults.GuardTTL); err != nil {
		return nil, err
	}

	if cfg.Database, err = LoadDBConfig(); err != nil {
		return nil, err
	}

	cfg.WebPort = getEnvDefault("WEB_PORT", Defaults.WebPort)
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	cfg.LogFile = os.Getenv("LOG_FILE")

	log.Debug().
		Str("mode", string(cfg.Mode)).
		Str("chainID", cfg.ChainID.String()).
		Str("hub", cfg.HubAddress.Hex()).
		Str("liquidator", cfg.LiquidatorAddress.Hex()).
		Str("threshold", cfg.HealthFactorThreshold.String()).
		Dur("interval", cfg.LoopInterval).
		Msg("Configuration loaded successfully.")

	return cfg, nil
}

// ParsePrivateKey accepts a hex key with or without the 0x prefix.
func ParsePrivateKey(keyHex string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("environment variable PRIVATE_KEY is not a valid secp256k1 key: %w", err)
	}
	return key, nil
}

// LoadDBConfig reads the DB_* variables on their own, for tools that only need the journal.
func LoadDBConfig() (DBConfig, error) {
	db := DBConfig{
		Host:     os.Getenv("DB_HOST"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  getEnvDefault("DB_SSLMODE", "disable"),
	}
	port, err := getEnvAsUint64Default("DB_PORT", 5432)
	if err != nil {
		return db, err
	}
	db.Port = int(port)
	if db.Enabled() && (db.User == "" || db.DBName == "") {
		return db, errors.New("DB_USER and DB_NAME are required when DB_HOST is set")
	}
	return db, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvDefault retrieves a string environment variable or the fallback when unset.
func getEnvDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return fallback
}

// getEnvAsAddress retrieves a required hex address.
func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, errors.New("environment variable " + key + " must be a hex address, got: " + valueStr)
	}
	addr := common.HexToAddress(valueStr)
	if addr == (common.Address{}) {
		return common.Address{}, errors.New("environment variable " + key + " must not be the zero address")
	}
	return addr, nil
}

// getEnvAsUint64Default retrieves an optional uint64. Returns error if set but invalid.
func getEnvAsUint64Default(key string, fallback uint64) (uint64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(strings.TrimSpace(valueStr), 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDurationDefault retrieves an optional Go duration such as "30s".
func getEnvAsDurationDefault(key string, fallback time.Duration) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBoolDefault retrieves an optional boolean.
func getEnvAsBoolDefault(key string, fallback bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}
