package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/boofi-labs/keeper/internal/logger"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrInvalidKey          = errors.New("signing key is invalid")
	ErrRPCConnectionFailed = errors.New("RPC connection failed")
	ErrChainIDMismatch     = errors.New("chain ID mismatch")
	ErrInvalidABI          = errors.New("contract ABI is invalid")
	ErrCallFailed          = errors.New("contract call failed")
	ErrTxSendFailed        = errors.New("transaction submission failed")
	ErrTxWaitFailed        = errors.New("waiting for transaction inclusion failed")
)

var walletLogger = logger.GetForComponent("wallet_client")

// Backend is the subset of the node RPC used by the signing client.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// ClientConfig carries everything needed to build a SigningClient.
type ClientConfig struct {
	ChainID    *big.Int
	PrivateKey *ecdsa.PrivateKey
	// RPCTimeout bounds each read call and each submission. Zero means no extra bound.
	RPCTimeout time.Duration
	// TxTimeout bounds waiting for inclusion. Zero means wait until ctx is done.
	TxTimeout time.Duration
}

// SigningClient holds the node connection and the signing identity.
type SigningClient struct {
	backend     Backend
	closer      func()
	key         *ecdsa.PrivateKey
	chainID     *big.Int
	fromAddress common.Address
	rpcTimeout  time.Duration
	txTimeout   time.Duration
}

// Dial connects to the node at endpoint and builds a SigningClient on top of it.
func Dial(ctx context.Context, endpoint string, cfg ClientConfig) (*SigningClient, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("RPC endpoint cannot be empty"))
	}

	ec, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, errors.Join(ErrRPCConnectionFailed, err)
	}

	client, err := NewSigningClient(ctx, ec, cfg)
	if err != nil {
		ec.Close()
		return nil, err
	}
	client.closer = ec.Close
	return client, nil
}

// NewSigningClient creates a signing client over an existing backend and
// verifies that the node serves the configured chain.
func NewSigningClient(ctx context.Context, backend Backend, cfg ClientConfig) (*SigningClient, error) {
	if backend == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("backend cannot be nil"))
	}
	if err := validateClientConfig(cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	if err := verifyChainID(ctx, backend, cfg.ChainID, cfg.RPCTimeout); err != nil {
		return nil, err
	}

	client := &SigningClient{
		backend:     backend,
		key:         cfg.PrivateKey,
		chainID:     new(big.Int).Set(cfg.ChainID),
		fromAddress: crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		rpcTimeout:  cfg.RPCTimeout,
		txTimeout:   cfg.TxTimeout,
	}

	walletLogger.Info().
		Str("address", client.fromAddress.Hex()).
		Str("chainID", client.chainID.String()).
		Msg("Signing client initialized successfully")

	return client, nil
}

// validateClientConfig validates all wallet configuration parameters
func validateClientConfig(cfg ClientConfig) error {
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return errors.New("chain ID must be positive")
	}
	if cfg.PrivateKey == nil {
		return errors.Join(ErrInvalidKey, errors.New("private key cannot be nil"))
	}
	if cfg.RPCTimeout < 0 || cfg.TxTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	return nil
}

type chainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

func verifyChainID(ctx context.Context, backend chainIDReader, want *big.Int, timeout time.Duration) error {
	callCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	got, err := backend.ChainID(callCtx)
	if err != nil {
		return errors.Join(ErrRPCConnectionFailed, fmt.Errorf("failed to query chain ID: %w", err))
	}
	if got.Cmp(want) != 0 {
		return fmt.Errorf("%w: node reports %s, configured %s", ErrChainIDMismatch, got, want)
	}
	return nil
}

// Address returns the signer's address.
func (s *SigningClient) Address() common.Address {
	return s.fromAddress
}

// ChainID returns a copy of the configured chain ID.
func (s *SigningClient) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// Close releases the node connection if this client dialed it.
func (s *SigningClient) Close() {
	if s.closer != nil {
		walletLogger.Info().Msg("Closing RPC connection")
		s.closer()
	}
}

// transactor builds fresh transact options for one submission.
func (s *SigningClient) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	opts.Context = ctx
	return opts, nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
