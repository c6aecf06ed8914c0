package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/boofi-labs/keeper/internal/logger"
	"github.com/boofi-labs/keeper/internal/types"
)

var txLogger = logger.GetForComponent("contract")

// Caller performs read-only contract calls.
type Caller interface {
	Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error)
}

// Transactor submits state-changing contract calls and waits for inclusion.
type Transactor interface {
	Transact(ctx context.Context, method string, args ...interface{}) (*types.TransactionResult, error)
}

// contractCaller is the read path of the backend.
type contractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Contract is a contract address and ABI bound to a signing client.
type Contract struct {
	address common.Address
	abi     abi.ABI
	from    common.Address
	reader  contractCaller
	client  *SigningClient
	bound   *bind.BoundContract
}

// BindContract binds the signing client to the contract at address.
func (s *SigningClient) BindContract(address common.Address, contractABI abi.ABI) (*Contract, error) {
	if address == (common.Address{}) {
		return nil, errors.Join(ErrInvalidConfig, errors.New("contract address cannot be zero"))
	}
	return &Contract{
		address: address,
		abi:     contractABI,
		from:    s.fromAddress,
		reader:  s.backend,
		client:  s,
		bound:   bind.NewBoundContract(address, contractABI, s.backend, s.backend, s.backend),
	}, nil
}

// Address returns the bound contract address.
func (c *Contract) Address() common.Address {
	return c.address
}

// Call invokes a view method and returns its decoded outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Join(ErrCallFailed, fmt.Errorf("pack %s: %w", method, err))
	}

	timeout := c.rpcTimeout()
	callCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	to := c.address
	output, err := c.reader.CallContract(callCtx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.Join(ErrCallFailed, fmt.Errorf("call %s on %s: %w", method, c.address.Hex(), err))
	}
	if len(output) == 0 {
		return nil, errors.Join(ErrCallFailed, fmt.Errorf("call %s on %s: %w", method, c.address.Hex(), bind.ErrNoCode))
	}

	results, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, errors.Join(ErrCallFailed, fmt.Errorf("unpack %s: %w", method, err))
	}
	return results, nil
}

// Transact signs and sends a method call, then waits until it is mined.
// A mined but reverted transaction is returned with Success false and no error.
func (c *Contract) Transact(ctx context.Context, method string, args ...interface{}) (*types.TransactionResult, error) {
	if c.client == nil || c.bound == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("contract is not bound to a signing client"))
	}

	sendCtx, cancelSend := withOptionalTimeout(ctx, c.rpcTimeout())
	defer cancelSend()

	opts, err := c.client.transactor(sendCtx)
	if err != nil {
		return nil, err
	}

	tx, err := c.bound.Transact(opts, method, args...)
	if err != nil {
		txLogger.Error().Err(err).Str("method", method).Str("contract", c.address.Hex()).Msg("Transact: Failed to submit transaction")
		return nil, errors.Join(ErrTxSendFailed, err)
	}

	txLogger.Info().
		Str("txHash", tx.Hash().Hex()).
		Str("method", method).
		Uint64("nonce", tx.Nonce()).
		Msg("Transact: Transaction submitted, waiting for inclusion")

	waitCtx, cancelWait := withOptionalTimeout(ctx, c.client.txTimeout)
	defer cancelWait()

	receipt, err := bind.WaitMined(waitCtx, c.client.backend, tx)
	if err != nil {
		return nil, errors.Join(ErrTxWaitFailed, fmt.Errorf("tx %s: %w", tx.Hash().Hex(), err))
	}

	return receiptToResult(tx.Hash(), receipt), nil
}

func (c *Contract) rpcTimeout() time.Duration {
	if c.client == nil {
		return 0
	}
	return c.client.rpcTimeout
}

func receiptToResult(hash common.Hash, receipt *gethtypes.Receipt) *types.TransactionResult {
	res := &types.TransactionResult{TxHash: hash.Hex()}
	if receipt == nil {
		return res
	}
	res.Status = receipt.Status
	res.GasUsed = receipt.GasUsed
	res.Success = receipt.Status == gethtypes.ReceiptStatusSuccessful
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return res
}
