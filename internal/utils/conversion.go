/*
This file contains common utility functions for converting between on-chain integer
amounts and their textual forms used in configuration and logs.
*/

package utils

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/boofi-labs/keeper/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrConversionFailed = errors.New("conversion failed")
	ErrInvalidAddress   = errors.New("address is invalid")
)

// ParseUint256 parses a base-10 string into a big.Int that fits in a uint256.
func ParseUint256(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty value", ErrConversionFailed)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrConversionFailed, s, err)
	}
	return v.ToBig(), nil
}

// FormatUnits renders a raw integer amount with the given number of decimals,
// e.g. FormatUnits(1500000000000000000, 18) == "1.5".
func FormatUnits(amount *big.Int, precision int32) (string, error) {
	if precision < 0 || precision > 77 {
		return "", fmt.Errorf("%w: %d (must be between 0 and 77)", ErrInvalidPrecision, precision)
	}
	if amount == nil {
		return "", ErrAmountNil
	}
	if amount.Sign() < 0 {
		return "", ErrAmountNegative
	}
	return decimal.NewFromBigInt(amount, -precision).String(), nil
}

// MustFormatUnits is FormatUnits for logging, falling back to the raw integer.
func MustFormatUnits(amount *big.Int, precision int32) string {
	s, err := FormatUnits(amount, precision)
	if err != nil {
		if amount == nil {
			return "<nil>"
		}
		return amount.String()
	}
	return s
}

// ParseAssetAmounts parses "0xAsset:amount,0xAsset:amount" into an ordered schedule.
// An empty string yields an empty schedule.
func ParseAssetAmounts(s string) ([]types.AssetAmount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []types.AssetAmount{}, nil
	}

	parts := strings.Split(s, ",")
	out := make([]types.AssetAmount, 0, len(parts))
	for i, part := range parts {
		addr, amount, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("%w: entry %d %q must be address:amount", ErrConversionFailed, i, part)
		}
		addr = strings.TrimSpace(addr)
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: entry %d %q", ErrInvalidAddress, i, addr)
		}
		value, err := ParseUint256(amount)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, types.AssetAmount{Asset: common.HexToAddress(addr), Amount: value})
	}
	return out, nil
}
