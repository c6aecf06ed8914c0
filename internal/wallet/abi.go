package wallet

import (
	"bytes"
	_ "embed"
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	MethodGetHealthFactors = "getHealthFactors"
	MethodGetVaults        = "getVaults"
	MethodLiquidation      = "liquidation"
)

//go:embed abi/Hub.json
var hubABIJSON []byte

//go:embed abi/LiquidatorFlashLoan.json
var liquidatorABIJSON []byte

// HubABI returns the parsed hub contract ABI.
func HubABI() (abi.ABI, error) {
	return parseABI(hubABIJSON)
}

// LiquidatorABI returns the parsed liquidator contract ABI.
func LiquidatorABI() (abi.ABI, error) {
	return parseABI(liquidatorABIJSON)
}

func parseABI(raw []byte) (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, errors.Join(ErrInvalidABI, err)
	}
	return parsed, nil
}
