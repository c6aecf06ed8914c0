package config

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Endpoints holds the node connection settings.
type Endpoints struct {
	// NodeRPC is the JSON-RPC endpoint of the EVM node.
	NodeRPC string
	// RPCTimeout bounds every read call and transaction submission.
	RPCTimeout time.Duration
	// TxTimeout bounds waiting for a submitted transaction to be mined.
	TxTimeout time.Duration
}

// loadEndpointConfig loads endpoint configuration from environment variables.
// BASE_SEPOLIA_RPC_URL takes precedence over RPC_URL.
func loadEndpointConfig() (Endpoints, error) {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var ep Endpoints
	var err error

	if _, ok := os.LookupEnv("BASE_SEPOLIA_RPC_URL"); ok {
		ep.NodeRPC, err = getEnv("BASE_SEPOLIA_RPC_URL")
	} else {
		ep.NodeRPC, err = getEnv("RPC_URL")
	}
	if err != nil {
		return ep, err
	}

	if ep.RPCTimeout, err = getEnvAsDurationDefault("RPC_TIMEOUT", Defaults.RPCTimeout); err != nil {
		return ep, err
	}
	if ep.TxTimeout, err = getEnvAsDurationDefault("TX_TIMEOUT", Defaults.TxTimeout); err != nil {
		return ep, err
	}

	log.Debug().
		Str("NodeRPC", ep.NodeRPC).
		Dur("RPCTimeout", ep.RPCTimeout).
		Dur("TxTimeout", ep.TxTimeout).
		Msg("Endpoint configuration loaded successfully.")

	return ep, nil
}
