/*

This file contains the default parameters for the keeper.

The health factor threshold is compared against the raw integer returned by the hub.
Its unit is defined by the hub contract; 100 matches the deployed Base Sepolia hub.

*/

package config

import "time"

// DefaultParameters are the fallbacks for optional settings.
type DefaultParameters struct {
	ChainID               uint64
	HealthFactorThreshold string
	HealthFactorDecimals  int32
	LoopInterval          time.Duration
	QueryMaxRetries       uint64
	RPCTimeout            time.Duration
	TxTimeout             time.Duration
	GuardTTL              time.Duration
	WebPort               string
}

// Defaults is used by Load for every optional variable that is not set.
var Defaults = DefaultParameters{
	ChainID:               84532, // Base Sepolia
	HealthFactorThreshold: "100",
	HealthFactorDecimals:  0,
	LoopInterval:          30 * time.Second,
	QueryMaxRetries:       3,
	RPCTimeout:            30 * time.Second,
	TxTimeout:             2 * time.Minute,
	GuardTTL:              5 * time.Minute, // Longer than TxTimeout so a lease outlives a stuck send
	WebPort:               "8080",
}
