// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry assigns the precompile addresses of the confidential
// payroll suite and describes each deployment.
package registry

import (
	"github.com/luxfi/geth/common"
)

// ============================================================================
// PRECOMPILE ADDRESS SCHEME - Aligned with LP Numbering (LP-0099)
// ============================================================================
//
// All Lux-native precompiles use trailing-significant 20-byte addresses:
//   Format: 0x0000000000000000000000000000000000PCII
//
// The address ends with the 16-bit LP number (PCII). The payroll suite lives
// on the Privacy/ZK page (P=4, LP-4xxx), C-Chain slot (C=2):
//
//   LP-4250 → Payroll ledger (FHE salary accounting)
//   LP-4251 → Decryption gateway (signed grant verification)

const (
	// PayrollLedger is the confidential salary ledger precompile (LP-4250).
	PayrollLedger = "0x0000000000000000000000000000000000004250"

	// DecryptionGateway verifies decryption grants for payroll handles (LP-4251).
	DecryptionGateway = "0x0000000000000000000000000000000000004251"
)

var (
	// PayrollAddress is the parsed ledger precompile address.
	PayrollAddress = common.HexToAddress(PayrollLedger)

	// GatewayAddress is the parsed gateway address.
	GatewayAddress = common.HexToAddress(DecryptionGateway)
)

// PrecompileInfo contains metadata about a precompile
type PrecompileInfo struct {
	Address     string
	Name        string
	Description string
	GasBase     uint64
	Chains      []string
	LPRange     string
}

// AllPrecompiles lists the payroll suite precompiles with their metadata
var AllPrecompiles = []PrecompileInfo{
	{PayrollLedger, "PAYROLL_LEDGER", "FHE confidential salary ledger", 100000, []string{"C", "Z"}, "LP-4250"},
	{DecryptionGateway, "DECRYPTION_GATEWAY", "Signed decryption grant verification", 50000, []string{"C", "Z"}, "LP-4251"},
}

// ChainPrecompiles defines which precompiles are enabled for each chain
var ChainPrecompiles = map[string][]string{
	"C": {PayrollLedger, DecryptionGateway},
	"Z": {PayrollLedger, DecryptionGateway},
}

// GetPrecompileAddress returns the address for a precompile by name
func GetPrecompileAddress(name string) common.Address {
	for _, p := range AllPrecompiles {
		if p.Name == name {
			return common.HexToAddress(p.Address)
		}
	}
	return common.Address{}
}

// GetChainPrecompiles returns all precompile addresses for a chain
func GetChainPrecompiles(chainLetter string) []common.Address {
	addrs, ok := ChainPrecompiles[chainLetter]
	if !ok {
		return nil
	}

	result := make([]common.Address, len(addrs))
	for i, addr := range addrs {
		result[i] = common.HexToAddress(addr)
	}
	return result
}

// IsPrecompileEnabled checks if a precompile is enabled for a chain
func IsPrecompileEnabled(chainLetter string, precompileAddr common.Address) bool {
	addrs := ChainPrecompiles[chainLetter]

	for _, addr := range addrs {
		if common.HexToAddress(addr) == precompileAddr {
			return true
		}
	}
	return false
}
