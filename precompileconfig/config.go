// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package precompileconfig defines the configuration surface shared by all
// stateful precompile modules. Each module supplies a Config carrying an
// Upgrade that controls when the precompile activates or deactivates.
package precompileconfig

import "math/big"

// Config is implemented by every precompile module configuration.
type Config interface {
	// Key returns the unique json key used for this precompile in chain configs.
	Key() string
	// Timestamp returns the activation timestamp, or nil if never activated.
	Timestamp() *uint64
	// IsDisabled returns true if this config deactivates the precompile.
	IsDisabled() bool
	// Equal reports whether this config is equivalent to [other].
	Equal(other Config) bool
	// Verify checks the config is self-consistent against the chain config.
	Verify(chainConfig ChainConfig) error
}

// ChainConfig exposes the chain parameters precompile configs may verify against.
type ChainConfig interface {
	ChainID() *big.Int
}

// Upgrade carries the activation timestamp and disable flag shared by all
// precompile configs.
type Upgrade struct {
	BlockTimestamp *uint64 `json:"blockTimestamp,omitempty"`
	Disable        bool    `json:"disable,omitempty"`
}

// Timestamp returns the timestamp this upgrade activates at, or nil.
func (u *Upgrade) Timestamp() *uint64 {
	return u.BlockTimestamp
}

// Equal reports whether [u] is equivalent to [other].
func (u *Upgrade) Equal(other *Upgrade) bool {
	if other == nil {
		return false
	}
	if u.Disable != other.Disable {
		return false
	}
	if (u.BlockTimestamp == nil) != (other.BlockTimestamp == nil) {
		return false
	}
	if u.BlockTimestamp != nil && *u.BlockTimestamp != *other.BlockTimestamp {
		return false
	}
	return true
}
