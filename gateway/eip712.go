// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gateway implements the authorization and decryption gateway.
// Clients authorize a time-boxed decryption grant with an EIP-712 style
// typed-data signature; the relayer verifies the grant against the FHE ACL
// and returns values sealed under the requester's ephemeral public key.
package gateway

import (
	"encoding/binary"
	"math/big"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

const (
	domainName    = "PayrollDecryption"
	domainVersion = "1"
)

var (
	domainTypeHash = crypto.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	grantTypeHash = crypto.Keccak256([]byte(
		"DecryptionGrant(bytes publicKey,address[] contractAddresses,address account,uint64 issuedAt,uint64 durationDays)",
	))
)

// Grant authorizes decryption of handles scoped to ContractAddresses on
// behalf of Account, valid from IssuedAt for DurationDays days.
type Grant struct {
	PublicKey         []byte
	ContractAddresses []common.Address
	Account           common.Address
	IssuedAt          uint64
	DurationDays      uint64
	Signature         []byte
}

// ExpiresAt returns the first second at which the grant is no longer valid.
func (g *Grant) ExpiresAt() uint64 {
	return g.IssuedAt + g.DurationDays*86400
}

// domainSeparator binds signatures to one chain and one gateway deployment.
func domainSeparator(chainID *big.Int, verifyingContract common.Address) []byte {
	return crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte(domainName)),
		crypto.Keccak256([]byte(domainVersion)),
		common.BigToHash(chainID).Bytes(),
		common.LeftPadBytes(verifyingContract.Bytes(), 32),
	)
}

func encodeUint64Word(v uint64) []byte {
	word := make([]byte, 32)
	binary.BigEndian.PutUint64(word[24:], v)
	return word
}

// structHash hashes the grant fields per EIP-712 encoding rules. Dynamic
// fields are hashed; the address array hashes as the concatenation of its
// padded elements.
func structHash(g *Grant) []byte {
	var addrs []byte
	for _, addr := range g.ContractAddresses {
		addrs = append(addrs, common.LeftPadBytes(addr.Bytes(), 32)...)
	}

	return crypto.Keccak256(
		grantTypeHash,
		crypto.Keccak256(g.PublicKey),
		crypto.Keccak256(addrs),
		common.LeftPadBytes(g.Account.Bytes(), 32),
		encodeUint64Word(g.IssuedAt),
		encodeUint64Word(g.DurationDays),
	)
}

// GrantDigest returns the digest the account signs:
// keccak256(0x19 0x01 || domainSeparator || structHash).
func GrantDigest(chainID *big.Int, verifyingContract common.Address, g *Grant) []byte {
	return crypto.Keccak256(
		[]byte{0x19, 0x01},
		domainSeparator(chainID, verifyingContract),
		structHash(g),
	)
}
