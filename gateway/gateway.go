// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"encoding/binary"
	"errors"
	"math/big"
	"time"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/payroll/fhe"
	"github.com/luxfi/payroll/seal"
)

var (
	ErrInvalidSignature   = errors.New("invalid grant signature")
	ErrSignerMismatch     = errors.New("grant signer does not match account")
	ErrGrantExpired       = errors.New("grant expired")
	ErrGrantNotYetValid   = errors.New("grant not yet valid")
	ErrContractNotInScope = errors.New("handle contract not in grant scope")
	ErrNotAllowed         = errors.New("account not allowed to decrypt handle")
	ErrEmptyRequest       = errors.New("empty decryption request")
)

// signatureLength is the byte length of a [R || S || V] secp256k1 signature.
const signatureLength = 65

// HandleRef names an encrypted value and the contract that produced it.
type HandleRef struct {
	Handle   common.Hash
	Contract common.Address
}

// DecryptionRequest asks the gateway to decrypt a set of handles under a
// signed grant.
type DecryptionRequest struct {
	Grant   Grant
	Handles []HandleRef
}

// SealedValue is one decrypted value sealed under the grant's public key.
type SealedValue struct {
	Handle common.Hash
	Sealed []byte
}

// Gateway verifies decryption grants and serves sealed plaintexts. It shares
// the coprocessor with the ledger so ACL grants made on-chain are visible
// here.
type Gateway struct {
	cop     *fhe.Coprocessor
	chainID *big.Int
	address common.Address

	now func() uint64
}

// New creates a gateway verifying grants for [chainID] and the gateway
// deployment at [address].
func New(cop *fhe.Coprocessor, chainID *big.Int, address common.Address) *Gateway {
	return &Gateway{
		cop:     cop,
		chainID: chainID,
		address: address,
		now:     func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// verifyGrant checks the signature, the signer, and the validity window.
func (g *Gateway) verifyGrant(grant *Grant) error {
	if len(grant.Signature) != signatureLength {
		return ErrInvalidSignature
	}

	digest := GrantDigest(g.chainID, g.address, grant)
	pub, err := crypto.SigToPub(digest, grant.Signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if common.PubkeyToAddress(*pub) != grant.Account {
		return ErrSignerMismatch
	}

	now := g.now()
	if now < grant.IssuedAt {
		return ErrGrantNotYetValid
	}
	if now >= grant.ExpiresAt() {
		return ErrGrantExpired
	}
	return nil
}

// inScope reports whether [contract] is one of the grant's authorized
// contracts.
func inScope(grant *Grant, contract common.Address) bool {
	for _, addr := range grant.ContractAddresses {
		if addr == contract {
			return true
		}
	}
	return false
}

// UserDecrypt verifies the request's grant and returns every requested value
// sealed under the grant's ephemeral public key. The call is read-only and
// idempotent; a failure on any handle fails the whole request.
func (g *Gateway) UserDecrypt(req *DecryptionRequest) ([]SealedValue, error) {
	if len(req.Handles) == 0 {
		return nil, ErrEmptyRequest
	}
	if err := g.verifyGrant(&req.Grant); err != nil {
		return nil, err
	}

	out := make([]SealedValue, 0, len(req.Handles))
	for _, ref := range req.Handles {
		if !inScope(&req.Grant, ref.Contract) {
			return nil, ErrContractNotInScope
		}
		if ref.Handle != fhe.ZeroHandle && !g.cop.IsAllowed(ref.Handle, req.Grant.Account) {
			return nil, ErrNotAllowed
		}

		value, err := g.cop.Decrypt(ref.Handle)
		if err != nil {
			return nil, err
		}

		plaintext := make([]byte, 8)
		binary.BigEndian.PutUint64(plaintext, value)
		sealed, err := seal.Seal(req.Grant.PublicKey, plaintext)
		if err != nil {
			return nil, err
		}
		out = append(out, SealedValue{Handle: ref.Handle, Sealed: sealed})
	}
	return out, nil
}
