// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"crypto/subtle"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// ProofLen is the length of an input proof in bytes.
const ProofLen = 32

// inputProof binds a ciphertext handle to the contract and sender it was
// produced for. A proof replayed against a different contract or sender
// recomputes to a different digest and fails verification.
func inputProof(handle common.Hash, contractAddr, sender common.Address) [ProofLen]byte {
	h := blake3.New()
	h.Write(handle.Bytes())
	h.Write(contractAddr.Bytes())
	h.Write(sender.Bytes())

	var proof [ProofLen]byte
	copy(proof[:], h.Sum(nil))
	return proof
}

// CreateEncryptedInput encrypts [value] on behalf of [sender] for use with
// [contractAddr], returning the stored handle and its binding proof. This is
// the client half of the input flow.
func (c *Coprocessor) CreateEncryptedInput(contractAddr, sender common.Address, value uint64) (common.Hash, [ProofLen]byte, error) {
	handle, err := c.Encrypt(value)
	if err != nil {
		return ZeroHandle, [ProofLen]byte{}, err
	}
	return handle, inputProof(handle, contractAddr, sender), nil
}

// VerifyInput checks that [proof] binds [handle] to [contractAddr] and
// [sender], and that the handle names a stored ciphertext. Any mismatch
// returns ErrInvalidProof.
func (c *Coprocessor) VerifyInput(handle common.Hash, proof [ProofLen]byte, contractAddr, sender common.Address) error {
	if handle == ZeroHandle {
		return ErrInvalidProof
	}
	if _, ok := c.ciphertext(handle); !ok {
		return ErrInvalidProof
	}

	expected := inputProof(handle, contractAddr, sender)
	if subtle.ConstantTimeCompare(expected[:], proof[:]) != 1 {
		return ErrInvalidProof
	}
	return nil
}
