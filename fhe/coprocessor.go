// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"errors"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

var (
	ErrRuntimeUnavailable = errors.New("TFHE runtime unavailable")
	ErrUnknownHandle      = errors.New("unknown ciphertext handle")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrInvalidProof       = errors.New("input proof verification failed")
	ErrOperationFailed    = errors.New("FHE operation failed")
)

// ZeroHandle is the handle of an absent value. Decrypting it yields zero.
var ZeroHandle = common.Hash{}

// Coprocessor stores ciphertexts by handle and evaluates homomorphic
// operations over them. A handle is the blake3 digest of the ciphertext it
// names, so equal ciphertexts share a handle and handles are unforgeable
// without the ciphertext bytes.
type Coprocessor struct {
	mu          sync.RWMutex
	ciphertexts map[common.Hash][]byte
	allowed     map[common.Hash]map[common.Address]bool
}

// NewCoprocessor returns an empty coprocessor.
func NewCoprocessor() *Coprocessor {
	return &Coprocessor{
		ciphertexts: make(map[common.Hash][]byte),
		allowed:     make(map[common.Hash]map[common.Address]bool),
	}
}

// handleOf derives the handle naming [ct].
func handleOf(ct []byte) common.Hash {
	return common.Hash(blake3.Sum256(ct))
}

func (c *Coprocessor) store(ct []byte) common.Hash {
	handle := handleOf(ct)
	c.mu.Lock()
	c.ciphertexts[handle] = ct
	c.mu.Unlock()
	return handle
}

func (c *Coprocessor) ciphertext(handle common.Hash) ([]byte, bool) {
	c.mu.RLock()
	ct, ok := c.ciphertexts[handle]
	c.mu.RUnlock()
	return ct, ok
}

// Encrypt encrypts [value] under the network key and stores the result.
func (c *Coprocessor) Encrypt(value uint64) (common.Hash, error) {
	ct := tfheEncrypt(value)
	if ct == nil {
		return ZeroHandle, ErrRuntimeUnavailable
	}
	return c.store(ct), nil
}

// Import stores a client-produced ciphertext and returns its handle. The
// ciphertext must deserialize to a well-formed 64-bit value.
func (c *Coprocessor) Import(ct []byte) (common.Hash, error) {
	if !tfheValidate(ct) {
		return ZeroHandle, ErrInvalidCiphertext
	}
	return c.store(ct), nil
}

// Add computes a + b over encrypted values. Overflow wraps mod 2^64.
func (c *Coprocessor) Add(a, b common.Hash) (common.Hash, error) {
	lhs, ok := c.ciphertext(a)
	if !ok {
		return ZeroHandle, ErrUnknownHandle
	}
	rhs, ok := c.ciphertext(b)
	if !ok {
		return ZeroHandle, ErrUnknownHandle
	}

	result := tfheAdd(lhs, rhs)
	if result == nil {
		return ZeroHandle, ErrOperationFailed
	}
	return c.store(result), nil
}

// Sub computes a - b over encrypted values. Underflow wraps mod 2^64.
func (c *Coprocessor) Sub(a, b common.Hash) (common.Hash, error) {
	lhs, ok := c.ciphertext(a)
	if !ok {
		return ZeroHandle, ErrUnknownHandle
	}
	rhs, ok := c.ciphertext(b)
	if !ok {
		return ZeroHandle, ErrUnknownHandle
	}

	result := tfheSub(lhs, rhs)
	if result == nil {
		return ZeroHandle, ErrOperationFailed
	}
	return c.store(result), nil
}

// Has reports whether [handle] names a stored ciphertext.
func (c *Coprocessor) Has(handle common.Hash) bool {
	_, ok := c.ciphertext(handle)
	return ok
}

// Decrypt returns the plaintext behind [handle]. The zero handle decrypts to
// zero without error so uninitialized balances read as empty.
func (c *Coprocessor) Decrypt(handle common.Hash) (uint64, error) {
	if handle == ZeroHandle {
		return 0, nil
	}

	ct, ok := c.ciphertext(handle)
	if !ok {
		return 0, ErrUnknownHandle
	}

	value, ok := tfheDecrypt(ct)
	if !ok {
		return 0, ErrOperationFailed
	}
	return value, nil
}

// Allow grants [account] decryption access to [handle].
func (c *Coprocessor) Allow(handle common.Hash, account common.Address) {
	if handle == ZeroHandle {
		return
	}
	c.mu.Lock()
	if c.allowed[handle] == nil {
		c.allowed[handle] = make(map[common.Address]bool)
	}
	c.allowed[handle][account] = true
	c.mu.Unlock()
}

// IsAllowed reports whether [account] may decrypt [handle].
func (c *Coprocessor) IsAllowed(handle common.Hash, account common.Address) bool {
	c.mu.RLock()
	ok := c.allowed[handle][account]
	c.mu.RUnlock()
	return ok
}
