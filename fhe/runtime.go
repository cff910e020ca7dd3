// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhe provides the encrypted value model for confidential ledgers:
// a TFHE runtime over 64-bit ciphertexts, a handle store keyed by ciphertext
// digest, input proofs binding client ciphertexts to a contract and sender,
// and a per-handle decryption allow-list.
package fhe

import (
	"sync"

	"github.com/luxfi/fhe"
)

var (
	// Singleton TFHE components
	tfheOnce  sync.Once
	evaluator *fhe.BitwiseEvaluator
	encryptor *fhe.BitwiseEncryptor
	decryptor *fhe.BitwiseDecryptor
	secretKey *fhe.SecretKey
	publicKey *fhe.PublicKey
	params    fhe.Parameters
	initErr   error
)

// Initialize TFHE components
func initTFHE() error {
	tfheOnce.Do(func() {
		var err error

		params, err = fhe.NewParametersFromLiteral(fhe.PN10QP27)
		if err != nil {
			initErr = err
			return
		}

		kg := fhe.NewKeyGenerator(params)
		secretKey, publicKey = kg.GenKeyPair()
		bsk := kg.GenBootstrapKey(secretKey)

		encryptor = fhe.NewBitwiseEncryptor(params, secretKey)
		decryptor = fhe.NewBitwiseDecryptor(params, secretKey)
		evaluator = fhe.NewBitwiseEvaluator(params, bsk, secretKey)
	})

	return initErr
}

// serializeBitCiphertext converts BitCiphertext to bytes
func serializeBitCiphertext(ct *fhe.BitCiphertext) []byte {
	if ct == nil {
		return nil
	}
	data, err := ct.MarshalBinary()
	if err != nil {
		return nil
	}
	return data
}

// deserializeBitCiphertext converts bytes to BitCiphertext
func deserializeBitCiphertext(data []byte) *fhe.BitCiphertext {
	if len(data) == 0 {
		return nil
	}
	ct := new(fhe.BitCiphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil
	}
	return ct
}

// tfheEncrypt encrypts a 64-bit value under the network secret key.
func tfheEncrypt(value uint64) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ct := encryptor.EncryptUint64(value, fhe.FheUint64)
	return serializeBitCiphertext(ct)
}

// tfheAdd computes lhs + rhs homomorphically. Overflow wraps mod 2^64.
func tfheAdd(lhs, rhs []byte) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	result, err := evaluator.Add(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	return serializeBitCiphertext(result)
}

// tfheSub computes lhs - rhs homomorphically. Underflow wraps mod 2^64.
func tfheSub(lhs, rhs []byte) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	result, err := evaluator.Sub(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	return serializeBitCiphertext(result)
}

// tfheDecrypt decrypts a ciphertext to its 64-bit plaintext.
func tfheDecrypt(ct []byte) (uint64, bool) {
	if err := initTFHE(); err != nil {
		return 0, false
	}

	ctIn := deserializeBitCiphertext(ct)
	if ctIn == nil {
		return 0, false
	}

	return decryptor.DecryptUint64(ctIn), true
}

// tfheValidate checks that a client ciphertext deserializes to a well-formed
// 64-bit BitCiphertext.
func tfheValidate(ct []byte) bool {
	return deserializeBitCiphertext(ct) != nil
}

// NetworkPublicKey returns the serialized TFHE public key clients encrypt
// against, or nil if the runtime failed to initialize.
func NetworkPublicKey() []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	if publicKey == nil {
		return nil
	}

	data, err := publicKey.MarshalBinary()
	if err != nil {
		return nil
	}
	return data
}
