// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package seal wraps decrypted values for a single recipient using ECIES over
// secp256k1. The relayer seals plaintexts under the requester's ephemeral
// public key so only the holder of the matching private key can open them.
//
// Compatible with go-ethereum's ECIES implementation used in devp2p.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"hash"
	"math/big"

	"github.com/luxfi/crypto/secp256k1"
)

var (
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidSealedBlob = errors.New("invalid sealed blob format")
	ErrOpenFailed        = errors.New("open failed: MAC verification failed")
)

const (
	pubKeySize = 65 // uncompressed secp256k1 point
	macSize    = 32 // HMAC-SHA256
)

// Keypair is an ephemeral ECIES keypair. The private scalar stays with the
// requester; only PublicKey travels in decryption requests.
type Keypair struct {
	PrivateKey []byte
	PublicKey  []byte
}

// GenerateKeypair returns a fresh secp256k1 keypair with the public key in
// uncompressed form.
func GenerateKeypair() (*Keypair, error) {
	curve := secp256k1.S256()
	priv, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, err
	}

	d := make([]byte, 32)
	priv.D.FillBytes(d)
	return &Keypair{
		PrivateKey: d,
		PublicKey:  elliptic.Marshal(curve, priv.PublicKey.X, priv.PublicKey.Y),
	}, nil
}

// Seal encrypts [plaintext] for the holder of [recipientPub]. The output is
// ephemeral_pk || iv || encrypted || mac.
func Seal(recipientPub, plaintext []byte) ([]byte, error) {
	curve := secp256k1.S256()

	x, y := elliptic.Unmarshal(curve, recipientPub)
	if x == nil {
		return nil, ErrInvalidPublicKey
	}

	ephPriv, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, err
	}

	sharedSecret := sharedX(curve, x, y, ephPriv.D.Bytes())
	encKey, macKey := deriveKeys(sharedSecret)

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	ciphertext := make([]byte, len(iv)+len(plaintext))
	copy(ciphertext, iv)
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], plaintext)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(ciphertext)
	tag := mac.Sum(nil)

	ephPub := elliptic.Marshal(curve, ephPriv.PublicKey.X, ephPriv.PublicKey.Y)

	result := make([]byte, len(ephPub)+len(ciphertext)+len(tag))
	copy(result, ephPub)
	copy(result[len(ephPub):], ciphertext)
	copy(result[len(ephPub)+len(ciphertext):], tag)

	return result, nil
}

// Open decrypts a sealed blob with [privateKey]. The MAC is checked before
// any plaintext is produced.
func Open(privateKey, sealed []byte) ([]byte, error) {
	curve := secp256k1.S256()

	if len(sealed) < pubKeySize+aes.BlockSize+macSize {
		return nil, ErrInvalidSealedBlob
	}

	ephPub := sealed[:pubKeySize]
	encryptedWithIV := sealed[pubKeySize : len(sealed)-macSize]
	expectedMac := sealed[len(sealed)-macSize:]

	ephX, ephY := elliptic.Unmarshal(curve, ephPub)
	if ephX == nil {
		return nil, ErrInvalidPublicKey
	}

	sharedSecret := sharedX(curve, ephX, ephY, privateKey)
	encKey, macKey := deriveKeys(sharedSecret)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(encryptedWithIV)
	computedMac := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expectedMac, computedMac) != 1 {
		return nil, ErrOpenFailed
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}

	iv := encryptedWithIV[:aes.BlockSize]
	encrypted := encryptedWithIV[aes.BlockSize:]

	plaintext := make([]byte, len(encrypted))
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(plaintext, encrypted)

	return plaintext, nil
}

// sharedX computes the ECDH shared secret, left padded to the curve size.
func sharedX(curve elliptic.Curve, x, y *big.Int, scalar []byte) []byte {
	sx, _ := curve.ScalarMult(x, y, scalar)

	byteLen := (curve.Params().BitSize + 7) / 8
	sharedSecret := make([]byte, byteLen)
	sx.FillBytes(sharedSecret)
	return sharedSecret
}

// deriveKeys splits the KDF output into an AES-256 key and an HMAC key.
func deriveKeys(sharedSecret []byte) (encKey, macKey []byte) {
	derivedKey := concatKDF(sha256.New, sharedSecret, nil, 64)
	return derivedKey[:32], derivedKey[32:]
}

// NIST SP 800-56A Concatenation Key Derivation Function
func concatKDF(h func() hash.Hash, z, otherInfo []byte, keyLen int) []byte {
	hashSize := h().Size()
	reps := (keyLen + hashSize - 1) / hashSize

	derivedKey := make([]byte, 0, reps*hashSize)

	for counter := uint32(1); counter <= uint32(reps); counter++ {
		hasher := h()
		counterBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(counterBytes, counter)
		hasher.Write(counterBytes)
		hasher.Write(z)
		hasher.Write(otherInfo)
		derivedKey = hasher.Sum(derivedKey)
	}

	return derivedKey[:keyLen]
}
