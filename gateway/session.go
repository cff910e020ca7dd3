// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/payroll/fhe"
	"github.com/luxfi/payroll/seal"
)

var (
	ErrSessionNotReady = errors.New("session not ready")
	ErrNoSigner        = errors.New("no signer configured")
	ErrSigningFailed   = errors.New("grant signing failed")
)

// SessionState is the lifecycle state of a client session.
type SessionState uint8

const (
	StateUninitialized SessionState = iota
	StateReady
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// SignerFunc signs a grant digest on behalf of the session account. It is
// typically backed by a wallet.
type SignerFunc func(digest []byte) ([]byte, error)

// Relayer serves sealed decryptions for signed grants.
type Relayer interface {
	UserDecrypt(req *DecryptionRequest) ([]SealedValue, error)
}

// Session is the client side of the gateway. It lazily generates an
// ephemeral keypair and signs one grant per account, reusing both across
// decrypt calls until the grant expires or the account switches.
type Session struct {
	mu sync.Mutex

	relayer      Relayer
	chainID      *big.Int
	gatewayAddr  common.Address
	contracts    []common.Address
	durationDays uint64

	account common.Address
	signer  SignerFunc

	keypair *seal.Keypair
	grant   *Grant

	state   SessionState
	initErr error

	log         log.Logger
	now         func() uint64
	maxAttempts int
	backoff     time.Duration
}

// NewSession creates a session for [account] against [relayer]. Grants are
// scoped to [contracts] and valid for [durationDays] days.
func NewSession(
	relayer Relayer,
	chainID *big.Int,
	gatewayAddr common.Address,
	contracts []common.Address,
	durationDays uint64,
	account common.Address,
	signer SignerFunc,
) *Session {
	return &Session{
		relayer:      relayer,
		chainID:      chainID,
		gatewayAddr:  gatewayAddr,
		contracts:    contracts,
		durationDays: durationDays,
		account:      account,
		signer:       signer,
		log:          log.NewTestLogger(log.InfoLevel),
		now:          func() uint64 { return uint64(time.Now().Unix()) },
		maxAttempts:  3,
		backoff:      200 * time.Millisecond,
	}
}

// State returns the session lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Account returns the account this session decrypts for.
func (s *Session) Account() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Init eagerly initializes the session keypair. Decrypt initializes lazily,
// so calling Init is optional.
func (s *Session) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureReadyLocked()
}

// SwitchAccount rebinds the session to a new account and signer. The cached
// keypair and grant are invalidated; the next decrypt re-initializes.
func (s *Session) SwitchAccount(account common.Address, signer SignerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.account = account
	s.signer = signer
	s.keypair = nil
	s.grant = nil
	s.state = StateUninitialized
	s.initErr = nil

	s.log.Info("session account switched", "account", account)
}

func (s *Session) ensureReadyLocked() error {
	switch s.state {
	case StateReady:
		return nil
	case StateError:
		return fmt.Errorf("%w: %v", ErrSessionNotReady, s.initErr)
	}

	kp, err := seal.GenerateKeypair()
	if err != nil {
		s.state = StateError
		s.initErr = err
		s.log.Error("session initialization failed", "err", err)
		return fmt.Errorf("%w: %v", ErrSessionNotReady, err)
	}

	s.keypair = kp
	s.state = StateReady
	s.log.Info("session ready", "account", s.account)
	return nil
}

// ensureGrantLocked returns the cached grant, signing a fresh one if none is
// cached or the cached one has expired.
func (s *Session) ensureGrantLocked() (*Grant, error) {
	if s.grant != nil && s.now() < s.grant.ExpiresAt() {
		return s.grant, nil
	}
	return s.signGrantLocked()
}

func (s *Session) signGrantLocked() (*Grant, error) {
	if s.signer == nil {
		return nil, ErrNoSigner
	}

	grant := &Grant{
		PublicKey:         s.keypair.PublicKey,
		ContractAddresses: s.contracts,
		Account:           s.account,
		IssuedAt:          s.now(),
		DurationDays:      s.durationDays,
	}

	sig, err := s.signer(GrantDigest(s.chainID, s.gatewayAddr, grant))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	grant.Signature = sig

	s.grant = grant
	s.log.Info("grant signed", "account", s.account, "issuedAt", grant.IssuedAt, "durationDays", grant.DurationDays)
	return grant, nil
}

// permanent reports whether a relayer error cannot be fixed by retrying.
// Expiry is handled separately via a one-shot re-sign.
func permanent(err error) bool {
	return errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrSignerMismatch) ||
		errors.Is(err, ErrGrantNotYetValid) ||
		errors.Is(err, ErrContractNotInScope) ||
		errors.Is(err, ErrNotAllowed) ||
		errors.Is(err, ErrEmptyRequest) ||
		errors.Is(err, fhe.ErrUnknownHandle)
}

// Decrypt resolves [refs] to plaintext values through the relayer. Transient
// relayer failures are retried with backoff; an expired grant is re-signed
// once. Errors are returned to the caller, never silently mapped to zero
// values. Cancellation leaves cached session state intact.
func (s *Session) Decrypt(ctx context.Context, refs ...HandleRef) (map[common.Hash]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureReadyLocked(); err != nil {
		return nil, err
	}
	grant, err := s.ensureGrantLocked()
	if err != nil {
		return nil, err
	}

	resigned := false
	var sealed []SealedValue
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sealed, err = s.relayer.UserDecrypt(&DecryptionRequest{Grant: *grant, Handles: refs})
		if err == nil {
			break
		}

		if errors.Is(err, ErrGrantExpired) && !resigned {
			resigned = true
			grant, err = s.signGrantLocked()
			if err != nil {
				return nil, err
			}
			continue
		}
		if permanent(err) {
			return nil, err
		}
		if attempt >= s.maxAttempts {
			return nil, err
		}

		s.log.Warn("decrypt attempt failed, retrying", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.backoff << (attempt - 1)):
		}
	}

	out := make(map[common.Hash]uint64, len(sealed))
	for _, sv := range sealed {
		plaintext, err := seal.Open(s.keypair.PrivateKey, sv.Sealed)
		if err != nil {
			return nil, err
		}
		if len(plaintext) != 8 {
			return nil, fmt.Errorf("sealed value has unexpected length %d", len(plaintext))
		}
		out[sv.Handle] = binary.BigEndian.Uint64(plaintext)
	}
	return out, nil
}
