// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/payroll/fhe"
)

// flakyRelayer fails the first [failures] calls before delegating to the
// wrapped relayer.
type flakyRelayer struct {
	inner    Relayer
	failures int
	calls    int
}

func (r *flakyRelayer) UserDecrypt(req *DecryptionRequest) ([]SealedValue, error) {
	r.calls++
	if r.calls <= r.failures {
		return nil, errors.New("relayer temporarily unavailable")
	}
	return r.inner.UserDecrypt(req)
}

func newTestSession(t *testing.T, relayer Relayer, wallet *testWallet) *Session {
	t.Helper()
	s := NewSession(relayer, testChainID, gatewayAddr, []common.Address{payrollAddr}, testDuration, wallet.address, wallet.sign)
	s.now = func() uint64 { return testIssuedAt + 100 }
	s.backoff = time.Millisecond
	return s
}

func TestSessionLifecycle(t *testing.T) {
	gw, _ := newTestGateway(t)
	wallet := newTestWallet(t)

	s := newTestSession(t, gw, wallet)
	require.Equal(t, StateUninitialized, s.State())

	require.NoError(t, s.Init())
	require.Equal(t, StateReady, s.State())
	require.Equal(t, wallet.address, s.Account())
}

func TestSessionDecrypt(t *testing.T) {
	gw, cop := newTestGateway(t)
	wallet := newTestWallet(t)

	handle, err := cop.Encrypt(5000)
	require.NoError(t, err)
	cop.Allow(handle, wallet.address)

	s := newTestSession(t, gw, wallet)
	s.now = gw.now

	// Decrypt initializes lazily, no explicit Init needed.
	out, err := s.Decrypt(context.Background(), HandleRef{Handle: handle, Contract: payrollAddr})
	require.NoError(t, err)
	require.Equal(t, uint64(5000), out[handle])
	require.Equal(t, StateReady, s.State())
}

func TestSessionSignsGrantOnce(t *testing.T) {
	gw, cop := newTestGateway(t)
	wallet := newTestWallet(t)

	handle, err := cop.Encrypt(5000)
	require.NoError(t, err)
	cop.Allow(handle, wallet.address)

	signCount := 0
	s := newTestSession(t, gw, wallet)
	s.now = gw.now
	s.signer = func(digest []byte) ([]byte, error) {
		signCount++
		return wallet.sign(digest)
	}

	for i := 0; i < 3; i++ {
		_, err := s.Decrypt(context.Background(), HandleRef{Handle: handle, Contract: payrollAddr})
		require.NoError(t, err)
	}
	require.Equal(t, 1, signCount, "grant should be signed once and reused")
}

func TestSessionResignsOnExpiry(t *testing.T) {
	gw, cop := newTestGateway(t)
	wallet := newTestWallet(t)

	handle, err := cop.Encrypt(5000)
	require.NoError(t, err)
	cop.Allow(handle, wallet.address)

	signCount := 0
	s := newTestSession(t, gw, wallet)
	s.signer = func(digest []byte) ([]byte, error) {
		signCount++
		return wallet.sign(digest)
	}

	// Session clock matches the gateway at first.
	current := testIssuedAt + 100
	s.now = func() uint64 { return current }
	gw.now = func() uint64 { return current }

	_, err = s.Decrypt(context.Background(), HandleRef{Handle: handle, Contract: payrollAddr})
	require.NoError(t, err)
	require.Equal(t, 1, signCount)

	// The gateway clock reaches the cached grant's expiry while the session
	// clock lags slightly, so the session still trusts it. The relayer
	// rejects it and the session re-signs exactly once with a fresh IssuedAt.
	expiry := s.grant.ExpiresAt()
	gw.now = func() uint64 { return expiry }
	s.now = func() uint64 { return expiry - 10 }

	_, err = s.Decrypt(context.Background(), HandleRef{Handle: handle, Contract: payrollAddr})
	require.NoError(t, err)
	require.Equal(t, 2, signCount)
}

func TestSessionRetriesTransientFailures(t *testing.T) {
	gw, cop := newTestGateway(t)
	wallet := newTestWallet(t)

	handle, err := cop.Encrypt(5000)
	require.NoError(t, err)
	cop.Allow(handle, wallet.address)

	flaky := &flakyRelayer{inner: gw, failures: 2}
	s := newTestSession(t, flaky, wallet)
	s.now = gw.now

	out, err := s.Decrypt(context.Background(), HandleRef{Handle: handle, Contract: payrollAddr})
	require.NoError(t, err)
	require.Equal(t, uint64(5000), out[handle])
	require.Equal(t, 3, flaky.calls)
}

func TestSessionGivesUpAfterMaxAttempts(t *testing.T) {
	gw, _ := newTestGateway(t)
	wallet := newTestWallet(t)

	flaky := &flakyRelayer{inner: gw, failures: 10}
	s := newTestSession(t, flaky, wallet)
	s.now = gw.now

	_, err := s.Decrypt(context.Background(), HandleRef{Handle: fhe.ZeroHandle, Contract: payrollAddr})
	require.Error(t, err)
	require.Equal(t, s.maxAttempts, flaky.calls)
}

func TestSessionPermanentErrorNotRetried(t *testing.T) {
	gw, cop := newTestGateway(t)
	wallet := newTestWallet(t)

	// Handle exists but the account is not allowed to decrypt it.
	handle, err := cop.Encrypt(5000)
	require.NoError(t, err)

	counting := &flakyRelayer{inner: gw}
	s := newTestSession(t, counting, wallet)
	s.now = gw.now

	_, err = s.Decrypt(context.Background(), HandleRef{Handle: handle, Contract: payrollAddr})
	require.ErrorIs(t, err, ErrNotAllowed)
	require.Equal(t, 1, counting.calls)
}

func TestSessionCancellation(t *testing.T) {
	gw, _ := newTestGateway(t)
	wallet := newTestWallet(t)

	flaky := &flakyRelayer{inner: gw, failures: 10}
	s := newTestSession(t, flaky, wallet)
	s.now = gw.now
	s.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Decrypt(ctx, HandleRef{Handle: fhe.ZeroHandle, Contract: payrollAddr})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("decrypt did not return after cancellation")
	}

	// Cached session state survives cancellation.
	require.Equal(t, StateReady, s.State())
}

func TestSessionSwitchAccount(t *testing.T) {
	gw, cop := newTestGateway(t)
	alice := newTestWallet(t)
	bob := newTestWallet(t)

	aliceHandle, err := cop.Encrypt(5000)
	require.NoError(t, err)
	cop.Allow(aliceHandle, alice.address)
	bobHandle, err := cop.Encrypt(1234)
	require.NoError(t, err)
	cop.Allow(bobHandle, bob.address)

	s := newTestSession(t, gw, alice)
	s.now = gw.now

	out, err := s.Decrypt(context.Background(), HandleRef{Handle: aliceHandle, Contract: payrollAddr})
	require.NoError(t, err)
	require.Equal(t, uint64(5000), out[aliceHandle])
	oldKeypair := s.keypair

	s.SwitchAccount(bob.address, bob.sign)
	require.Equal(t, StateUninitialized, s.State())
	s.now = gw.now

	// Alice's handle is no longer decryptable; bob's is.
	_, err = s.Decrypt(context.Background(), HandleRef{Handle: aliceHandle, Contract: payrollAddr})
	require.ErrorIs(t, err, ErrNotAllowed)

	out, err = s.Decrypt(context.Background(), HandleRef{Handle: bobHandle, Contract: payrollAddr})
	require.NoError(t, err)
	require.Equal(t, uint64(1234), out[bobHandle])

	// The keypair was regenerated for the new account.
	require.NotEqual(t, oldKeypair.PublicKey, s.keypair.PublicKey)
}

func TestSessionNoSigner(t *testing.T) {
	gw, _ := newTestGateway(t)
	wallet := newTestWallet(t)

	s := newTestSession(t, gw, wallet)
	s.now = gw.now
	s.signer = nil

	_, err := s.Decrypt(context.Background(), HandleRef{Handle: fhe.ZeroHandle, Contract: payrollAddr})
	require.ErrorIs(t, err, ErrNoSigner)
}

func TestSessionSignerFailure(t *testing.T) {
	gw, _ := newTestGateway(t)
	wallet := newTestWallet(t)

	s := newTestSession(t, gw, wallet)
	s.now = gw.now
	s.signer = func(digest []byte) ([]byte, error) {
		return nil, errors.New("user rejected signature")
	}

	_, err := s.Decrypt(context.Background(), HandleRef{Handle: fhe.ZeroHandle, Contract: payrollAddr})
	require.ErrorIs(t, err, ErrSigningFailed)

	// A later decrypt with a working signer succeeds.
	s.signer = wallet.sign
	_, err = s.Decrypt(context.Background(), HandleRef{Handle: fhe.ZeroHandle, Contract: payrollAddr})
	require.NoError(t, err)
}
