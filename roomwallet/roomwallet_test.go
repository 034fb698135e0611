// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roomwallet

import (
	"sort"
	"testing"

	"github.com/btcsuite/chanwallet/chanevent"
	"github.com/stretchr/testify/require"
)

// Mainnet extended public keys from the shared BIP32 fixtures.
const (
	xpubA = "xpub661MyMwAqRbcFDDrR5jY7LqsRioFDwg3cLjc7tML3RRcfYyhXqqgCH5SqMSQdpQ1Xh8EtVwcfm8psD8zXKPcRaCVSY4GCqbb3aMEs27GitE"
	xpubB = "xpub661MyMwAqRbcGsxyD8hTmJFtpmwoZhy4NBBVxzvFU8tDXD2ME49A6JjQCYgbpSUpHGP1q4S2S1Pxv2EqTjwfERS5pc9Q2yeLkPFzSgRpjs9"
	xpubC = "xpub661MyMwAqRbcEbc4uYVXvQQpH9L3YuZLZ1gxCmj59yAhNy33vXxbXadmRpx5YZEupNSqWRrR7PqU6duS2FiVCGEiugBEa5zuEAjsyLJjKCh"
	xpubD = "xpub661MyMwAqRbcFQfXKHwz8ZbTtePwAKu8pmGYyVrWEM96DYUTWDYipMnHrFcemZHn13jcRMfsNU3UWQUudiaE7mhkWCHGFRMavF167DQM4Va"
)

func testSigner(name, xpub string) chanevent.Signer {
	return chanevent.Signer{
		Name:              name,
		XPub:              xpub,
		DerivationPath:    "m/84'/0'/0'",
		MasterFingerprint: "deadbeef",
		Type:              chanevent.SignerHardware,
	}
}

func testInit() chanevent.WalletInit {
	return chanevent.WalletInit{
		Name:        "shared vault",
		M:           2,
		N:           3,
		AddressType: chanevent.AddressNativeSegwit,
		Chain:       "MAIN",
	}
}

func newTestWallet(t *testing.T) *RoomWallet {
	t.Helper()

	w, err := New("!room", "$init", testInit(), 1000)
	require.NoError(t, err)
	return w
}

// signerNames returns the sorted names of the wallet's effective signers.
func signerNames(t *testing.T, w *RoomWallet) []string {
	t.Helper()

	signers, err := w.EffectiveSigners()
	require.NoError(t, err)
	names := make([]string, len(signers))
	for i, s := range signers {
		names[i] = s.Name
	}
	sort.Strings(names)
	return names
}

// TestWalletLifecycle walks a proposal through join, ready, finalize and
// delete.
func TestWalletLifecycle(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t)
	require.Equal(t, StatusProposed, w.Status())

	require.NoError(t, w.ApplyJoin("$j1", testSigner("a", xpubA), 1001))
	require.NoError(t, w.ApplyJoin("$j2", testSigner("b", xpubB), 1002))
	require.Equal(t, StatusJoined, w.Status())

	// One key short of n, but m is satisfied.
	require.NoError(t, w.CanFinalize())

	require.NoError(t, w.ApplyJoin("$j3", testSigner("c", xpubC), 1003))
	require.NoError(t, w.ApplyReady("$ready"))
	require.Equal(t, []string{"a", "b", "c"}, signerNames(t, w))

	require.NoError(t, w.ApplyFinalize("$create", "wallet-1"))
	require.Equal(t, StatusFinalized, w.Status())
	require.Equal(t, "wallet-1", w.WalletID)
	require.True(t, w.Terminal())

	require.NoError(t, w.ApplyDelete("$del"))
	require.Equal(t, StatusDeleted, w.Status())
}

// TestJoinIdempotent asserts that replaying the same join event changes
// nothing.
func TestJoinIdempotent(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t)
	require.NoError(t, w.ApplyJoin("$j1", testSigner("a", xpubA), 1001))

	before, err := w.ToJSON()
	require.NoError(t, err)

	require.NoError(t, w.ApplyJoin("$j1", testSigner("a", xpubA), 1001))
	after, err := w.ToJSON()
	require.NoError(t, err)
	require.JSONEq(t, string(before), string(after))
	require.Len(t, w.JoinEventIDs, 1)
}

// TestDuplicateKeyRejected asserts that the same key cannot join twice
// through distinct events.
func TestDuplicateKeyRejected(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t)
	require.NoError(t, w.ApplyJoin("$j1", testSigner("a", xpubA), 1001))

	err := w.ApplyJoin("$j2", testSigner("a2", xpubA), 1002)
	require.True(t, IsError(err, ErrDuplicateKeys), "got %v", err)
	require.Equal(t, []string{"a"}, signerNames(t, w))
}

// TestJoinValidation asserts key and chain checks on join.
func TestJoinValidation(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t)

	// Taproot-purpose key on a native segwit wallet.
	mismatched := testSigner("t", xpubA)
	mismatched.DerivationPath = "m/86'/0'/0'"
	err := w.ApplyJoin("$j1", mismatched, 1001)
	require.True(t, chanevent.IsError(err, chanevent.ErrMismatchedKeyTypes),
		"got %v", err)

	// Garbage key material.
	err = w.ApplyJoin("$j2", chanevent.Signer{XPub: "junk"}, 1002)
	require.True(t, chanevent.IsError(err, chanevent.ErrInvalidKey),
		"got %v", err)
}

// TestJoinAfterTerminal asserts that a novel join is refused once the
// proposal settled.
func TestJoinAfterTerminal(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t)
	require.NoError(t, w.ApplyJoin("$j1", testSigner("a", xpubA), 1001))
	require.NoError(t, w.ApplyJoin("$j2", testSigner("b", xpubB), 1002))
	require.NoError(t, w.ApplyFinalize("$create", "wallet-1"))

	err := w.ApplyJoin("$j3", testSigner("c", xpubC), 1003)
	require.True(t, IsError(err, ErrStateConflict), "got %v", err)

	// Replaying a join that predates finalization stays a no-op.
	require.NoError(t, w.ApplyJoin("$j1", testSigner("a", xpubA), 1001))
}

// TestLeave asserts withdrawal semantics including the tombstone that
// keeps a late-arriving join from resurrecting the key.
func TestLeave(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t)
	require.NoError(t, w.ApplyJoin("$j1", testSigner("a", xpubA), 1001))
	require.NoError(t, w.ApplyJoin("$j2", testSigner("b", xpubB), 1002))

	require.NoError(t, w.ApplyLeave("$l1", "$j1", "lost device", 1003))
	require.Equal(t, []string{"b"}, signerNames(t, w))
	require.Equal(t, []string{"$j2"}, w.JoinEventIDs)

	// Replay of the leave is a no-op.
	require.NoError(t, w.ApplyLeave("$l1", "$j1", "lost device", 1003))
	require.Len(t, w.LeaveEventIDs, 1)

	// The withdrawn join arriving again must not take effect.
	require.NoError(t, w.ApplyJoin("$j1", testSigner("a", xpubA), 1001))
	require.Equal(t, []string{"b"}, signerNames(t, w))
}

// TestLeaveBeforeJoin asserts that a leave observed ahead of its join
// suppresses the join when it finally arrives.
func TestLeaveBeforeJoin(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t)
	require.NoError(t, w.ApplyLeave("$l1", "$j1", "", 1001))

	require.NoError(t, w.ApplyJoin("$j1", testSigner("a", xpubA), 1000))
	require.Empty(t, signerNames(t, w))
	require.Empty(t, w.JoinEventIDs)
}

// TestCancelFinalizeExclusive asserts the two terminal outcomes are
// mutually exclusive.
func TestCancelFinalizeExclusive(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t)
	require.NoError(t, w.ApplyJoin("$j1", testSigner("a", xpubA), 1001))
	require.NoError(t, w.ApplyJoin("$j2", testSigner("b", xpubB), 1002))

	require.NoError(t, w.ApplyFinalize("$create", "wallet-1"))
	err := w.ApplyCancel("$cancel", "changed my mind")
	require.True(t, IsError(err, ErrStateConflict), "got %v", err)

	w2 := newTestWallet(t)
	require.NoError(t, w2.ApplyCancel("$cancel", ""))
	err = w2.ApplyFinalize("$create", "wallet-1")
	require.True(t, IsError(err, ErrStateConflict), "got %v", err)
	require.Equal(t, StatusCanceled, w2.Status())

	// Replaying the recorded outcome stays a no-op on both.
	require.NoError(t, w.ApplyFinalize("$create", "wallet-1"))
	require.NoError(t, w2.ApplyCancel("$cancel", ""))
}

// TestDeleteRequiresFinalize asserts only finalized wallets can be
// tombstoned, and that concurrent deletes agree.
func TestDeleteRequiresFinalize(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t)
	err := w.ApplyDelete("$del")
	require.True(t, IsError(err, ErrNotFinalized), "got %v", err)

	require.NoError(t, w.ApplyJoin("$j1", testSigner("a", xpubA), 1001))
	require.NoError(t, w.ApplyJoin("$j2", testSigner("b", xpubB), 1002))
	require.NoError(t, w.ApplyFinalize("$create", "wallet-1"))

	require.NoError(t, w.ApplyDelete("$del"))
	require.NoError(t, w.ApplyDelete("$del2"))
	require.Equal(t, "$del", w.DeleteEventID)
}

// TestCanFinalizeThreshold asserts the m <= signers <= n window.
func TestCanFinalizeThreshold(t *testing.T) {
	t.Parallel()

	w := newTestWallet(t)
	err := w.CanFinalize()
	require.True(t, IsError(err, ErrThresholdNotMet), "got %v", err)

	require.NoError(t, w.ApplyJoin("$j1", testSigner("a", xpubA), 1001))
	err = w.CanFinalize()
	require.True(t, IsError(err, ErrThresholdNotMet), "got %v", err)

	require.NoError(t, w.ApplyJoin("$j2", testSigner("b", xpubB), 1002))
	require.NoError(t, w.CanFinalize())
}

// TestInitRejectsBadConfig asserts init validation.
func TestInitRejectsBadConfig(t *testing.T) {
	t.Parallel()

	init := testInit()
	init.Chain = "MOONNET"
	_, err := New("!room", "$init", init, 1000)
	require.True(t, IsError(err, ErrMismatchedNetworks), "got %v", err)

	init = testInit()
	init.AddressType = "P2WEIRD"
	_, err = New("!room", "$init", init, 1000)
	require.True(t, IsError(err, ErrCorruptContent), "got %v", err)

	init = testInit()
	init.Signers = []chanevent.Signer{
		testSigner("a", xpubA), testSigner("a2", xpubA),
	}
	_, err = New("!room", "$init", init, 1000)
	require.True(t, IsError(err, ErrDuplicateKeys), "got %v", err)
}

// TestPermutationIndependence folds the same event set in every order
// and asserts the projections converge on the same state.
func TestPermutationIndependence(t *testing.T) {
	t.Parallel()

	type walletEvent struct {
		apply func(w *RoomWallet) error
	}
	events := []walletEvent{
		{apply: func(w *RoomWallet) error {
			return w.ApplyJoin("$j1", testSigner("a", xpubA), 1001)
		}},
		{apply: func(w *RoomWallet) error {
			return w.ApplyJoin("$j2", testSigner("b", xpubB), 1002)
		}},
		{apply: func(w *RoomWallet) error {
			return w.ApplyLeave("$l1", "$j1", "", 1003)
		}},
	}

	perms := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2},
		{1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	var reference *RoomWallet
	for _, perm := range perms {
		w := newTestWallet(t)
		for _, i := range perm {
			// Conflicts cannot arise in this event set; every
			// ordering must apply cleanly.
			require.NoError(t, events[i].apply(w))
		}

		require.Equal(t, []string{"b"}, signerNames(t, w))
		require.Equal(t, []string{"$j2"}, w.JoinEventIDs)
		require.Equal(t, []string{"$l1"}, w.LeaveEventIDs)
		require.Equal(t, int64(1003), w.ContentTime)

		if reference == nil {
			reference = w
			continue
		}
		require.Equal(t, reference.Status(), w.Status())
		require.Equal(t, signerNames(t, reference), signerNames(t, w))
	}
}
