// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roomwallet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// divergentViews builds two views of the same proposal that saw
// different joins.
func divergentViews(t *testing.T) (*RoomWallet, *RoomWallet) {
	t.Helper()

	base := newTestWallet(t)
	require.NoError(t, base.ApplyJoin("$j1", testSigner("a", xpubA), 1001))

	left := base.Copy()
	right := base.Copy()

	require.NoError(t, left.ApplyJoin("$j2", testSigner("b", xpubB), 1002))
	require.NoError(t, right.ApplyJoin("$j3", testSigner("c", xpubC), 1003))
	return left, right
}

// TestMergeCommutative asserts both merge orders converge on identical
// state.
func TestMergeCommutative(t *testing.T) {
	t.Parallel()

	left, right := divergentViews(t)

	ab := left.Copy()
	require.NoError(t, ab.Merge(right))

	ba := right.Copy()
	require.NoError(t, ba.Merge(left))

	abJSON, err := ab.ToJSON()
	require.NoError(t, err)
	baJSON, err := ba.ToJSON()
	require.NoError(t, err)
	require.JSONEq(t, string(abJSON), string(baJSON))

	require.ElementsMatch(t, []string{"$j1", "$j2", "$j3"}, ab.JoinEventIDs)
	require.Equal(t, []string{"a", "b", "c"}, signerNames(t, ab))
}

// TestMergeIdempotent asserts merging a view with itself changes
// nothing.
func TestMergeIdempotent(t *testing.T) {
	t.Parallel()

	left, right := divergentViews(t)
	require.NoError(t, left.Merge(right))

	before, err := left.ToJSON()
	require.NoError(t, err)

	require.NoError(t, left.Merge(right))
	require.NoError(t, left.Merge(left.Copy()))

	after, err := left.ToJSON()
	require.NoError(t, err)
	require.JSONEq(t, string(before), string(after))
}

// TestMergeRespectsTombstones asserts a withdrawn key cannot be
// resurrected by merging a view that still carries it.
func TestMergeRespectsTombstones(t *testing.T) {
	t.Parallel()

	left, right := divergentViews(t)

	// The left view watched b join and then leave again.
	require.NoError(t, left.ApplyLeave("$l1", "$j2", "", 1004))

	stale := right.Copy()
	require.NoError(t, stale.ApplyJoin("$j2", testSigner("b", xpubB), 1002))

	require.NoError(t, left.Merge(stale))
	require.Equal(t, []string{"a", "c"}, signerNames(t, left))
	require.NotContains(t, left.JoinEventIDs, "$j2")
	require.Contains(t, left.LeaveEventIDs, "$l1")
}

// TestMergeTerminalOutcomes asserts first-writer-wins propagation and
// conflict surfacing for the terminal fields.
func TestMergeTerminalOutcomes(t *testing.T) {
	t.Parallel()

	left, right := divergentViews(t)

	// One side finalized; the merge propagates it.
	require.NoError(t, left.ApplyFinalize("$create", "wallet-1"))
	merged := right.Copy()
	require.NoError(t, merged.Merge(left))
	require.Equal(t, "$create", merged.FinalizeEventID)
	require.Equal(t, "wallet-1", merged.WalletID)

	// Divergent finalize events are a structural conflict.
	other := right.Copy()
	require.NoError(t, other.ApplyFinalize("$create2", "wallet-2"))
	err := other.Merge(left)
	require.True(t, IsError(err, ErrStateConflict), "got %v", err)

	// Finalize on one side, cancel on the other.
	canceled := right.Copy()
	require.NoError(t, canceled.ApplyCancel("$cancel", ""))
	err = canceled.Merge(left)
	require.True(t, IsError(err, ErrStateConflict), "got %v", err)
}

// TestMergeContract asserts merge refuses views of different wallets or
// networks.
func TestMergeContract(t *testing.T) {
	t.Parallel()

	a := newTestWallet(t)

	b, err := New("!other", "$init2", testInit(), 1000)
	require.NoError(t, err)
	err = a.Merge(b)
	require.True(t, IsError(err, ErrMergeContract), "got %v", err)

	init := testInit()
	init.Chain = "TESTNET"
	c, err := New("!room", "$init", init, 1000)
	require.NoError(t, err)
	err = a.Merge(c)
	require.True(t, IsError(err, ErrMismatchedNetworks), "got %v", err)
}
