// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roomtx

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/chanwallet/chanevent"
	"github.com/stretchr/testify/require"
)

// testPacketB64 builds a minimal unsigned transaction snapshot: one
// input, one pay-to-witness output.
func testPacketB64(t *testing.T) string {
	t.Helper()

	prevHash := chainhash.Hash{0x01}
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil, nil))

	script := make([]byte, 22)
	script[0], script[1] = 0x00, 0x14
	tx.AddTxOut(wire.NewTxOut(100_000, script))

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)

	b64, err := packet.B64Encode()
	require.NoError(t, err)
	return b64
}

// contribute returns the snapshot with one additional partial signature
// from a deterministic test key.
func contribute(t *testing.T, b64 string, seed byte) string {
	t.Helper()

	packet, err := parsePacket(b64)
	require.NoError(t, err)

	var keyBytes [32]byte
	keyBytes[31] = seed
	priv, pub := btcec.PrivKeyFromBytes(keyBytes[:])

	digest := chainhash.HashB([]byte("signing round fixture"))
	sig := append(
		ecdsa.Sign(priv, digest).Serialize(),
		byte(txscript.SigHashAll),
	)
	packet.Inputs[0].PartialSigs = append(
		packet.Inputs[0].PartialSigs,
		&psbt.PartialSig{
			PubKey:    pub.SerializeCompressed(),
			Signature: sig,
		},
	)

	out, err := encodePacket(packet)
	require.NoError(t, err)
	return out
}

func newTestTx(t *testing.T) *RoomTransaction {
	t.Helper()

	tx, err := New("!room", "$txinit", chanevent.TxInit{
		WalletID:           "wallet-1",
		PSBT:               testPacketB64(t),
		Memo:               "rent",
		Chain:              "MAIN",
		RequiredSignatures: 2,
	}, 2000)
	require.NoError(t, err)
	return tx
}

func sigCount(t *testing.T, tx *RoomTransaction) int {
	t.Helper()

	n, err := tx.SignatureCount()
	require.NoError(t, err)
	return n
}

// TestSignThreshold walks a 2-signature round to readiness.
func TestSignThreshold(t *testing.T) {
	t.Parallel()

	tx := newTestTx(t)
	require.Equal(t, StatusProposed, tx.Status())
	require.Equal(t, 0, sigCount(t, tx))

	sig1 := contribute(t, tx.PSBT, 1)
	require.NoError(t, tx.ApplySign("$s1", "aaaa0001", sig1, 2001))
	require.Equal(t, 1, sigCount(t, tx))
	require.False(t, tx.Ready())
	require.Equal(t, StatusSigned, tx.Status())

	sig2 := contribute(t, tx.PSBT, 2)
	require.NoError(t, tx.ApplySign("$s2", "aaaa0002", sig2, 2002))
	require.Equal(t, 2, sigCount(t, tx))
	require.True(t, tx.Ready())
	require.Equal(t, StatusReadyToBroadcast, tx.Status())

	require.NoError(t, tx.ApplyBroadcast("$b1", "txid-final"))
	require.Equal(t, StatusBroadcast, tx.Status())
	require.Equal(t, "txid-final", tx.TxID)
}

// TestSignIdempotent asserts a replayed sign event changes nothing.
func TestSignIdempotent(t *testing.T) {
	t.Parallel()

	tx := newTestTx(t)
	sig1 := contribute(t, tx.PSBT, 1)
	require.NoError(t, tx.ApplySign("$s1", "aaaa0001", sig1, 2001))

	before, err := tx.ToJSON()
	require.NoError(t, err)

	require.NoError(t, tx.ApplySign("$s1", "aaaa0001", sig1, 2001))
	after, err := tx.ToJSON()
	require.NoError(t, err)
	require.JSONEq(t, string(before), string(after))
	require.Len(t, tx.SignEventIDs, 1)
}

// TestSignSupersede asserts that the same fingerprint signing twice
// converges on the later event no matter the arrival order.
func TestSignSupersede(t *testing.T) {
	t.Parallel()

	base := newTestTx(t)
	early := contribute(t, base.PSBT, 1)
	late := contribute(t, base.PSBT, 3)

	inOrder := base.Copy()
	require.NoError(t, inOrder.ApplySign("$s1", "aaaa0001", early, 2001))
	require.NoError(t, inOrder.ApplySign("$s9", "aaaa0001", late, 2009))

	reversed := base.Copy()
	require.NoError(t, reversed.ApplySign("$s9", "aaaa0001", late, 2009))
	require.NoError(t, reversed.ApplySign("$s1", "aaaa0001", early, 2001))

	for _, tx := range []*RoomTransaction{inOrder, reversed} {
		require.Equal(t, []string{"$s9"}, tx.SignEventIDs)
		require.Equal(t,
			SignRecord{EventID: "$s9", Time: 2009},
			tx.SignedBy["aaaa0001"],
		)

		// Signature material is never dropped.
		require.Equal(t, 2, sigCount(t, tx))
	}
}

// TestRejectOnlyRound asserts a round with rejections and no signatures
// reports rejected.
func TestRejectOnlyRound(t *testing.T) {
	t.Parallel()

	tx := newTestTx(t)
	require.NoError(t, tx.ApplyReject("$r1", "@bob:hs", 2001))
	require.Equal(t, StatusRejected, tx.Status())
	require.True(t, tx.Pending())

	// A later reject from the same sender supersedes the first.
	require.NoError(t, tx.ApplyReject("$r2", "@bob:hs", 2002))
	require.Equal(t, []string{"$r2"}, tx.RejectEventIDs)
}

// TestCancelRules asserts cancel is refused once the transaction is
// fully signed or broadcast.
func TestCancelRules(t *testing.T) {
	t.Parallel()

	tx := newTestTx(t)
	require.NoError(t, tx.ApplySign(
		"$s1", "aaaa0001", contribute(t, tx.PSBT, 1), 2001,
	))
	require.NoError(t, tx.ApplyCancel("$c1"))
	require.Equal(t, StatusCanceled, tx.Status())

	// Concurrent cancels agree.
	require.NoError(t, tx.ApplyCancel("$c2"))
	require.Equal(t, "$c1", tx.CancelEventID)

	// Broadcast after cancel is a structural conflict.
	err := tx.ApplyBroadcast("$b1", "txid")
	require.True(t, IsError(err, ErrTransactionFinalized), "got %v", err)

	// A fully signed transaction cannot be canceled.
	full := newTestTx(t)
	require.NoError(t, full.ApplySign(
		"$s1", "aaaa0001", contribute(t, full.PSBT, 1), 2001,
	))
	require.NoError(t, full.ApplySign(
		"$s2", "aaaa0002", contribute(t, full.PSBT, 2), 2002,
	))
	err = full.ApplyCancel("$c1")
	require.True(t, IsError(err, ErrStateConflict), "got %v", err)
}

// TestBroadcastExclusive asserts exactly one broadcast wins and that
// later observations are no-ops.
func TestBroadcastExclusive(t *testing.T) {
	t.Parallel()

	tx := newTestTx(t)
	require.NoError(t, tx.ApplyBroadcast("$b1", "txid-1"))
	require.NoError(t, tx.ApplyBroadcast("$b2", "txid-2"))
	require.Equal(t, "$b1", tx.BroadcastEventID)
	require.Equal(t, "txid-1", tx.TxID)

	// Signing and rejecting after the terminal outcome fail cleanly.
	err := tx.ApplySign(
		"$s1", "aaaa0001", contribute(t, tx.PSBT, 1), 2003,
	)
	require.True(t, IsError(err, ErrTransactionFinalized), "got %v", err)
	err = tx.ApplyReject("$r1", "@bob:hs", 2004)
	require.True(t, IsError(err, ErrTransactionFinalized), "got %v", err)
}

// TestInitValidation asserts init rejects bad chains and snapshots and
// derives the transaction id.
func TestInitValidation(t *testing.T) {
	t.Parallel()

	_, err := New("!room", "$i", chanevent.TxInit{
		WalletID:           "w",
		PSBT:               testPacketB64(t),
		Chain:              "MOONNET",
		RequiredSignatures: 1,
	}, 0)
	require.True(t, IsError(err, ErrMismatchedNetworks), "got %v", err)

	_, err = New("!room", "$i", chanevent.TxInit{
		WalletID:           "w",
		PSBT:               "not a psbt",
		Chain:              "MAIN",
		RequiredSignatures: 1,
	}, 0)
	require.True(t, IsError(err, ErrInvalidSnapshot), "got %v", err)

	tx := newTestTx(t)
	packet, err := tx.Packet()
	require.NoError(t, err)
	require.Equal(t, packet.UnsignedTx.TxHash().String(), tx.TxID)
}
