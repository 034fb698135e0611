// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chansigner

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func testPacket(t *testing.T) *psbt.Packet {
	t.Helper()

	prevHash := chainhash.Hash{0x01}
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil, nil))

	script := make([]byte, 22)
	script[0], script[1] = 0x00, 0x14
	tx.AddTxOut(wire.NewTxOut(50_000, script))

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	return packet
}

// signedCopy returns a copy of the packet with one partial signature
// added.
func signedCopy(t *testing.T, packet *psbt.Packet) *psbt.Packet {
	t.Helper()

	b64, err := packet.B64Encode()
	require.NoError(t, err)
	cp, err := psbt.NewFromRawBytes(
		bytes.NewReader([]byte(b64)), true,
	)
	require.NoError(t, err)

	var keyBytes [32]byte
	keyBytes[31] = 7
	priv, pub := btcec.PrivKeyFromBytes(keyBytes[:])
	digest := chainhash.HashB([]byte("device fixture"))
	sig := append(
		ecdsa.Sign(priv, digest).Serialize(),
		byte(txscript.SigHashAll),
	)
	cp.Inputs[0].PartialSigs = append(cp.Inputs[0].PartialSigs,
		&psbt.PartialSig{
			PubKey:    pub.SerializeCompressed(),
			Signature: sig,
		})
	return cp
}

// TestDeviceSigner asserts a contributing device round and the
// no-contribution guard.
func TestDeviceSigner(t *testing.T) {
	t.Parallel()

	packet := testPacket(t)

	good := NewDeviceSigner("aaaa0001", deviceFunc(
		func(_ context.Context, p *psbt.Packet) (*psbt.Packet, error) {
			return signedCopy(t, p), nil
		}))
	require.Equal(t, "aaaa0001", good.Fingerprint())

	signed, err := good.Sign(context.Background(), packet)
	require.NoError(t, err)
	require.Len(t, signed.Inputs[0].PartialSigs, 1)

	// The input packet is untouched.
	require.Empty(t, packet.Inputs[0].PartialSigs)

	// A device that returns the packet unchanged contributes nothing.
	lazy := NewDeviceSigner("aaaa0002", deviceFunc(
		func(_ context.Context, p *psbt.Packet) (*psbt.Packet, error) {
			return p, nil
		}))
	_, err = lazy.Sign(context.Background(), packet)
	require.ErrorIs(t, err, ErrNoContribution)

	// Device failures propagate.
	broken := NewDeviceSigner("aaaa0003", deviceFunc(
		func(_ context.Context, _ *psbt.Packet) (*psbt.Packet, error) {
			return nil, errors.New("usb unplugged")
		}))
	_, err = broken.Sign(context.Background(), packet)
	require.EqualError(t, err, "usb unplugged")
}

// deviceFunc adapts a function to the DeviceDriver interface.
type deviceFunc func(context.Context, *psbt.Packet) (*psbt.Packet, error)

func (f deviceFunc) SignPsbt(ctx context.Context,
	packet *psbt.Packet) (*psbt.Packet, error) {

	return f(ctx, packet)
}

// TestAirgapSigner asserts the file exchange round trip.
func TestAirgapSigner(t *testing.T) {
	t.Parallel()

	packet := testPacket(t)
	exported := make(map[string][]byte)

	signer := NewAirgapSigner("bbbb0001",
		func(_ context.Context, name string, data []byte) error {
			exported[name] = data
			return nil
		},
		func(_ context.Context, name string) ([]byte, error) {
			// The "user" signs the exported file out of band.
			unsigned, ok := exported[name]
			if !ok {
				return nil, errors.New("nothing exported")
			}
			p, err := psbt.NewFromRawBytes(
				bytes.NewReader(unsigned), true,
			)
			if err != nil {
				return nil, err
			}
			signed, err := signedCopy(t, p).B64Encode()
			if err != nil {
				return nil, err
			}
			return []byte(signed), nil
		},
	)

	signed, err := signer.Sign(context.Background(), packet)
	require.NoError(t, err)
	require.Len(t, signed.Inputs[0].PartialSigs, 1)

	wantName := packet.UnsignedTx.TxHash().String() + ".psbt"
	require.Contains(t, exported, wantName)
}

// TestTapcardSigner asserts the confirmation code reaches the card and
// wrong codes fail the round.
func TestTapcardSigner(t *testing.T) {
	t.Parallel()

	packet := testPacket(t)

	card := cardFunc(func(_ context.Context, cvc string,
		p *psbt.Packet) (*psbt.Packet, error) {

		if cvc != "123456" {
			return nil, errors.New("wrong cvc")
		}
		return signedCopy(t, p), nil
	})

	ok := NewTapcardSigner("cccc0001", card, "123456")
	signed, err := ok.Sign(context.Background(), packet)
	require.NoError(t, err)
	require.Len(t, signed.Inputs[0].PartialSigs, 1)

	bad := NewTapcardSigner("cccc0001", card, "000000")
	_, err = bad.Sign(context.Background(), packet)
	require.EqualError(t, err, "wrong cvc")
}

// cardFunc adapts a function to the TapCard interface.
type cardFunc func(context.Context, string, *psbt.Packet) (*psbt.Packet, error)

func (f cardFunc) SignPsbt(ctx context.Context, cvc string,
	packet *psbt.Packet) (*psbt.Packet, error) {

	return f(ctx, cvc, packet)
}
