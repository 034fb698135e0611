// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roommgr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/chanwallet/chanevent"
	"github.com/btcsuite/chanwallet/chansigner"
	"github.com/btcsuite/chanwallet/filexfer"
	"github.com/btcsuite/chanwallet/roomtx"
	"github.com/btcsuite/chanwallet/roomwallet"
)

// InitTransaction drafts a spend from the room's finalized wallet and
// proposes it for signing.  The engine builds the unsigned transaction;
// the init event snapshots it along with the signature threshold.
func (m *Manager) InitTransaction(ctx context.Context, roomID string,
	outputs map[string]btcutil.Amount,
	memo string) (*chanevent.Event, error) {

	w, err := m.GetRoomWallet(roomID)
	if err != nil {
		return nil, err
	}
	if w.FinalizeEventID == "" || w.WalletID == "" {
		return nil, roomwallet.Error{
			ErrorCode: roomwallet.ErrNotFinalized,
			Description: "room " + roomID +
				" has no finalized wallet to spend from",
		}
	}
	draft, err := w.Draft()
	if err != nil {
		return nil, err
	}

	psbtB64, err := m.cfg.Engine.CreateTransaction(
		ctx, w.WalletID, outputs, memo,
	)
	if err != nil {
		return nil, err
	}
	packet, err := psbt.NewFromRawBytes(
		bytes.NewReader([]byte(psbtB64)), true,
	)
	if err != nil {
		return nil, roomtx.Error{
			ErrorCode:   roomtx.ErrInvalidSnapshot,
			Description: "engine produced an unparsable snapshot",
			Err:         err,
		}
	}

	init := chanevent.TxInit{
		WalletID:           w.WalletID,
		TxID:               packet.UnsignedTx.TxHash().String(),
		PSBT:               psbtB64,
		Memo:               memo,
		Chain:              w.Chain,
		RequiredSignatures: draft.M,
	}
	return m.publish(ctx, roomID, chanevent.TypeTransaction, init, nil, false)
}

// SignTransaction drives one signing round against the given signer and
// publishes the resulting partial signature.  The signer runs without
// any projection lock held; only the published sign event mutates state.
func (m *Manager) SignTransaction(ctx context.Context, initEventID string,
	signer chansigner.Signer) (*chanevent.Event, error) {

	t, err := m.GetRoomTransaction(initEventID)
	if err != nil {
		return nil, err
	}
	if t.Terminal() {
		return nil, roomtx.Error{
			ErrorCode: roomtx.ErrTransactionFinalized,
			Description: "transaction " + initEventID +
				" is no longer accepting signatures",
		}
	}

	packet, err := t.Packet()
	if err != nil {
		return nil, err
	}
	signed, err := signer.Sign(ctx, packet)
	if err != nil {
		return nil, err
	}
	b64, err := signed.B64Encode()
	if err != nil {
		return nil, err
	}

	return m.publish(
		ctx, t.RoomID, chanevent.TypeTransaction,
		chanevent.TxSign{
			MasterFingerprint: signer.Fingerprint(),
			PSBT:              b64,
		},
		&chanevent.RelatesTo{InitEventID: initEventID}, false,
	)
}

// SignAirgapTransaction signs through a file exchange with an airgapped
// device.  The unsigned snapshot is written to dir as <txid>.psbt and
// the signed result is expected back as <txid>-signed.psbt.  The call
// fails if the signed file is not present yet; invoke it again after
// carrying the file back.
func (m *Manager) SignAirgapTransaction(ctx context.Context, initEventID,
	fingerprint, dir string) (*chanevent.Event, error) {

	export := func(_ context.Context, name string, data []byte) error {
		_, err := filexfer.WriteFile(data, filepath.Join(dir, name), nil)
		return err
	}
	imp := func(_ context.Context, name string) ([]byte, error) {
		signedName := strings.TrimSuffix(name, ".psbt") + "-signed.psbt"
		return os.ReadFile(filepath.Join(dir, signedName))
	}

	return m.SignTransaction(
		ctx, initEventID,
		chansigner.NewAirgapSigner(fingerprint, export, imp),
	)
}

// SignTapcardTransaction signs with a smartcard guarded by a
// confirmation code.
func (m *Manager) SignTapcardTransaction(ctx context.Context, initEventID,
	fingerprint string, card chansigner.TapCard,
	cvc string) (*chanevent.Event, error) {

	return m.SignTransaction(
		ctx, initEventID,
		chansigner.NewTapcardSigner(fingerprint, card, cvc),
	)
}

// RejectTransaction records the local participant's refusal to sign.
func (m *Manager) RejectTransaction(ctx context.Context, initEventID,
	reason string) (*chanevent.Event, error) {

	t, err := m.GetRoomTransaction(initEventID)
	if err != nil {
		return nil, err
	}
	if t.Terminal() {
		return nil, roomtx.Error{
			ErrorCode: roomtx.ErrTransactionFinalized,
			Description: "transaction " + initEventID +
				" is already settled",
		}
	}

	return m.publish(
		ctx, t.RoomID, chanevent.TypeTransaction,
		chanevent.TxReject{Reason: reason},
		&chanevent.RelatesTo{InitEventID: initEventID}, false,
	)
}

// CancelTransaction abandons a pending transaction.  A transaction that
// already collected its full signature set cannot be canceled.
func (m *Manager) CancelTransaction(ctx context.Context, initEventID,
	reason string) (*chanevent.Event, error) {

	t, err := m.GetRoomTransaction(initEventID)
	if err != nil {
		return nil, err
	}
	if err := t.Copy().ApplyCancel("probe"); err != nil {
		return nil, err
	}

	return m.publish(
		ctx, t.RoomID, chanevent.TypeTransaction,
		chanevent.TxCancel{Reason: reason},
		&chanevent.RelatesTo{InitEventID: initEventID}, false,
	)
}

// BroadcastTransaction submits a fully signed transaction to the network
// and records the terminal broadcast event.  Broadcasting an already
// broadcast transaction performs no network side effect and returns the
// recorded broadcast event.
func (m *Manager) BroadcastTransaction(ctx context.Context,
	initEventID string) (*chanevent.Event, error) {

	t, err := m.GetRoomTransaction(initEventID)
	if err != nil {
		return nil, err
	}
	if t.BroadcastEventID != "" {
		return m.GetEvent(t.BroadcastEventID)
	}
	if t.CancelEventID != "" {
		return nil, roomtx.Error{
			ErrorCode: roomtx.ErrTransactionFinalized,
			Description: "transaction " + initEventID +
				" was canceled",
		}
	}
	if !t.Ready() {
		count, _ := t.SignatureCount()
		return nil, roomtx.Error{
			ErrorCode: roomtx.ErrThresholdNotMet,
			Description: "transaction " + initEventID +
				" has not met its signature threshold",
			Err: fmt.Errorf("have %d of %d signatures", count,
				t.RequiredSignatures),
		}
	}

	txID, err := m.cfg.Engine.Broadcast(ctx, t.WalletID, t.PSBT)
	if err != nil {
		return nil, err
	}

	return m.publish(
		ctx, t.RoomID, chanevent.TypeTransaction,
		chanevent.TxBroadcast{TxID: txID},
		&chanevent.RelatesTo{InitEventID: initEventID}, false,
	)
}
