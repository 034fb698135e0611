// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roommgr

import (
	"context"
	"runtime"

	"github.com/btcsuite/chanwallet/chanevent"
	"github.com/btcsuite/chanwallet/roomwallet"
)

// InitWalletArgs carries the parameters of a wallet proposal.
type InitWalletArgs struct {
	Name        string
	M           int
	N           int
	AddressType chanevent.AddressType
	IsEscrow    bool
	Description string
	Signers     []chanevent.Signer
}

// InitWallet proposes a new m-of-n shared wallet in a room.  A room can
// host at most one wallet; proposing a second returns ErrWalletExists.
// Signers listed up front count toward the proposal exactly as if they
// had joined.
func (m *Manager) InitWallet(ctx context.Context, roomID string,
	args InitWalletArgs) (*chanevent.Event, error) {

	has, err := m.HasRoomWallet(roomID)
	if err != nil {
		return nil, err
	}
	if has {
		return nil, roomwallet.Error{
			ErrorCode: roomwallet.ErrWalletExists,
			Description: "room " + roomID +
				" already has a shared wallet",
		}
	}

	init := chanevent.WalletInit{
		Name:        args.Name,
		M:           args.M,
		N:           args.N,
		AddressType: args.AddressType,
		IsEscrow:    args.IsEscrow,
		Description: args.Description,
		Chain:       m.cfg.Params.ChainName,
		Signers:     args.Signers,
	}

	// Validate locally before publishing so a bad proposal never hits
	// the room.
	_, err = roomwallet.New(roomID, "probe", init, 0)
	if err != nil {
		return nil, err
	}

	return m.publish(ctx, roomID, chanevent.TypeWallet, init, nil, false)
}

// JoinWallet contributes a signer key to the room's wallet proposal.
func (m *Manager) JoinWallet(ctx context.Context, roomID string,
	key chanevent.Signer) (*chanevent.Event, error) {

	w, err := m.GetRoomWallet(roomID)
	if err != nil {
		return nil, err
	}

	// Dry-run the join against a copy so invalid or duplicate keys fail
	// before anything is published.
	err = w.Copy().ApplyJoin("probe", key, 0)
	if err != nil {
		return nil, err
	}

	return m.publish(
		ctx, roomID, chanevent.TypeWallet,
		chanevent.WalletJoin{Key: key}, nil, false,
	)
}

// LeaveWallet withdraws a previously joined key, identified by the join
// event that contributed it.
func (m *Manager) LeaveWallet(ctx context.Context, roomID, joinEventID,
	reason string) (*chanevent.Event, error) {

	if _, err := m.GetRoomWallet(roomID); err != nil {
		return nil, err
	}

	return m.publish(
		ctx, roomID, chanevent.TypeWallet,
		chanevent.WalletLeave{JoinEventID: joinEventID, Reason: reason},
		nil, false,
	)
}

// CancelWallet abandons the room's wallet proposal.
func (m *Manager) CancelWallet(ctx context.Context, roomID,
	reason string) (*chanevent.Event, error) {

	w, err := m.GetRoomWallet(roomID)
	if err != nil {
		return nil, err
	}
	if err := w.Copy().ApplyCancel("probe", reason); err != nil {
		return nil, err
	}

	return m.publish(
		ctx, roomID, chanevent.TypeWallet,
		chanevent.WalletCancel{Reason: reason}, nil, false,
	)
}

// CreateWallet finalizes the room's wallet proposal.  The local engine
// materializes the wallet first; the finalize event then fixes the
// resulting wallet id and descriptor for every participant.
func (m *Manager) CreateWallet(ctx context.Context,
	roomID string) (*chanevent.Event, error) {

	w, err := m.GetRoomWallet(roomID)
	if err != nil {
		return nil, err
	}
	if w.FinalizeEventID != "" {
		// Finalization is idempotent; hand back the recorded event.
		return m.GetEvent(w.FinalizeEventID)
	}
	if err := w.CanFinalize(); err != nil {
		return nil, err
	}

	draft, err := w.Draft()
	if err != nil {
		return nil, err
	}
	walletID, descriptor, err := m.cfg.Engine.CreateWallet(ctx, draft)
	if err != nil {
		return nil, err
	}

	return m.publish(
		ctx, roomID, chanevent.TypeWallet,
		chanevent.WalletCreate{
			WalletID:   walletID,
			Descriptor: descriptor,
		}, nil, false,
	)
}

// DeleteWallet tombstones the room's finalized wallet and removes it
// from the local engine.
func (m *Manager) DeleteWallet(ctx context.Context,
	roomID string) (*chanevent.Event, error) {

	w, err := m.GetRoomWallet(roomID)
	if err != nil {
		return nil, err
	}
	if w.DeleteEventID != "" {
		return m.GetEvent(w.DeleteEventID)
	}
	if err := w.Copy().ApplyDelete("probe"); err != nil {
		return nil, err
	}

	if err := m.cfg.Engine.DeleteWallet(ctx, w.WalletID); err != nil {
		return nil, err
	}

	return m.publish(
		ctx, roomID, chanevent.TypeWallet,
		chanevent.WalletDelete{WalletID: w.WalletID}, nil, false,
	)
}

// SendErrorEvent publishes a best effort error notice to a room so other
// participants can surface the failure.  Delivery failures are logged,
// never returned.
func (m *Manager) SendErrorEvent(ctx context.Context, roomID, code,
	message string) {

	notice := chanevent.ErrorNotice{
		Platform: runtime.GOOS,
		Code:     code,
		Message:  message,
	}
	_, err := m.publish(
		ctx, roomID, chanevent.TypeError, notice, nil, true,
	)
	if err != nil {
		log.Debugf("Best effort error notice to room %s failed: %v",
			roomID, err)
	}
}
