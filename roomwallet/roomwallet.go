// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package roomwallet implements the wallet-formation projection: the
// per-room state machine that folds shared-channel events describing a
// collaborative wallet proposal into a durable, queryable view.  Every
// transition is idempotent on its event ID, and two partial views of the
// same proposal can be merged deterministically.
package roomwallet

import (
	"encoding/json"

	"github.com/btcsuite/chanwallet/chanevent"
	"github.com/btcsuite/chanwallet/internal/orderedset"
	"github.com/btcsuite/chanwallet/netparams"
)

// Status describes the lifecycle position of a wallet proposal.
type Status int

// Wallet proposal states.
const (
	StatusProposed Status = iota
	StatusJoined
	StatusFinalized
	StatusCanceled
	StatusDeleted
)

// String returns the status as a human-readable name.
func (s Status) String() string {
	switch s {
	case StatusProposed:
		return "proposed"
	case StatusJoined:
		return "joined"
	case StatusFinalized:
		return "finalized"
	case StatusCanceled:
		return "canceled"
	case StatusDeleted:
		return "deleted"
	}
	return "unknown"
}

// DraftSigner is one signer key counted toward the proposal, tagged with
// the join event that contributed it.  Signers proposed at init carry no
// join event ID.
type DraftSigner struct {
	chanevent.Signer
	JoinEventID string `json:"join_event_id,omitempty"`
}

// LeftJoin records a withdrawn join.  The record is retained as a
// tombstone so that a replayed join event for the same ID stays a no-op
// and merges cannot resurrect withdrawn keys.
type LeftJoin struct {
	JoinEventID  string `json:"join_event_id"`
	LeaveEventID string `json:"leave_event_id"`
	Reason       string `json:"reason,omitempty"`
}

// Draft is the evolving wallet configuration carried in the projection's
// JSON content.  The scalar fields are fixed at init; the signer list
// grows and shrinks with join and leave events.
type Draft struct {
	Name        string                `json:"name"`
	M           int                   `json:"m"`
	N           int                   `json:"n"`
	AddressType chanevent.AddressType `json:"address_type"`
	IsEscrow    bool                  `json:"is_escrow,omitempty"`
	Description string                `json:"description,omitempty"`
	Chain       string                `json:"chain"`
	Signers     []DraftSigner         `json:"signers"`
	Left        []LeftJoin            `json:"left,omitempty"`
}

// RoomWallet is the wallet-formation projection for one room.  It is the
// fold of all wallet events observed for that room, in any order, with
// duplicates discarded.
type RoomWallet struct {
	RoomID          string   `json:"room_id"`
	WalletID        string   `json:"wallet_id,omitempty"`
	InitEventID     string   `json:"init_event_id"`
	JoinEventIDs    []string `json:"join_event_ids"`
	LeaveEventIDs   []string `json:"leave_event_ids"`
	FinalizeEventID string   `json:"finalize_event_id,omitempty"`
	CancelEventID   string   `json:"cancel_event_id,omitempty"`
	ReadyEventID    string   `json:"ready_event_id,omitempty"`
	DeleteEventID   string   `json:"delete_event_id,omitempty"`
	JSONContent     string   `json:"json_content,omitempty"`
	Chain           string   `json:"chain"`

	// ContentTime is the origin timestamp of the last event that touched
	// the draft content.  Merges use it to arbitrate genuinely concurrent
	// content edits.
	ContentTime int64 `json:"content_ts,omitempty"`
}

// New creates the projection from a wallet init event.
func New(roomID, initEventID string, init chanevent.WalletInit,
	ts int64) (*RoomWallet, error) {

	params, err := netparams.ForChain(init.Chain)
	if err != nil {
		return nil, Error{
			ErrorCode:   ErrMismatchedNetworks,
			Description: "wallet init names an unknown chain",
			Err:         err,
		}
	}
	if !init.AddressType.Valid() {
		return nil, walletError(ErrCorruptContent,
			"wallet init has invalid address type "+
				string(init.AddressType))
	}

	draft := Draft{
		Name:        init.Name,
		M:           init.M,
		N:           init.N,
		AddressType: init.AddressType,
		IsEscrow:    init.IsEscrow,
		Description: init.Description,
		Chain:       init.Chain,
	}
	for _, signer := range init.Signers {
		signer := signer
		if err := signer.Validate(params.Params); err != nil {
			return nil, err
		}
		if err := signer.CheckAddressType(init.AddressType); err != nil {
			return nil, err
		}
		if draft.hasKey(signer.KeyID()) {
			return nil, walletError(ErrDuplicateKeys,
				"wallet init proposes the same key twice")
		}
		draft.Signers = append(draft.Signers, DraftSigner{Signer: signer})
	}

	w := &RoomWallet{
		RoomID:      roomID,
		InitEventID: initEventID,
		Chain:       init.Chain,
		ContentTime: ts,
	}
	if err := w.putDraft(&draft); err != nil {
		return nil, err
	}
	return w, nil
}

// FromJSON decodes a serialized projection.
func FromJSON(data []byte) (*RoomWallet, error) {
	var w RoomWallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, Error{
			ErrorCode:   ErrCorruptContent,
			Description: "cannot decode room wallet",
			Err:         err,
		}
	}
	return &w, nil
}

// ToJSON serializes the projection.
func (w *RoomWallet) ToJSON() ([]byte, error) {
	return json.Marshal(w)
}

// Copy returns a deep copy of the projection.
func (w *RoomWallet) Copy() *RoomWallet {
	cp := *w
	cp.JoinEventIDs = append([]string(nil), w.JoinEventIDs...)
	cp.LeaveEventIDs = append([]string(nil), w.LeaveEventIDs...)
	return &cp
}

// Draft decodes the projection's draft content.
func (w *RoomWallet) Draft() (*Draft, error) {
	var d Draft
	if w.JSONContent == "" {
		return &d, nil
	}
	if err := json.Unmarshal([]byte(w.JSONContent), &d); err != nil {
		return nil, Error{
			ErrorCode:   ErrCorruptContent,
			Description: "cannot decode wallet draft content",
			Err:         err,
		}
	}
	return &d, nil
}

func (w *RoomWallet) putDraft(d *Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return Error{
			ErrorCode:   ErrCorruptContent,
			Description: "cannot encode wallet draft content",
			Err:         err,
		}
	}
	w.JSONContent = string(data)
	return nil
}

// Status derives the lifecycle state from the recorded outcomes.
func (w *RoomWallet) Status() Status {
	switch {
	case w.DeleteEventID != "":
		return StatusDeleted
	case w.CancelEventID != "":
		return StatusCanceled
	case w.FinalizeEventID != "":
		return StatusFinalized
	case len(w.JoinEventIDs) > 0:
		return StatusJoined
	}
	return StatusProposed
}

// Terminal reports whether the proposal has reached a terminal outcome.
func (w *RoomWallet) Terminal() bool {
	return w.FinalizeEventID != "" || w.CancelEventID != "" ||
		w.DeleteEventID != ""
}

// seen reports whether the event ID has already been folded into the
// projection, in any role.
func (w *RoomWallet) seen(eventID string) bool {
	switch eventID {
	case "":
		return false
	case w.InitEventID, w.FinalizeEventID, w.CancelEventID,
		w.ReadyEventID, w.DeleteEventID:

		return true
	}
	return orderedset.Contains(w.JoinEventIDs, eventID) ||
		orderedset.Contains(w.LeaveEventIDs, eventID)
}

// EffectiveSigners returns the signers currently counted toward the
// threshold: keys proposed at init plus joined keys, minus withdrawn
// ones.
func (w *RoomWallet) EffectiveSigners() ([]chanevent.Signer, error) {
	d, err := w.Draft()
	if err != nil {
		return nil, err
	}
	signers := make([]chanevent.Signer, len(d.Signers))
	for i, s := range d.Signers {
		signers[i] = s.Signer
	}
	return signers, nil
}

// CanFinalize reports whether the proposal currently satisfies its
// declared m-of-n threshold.  It returns nil when finalization is
// permitted and a descriptive error otherwise.
func (w *RoomWallet) CanFinalize() error {
	if w.CancelEventID != "" {
		return walletError(ErrStateConflict,
			"wallet proposal was canceled")
	}
	if w.FinalizeEventID != "" {
		return nil
	}
	d, err := w.Draft()
	if err != nil {
		return err
	}
	if n := len(d.Signers); n < d.M || n > d.N {
		return walletError(ErrThresholdNotMet,
			"wallet proposal does not satisfy its threshold")
	}
	return nil
}

// ApplyJoin folds a join event contributing one signer key.  Replaying a
// known event ID, or a join that was already withdrawn, is a no-op.
func (w *RoomWallet) ApplyJoin(eventID string, key chanevent.Signer,
	ts int64) error {

	if w.seen(eventID) {
		return nil
	}

	d, err := w.Draft()
	if err != nil {
		return err
	}
	for _, left := range d.Left {
		if left.JoinEventID == eventID {
			return nil
		}
	}

	if w.Terminal() {
		return walletError(ErrStateConflict,
			"wallet proposal is no longer accepting keys")
	}

	params, err := netparams.ForChain(w.Chain)
	if err != nil {
		return Error{
			ErrorCode:   ErrMismatchedNetworks,
			Description: "wallet has an unknown chain",
			Err:         err,
		}
	}
	if err := key.Validate(params.Params); err != nil {
		return err
	}
	if err := key.CheckAddressType(d.AddressType); err != nil {
		return err
	}
	if d.hasKey(key.KeyID()) {
		return walletError(ErrDuplicateKeys,
			"key "+key.KeyID()+" already joined this wallet")
	}

	w.JoinEventIDs = append(w.JoinEventIDs, eventID)
	d.Signers = append(d.Signers, DraftSigner{
		Signer:      key,
		JoinEventID: eventID,
	})
	w.bumpContentTime(ts)
	return w.putDraft(d)
}

// ApplyLeave folds a leave event withdrawing a previously contributed
// key.  Leaving a join that is absent, or replaying a known leave, is a
// no-op.  A leave may arrive before its join; the tombstone keeps the
// late join from taking effect.
func (w *RoomWallet) ApplyLeave(eventID, joinEventID, reason string,
	ts int64) error {

	if w.seen(eventID) {
		return nil
	}

	d, err := w.Draft()
	if err != nil {
		return err
	}

	w.LeaveEventIDs = append(w.LeaveEventIDs, eventID)
	w.JoinEventIDs = orderedset.Remove(w.JoinEventIDs, joinEventID)
	for i, s := range d.Signers {
		if s.JoinEventID == joinEventID && joinEventID != "" {
			d.Signers = append(d.Signers[:i], d.Signers[i+1:]...)
			break
		}
	}

	tombstoned := false
	for _, left := range d.Left {
		if left.JoinEventID == joinEventID {
			tombstoned = true
			break
		}
	}
	if !tombstoned {
		d.Left = append(d.Left, LeftJoin{
			JoinEventID:  joinEventID,
			LeaveEventID: eventID,
			Reason:       reason,
		})
	}
	w.bumpContentTime(ts)
	return w.putDraft(d)
}

// ApplyFinalize folds the terminal finalize outcome, assigning the wallet
// ID.  A replay of the recorded finalize event is a no-op; a second,
// different finalize, or a finalize after cancel, is a structural
// conflict and leaves the projection unchanged.
func (w *RoomWallet) ApplyFinalize(eventID, walletID string) error {
	if w.FinalizeEventID == eventID {
		return nil
	}
	if w.FinalizeEventID != "" {
		return walletError(ErrStateConflict,
			"wallet was already finalized by "+w.FinalizeEventID)
	}
	if w.CancelEventID != "" {
		return walletError(ErrStateConflict,
			"wallet was canceled by "+w.CancelEventID)
	}
	w.FinalizeEventID = eventID
	w.WalletID = walletID
	return nil
}

// ApplyCancel folds the terminal cancel outcome.  Cancel is mutually
// exclusive with finalize.
func (w *RoomWallet) ApplyCancel(eventID, reason string) error {
	if w.CancelEventID == eventID {
		return nil
	}
	if w.CancelEventID != "" {
		return walletError(ErrStateConflict,
			"wallet was already canceled by "+w.CancelEventID)
	}
	if w.FinalizeEventID != "" {
		return walletError(ErrStateConflict,
			"wallet was already finalized by "+w.FinalizeEventID)
	}
	w.CancelEventID = eventID
	return nil
}

// ApplyReady records the derived enough-keys notification.  The first
// observed ready event wins; the marker carries no authority of its own.
func (w *RoomWallet) ApplyReady(eventID string) error {
	if w.ReadyEventID == "" {
		w.ReadyEventID = eventID
	}
	return nil
}

// ApplyDelete folds the tombstone marker.  Only a finalized wallet can be
// deleted; history is retained for backup replay.
func (w *RoomWallet) ApplyDelete(eventID string) error {
	if w.DeleteEventID != "" {
		// Tombstones are first-writer-wins; concurrent deletes agree
		// on the outcome.
		return nil
	}
	if w.FinalizeEventID == "" {
		return walletError(ErrNotFinalized,
			"cannot delete a wallet that was never finalized")
	}
	w.DeleteEventID = eventID
	return nil
}

func (w *RoomWallet) bumpContentTime(ts int64) {
	if ts > w.ContentTime {
		w.ContentTime = ts
	}
}

func (d *Draft) hasKey(keyID string) bool {
	for _, s := range d.Signers {
		if s.KeyID() == keyID {
			return true
		}
	}
	return false
}
