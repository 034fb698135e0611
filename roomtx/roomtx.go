// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package roomtx implements the transaction-signing projection: the
// per-transaction state machine that folds shared-channel events
// describing a collaborative signing round into a durable, queryable
// view.  The unsigned transaction is snapshotted as a PSBT at init and
// only ever grows in signature count as sign events are folded in.
package roomtx

import (
	"encoding/json"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/chanwallet/chanevent"
	"github.com/btcsuite/chanwallet/internal/orderedset"
	"github.com/btcsuite/chanwallet/netparams"
)

// Status describes the lifecycle position of a signing round.
type Status int

// Signing round states.
const (
	StatusProposed Status = iota
	StatusSigned
	StatusReadyToBroadcast
	StatusBroadcast
	StatusCanceled
	StatusRejected
)

// String returns the status as a human-readable name.
func (s Status) String() string {
	switch s {
	case StatusProposed:
		return "proposed"
	case StatusSigned:
		return "signed"
	case StatusReadyToBroadcast:
		return "ready"
	case StatusBroadcast:
		return "broadcast"
	case StatusCanceled:
		return "canceled"
	case StatusRejected:
		return "rejected"
	}
	return "unknown"
}

// RoomTransaction is the signing projection for one collaborative
// transaction, identified by its init event.  It is the fold of all
// transaction events observed for that init, in any order, with
// duplicates discarded.
type RoomTransaction struct {
	RoomID           string   `json:"room_id"`
	TxID             string   `json:"tx_id,omitempty"`
	WalletID         string   `json:"wallet_id"`
	InitEventID      string   `json:"init_event_id"`
	SignEventIDs     []string `json:"sign_event_ids"`
	RejectEventIDs   []string `json:"reject_event_ids"`
	BroadcastEventID string   `json:"broadcast_event_id,omitempty"`
	CancelEventID    string   `json:"cancel_event_id,omitempty"`
	ReadyEventID     string   `json:"ready_event_id,omitempty"`

	// PSBT is the embedded transaction snapshot, base64 encoded.  Its
	// signature count grows monotonically as sign events are folded in.
	PSBT string `json:"psbt"`

	Memo               string `json:"memo,omitempty"`
	RequiredSignatures int    `json:"required_signatures"`
	Chain              string `json:"chain"`

	// SignedBy maps a signer's master fingerprint to its effective sign
	// event.  A later sign event from the same fingerprint supersedes
	// the earlier one rather than duplicating it.
	SignedBy map[string]SignRecord `json:"signed_by,omitempty"`

	// RejectedBy maps a rejecting sender to its effective reject event.
	RejectedBy map[string]SignRecord `json:"rejected_by,omitempty"`

	// ContentTime is the origin timestamp of the last event that touched
	// the snapshot.
	ContentTime int64 `json:"content_ts,omitempty"`
}

// SignRecord identifies the effective event contributed by one signer
// identity together with its origin timestamp.  The timestamp decides
// which of two events from the same identity supersedes the other, so
// replays in any order converge.
type SignRecord struct {
	EventID string `json:"event_id"`
	Time    int64  `json:"ts"`
}

// supersedes reports whether a fresh record takes precedence over an
// existing one.  Later timestamps win; ties break on the event ID so the
// outcome never depends on arrival order.
func (r SignRecord) supersedes(old SignRecord) bool {
	if r.Time != old.Time {
		return r.Time > old.Time
	}
	return r.EventID > old.EventID
}

// New creates the projection from a transaction init event, snapshotting
// the unsigned PSBT.
func New(roomID, initEventID string, init chanevent.TxInit,
	ts int64) (*RoomTransaction, error) {

	if _, err := netparams.ForChain(init.Chain); err != nil {
		return nil, Error{
			ErrorCode:   ErrMismatchedNetworks,
			Description: "transaction init names an unknown chain",
			Err:         err,
		}
	}
	packet, err := parsePacket(init.PSBT)
	if err != nil {
		return nil, err
	}

	txID := init.TxID
	if txID == "" {
		txID = packet.UnsignedTx.TxHash().String()
	}

	return &RoomTransaction{
		RoomID:             roomID,
		TxID:               txID,
		WalletID:           init.WalletID,
		InitEventID:        initEventID,
		PSBT:               init.PSBT,
		Memo:               init.Memo,
		RequiredSignatures: init.RequiredSignatures,
		Chain:              init.Chain,
		ContentTime:        ts,
	}, nil
}

// FromJSON decodes a serialized projection.
func FromJSON(data []byte) (*RoomTransaction, error) {
	var tx RoomTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, Error{
			ErrorCode:   ErrCorruptContent,
			Description: "cannot decode room transaction",
			Err:         err,
		}
	}
	return &tx, nil
}

// ToJSON serializes the projection.
func (tx *RoomTransaction) ToJSON() ([]byte, error) {
	return json.Marshal(tx)
}

// Copy returns a deep copy of the projection.
func (tx *RoomTransaction) Copy() *RoomTransaction {
	cp := *tx
	cp.SignEventIDs = append([]string(nil), tx.SignEventIDs...)
	cp.RejectEventIDs = append([]string(nil), tx.RejectEventIDs...)
	cp.SignedBy = copyMap(tx.SignedBy)
	cp.RejectedBy = copyMap(tx.RejectedBy)
	return &cp
}

// Packet decodes the embedded transaction snapshot.
func (tx *RoomTransaction) Packet() (*psbt.Packet, error) {
	return parsePacket(tx.PSBT)
}

// SignatureCount reports how many signatures the snapshot carries.
func (tx *RoomTransaction) SignatureCount() (int, error) {
	packet, err := tx.Packet()
	if err != nil {
		return 0, err
	}
	return signatureCount(packet), nil
}

// Ready reports whether the snapshot meets the signature threshold
// declared at init.  This is a derived condition; ready events received
// from peers are recorded but never override it.
func (tx *RoomTransaction) Ready() bool {
	n, err := tx.SignatureCount()
	if err != nil {
		return false
	}
	return n >= tx.RequiredSignatures
}

// Status derives the lifecycle state from the recorded outcomes.
func (tx *RoomTransaction) Status() Status {
	switch {
	case tx.BroadcastEventID != "":
		return StatusBroadcast
	case tx.CancelEventID != "":
		return StatusCanceled
	case len(tx.RejectEventIDs) > 0 && len(tx.SignEventIDs) == 0:
		return StatusRejected
	case tx.Ready():
		return StatusReadyToBroadcast
	case len(tx.SignEventIDs) > 0:
		return StatusSigned
	}
	return StatusProposed
}

// Terminal reports whether the signing round has reached a terminal
// outcome.
func (tx *RoomTransaction) Terminal() bool {
	return tx.BroadcastEventID != "" || tx.CancelEventID != ""
}

// Pending reports whether the round still awaits signatures or
// broadcast.
func (tx *RoomTransaction) Pending() bool {
	return !tx.Terminal()
}

// seen reports whether the event ID has already been folded into the
// projection.
func (tx *RoomTransaction) seen(eventID string) bool {
	switch eventID {
	case "":
		return false
	case tx.InitEventID, tx.BroadcastEventID, tx.CancelEventID,
		tx.ReadyEventID:

		return true
	}
	return orderedset.Contains(tx.SignEventIDs, eventID) ||
		orderedset.Contains(tx.RejectEventIDs, eventID)
}

// ApplySign folds a sign event carrying one signer's partial signature.
// The incoming PSBT's signatures are combined into the snapshot.  A
// replayed event ID is a no-op; a second sign event from the same
// fingerprint supersedes the first.  Signing a terminal transaction
// fails with ErrTransactionFinalized and leaves the projection
// unchanged.
func (tx *RoomTransaction) ApplySign(eventID, fingerprint, psbtB64 string,
	ts int64) error {

	if tx.seen(eventID) {
		return nil
	}
	if tx.Terminal() {
		return txError(ErrTransactionFinalized,
			"transaction already reached a terminal state")
	}

	snapshot, err := tx.Packet()
	if err != nil {
		return err
	}
	contribution, err := parsePacket(psbtB64)
	if err != nil {
		return err
	}
	combinePackets(snapshot, contribution)
	combined, err := encodePacket(snapshot)
	if err != nil {
		return err
	}

	// The signature material is always absorbed; whether this event
	// becomes the signer's effective entry depends on the deterministic
	// supersede rule.
	tx.PSBT = combined
	tx.bumpContentTime(ts)

	rec := SignRecord{EventID: eventID, Time: ts}
	if prev, ok := tx.SignedBy[fingerprint]; ok {
		if !rec.supersedes(prev) {
			return nil
		}
		tx.SignEventIDs = orderedset.Remove(tx.SignEventIDs, prev.EventID)
	}
	if tx.SignedBy == nil {
		tx.SignedBy = make(map[string]SignRecord)
	}
	tx.SignEventIDs = append(tx.SignEventIDs, eventID)
	tx.SignedBy[fingerprint] = rec
	return nil
}

// ApplyReject folds a reject event.  A later reject from the same sender
// supersedes the earlier one.
func (tx *RoomTransaction) ApplyReject(eventID, sender string,
	ts int64) error {

	if tx.seen(eventID) {
		return nil
	}
	if tx.Terminal() {
		return txError(ErrTransactionFinalized,
			"transaction already reached a terminal state")
	}

	rec := SignRecord{EventID: eventID, Time: ts}
	if prev, ok := tx.RejectedBy[sender]; ok {
		if !rec.supersedes(prev) {
			return nil
		}
		tx.RejectEventIDs = orderedset.Remove(
			tx.RejectEventIDs, prev.EventID,
		)
	}
	if tx.RejectedBy == nil {
		tx.RejectedBy = make(map[string]SignRecord)
	}
	tx.RejectEventIDs = append(tx.RejectEventIDs, eventID)
	tx.RejectedBy[sender] = rec
	return nil
}

// ApplyCancel folds the terminal cancel outcome.  Cancel is only valid
// while the signature threshold has not been met and no broadcast
// occurred.
func (tx *RoomTransaction) ApplyCancel(eventID string) error {
	if tx.CancelEventID != "" {
		// Concurrent cancels agree on the outcome.
		return nil
	}
	if tx.BroadcastEventID != "" {
		return txError(ErrTransactionFinalized,
			"transaction was broadcast by "+tx.BroadcastEventID)
	}
	if tx.Ready() {
		return txError(ErrStateConflict,
			"cannot cancel a fully signed transaction")
	}
	tx.CancelEventID = eventID
	return nil
}

// ApplyReady records the derived threshold-reached notification.  The
// first observed ready event wins; the marker carries no authority.
func (tx *RoomTransaction) ApplyReady(eventID string) error {
	if tx.ReadyEventID == "" {
		tx.ReadyEventID = eventID
	}
	return nil
}

// ApplyBroadcast folds the terminal broadcast outcome.  The first
// broadcast wins and later observations are no-ops; broadcast after
// cancel is a structural conflict.
func (tx *RoomTransaction) ApplyBroadcast(eventID, txID string) error {
	if tx.BroadcastEventID != "" {
		return nil
	}
	if tx.CancelEventID != "" {
		return txError(ErrTransactionFinalized,
			"transaction was canceled by "+tx.CancelEventID)
	}
	tx.BroadcastEventID = eventID
	if txID != "" {
		tx.TxID = txID
	}
	return nil
}

func (tx *RoomTransaction) bumpContentTime(ts int64) {
	if ts > tx.ContentTime {
		tx.ContentTime = ts
	}
}

func copyMap(m map[string]SignRecord) map[string]SignRecord {
	if m == nil {
		return nil
	}
	out := make(map[string]SignRecord, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
