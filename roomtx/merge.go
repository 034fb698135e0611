// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roomtx

import (
	"strings"
)

// Merge folds another partial view of the same signing round into tx.
// Merge is commutative and idempotent.  Identity fields must agree; a
// chain disagreement fails with ErrMismatchedNetworks, any other identity
// mismatch with ErrMergeContract.  Diverging terminal outcomes are
// surfaced as ErrStateConflict.  On any error tx is left unchanged.
func (tx *RoomTransaction) Merge(other *RoomTransaction) error {
	if other == nil {
		return nil
	}

	if err := mergeIdentity(tx, other); err != nil {
		return err
	}

	broadcast, err := mergeSingle(tx.BroadcastEventID,
		other.BroadcastEventID, "broadcast")
	if err != nil {
		return err
	}
	cancel, err := mergeSingle(tx.CancelEventID, other.CancelEventID,
		"cancel")
	if err != nil {
		return err
	}
	if broadcast != "" && cancel != "" {
		return txError(ErrStateConflict,
			"one view broadcast the transaction while the other canceled it")
	}

	// The snapshot join is the signature union; when the packets cannot
	// be combined structurally the later-observed side wins.
	mergedPSBT := tx.PSBT
	contentTime := tx.ContentTime
	if other.ContentTime > contentTime {
		contentTime = other.ContentTime
	}
	switch {
	case tx.PSBT == "":
		mergedPSBT = other.PSBT
	case other.PSBT == "" || other.PSBT == tx.PSBT:
	default:
		a, errA := parsePacket(tx.PSBT)
		b, errB := parsePacket(other.PSBT)
		if errA == nil && errB == nil &&
			len(a.Inputs) == len(b.Inputs) {

			combinePackets(a, b)
			if combined, err := encodePacket(a); err == nil {
				mergedPSBT = combined
				break
			}
		}
		if other.ContentTime > tx.ContentTime ||
			(other.ContentTime == tx.ContentTime &&
				other.PSBT > tx.PSBT) {

			mergedPSBT = other.PSBT
		}
	}

	signedBy, signIDs := mergeRecords(tx.SignedBy, other.SignedBy,
		tx.SignEventIDs, other.SignEventIDs)
	rejectedBy, rejectIDs := mergeRecords(tx.RejectedBy, other.RejectedBy,
		tx.RejectEventIDs, other.RejectEventIDs)

	if tx.TxID == "" {
		tx.TxID = other.TxID
	}
	if tx.WalletID == "" {
		tx.WalletID = other.WalletID
	}
	if tx.Chain == "" {
		tx.Chain = other.Chain
	}
	if tx.Memo == "" {
		tx.Memo = other.Memo
	}
	if tx.RequiredSignatures == 0 {
		tx.RequiredSignatures = other.RequiredSignatures
	}
	tx.BroadcastEventID = broadcast
	tx.CancelEventID = cancel
	tx.ReadyEventID = minNonEmpty(tx.ReadyEventID, other.ReadyEventID)
	tx.SignedBy = signedBy
	tx.SignEventIDs = signIDs
	tx.RejectedBy = rejectedBy
	tx.RejectEventIDs = rejectIDs
	tx.PSBT = mergedPSBT
	tx.ContentTime = contentTime
	return nil
}

// mergeIdentity verifies the two views describe the same logical
// transaction.
func mergeIdentity(a, b *RoomTransaction) error {
	if a.Chain != "" && b.Chain != "" && a.Chain != b.Chain {
		return txError(ErrMismatchedNetworks,
			"cannot merge a "+a.Chain+" transaction with a "+
				b.Chain+" view")
	}
	mismatch := func(av, bv string) bool {
		return av != "" && bv != "" && av != bv
	}
	if mismatch(a.RoomID, b.RoomID) ||
		mismatch(a.InitEventID, b.InitEventID) ||
		mismatch(a.TxID, b.TxID) ||
		mismatch(a.WalletID, b.WalletID) {

		return txError(ErrMergeContract,
			"merge invoked across distinct transactions")
	}
	return nil
}

// mergeSingle merges a single-valued terminal field with
// first-writer-wins semantics: if both sides carry a value they must
// agree.
func mergeSingle(a, b, what string) (string, error) {
	switch {
	case a == "" || a == b:
		return b, nil
	case b == "":
		return a, nil
	}
	return "", txError(ErrStateConflict,
		"views disagree on "+what+" ("+a+" vs "+b+")")
}

// mergeRecords joins the per-identity effective event maps using the
// supersede rule and rebuilds the ordered event id list: ids ordered as
// in the longer input list first, novel ids appended, and superseded ids
// dropped.
func mergeRecords(a, b map[string]SignRecord, aIDs,
	bIDs []string) (map[string]SignRecord, []string) {

	if len(a) == 0 && len(b) == 0 {
		return nil, mergeIDsOrdered(aIDs, bIDs, nil)
	}

	out := make(map[string]SignRecord, len(a)+len(b))
	for id, rec := range a {
		out[id] = rec
	}
	for id, rec := range b {
		if have, ok := out[id]; !ok || rec.supersedes(have) {
			out[id] = rec
		}
	}

	keep := make(map[string]struct{}, len(out))
	for _, rec := range out {
		keep[rec.EventID] = struct{}{}
	}
	return out, mergeIDsOrdered(aIDs, bIDs, keep)
}

func mergeIDsOrdered(a, b []string, keep map[string]struct{}) []string {
	primary, secondary := a, b
	if len(b) > len(a) || (len(b) == len(a) &&
		strings.Join(b, "\x00") < strings.Join(a, "\x00")) {

		primary, secondary = b, a
	}
	var out []string
	seen := make(map[string]struct{})
	add := func(ids []string) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if keep != nil {
				if _, ok := keep[id]; !ok {
					continue
				}
			}
			out = append(out, id)
		}
	}
	add(primary)
	add(secondary)
	return out
}

func minNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case a < b:
		return a
	}
	return b
}
