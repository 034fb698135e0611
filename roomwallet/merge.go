// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roomwallet

import (
	"sort"

	"github.com/btcsuite/chanwallet/internal/orderedset"
)

// Merge folds another partial view of the same wallet proposal into w.
// Merge is commutative and idempotent: merging in either order, or
// merging a view into itself, converges on the same canonical state.
//
// Identity fields must agree; a chain disagreement fails with
// ErrMismatchedNetworks, any other identity mismatch with
// ErrMergeContract since merge must only be invoked on views of the same
// logical wallet.  Diverging terminal outcomes are surfaced as
// ErrStateConflict rather than silently resolved.  On any error w is left
// unchanged.
func (w *RoomWallet) Merge(other *RoomWallet) error {
	if other == nil {
		return nil
	}

	if err := mergeIdentity(w, other); err != nil {
		return err
	}

	finalize, err := mergeSingle(w.FinalizeEventID, other.FinalizeEventID,
		"finalize")
	if err != nil {
		return err
	}
	cancel, err := mergeSingle(w.CancelEventID, other.CancelEventID,
		"cancel")
	if err != nil {
		return err
	}
	if finalize != "" && cancel != "" {
		return walletError(ErrStateConflict,
			"one view finalized the wallet while the other canceled it")
	}
	walletID, err := mergeSingle(w.WalletID, other.WalletID, "wallet id")
	if err != nil {
		return err
	}

	// Delete is a tombstone: first writer wins, concurrent deletes are
	// not conflicting.  Ready is a derived marker; pick the
	// lexicographically smaller id so both merge orders agree.
	deleteID := w.DeleteEventID
	if deleteID == "" {
		deleteID = other.DeleteEventID
	}
	ready := minNonEmpty(w.ReadyEventID, other.ReadyEventID)

	draft, contentTime, err := mergeDrafts(w, other)
	if err != nil {
		return err
	}

	joins := orderedset.Union(w.JoinEventIDs, other.JoinEventIDs)
	for _, left := range draft.Left {
		joins = orderedset.Remove(joins, left.JoinEventID)
	}

	w.WalletID = walletID
	w.FinalizeEventID = finalize
	w.CancelEventID = cancel
	w.DeleteEventID = deleteID
	w.ReadyEventID = ready
	w.JoinEventIDs = joins
	w.LeaveEventIDs = orderedset.Union(w.LeaveEventIDs, other.LeaveEventIDs)
	w.ContentTime = contentTime
	if w.Chain == "" {
		w.Chain = other.Chain
	}
	return w.putDraft(draft)
}

// mergeIdentity verifies the two views describe the same logical wallet.
func mergeIdentity(a, b *RoomWallet) error {
	if a.Chain != "" && b.Chain != "" && a.Chain != b.Chain {
		return walletError(ErrMismatchedNetworks,
			"cannot merge a "+a.Chain+" wallet with a "+b.Chain+" view")
	}
	if a.RoomID != "" && b.RoomID != "" && a.RoomID != b.RoomID {
		return walletError(ErrMergeContract,
			"merge invoked across rooms "+a.RoomID+" and "+b.RoomID)
	}
	if a.InitEventID != "" && b.InitEventID != "" &&
		a.InitEventID != b.InitEventID {

		return walletError(ErrMergeContract,
			"merge invoked across distinct wallet proposals")
	}
	return nil
}

// mergeSingle merges a single-valued field with first-writer-wins
// semantics: if both sides carry a value they must agree, otherwise the
// set side propagates.
func mergeSingle(a, b, what string) (string, error) {
	switch {
	case a == "" || a == b:
		return b, nil
	case b == "":
		return a, nil
	}
	return "", walletError(ErrStateConflict,
		"views disagree on "+what+" ("+a+" vs "+b+")")
}

// mergeDrafts unions the two draft contents.  Scalar configuration is
// fixed at init so either non-empty side supplies it; the signer and
// tombstone lists are unioned structurally, which keeps the merge
// commutative even for genuinely concurrent joins.
func mergeDrafts(a, b *RoomWallet) (*Draft, int64, error) {
	da, err := a.Draft()
	if err != nil {
		return nil, 0, err
	}
	db, err := b.Draft()
	if err != nil {
		return nil, 0, err
	}

	contentTime := a.ContentTime
	if b.ContentTime > contentTime {
		contentTime = b.ContentTime
	}

	// Most information wins for the scalar configuration: an empty view
	// yields to the populated one.
	base, overlay := da, db
	if base.Name == "" && overlay.Name != "" {
		base, overlay = db, da
	}

	out := *base
	out.Signers = nil
	out.Left = nil

	for _, left := range append(append([]LeftJoin(nil), base.Left...),
		overlay.Left...) {

		if !hasLeft(out.Left, left.JoinEventID) {
			out.Left = append(out.Left, left)
		}
	}
	sort.Slice(out.Left, func(i, j int) bool {
		return out.Left[i].JoinEventID < out.Left[j].JoinEventID
	})

	for _, s := range append(append([]DraftSigner(nil), base.Signers...),
		overlay.Signers...) {

		if hasLeft(out.Left, s.JoinEventID) && s.JoinEventID != "" {
			continue
		}
		if i := draftSignerIndex(out.Signers, s.KeyID()); i >= 0 {
			// The same key contributed through two concurrent join
			// events collapses to one entry; the smaller join event
			// id wins so both merge orders agree.
			if s.JoinEventID < out.Signers[i].JoinEventID {
				out.Signers[i] = s
			}
			continue
		}
		out.Signers = append(out.Signers, s)
	}
	sort.SliceStable(out.Signers, func(i, j int) bool {
		// Init-proposed signers (no join event) sort first, then by
		// join event id for a canonical order.
		return out.Signers[i].JoinEventID < out.Signers[j].JoinEventID
	})

	return &out, contentTime, nil
}

func hasLeft(left []LeftJoin, joinEventID string) bool {
	for _, l := range left {
		if l.JoinEventID == joinEventID {
			return true
		}
	}
	return false
}

func draftSignerIndex(signers []DraftSigner, keyID string) int {
	for i, have := range signers {
		if have.KeyID() == keyID {
			return i
		}
	}
	return -1
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
