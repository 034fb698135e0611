// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roomtx

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// parsePacket decodes a base64 PSBT snapshot.
func parsePacket(b64 string) (*psbt.Packet, error) {
	packet, err := psbt.NewFromRawBytes(bytes.NewReader([]byte(b64)), true)
	if err != nil {
		return nil, Error{
			ErrorCode:   ErrInvalidSnapshot,
			Description: "cannot parse transaction snapshot",
			Err:         err,
		}
	}
	return packet, nil
}

// encodePacket serializes a PSBT snapshot back to base64.
func encodePacket(packet *psbt.Packet) (string, error) {
	b64, err := packet.B64Encode()
	if err != nil {
		return "", Error{
			ErrorCode:   ErrInvalidSnapshot,
			Description: "cannot encode transaction snapshot",
			Err:         err,
		}
	}
	return b64, nil
}

// signatureCount reports how many signatures the snapshot carries.  A
// partially signed multisig input carries one partial signature per
// signer that has contributed; taproot inputs carry script-spend or
// key-spend signatures instead.  The count over the whole transaction is
// the minimum over its inputs since every input must meet the threshold.
func signatureCount(packet *psbt.Packet) int {
	if len(packet.Inputs) == 0 {
		return 0
	}
	count := -1
	for i := range packet.Inputs {
		in := &packet.Inputs[i]
		n := len(in.PartialSigs) + len(in.TaprootScriptSpendSig)
		if len(in.TaprootKeySpendSig) > 0 {
			n++
		}
		if count < 0 || n < count {
			count = n
		}
	}
	return count
}

// combinePackets folds the signatures of b into a, input by input.
// Signature sets only ever grow, so combining is the monotone join used
// both when applying a sign event and when merging two views whose
// snapshots differ.
func combinePackets(a, b *psbt.Packet) {
	if len(a.Inputs) != len(b.Inputs) {
		return
	}
	for i := range a.Inputs {
		dst, src := &a.Inputs[i], &b.Inputs[i]

		for _, sig := range src.PartialSigs {
			if !hasPartialSig(dst.PartialSigs, sig.PubKey) {
				dst.PartialSigs = append(dst.PartialSigs, sig)
			}
		}
		for _, sig := range src.TaprootScriptSpendSig {
			if !hasTaprootSig(dst.TaprootScriptSpendSig, sig.XOnlyPubKey) {
				dst.TaprootScriptSpendSig = append(
					dst.TaprootScriptSpendSig, sig,
				)
			}
		}
		if len(dst.TaprootKeySpendSig) == 0 {
			dst.TaprootKeySpendSig = src.TaprootKeySpendSig
		}
	}
}

func hasPartialSig(sigs []*psbt.PartialSig, pubKey []byte) bool {
	for _, sig := range sigs {
		if bytes.Equal(sig.PubKey, pubKey) {
			return true
		}
	}
	return false
}

func hasTaprootSig(sigs []*psbt.TaprootScriptSpendSig, xOnly []byte) bool {
	for _, sig := range sigs {
		if bytes.Equal(sig.XOnlyPubKey, xOnly) {
			return true
		}
	}
	return false
}
