// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chansigner

import (
	"context"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// TapCard is the opaque boundary to a smartcard signer.  The card
// releases a signature only when presented with its confirmation code.
type TapCard interface {
	SignPsbt(ctx context.Context, cvc string,
		packet *psbt.Packet) (*psbt.Packet, error)
}

// TapcardSigner signs with a smartcard guarded by a confirmation code.
// A wrong code is reported by the card driver and never touches the
// projection.
type TapcardSigner struct {
	fingerprint string
	card        TapCard
	cvc         string
}

// NewTapcardSigner returns a signer backed by the given card.
func NewTapcardSigner(fingerprint string, card TapCard,
	cvc string) *TapcardSigner {

	return &TapcardSigner{fingerprint: fingerprint, card: card, cvc: cvc}
}

// Fingerprint returns the signer's master key fingerprint.
func (s *TapcardSigner) Fingerprint() string { return s.fingerprint }

// Sign asks the card to sign and verifies the contribution.
func (s *TapcardSigner) Sign(ctx context.Context,
	packet *psbt.Packet) (*psbt.Packet, error) {

	signed, err := s.card.SignPsbt(ctx, s.cvc, packet)
	if err != nil {
		return nil, err
	}
	return signed, verifyContribution(packet, signed)
}
