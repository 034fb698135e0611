// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chansigner drives a single signing round against a concrete
// signer.  A signer is a capability with one job: given an unsigned (or
// partially signed) PSBT, produce the same PSBT with its own signature
// contribution applied.  Three kinds are provided: direct hardware
// devices, airgapped devices reached through file exchange, and tap
// cards guarded by a confirmation code.
//
// Signing is all-or-nothing: either a complete, verifiable contribution
// is returned, or an error is and the input packet is untouched.
package chansigner

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// ErrNoContribution is returned when a signer ran to completion but its
// output carries no new signature.  Feeding such a result into the
// projection would record a sign event with nothing behind it.
var ErrNoContribution = errors.New("signer produced no signature contribution")

// Signer produces a signature contribution for a transaction.
type Signer interface {
	// Fingerprint returns the master key fingerprint identifying this
	// signer in the signing round.
	Fingerprint() string

	// Sign returns a copy of the packet with this signer's signatures
	// applied.  The input packet is never modified.
	Sign(ctx context.Context, packet *psbt.Packet) (*psbt.Packet, error)
}

// DeviceDriver is the opaque boundary to a directly connected hardware
// signing device.  Implementations handle all device I/O and user
// interaction.
type DeviceDriver interface {
	SignPsbt(ctx context.Context, packet *psbt.Packet) (*psbt.Packet, error)
}

// DeviceSigner signs with a directly connected hardware device.
type DeviceSigner struct {
	fingerprint string
	driver      DeviceDriver
}

// NewDeviceSigner returns a signer backed by the given device driver.
func NewDeviceSigner(fingerprint string, driver DeviceDriver) *DeviceSigner {
	return &DeviceSigner{fingerprint: fingerprint, driver: driver}
}

// Fingerprint returns the signer's master key fingerprint.
func (s *DeviceSigner) Fingerprint() string { return s.fingerprint }

// Sign asks the device to sign and verifies the contribution.
func (s *DeviceSigner) Sign(ctx context.Context,
	packet *psbt.Packet) (*psbt.Packet, error) {

	signed, err := s.driver.SignPsbt(ctx, packet)
	if err != nil {
		return nil, err
	}
	return signed, verifyContribution(packet, signed)
}

// verifyContribution checks that signing actually added signature
// material relative to the input packet.
func verifyContribution(before, after *psbt.Packet) error {
	if after == nil || len(after.Inputs) != len(before.Inputs) {
		return ErrNoContribution
	}
	for i := range after.Inputs {
		a, b := &after.Inputs[i], &before.Inputs[i]
		if len(a.PartialSigs) > len(b.PartialSigs) ||
			len(a.TaprootScriptSpendSig) > len(b.TaprootScriptSpendSig) ||
			(len(a.TaprootKeySpendSig) > 0 &&
				len(b.TaprootKeySpendSig) == 0) {

			return nil
		}
	}
	return ErrNoContribution
}
