// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chansigner

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// ExportFunc carries an unsigned PSBT out to the airgapped device, for
// example by writing it through the file transfer bridge for the user to
// move on removable media or QR codes.
type ExportFunc func(ctx context.Context, fileName string, data []byte) error

// ImportFunc brings the signed PSBT back from the airgapped device.
type ImportFunc func(ctx context.Context, fileName string) ([]byte, error)

// AirgapSigner exchanges PSBT files with a device that is never
// connected directly.  The export and import functions are typically
// bound to a filexfer.Bridge by the caller.
type AirgapSigner struct {
	fingerprint string
	export      ExportFunc
	imp         ImportFunc
}

// NewAirgapSigner returns a signer that routes the transaction through
// the given file exchange functions.
func NewAirgapSigner(fingerprint string, export ExportFunc,
	imp ImportFunc) *AirgapSigner {

	return &AirgapSigner{
		fingerprint: fingerprint,
		export:      export,
		imp:         imp,
	}
}

// Fingerprint returns the signer's master key fingerprint.
func (s *AirgapSigner) Fingerprint() string { return s.fingerprint }

// Sign exports the packet, waits for the signed file to come back, and
// verifies the contribution.
func (s *AirgapSigner) Sign(ctx context.Context,
	packet *psbt.Packet) (*psbt.Packet, error) {

	unsigned, err := packet.B64Encode()
	if err != nil {
		return nil, err
	}
	name := packet.UnsignedTx.TxHash().String() + ".psbt"
	if err := s.export(ctx, name, []byte(unsigned)); err != nil {
		return nil, err
	}

	data, err := s.imp(ctx, name)
	if err != nil {
		return nil, err
	}
	signed, err := psbt.NewFromRawBytes(bytes.NewReader(data), true)
	if err != nil {
		return nil, err
	}
	return signed, verifyContribution(packet, signed)
}
