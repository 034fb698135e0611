// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chanevent

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

// TestSignerValidate exercises key material validation against a
// network.
func TestSignerValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		signer  Signer
		params  *chaincfg.Params
		errCode ErrorCode
		ok      bool
	}{
		{
			name: "valid mainnet xpub",
			signer: Signer{
				XPub:              testXPub1,
				MasterFingerprint: "deadbeef",
			},
			params: &chaincfg.MainNetParams,
			ok:     true,
		},
		{
			name:    "no key material",
			signer:  Signer{Name: "bob"},
			params:  &chaincfg.MainNetParams,
			errCode: ErrInvalidKey,
		},
		{
			name:    "garbage xpub",
			signer:  Signer{XPub: "xpub-not-a-key"},
			params:  &chaincfg.MainNetParams,
			errCode: ErrInvalidKey,
		},
		{
			name:    "mainnet key on testnet wallet",
			signer:  Signer{XPub: testXPub1},
			params:  &chaincfg.TestNet3Params,
			errCode: ErrMismatchedNetworks,
		},
		{
			name: "bad fingerprint",
			signer: Signer{
				XPub:              testXPub1,
				MasterFingerprint: "zz",
			},
			params:  &chaincfg.MainNetParams,
			errCode: ErrInvalidKey,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.signer.Validate(tc.params)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.True(t, IsError(err, tc.errCode), "got %v", err)
		})
	}
}

// TestCheckAddressType exercises the purpose/address-type compatibility
// convention.
func TestCheckAddressType(t *testing.T) {
	t.Parallel()

	segwit := Signer{XPub: testXPub1, DerivationPath: "m/84'/0'/0'"}
	require.NoError(t, segwit.CheckAddressType(AddressNativeSegwit))

	err := segwit.CheckAddressType(AddressTaproot)
	require.True(t, IsError(err, ErrMismatchedKeyTypes), "got %v", err)

	// No derivation path means nothing to check against.
	pathless := Signer{XPub: testXPub1}
	require.NoError(t, pathless.CheckAddressType(AddressTaproot))

	legacy := Signer{XPub: testXPub2, DerivationPath: "m/44'/0'/1'"}
	require.NoError(t, legacy.CheckAddressType(AddressLegacy))
	require.Error(t, legacy.CheckAddressType(AddressNestedSegwit))
}

// TestKeyID asserts that key identity follows the xpub when present.
func TestKeyID(t *testing.T) {
	t.Parallel()

	withXPub := Signer{XPub: testXPub1, MasterFingerprint: "AABBCCDD"}
	require.Equal(t, testXPub1, withXPub.KeyID())

	pubOnly := Signer{MasterFingerprint: "AABBCCDD", PublicKey: "02aa"}
	require.Equal(t, "aabbccdd/02aa", pubOnly.KeyID())
}
