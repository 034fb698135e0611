// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chanevent

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// AddressType declares the script class a shared wallet pays to.  It is
// fixed at wallet init and every contributed key must be compatible with
// it.
type AddressType string

// Address types supported for shared wallets.
const (
	AddressLegacy       AddressType = "LEGACY"
	AddressNestedSegwit AddressType = "NESTED_SEGWIT"
	AddressNativeSegwit AddressType = "NATIVE_SEGWIT"
	AddressTaproot      AddressType = "TAPROOT"
)

// Valid returns whether the address type is one of the supported values.
func (a AddressType) Valid() bool {
	switch a {
	case AddressLegacy, AddressNestedSegwit, AddressNativeSegwit,
		AddressTaproot:

		return true
	}
	return false
}

// purpose returns the BIP-43 purpose index conventionally used for the
// address type.
func (a AddressType) purpose() uint32 {
	switch a {
	case AddressLegacy:
		return 44
	case AddressNestedSegwit:
		return 49
	case AddressNativeSegwit:
		return 84
	case AddressTaproot:
		return 86
	}
	return 0
}

// SignerType describes how a signer's key is operated.
type SignerType string

// Signer types.
const (
	SignerSoftware SignerType = "SOFTWARE"
	SignerHardware SignerType = "HARDWARE"
	SignerAirgap   SignerType = "AIRGAP"
	SignerTapcard  SignerType = "TAPCARD"
)

// Signer describes one co-signer key contributed to a shared wallet.  The
// master fingerprint plus derivation path identify the key's origin; the
// xpub (and for taproot wallets the raw public key) carry the key
// material.
type Signer struct {
	Name              string     `json:"name,omitempty"`
	XPub              string     `json:"xpub"`
	PublicKey         string     `json:"pubkey,omitempty"`
	DerivationPath    string     `json:"derivation_path,omitempty"`
	MasterFingerprint string     `json:"master_fingerprint"`
	Type              SignerType `json:"signer_type,omitempty"`
}

// KeyID returns the identity under which duplicate keys are detected.
// Two signers with the same extended public key are the same key no
// matter who submitted them.
func (s *Signer) KeyID() string {
	if s.XPub != "" {
		return s.XPub
	}
	return strings.ToLower(s.MasterFingerprint) + "/" + s.PublicKey
}

// Validate checks that the signer's key material parses and belongs to
// the given network.  A key that does not parse fails with ErrInvalidKey;
// a key for the wrong network fails with ErrMismatchedNetworks.
func (s *Signer) Validate(params *chaincfg.Params) error {
	if s.XPub == "" && s.PublicKey == "" {
		return Error{
			ErrorCode:   ErrInvalidKey,
			Description: "signer has no key material",
		}
	}

	if s.XPub != "" {
		key, err := hdkeychain.NewKeyFromString(s.XPub)
		if err != nil {
			return Error{
				ErrorCode:   ErrInvalidKey,
				Description: "invalid xpub " + s.XPub,
				Err:         err,
			}
		}
		if key.IsPrivate() {
			return Error{
				ErrorCode:   ErrInvalidKey,
				Description: "extended private key submitted as signer key",
			}
		}
		if !key.IsForNet(params) {
			return Error{
				ErrorCode: ErrMismatchedNetworks,
				Description: "signer key is not for network " +
					params.Name,
			}
		}
	}

	if s.PublicKey != "" {
		raw, err := hex.DecodeString(s.PublicKey)
		if err == nil {
			_, err = btcec.ParsePubKey(raw)
		}
		if err != nil {
			return Error{
				ErrorCode:   ErrInvalidKey,
				Description: "invalid public key " + s.PublicKey,
				Err:         err,
			}
		}
	}

	if s.MasterFingerprint != "" {
		raw, err := hex.DecodeString(s.MasterFingerprint)
		if err != nil || len(raw) != 4 {
			return Error{
				ErrorCode: ErrInvalidKey,
				Description: "invalid master fingerprint " +
					s.MasterFingerprint,
			}
		}
	}

	return nil
}

// CheckAddressType verifies that the signer's derivation path is
// compatible with the wallet's declared address type, per the BIP-43
// purpose convention.  Signers without a derivation path are accepted;
// there is nothing to check against.
func (s *Signer) CheckAddressType(addrType AddressType) error {
	purpose, ok := derivationPurpose(s.DerivationPath)
	if !ok {
		return nil
	}
	if want := addrType.purpose(); want != 0 && purpose != want {
		return Error{
			ErrorCode: ErrMismatchedKeyTypes,
			Description: "key derived for purpose " +
				strconv.FormatUint(uint64(purpose), 10) +
				" cannot serve a " + string(addrType) + " wallet",
		}
	}
	return nil
}

// derivationPurpose extracts the purpose index from a derivation path of
// the form m/86'/0'/0'.  Returns false when the path is empty or does not
// follow the convention.
func derivationPurpose(path string) (uint32, bool) {
	path = strings.TrimPrefix(path, "m/")
	part, _, _ := strings.Cut(path, "/")
	part = strings.TrimRight(part, "'h")
	n, err := strconv.ParseUint(part, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
