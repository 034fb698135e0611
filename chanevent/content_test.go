// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chanevent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Extended public keys borrowed from the BIP32 derivation fixtures used
// across the test suite.  All are mainnet keys.
const (
	testXPub1 = "xpub661MyMwAqRbcFDDrR5jY7LqsRioFDwg3cLjc7tML3RRcfYyhXqqgCH5SqMSQdpQ1Xh8EtVwcfm8psD8zXKPcRaCVSY4GCqbb3aMEs27GitE"
	testXPub2 = "xpub661MyMwAqRbcGsxyD8hTmJFtpmwoZhy4NBBVxzvFU8tDXD2ME49A6JjQCYgbpSUpHGP1q4S2S1Pxv2EqTjwfERS5pc9Q2yeLkPFzSgRpjs9"
)

// TestContentRoundTrip asserts that every authored payload decodes back
// to the identical value.
func TestContentRoundTrip(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		eventType string
		payload   Payload
		rel       *RelatesTo
	}{
		{
			name:      "wallet init",
			eventType: TypeWallet,
			payload: WalletInit{
				Name:        "family vault",
				M:           2,
				N:           3,
				AddressType: AddressNativeSegwit,
				Chain:       "MAIN",
			},
		},
		{
			name:      "wallet join",
			eventType: TypeWallet,
			payload: WalletJoin{
				Key: Signer{
					Name:              "alice",
					XPub:              testXPub1,
					MasterFingerprint: "deadbeef",
					DerivationPath:    "m/84'/0'/0'",
					Type:              SignerHardware,
				},
			},
		},
		{
			name:      "wallet create",
			eventType: TypeWallet,
			payload: WalletCreate{
				WalletID:   "w1",
				Descriptor: "wsh(multi(2,...))",
			},
		},
		{
			name:      "tx sign",
			eventType: TypeTransaction,
			payload: TxSign{
				MasterFingerprint: "deadbeef",
				PSBT:              "cHNidP8=",
			},
			rel: &RelatesTo{InitEventID: "$init"},
		},
		{
			name:      "sync file",
			eventType: TypeSync,
			payload: SyncFile{
				FileName: "backup.bak",
				MimeType: "application/octet-stream",
				URL:      "mxc://media/abc",
			},
		},
		{
			name:      "error notice",
			eventType: TypeError,
			payload: ErrorNotice{
				Platform: "linux",
				Code:     "-1",
				Message:  "boom",
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			content, err := EncodeContent(tc.payload, tc.rel)
			require.NoError(t, err)

			decoded, rel, err := DecodeContent(tc.eventType, content)
			require.NoError(t, err)
			require.Equal(t, tc.payload, decoded)
			require.Equal(t, tc.rel, rel)
		})
	}
}

// TestDecodeUnknown asserts that foreign event and message types decode
// to Unknown rather than failing, so unrelated room traffic is ignored.
func TestDecodeUnknown(t *testing.T) {
	t.Parallel()

	p, rel, err := DecodeContent("m.room.message", []byte(`{"body":"hi"}`))
	require.NoError(t, err)
	require.Nil(t, rel)
	require.IsType(t, Unknown{}, p)

	content := []byte(`{"msgtype":"io.chanwallet.wallet.frobnicate",` +
		`"v":"1.0","body":{}}`)
	p, _, err = DecodeContent(TypeWallet, content)
	require.NoError(t, err)
	require.IsType(t, Unknown{}, p)
}

// TestDecodeMalformed asserts that protocol content failing structural
// validation is rejected with ErrMalformedEvent.
func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		eventType string
		content   string
	}{
		{
			name:      "invalid json",
			eventType: TypeWallet,
			content:   `{"msgtype":`,
		},
		{
			name:      "init without name",
			eventType: TypeWallet,
			content: `{"msgtype":"io.chanwallet.wallet.init",` +
				`"v":"1.0","body":{"m":2,"n":3,"chain":"MAIN"}}`,
		},
		{
			name:      "init with inverted threshold",
			eventType: TypeWallet,
			content: `{"msgtype":"io.chanwallet.wallet.init",` +
				`"v":"1.0","body":{"name":"x","m":3,"n":2,` +
				`"chain":"MAIN"}}`,
		},
		{
			name:      "sign without relation",
			eventType: TypeTransaction,
			content: `{"msgtype":"io.chanwallet.transaction.sign",` +
				`"v":"1.0","body":{"master_fingerprint":"aa",` +
				`"psbt":"cHNidP8="}}`,
		},
		{
			name:      "broadcast without txid",
			eventType: TypeTransaction,
			content: `{"msgtype":"io.chanwallet.transaction.broadcast",` +
				`"v":"1.0","body":{},` +
				`"io.chanwallet.relates_to":{"init_event_id":"$i"}}`,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := DecodeContent(
				tc.eventType, []byte(tc.content),
			)
			require.True(t, IsError(err, ErrMalformedEvent),
				"got %v", err)
		})
	}
}

// TestParseEvent asserts the required envelope fields.
func TestParseEvent(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"type":"io.chanwallet.wallet","content":{},` +
		`"event_id":"$e1","room_id":"!r1","sender":"@a:hs","ts":1700}`)
	e, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "$e1", e.ID)
	require.Equal(t, "!r1", e.RoomID)
	require.Equal(t, int64(1700), e.Time)

	_, err = Parse([]byte(`{"content":{}}`))
	require.True(t, IsError(err, ErrMalformedEvent))

	_, err = Parse([]byte(`not json`))
	require.True(t, IsError(err, ErrMalformedEvent))
}
