// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chanevent

import (
	"encoding/json"
)

// Message type identifiers carried in the msgtype field of event content.
const (
	MsgWalletInit   = "io.chanwallet.wallet.init"
	MsgWalletJoin   = "io.chanwallet.wallet.join"
	MsgWalletLeave  = "io.chanwallet.wallet.leave"
	MsgWalletCancel = "io.chanwallet.wallet.cancel"
	MsgWalletReady  = "io.chanwallet.wallet.ready"
	MsgWalletCreate = "io.chanwallet.wallet.create"
	MsgWalletDelete = "io.chanwallet.wallet.delete"

	MsgTxInit      = "io.chanwallet.transaction.init"
	MsgTxSign      = "io.chanwallet.transaction.sign"
	MsgTxReject    = "io.chanwallet.transaction.reject"
	MsgTxCancel    = "io.chanwallet.transaction.cancel"
	MsgTxReady     = "io.chanwallet.transaction.ready"
	MsgTxBroadcast = "io.chanwallet.transaction.broadcast"
	MsgTxReceive   = "io.chanwallet.transaction.receive"

	MsgSyncFile = "io.chanwallet.sync.file"
	MsgError    = "io.chanwallet.error"
)

// contentVersion is the wire version stamped on all authored content.
const contentVersion = "1.0"

// Payload is the closed set of decoded event bodies.  Exactly one concrete
// type implements it per message type; unrecognized events decode to
// Unknown so that foreign traffic in a room is ignored rather than
// rejected.
type Payload interface {
	// MsgType returns the wire message type identifier of the payload.
	MsgType() string
}

// RelatesTo links a follow-up event back to the event that opened the
// exchange it belongs to.  Transaction events relate to the transaction
// init event; wallet events are scoped by room and carry no relation.
type RelatesTo struct {
	InitEventID string `json:"init_event_id"`
}

// wireContent is the envelope shared by all event content payloads.
type wireContent struct {
	MsgType   string          `json:"msgtype"`
	Version   string          `json:"v"`
	Body      json.RawMessage `json:"body,omitempty"`
	RelatesTo *RelatesTo      `json:"io.chanwallet.relates_to,omitempty"`
}

// WalletInit proposes a new m-of-n shared wallet in a room.
type WalletInit struct {
	Name        string      `json:"name"`
	M           int         `json:"m"`
	N           int         `json:"n"`
	AddressType AddressType `json:"address_type"`
	IsEscrow    bool        `json:"is_escrow"`
	Description string      `json:"description,omitempty"`
	Chain       string      `json:"chain"`
	Signers     []Signer    `json:"signers,omitempty"`
}

func (WalletInit) MsgType() string { return MsgWalletInit }

// WalletJoin contributes one signer key to a proposed wallet.
type WalletJoin struct {
	Key Signer `json:"key"`
}

func (WalletJoin) MsgType() string { return MsgWalletJoin }

// WalletLeave withdraws a previously joined key, referencing the join
// event that added it.
type WalletLeave struct {
	JoinEventID string `json:"join_event_id"`
	Reason      string `json:"reason,omitempty"`
}

func (WalletLeave) MsgType() string { return MsgWalletLeave }

// WalletCancel abandons a wallet proposal before finalization.
type WalletCancel struct {
	Reason string `json:"reason,omitempty"`
}

func (WalletCancel) MsgType() string { return MsgWalletCancel }

// WalletReady announces that the proposal has collected enough keys to be
// finalized.  It is a derived notification, not an authoritative state.
type WalletReady struct{}

func (WalletReady) MsgType() string { return MsgWalletReady }

// WalletCreate finalizes the proposal, fixing the wallet ID and output
// descriptor every participant must agree on.
type WalletCreate struct {
	WalletID     string `json:"wallet_id"`
	Descriptor   string `json:"descriptor,omitempty"`
	FirstAddress string `json:"first_address,omitempty"`
}

func (WalletCreate) MsgType() string { return MsgWalletCreate }

// WalletDelete tombstones a finalized wallet.  Prior history is retained
// for backup replay.
type WalletDelete struct {
	WalletID string `json:"wallet_id,omitempty"`
}

func (WalletDelete) MsgType() string { return MsgWalletDelete }

// TxInit proposes a new collaborative transaction, snapshotting the
// unsigned PSBT.
type TxInit struct {
	WalletID           string `json:"wallet_id"`
	TxID               string `json:"tx_id"`
	PSBT               string `json:"psbt"`
	Memo               string `json:"memo,omitempty"`
	Chain              string `json:"chain"`
	RequiredSignatures int    `json:"required_signatures"`
}

func (TxInit) MsgType() string { return MsgTxInit }

// TxSign contributes one partial signature, carried as the PSBT with the
// signer's signatures applied.
type TxSign struct {
	MasterFingerprint string `json:"master_fingerprint"`
	PSBT              string `json:"psbt"`
}

func (TxSign) MsgType() string { return MsgTxSign }

// TxReject records a signer's refusal to sign.
type TxReject struct {
	Reason string `json:"reason,omitempty"`
}

func (TxReject) MsgType() string { return MsgTxReject }

// TxCancel abandons a pending transaction before broadcast.
type TxCancel struct {
	Reason string `json:"reason,omitempty"`
}

func (TxCancel) MsgType() string { return MsgTxCancel }

// TxReady announces that the signature threshold has been reached.  Like
// WalletReady it is derived and re-validated locally on receipt.
type TxReady struct{}

func (TxReady) MsgType() string { return MsgTxReady }

// TxBroadcast records the terminal broadcast of a fully signed
// transaction.
type TxBroadcast struct {
	TxID  string `json:"tx_id"`
	RawTx string `json:"raw_tx,omitempty"`
}

func (TxBroadcast) MsgType() string { return MsgTxBroadcast }

// TxReceive notifies the room of an incoming payment to the shared
// wallet.
type TxReceive struct {
	TxID    string `json:"tx_id"`
	Address string `json:"address,omitempty"`
	Amount  int64  `json:"amount,omitempty"`
	Memo    string `json:"memo,omitempty"`
}

func (TxReceive) MsgType() string { return MsgTxReceive }

// SyncFile points at an uploaded backup blob in the sync room.
type SyncFile struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	JSONInfo string `json:"file_json_info,omitempty"`
	URL      string `json:"file_url"`
}

func (SyncFile) MsgType() string { return MsgSyncFile }

// ErrorNotice is a best-effort report of a client-side failure, published
// so other participants can surface it.
type ErrorNotice struct {
	Platform string `json:"platform,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message,omitempty"`
}

func (ErrorNotice) MsgType() string { return MsgError }

// Unknown is returned for event or message types outside the closed set.
// Consumers ignore these rather than treating them as errors.
type Unknown struct {
	EventType   string
	MessageType string
}

func (u Unknown) MsgType() string { return u.MessageType }

// EncodeContent serializes a payload into the wire content envelope.  The
// relation is required for transaction follow-up events and must be nil
// otherwise.
func EncodeContent(p Payload, rel *RelatesTo) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, malformedError("cannot encode event body", err)
	}
	return json.Marshal(&wireContent{
		MsgType:   p.MsgType(),
		Version:   contentVersion,
		Body:      body,
		RelatesTo: rel,
	})
}

// DecodeContent parses an event's content into its typed payload and
// optional relation.  Content whose event type or msgtype is outside the
// protocol decodes to Unknown.  Content that claims a protocol msgtype but
// fails to parse, or that is missing required fields, fails with
// ErrMalformedEvent.
func DecodeContent(eventType string, content []byte) (Payload, *RelatesTo, error) {
	switch eventType {
	case TypeWallet, TypeTransaction, TypeSync, TypeError:
	default:
		return Unknown{EventType: eventType}, nil, nil
	}

	var wc wireContent
	if err := json.Unmarshal(content, &wc); err != nil {
		return nil, nil, malformedError("invalid event content", err)
	}

	p := newPayload(wc.MsgType)
	if p == nil {
		return Unknown{EventType: eventType, MessageType: wc.MsgType}, nil, nil
	}
	if len(wc.Body) > 0 {
		if err := json.Unmarshal(wc.Body, p); err != nil {
			return nil, nil, malformedError(
				"invalid body for "+wc.MsgType, err,
			)
		}
	}
	if err := validatePayload(p, wc.RelatesTo); err != nil {
		return nil, nil, err
	}

	// Return the payload by value so callers hold an immutable copy.
	return deref(p), wc.RelatesTo, nil
}

// newPayload returns a pointer to a zero value of the concrete payload
// type for the given message type, or nil if the type is not part of the
// protocol.
func newPayload(msgType string) Payload {
	switch msgType {
	case MsgWalletInit:
		return &WalletInit{}
	case MsgWalletJoin:
		return &WalletJoin{}
	case MsgWalletLeave:
		return &WalletLeave{}
	case MsgWalletCancel:
		return &WalletCancel{}
	case MsgWalletReady:
		return &WalletReady{}
	case MsgWalletCreate:
		return &WalletCreate{}
	case MsgWalletDelete:
		return &WalletDelete{}
	case MsgTxInit:
		return &TxInit{}
	case MsgTxSign:
		return &TxSign{}
	case MsgTxReject:
		return &TxReject{}
	case MsgTxCancel:
		return &TxCancel{}
	case MsgTxReady:
		return &TxReady{}
	case MsgTxBroadcast:
		return &TxBroadcast{}
	case MsgTxReceive:
		return &TxReceive{}
	case MsgSyncFile:
		return &SyncFile{}
	case MsgError:
		return &ErrorNotice{}
	}
	return nil
}

// validatePayload enforces the required fields of each message type.
func validatePayload(p Payload, rel *RelatesTo) error {
	missing := func(field string) error {
		return malformedError(
			p.MsgType()+" missing required field "+field, nil,
		)
	}

	// All transaction follow-up events must reference their init event.
	switch p.(type) {
	case *TxSign, *TxReject, *TxCancel, *TxReady, *TxBroadcast:
		if rel == nil || rel.InitEventID == "" {
			return missing("init_event_id")
		}
	}

	switch v := p.(type) {
	case *WalletInit:
		switch {
		case v.Name == "":
			return missing("name")
		case v.M <= 0 || v.N < v.M:
			return malformedError("wallet init has invalid m-of-n", nil)
		case v.Chain == "":
			return missing("chain")
		}
	case *WalletJoin:
		if v.Key == (Signer{}) {
			return missing("key")
		}
	case *WalletLeave:
		if v.JoinEventID == "" {
			return missing("join_event_id")
		}
	case *WalletCreate:
		if v.WalletID == "" {
			return missing("wallet_id")
		}
	case *TxInit:
		switch {
		case v.WalletID == "":
			return missing("wallet_id")
		case v.PSBT == "":
			return missing("psbt")
		case v.RequiredSignatures <= 0:
			return malformedError("transaction init has invalid threshold", nil)
		}
	case *TxSign:
		switch {
		case v.MasterFingerprint == "":
			return missing("master_fingerprint")
		case v.PSBT == "":
			return missing("psbt")
		}
	case *TxBroadcast:
		if v.TxID == "" {
			return missing("tx_id")
		}
	case *SyncFile:
		if v.URL == "" {
			return missing("file_url")
		}
	case *ErrorNotice:
		if v.Code == "" {
			return missing("code")
		}
	}
	return nil
}

// deref converts the pointer used for unmarshaling into the value form
// exposed to consumers.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *WalletInit:
		return *v
	case *WalletJoin:
		return *v
	case *WalletLeave:
		return *v
	case *WalletCancel:
		return *v
	case *WalletReady:
		return *v
	case *WalletCreate:
		return *v
	case *WalletDelete:
		return *v
	case *TxInit:
		return *v
	case *TxSign:
		return *v
	case *TxReject:
		return *v
	case *TxCancel:
		return *v
	case *TxReady:
		return *v
	case *TxBroadcast:
		return *v
	case *TxReceive:
		return *v
	case *SyncFile:
		return *v
	case *ErrorNotice:
		return *v
	}
	return p
}
