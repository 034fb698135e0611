// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roommgr

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/chanwallet/chanevent"
	"github.com/btcsuite/chanwallet/roomtx"
	"github.com/btcsuite/chanwallet/roomwallet"
	"github.com/lightningnetwork/lnd/tlv"
)

var (
	// eventsBucketName stores every consumed protocol event keyed by
	// event id, serialized with the TLV codec below.
	eventsBucketName = []byte("chanevents")

	// walletsBucketName stores the shared wallet projection per room,
	// keyed by room id and serialized as JSON.
	walletsBucketName = []byte("roomwallets")

	// txsBucketName stores the shared transaction projection keyed by
	// the init event id, serialized as JSON.
	txsBucketName = []byte("roomtxs")

	// txIndexBucketName maps every transaction event id back to the init
	// event id of the transaction it belongs to.
	txIndexBucketName = []byte("txindex")

	// pendingWalletBucketName holds per-room nested buckets of event ids
	// that arrived before the wallet init they depend on.
	pendingWalletBucketName = []byte("pendingwallet")

	// pendingTxBucketName holds per-transaction nested buckets of event
	// ids that arrived before the transaction init they relate to.
	pendingTxBucketName = []byte("pendingtx")
)

// Event record TLV type tags.  The event id is the bucket key and is not
// repeated inside the record.
const (
	typeEventType    tlv.Type = 1
	typeEventContent tlv.Type = 2
	typeEventRoom    tlv.Type = 3
	typeEventSender  tlv.Type = 4
	typeEventTime    tlv.Type = 5
)

// createBuckets ensures all top level buckets exist.
func createBuckets(tx walletdb.ReadWriteTx) error {
	buckets := [][]byte{
		eventsBucketName, walletsBucketName, txsBucketName,
		txIndexBucketName, pendingWalletBucketName,
		pendingTxBucketName,
	}
	for _, name := range buckets {
		if _, err := tx.CreateTopLevelBucket(name); err != nil {
			return managerError(
				ErrDatabase, fmt.Sprintf("failed to create "+
					"bucket %s", name), err,
			)
		}
	}
	return nil
}

// serializeEvent encodes an event as a TLV stream.
func serializeEvent(e *chanevent.Event) ([]byte, error) {
	var (
		eventType = []byte(e.Type)
		content   = []byte(e.Content)
		room      = []byte(e.RoomID)
		sender    = []byte(e.Sender)
		eventTime = uint64(e.Time)
	)
	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeEventType, &eventType),
		tlv.MakePrimitiveRecord(typeEventContent, &content),
		tlv.MakePrimitiveRecord(typeEventRoom, &room),
		tlv.MakePrimitiveRecord(typeEventSender, &sender),
		tlv.MakePrimitiveRecord(typeEventTime, &eventTime),
	)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	if err := stream.Encode(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// deserializeEvent decodes an event record stored under the given id.
func deserializeEvent(id string, data []byte) (*chanevent.Event, error) {
	var (
		eventType []byte
		content   []byte
		room      []byte
		sender    []byte
		eventTime uint64
	)
	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeEventType, &eventType),
		tlv.MakePrimitiveRecord(typeEventContent, &content),
		tlv.MakePrimitiveRecord(typeEventRoom, &room),
		tlv.MakePrimitiveRecord(typeEventSender, &sender),
		tlv.MakePrimitiveRecord(typeEventTime, &eventTime),
	)
	if err != nil {
		return nil, err
	}
	if err := stream.Decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return &chanevent.Event{
		Type:    string(eventType),
		Content: content,
		ID:      id,
		RoomID:  string(room),
		Sender:  string(sender),
		Time:    int64(eventTime),
	}, nil
}

// putEvent stores an event record, overwriting any previous copy.
func putEvent(ns walletdb.ReadWriteBucket, e *chanevent.Event) error {
	data, err := serializeEvent(e)
	if err != nil {
		return managerError(
			ErrDatabase, "failed to serialize event", err,
		)
	}
	err = ns.Put([]byte(e.ID), data)
	if err != nil {
		return managerError(ErrDatabase, "failed to store event", err)
	}
	return nil
}

// fetchEvent loads an event record by id.
func fetchEvent(ns walletdb.ReadBucket, id string) (*chanevent.Event, error) {
	data := ns.Get([]byte(id))
	if data == nil {
		return nil, managerError(
			ErrEventNotFound,
			fmt.Sprintf("event %s not found", id), nil,
		)
	}
	e, err := deserializeEvent(id, data)
	if err != nil {
		return nil, managerError(
			ErrDatabase, "failed to deserialize event", err,
		)
	}
	return e, nil
}

// putRoomWallet stores a wallet projection keyed by room id.
func putRoomWallet(ns walletdb.ReadWriteBucket,
	w *roomwallet.RoomWallet) error {

	data, err := w.ToJSON()
	if err != nil {
		return managerError(
			ErrDatabase, "failed to serialize wallet", err,
		)
	}
	err = ns.Put([]byte(w.RoomID), data)
	if err != nil {
		return managerError(ErrDatabase, "failed to store wallet", err)
	}
	return nil
}

// fetchRoomWallet loads the wallet projection for a room, or nil when
// the room has no wallet yet.
func fetchRoomWallet(ns walletdb.ReadBucket,
	roomID string) (*roomwallet.RoomWallet, error) {

	data := ns.Get([]byte(roomID))
	if data == nil {
		return nil, nil
	}
	w, err := roomwallet.FromJSON(data)
	if err != nil {
		return nil, managerError(
			ErrDatabase, "failed to deserialize wallet", err,
		)
	}
	return w, nil
}

// putRoomTx stores a transaction projection keyed by init event id.
func putRoomTx(ns walletdb.ReadWriteBucket, t *roomtx.RoomTransaction) error {
	data, err := t.ToJSON()
	if err != nil {
		return managerError(
			ErrDatabase, "failed to serialize transaction", err,
		)
	}
	err = ns.Put([]byte(t.InitEventID), data)
	if err != nil {
		return managerError(
			ErrDatabase, "failed to store transaction", err,
		)
	}
	return nil
}

// fetchRoomTx loads the transaction projection for an init event id, or
// nil when none exists yet.
func fetchRoomTx(ns walletdb.ReadBucket,
	initEventID string) (*roomtx.RoomTransaction, error) {

	data := ns.Get([]byte(initEventID))
	if data == nil {
		return nil, nil
	}
	t, err := roomtx.FromJSON(data)
	if err != nil {
		return nil, managerError(
			ErrDatabase, "failed to deserialize transaction", err,
		)
	}
	return t, nil
}

// putTxIndex records that eventID belongs to the transaction rooted at
// initEventID.
func putTxIndex(ns walletdb.ReadWriteBucket, eventID,
	initEventID string) error {

	err := ns.Put([]byte(eventID), []byte(initEventID))
	if err != nil {
		return managerError(
			ErrDatabase, "failed to store tx index", err,
		)
	}
	return nil
}

// addPending appends an event id to the nested pending bucket under the
// given key, preserving insertion order with a monotonic sequence key.
func addPending(ns walletdb.ReadWriteBucket, key, eventID string) error {
	sub, err := ns.CreateBucketIfNotExists([]byte(key))
	if err != nil {
		return managerError(
			ErrDatabase, "failed to create pending bucket", err,
		)
	}
	seq, err := sub.NextSequence()
	if err != nil {
		return managerError(
			ErrDatabase, "failed to allocate pending seq", err,
		)
	}
	var seqKey [8]byte
	binary.BigEndian.PutUint64(seqKey[:], seq)
	err = sub.Put(seqKey[:], []byte(eventID))
	if err != nil {
		return managerError(
			ErrDatabase, "failed to store pending event", err,
		)
	}
	return nil
}

// drainPending returns the buffered event ids under the given key in
// insertion order and removes the nested bucket.
func drainPending(ns walletdb.ReadWriteBucket, key string) ([]string, error) {
	sub := ns.NestedReadWriteBucket([]byte(key))
	if sub == nil {
		return nil, nil
	}
	var ids []string
	err := sub.ForEach(func(_, v []byte) error {
		ids = append(ids, string(v))
		return nil
	})
	if err != nil {
		return nil, managerError(
			ErrDatabase, "failed to read pending events", err,
		)
	}
	err = ns.DeleteNestedBucket([]byte(key))
	if err != nil {
		return nil, managerError(
			ErrDatabase, "failed to clear pending events", err,
		)
	}
	return ids, nil
}
