// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roommgr

import (
	"fmt"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/chanwallet/chanevent"
	"github.com/btcsuite/chanwallet/roomtx"
	"github.com/btcsuite/chanwallet/roomwallet"
)

// GetAllRoomWallets returns every wallet projection known to the
// manager, including canceled and deleted ones.
func (m *Manager) GetAllRoomWallets() ([]*roomwallet.RoomWallet, error) {
	var wallets []*roomwallet.RoomWallet
	err := walletdb.View(m.cfg.DB, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(walletsBucketName)
		return ns.ForEach(func(_, v []byte) error {
			w, err := roomwallet.FromJSON(v)
			if err != nil {
				return managerError(
					ErrDatabase,
					"failed to deserialize wallet", err,
				)
			}
			wallets = append(wallets, w)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

// HasRoomWallet reports whether the room has a wallet projection.
func (m *Manager) HasRoomWallet(roomID string) (bool, error) {
	var has bool
	err := walletdb.View(m.cfg.DB, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(walletsBucketName)
		has = ns.Get([]byte(roomID)) != nil
		return nil
	})
	return has, err
}

// GetRoomWallet returns the wallet projection for a room.
func (m *Manager) GetRoomWallet(roomID string) (*roomwallet.RoomWallet, error) {
	var w *roomwallet.RoomWallet
	err := walletdb.View(m.cfg.DB, func(tx walletdb.ReadTx) error {
		var err error
		w, err = fetchRoomWallet(tx.ReadBucket(walletsBucketName), roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, managerError(
			ErrWalletNotFound,
			fmt.Sprintf("room %s has no shared wallet", roomID),
			nil,
		)
	}
	return w, nil
}

// GetRoomTransaction returns the transaction projection rooted at the
// given init event.
func (m *Manager) GetRoomTransaction(
	initEventID string) (*roomtx.RoomTransaction, error) {

	var t *roomtx.RoomTransaction
	err := walletdb.View(m.cfg.DB, func(tx walletdb.ReadTx) error {
		var err error
		t, err = fetchRoomTx(tx.ReadBucket(txsBucketName), initEventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, managerError(
			ErrTransactionNotFound,
			fmt.Sprintf("no transaction rooted at event %s",
				initEventID), nil,
		)
	}
	return t, nil
}

// GetPendingTransactions returns the room's transactions that are still
// collecting signatures, in no particular order.
func (m *Manager) GetPendingTransactions(
	roomID string) ([]*roomtx.RoomTransaction, error) {

	var pending []*roomtx.RoomTransaction
	err := walletdb.View(m.cfg.DB, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(txsBucketName)
		return ns.ForEach(func(_, v []byte) error {
			t, err := roomtx.FromJSON(v)
			if err != nil {
				return managerError(
					ErrDatabase,
					"failed to deserialize transaction",
					err,
				)
			}
			if t.RoomID == roomID && t.Pending() {
				pending = append(pending, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// GetEvent returns a consumed event by id, consulting the in-memory
// cache before the database.
func (m *Manager) GetEvent(eventID string) (*chanevent.Event, error) {
	if e := m.lookupCachedEvent(eventID); e != nil {
		return e, nil
	}

	var e *chanevent.Event
	err := walletdb.View(m.cfg.DB, func(tx walletdb.ReadTx) error {
		var err error
		e, err = fetchEvent(tx.ReadBucket(eventsBucketName), eventID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.cacheEvent(e)
	return e, nil
}

// GetTransactionID resolves any transaction event id to the final
// transaction id of the transaction it belongs to.
func (m *Manager) GetTransactionID(eventID string) (string, error) {
	var txID string
	err := walletdb.View(m.cfg.DB, func(tx walletdb.ReadTx) error {
		indexNS := tx.ReadBucket(txIndexBucketName)
		initEventID := indexNS.Get([]byte(eventID))
		if initEventID == nil {
			// Incoming payment notices carry their tx id inline
			// and are not part of any signing exchange.
			e, err := fetchEvent(
				tx.ReadBucket(eventsBucketName), eventID,
			)
			if err != nil {
				return err
			}
			p, _, err := chanevent.DecodeContent(e.Type, e.Content)
			if err != nil {
				return err
			}
			if recv, ok := p.(chanevent.TxReceive); ok {
				txID = recv.TxID
				return nil
			}
			return managerError(
				ErrEventNotFound,
				fmt.Sprintf("event %s is not a transaction "+
					"event", eventID), nil,
			)
		}

		t, err := fetchRoomTx(
			tx.ReadBucket(txsBucketName), string(initEventID),
		)
		if err != nil {
			return err
		}
		if t == nil {
			return managerError(
				ErrTransactionNotFound,
				fmt.Sprintf("no transaction rooted at event "+
					"%s", initEventID), nil,
			)
		}
		txID = t.TxID
		return nil
	})
	if err != nil {
		return "", err
	}
	return txID, nil
}
