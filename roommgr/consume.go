// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roommgr

import (
	"context"
	"errors"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/chanwallet/chanevent"
	"github.com/btcsuite/chanwallet/filexfer"
	"github.com/btcsuite/chanwallet/roomtx"
	"github.com/btcsuite/chanwallet/roomwallet"
)

// effect is a side effect computed while folding an event.  Effects run
// after the database transaction commits and after the routing key lock
// is released, so they may publish further events or call into the
// wallet engine without holding any projection lock.
type effect func(ctx context.Context)

// ConsumeEvent folds a single event into the projections.  It is the
// only write path: locally authored events pass through here after being
// published, and remote events are fed in by the transport's event loop.
// Replaying an already consumed event is a no-op, and events that arrive
// before the init they depend on are buffered and folded when the init
// shows up.
func (m *Manager) ConsumeEvent(ctx context.Context,
	event *chanevent.Event) error {

	effects, err := m.consume(ctx, event)
	if err != nil {
		return err
	}
	for _, eff := range effects {
		eff(ctx)
	}
	return nil
}

// ConsumeSyncEvent folds a historical event during initial sync.  Unlike
// ConsumeEvent, malformed or conflicting events are logged and skipped
// so that one bad event cannot wedge the replay, and the progress
// callback may halt the sync between events.  A halted sync leaves the
// projections consistent; feeding the remaining events later converges
// to the same state.
func (m *Manager) ConsumeSyncEvent(ctx context.Context,
	event *chanevent.Event,
	progress filexfer.ProgressFunc) (stopped bool, err error) {

	if progress != nil && progress(0) {
		return true, nil
	}

	err = m.ConsumeEvent(ctx, event)
	switch {
	case err == nil:
		if progress != nil {
			progress(100)
		}
		return false, nil

	// Context errors abort the sync; the caller resumes later.
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false, err

	default:
		log.Warnf("Skipping sync event %s (%s): %v", event.ID,
			event.Type, err)
		return false, nil
	}
}

// consume applies the event inside one database transaction, serialized
// per routing key, and returns the deferred side effects.
func (m *Manager) consume(ctx context.Context,
	event *chanevent.Event) ([]effect, error) {

	payload, rel, err := chanevent.DecodeContent(event.Type, event.Content)
	if err != nil {
		return nil, err
	}
	if u, ok := payload.(chanevent.Unknown); ok {
		log.Tracef("Ignoring unknown event %s type=%s msgtype=%s",
			event.ID, u.EventType, u.MessageType)
		return nil, nil
	}

	sem := m.keySem(routingKey(event, payload, rel))
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer sem.Release(1)

	var effects []effect
	err = walletdb.Update(m.cfg.DB, func(tx walletdb.ReadWriteTx) error {
		effects = effects[:0]
		return m.applyEvent(tx, event, payload, rel, &effects)
	})
	if err != nil {
		return nil, err
	}

	m.cacheEvent(event)
	return effects, nil
}

// routingKey returns the serialization key for an event.  Wallet events
// serialize per room, transaction events per transaction.
func routingKey(event *chanevent.Event, payload chanevent.Payload,
	rel *chanevent.RelatesTo) string {

	switch payload.(type) {
	case chanevent.WalletInit, chanevent.WalletJoin, chanevent.WalletLeave,
		chanevent.WalletCancel, chanevent.WalletReady,
		chanevent.WalletCreate, chanevent.WalletDelete:

		return "wallet/" + event.RoomID

	case chanevent.TxInit:
		return "tx/" + event.ID

	case chanevent.TxSign, chanevent.TxReject, chanevent.TxCancel,
		chanevent.TxReady, chanevent.TxBroadcast:

		return "tx/" + rel.InitEventID

	default:
		return "room/" + event.RoomID
	}
}

// applyEvent stores the event record and dispatches to the wallet or
// transaction fold.
func (m *Manager) applyEvent(tx walletdb.ReadWriteTx,
	event *chanevent.Event, payload chanevent.Payload,
	rel *chanevent.RelatesTo, effects *[]effect) error {

	eventNS := tx.ReadWriteBucket(eventsBucketName)
	if err := putEvent(eventNS, event); err != nil {
		return err
	}

	switch p := payload.(type) {
	case chanevent.WalletInit, chanevent.WalletJoin, chanevent.WalletLeave,
		chanevent.WalletCancel, chanevent.WalletReady,
		chanevent.WalletCreate, chanevent.WalletDelete:

		return m.applyWalletEvent(tx, event, payload, effects)

	case chanevent.TxInit, chanevent.TxSign, chanevent.TxReject,
		chanevent.TxCancel, chanevent.TxReady, chanevent.TxBroadcast:

		return m.applyTxEvent(tx, event, payload, rel, effects)

	case chanevent.TxReceive:
		// Informational; nothing to fold, but index the event so the
		// transaction id remains resolvable.
		log.Debugf("Received incoming tx notice %s in room %s",
			p.TxID, event.RoomID)
		return nil

	case chanevent.SyncFile:
		// Backup pointers are folded on demand by the restore path.
		log.Debugf("Recorded sync file event %s in room %s",
			event.ID, event.RoomID)
		return nil

	case chanevent.ErrorNotice:
		log.Warnf("Participant %s reported error in room %s: %s (%s)",
			event.Sender, event.RoomID, p.Message, p.Code)
		return nil

	default:
		return nil
	}
}

// applyWalletEvent folds a wallet event into the room's wallet
// projection.  Events arriving before the init are buffered; the init
// replays them in arrival order inside the same transaction.
func (m *Manager) applyWalletEvent(tx walletdb.ReadWriteTx,
	event *chanevent.Event, payload chanevent.Payload,
	effects *[]effect) error {

	walletNS := tx.ReadWriteBucket(walletsBucketName)
	pendingNS := tx.ReadWriteBucket(pendingWalletBucketName)

	w, err := fetchRoomWallet(walletNS, event.RoomID)
	if err != nil {
		return err
	}

	init, isInit := payload.(chanevent.WalletInit)
	switch {
	case isInit && w != nil:
		// Replay of the known init is a no-op; a second, different
		// proposal in the same room is rejected.
		if w.InitEventID == event.ID {
			return nil
		}
		return roomwallet.Error{
			ErrorCode: roomwallet.ErrWalletExists,
			Description: "room " + event.RoomID +
				" already has a shared wallet",
		}

	case isInit:
		w, err = roomwallet.New(event.RoomID, event.ID, init, event.Time)
		if err != nil {
			return err
		}

		// Fold any events that raced ahead of the init.
		buffered, err := drainPending(pendingNS, event.RoomID)
		if err != nil {
			return err
		}
		eventNS := tx.ReadWriteBucket(eventsBucketName)
		for _, id := range buffered {
			buf, err := fetchEvent(eventNS, id)
			if err != nil {
				log.Warnf("Dropping buffered wallet event "+
					"%s: %v", id, err)
				continue
			}
			p, _, err := chanevent.DecodeContent(
				buf.Type, buf.Content,
			)
			if err != nil {
				log.Warnf("Dropping buffered wallet event "+
					"%s: %v", id, err)
				continue
			}
			err = m.applyWalletTransition(w, buf, p, effects)
			if err != nil {
				log.Warnf("Buffered wallet event %s did not "+
					"apply: %v", id, err)
			}
		}

	case w == nil:
		// No init yet; buffer for replay.
		log.Debugf("Buffering wallet event %s until init arrives in "+
			"room %s", event.ID, event.RoomID)
		return addPending(pendingNS, event.RoomID, event.ID)

	default:
		err = m.applyWalletTransition(w, event, payload, effects)
		if err != nil {
			return err
		}
	}

	if err := putRoomWallet(walletNS, w); err != nil {
		return err
	}
	m.markDirty()
	return nil
}

// applyWalletTransition mutates the wallet projection for one non-init
// event and queues the side effects owed to the transition.
func (m *Manager) applyWalletTransition(w *roomwallet.RoomWallet,
	event *chanevent.Event, payload chanevent.Payload,
	effects *[]effect) error {

	switch p := payload.(type) {
	case chanevent.WalletJoin:
		if err := w.ApplyJoin(event.ID, p.Key, event.Time); err != nil {
			return err
		}
		m.queueWalletReady(w, event, effects)
		return nil

	case chanevent.WalletLeave:
		return w.ApplyLeave(event.ID, p.JoinEventID, p.Reason, event.Time)

	case chanevent.WalletCancel:
		return w.ApplyCancel(event.ID, p.Reason)

	case chanevent.WalletReady:
		return w.ApplyReady(event.ID)

	case chanevent.WalletCreate:
		alreadyFinal := w.FinalizeEventID != ""
		if err := w.ApplyFinalize(event.ID, p.WalletID); err != nil {
			return err
		}

		// The author materialized the wallet before publishing; every
		// other participant materializes it on first observation.
		if !alreadyFinal && event.Sender != m.cfg.Account {
			draft, err := w.Draft()
			if err != nil {
				return err
			}
			walletID := p.WalletID
			*effects = append(*effects, func(ctx context.Context) {
				id, _, err := m.cfg.Engine.CreateWallet(
					ctx, draft,
				)
				if err != nil {
					log.Errorf("Failed to materialize "+
						"wallet %s: %v", walletID, err)
					return
				}
				if id != walletID {
					log.Warnf("Engine materialized "+
						"wallet %s but the room "+
						"finalized %s", id, walletID)
				}
			})
		}
		return nil

	case chanevent.WalletDelete:
		alreadyDeleted := w.DeleteEventID != ""
		if err := w.ApplyDelete(event.ID); err != nil {
			return err
		}
		if !alreadyDeleted && event.Sender != m.cfg.Account &&
			w.WalletID != "" {

			walletID := w.WalletID
			*effects = append(*effects, func(ctx context.Context) {
				err := m.cfg.Engine.DeleteWallet(ctx, walletID)
				if err != nil {
					log.Errorf("Failed to delete wallet "+
						"%s: %v", walletID, err)
				}
			})
		}
		return nil

	default:
		return nil
	}
}

// queueWalletReady schedules a best effort ready notice when our own
// join completed the signer set.
func (m *Manager) queueWalletReady(w *roomwallet.RoomWallet,
	event *chanevent.Event, effects *[]effect) {

	if event.Sender != m.cfg.Account || w.ReadyEventID != "" {
		return
	}
	draft, err := w.Draft()
	if err != nil {
		return
	}
	signers, err := w.EffectiveSigners()
	if err != nil || len(signers) != draft.N {
		return
	}

	roomID := w.RoomID
	*effects = append(*effects, func(ctx context.Context) {
		_, err := m.publish(
			ctx, roomID, chanevent.TypeWallet,
			chanevent.WalletReady{}, nil, true,
		)
		if err != nil {
			log.Debugf("Best effort wallet ready notice for room "+
				"%s failed: %v", roomID, err)
		}
	})
}

// applyTxEvent folds a transaction event into its projection, keyed by
// the init event id.  Follow-ups arriving before the init are buffered.
func (m *Manager) applyTxEvent(tx walletdb.ReadWriteTx,
	event *chanevent.Event, payload chanevent.Payload,
	rel *chanevent.RelatesTo, effects *[]effect) error {

	txNS := tx.ReadWriteBucket(txsBucketName)
	indexNS := tx.ReadWriteBucket(txIndexBucketName)
	pendingNS := tx.ReadWriteBucket(pendingTxBucketName)

	init, isInit := payload.(chanevent.TxInit)
	initEventID := event.ID
	if !isInit {
		initEventID = rel.InitEventID
	}
	if err := putTxIndex(indexNS, event.ID, initEventID); err != nil {
		return err
	}

	t, err := fetchRoomTx(txNS, initEventID)
	if err != nil {
		return err
	}

	switch {
	case isInit && t != nil:
		// Replay; the projection is keyed by this very event.
		return nil

	case isInit:
		t, err = roomtx.New(event.RoomID, event.ID, init, event.Time)
		if err != nil {
			return err
		}

		buffered, err := drainPending(pendingNS, initEventID)
		if err != nil {
			return err
		}
		eventNS := tx.ReadWriteBucket(eventsBucketName)
		for _, id := range buffered {
			buf, err := fetchEvent(eventNS, id)
			if err != nil {
				log.Warnf("Dropping buffered tx event %s: %v",
					id, err)
				continue
			}
			p, _, err := chanevent.DecodeContent(
				buf.Type, buf.Content,
			)
			if err != nil {
				log.Warnf("Dropping buffered tx event %s: %v",
					id, err)
				continue
			}
			err = m.applyTxTransition(t, buf, p, effects)
			if err != nil {
				log.Warnf("Buffered tx event %s did not "+
					"apply: %v", id, err)
			}
		}

	case t == nil:
		log.Debugf("Buffering tx event %s until init %s arrives",
			event.ID, initEventID)
		return addPending(pendingNS, initEventID, event.ID)

	default:
		err = m.applyTxTransition(t, event, payload, effects)
		if err != nil {
			return err
		}
	}

	if err := putRoomTx(txNS, t); err != nil {
		return err
	}
	m.markDirty()
	return nil
}

// applyTxTransition mutates the transaction projection for one non-init
// event and queues any owed side effects.
func (m *Manager) applyTxTransition(t *roomtx.RoomTransaction,
	event *chanevent.Event, payload chanevent.Payload,
	effects *[]effect) error {

	switch p := payload.(type) {
	case chanevent.TxSign:
		err := t.ApplySign(
			event.ID, p.MasterFingerprint, p.PSBT, event.Time,
		)
		if err != nil {
			return err
		}
		m.queueTxReady(t, event, effects)
		return nil

	case chanevent.TxReject:
		return t.ApplyReject(event.ID, event.Sender, event.Time)

	case chanevent.TxCancel:
		return t.ApplyCancel(event.ID)

	case chanevent.TxReady:
		return t.ApplyReady(event.ID)

	case chanevent.TxBroadcast:
		// The broadcasting participant already submitted the raw
		// transaction; observers only record the outcome.
		return t.ApplyBroadcast(event.ID, p.TxID)

	default:
		return nil
	}
}

// queueTxReady schedules a best effort ready notice when our own
// signature met the threshold.
func (m *Manager) queueTxReady(t *roomtx.RoomTransaction,
	event *chanevent.Event, effects *[]effect) {

	if event.Sender != m.cfg.Account || t.ReadyEventID != "" || !t.Ready() {
		return
	}

	roomID, initEventID := t.RoomID, t.InitEventID
	*effects = append(*effects, func(ctx context.Context) {
		_, err := m.publish(
			ctx, roomID, chanevent.TypeTransaction,
			chanevent.TxReady{},
			&chanevent.RelatesTo{InitEventID: initEventID}, true,
		)
		if err != nil {
			log.Debugf("Best effort tx ready notice for %s "+
				"failed: %v", initEventID, err)
		}
	})
}
