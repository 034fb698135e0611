// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package roommgr coordinates shared multisig wallets over an ordered
// stream of room events.  The manager is the single writer of the local
// projections: every event, whether authored locally or received from a
// remote participant, flows through ConsumeEvent and folds into the
// roomwallet and roomtx state machines inside one database transaction.
//
// Projections are derived state.  The events bucket is the source of
// truth, and folding is idempotent and order tolerant, so replaying any
// permutation of the same events reaches the same projections.
package roommgr

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/chanwallet/chanevent"
	"github.com/btcsuite/chanwallet/filexfer"
	"github.com/btcsuite/chanwallet/netparams"
	"github.com/btcsuite/chanwallet/roomwallet"
	"github.com/lightninglabs/neutrino/cache"
	"github.com/lightninglabs/neutrino/cache/lru"
	"github.com/lightningnetwork/lnd/ticker"
	"golang.org/x/sync/semaphore"
)

const (
	// defaultEventCacheSize is the total content size, in bytes, of
	// recently touched events kept in memory in front of the database.
	defaultEventCacheSize = 4 * 1024 * 1024

	// defaultBackupInterval is how often the auto backup loop checks
	// whether the projections changed since the last backup.
	defaultBackupInterval = 5 * time.Minute
)

// SendEventFunc publishes an event to a room on the transport and
// returns the event id assigned by the transport.  When ignoreError is
// set the transport should deliver best effort and the caller will not
// act on a failure.
type SendEventFunc func(ctx context.Context, roomID, eventType string,
	content []byte, ignoreError bool) (string, error)

// WalletEngine is the boundary to the underlying wallet software.  The
// manager drives it for the handful of side effects that must happen
// exactly once per logical transition: materializing a finalized wallet,
// deleting one, drafting and broadcasting transactions, and moving
// backup payloads in and out.
type WalletEngine interface {
	// CreateWallet materializes a finalized draft and returns the
	// engine's wallet id and its output descriptor.
	CreateWallet(ctx context.Context,
		draft *roomwallet.Draft) (string, string, error)

	// DeleteWallet removes the wallet from the engine.
	DeleteWallet(ctx context.Context, walletID string) error

	// CreateTransaction drafts a spend from the wallet and returns the
	// unsigned transaction snapshot in base64.
	CreateTransaction(ctx context.Context, walletID string,
		outputs map[string]btcutil.Amount, memo string) (string, error)

	// Broadcast submits the fully signed transaction snapshot to the
	// network and returns the final transaction id.
	Broadcast(ctx context.Context, walletID, psbt string) (string, error)

	// ExportBackup returns an opaque snapshot of the engine state.
	ExportBackup(ctx context.Context) ([]byte, error)

	// ImportBackup restores engine state from a snapshot.  The progress
	// function may be invoked to report restoration progress.
	ImportBackup(ctx context.Context, data []byte,
		progress filexfer.ProgressFunc) error
}

// Config holds the collaborators and identity needed by the manager.
type Config struct {
	// Params identifies the chain every wallet in this manager must
	// live on.
	Params netparams.Params

	// Account is the local participant's account id on the transport.
	// Events authored by this account are recognized as our own.
	Account string

	// DeviceID identifies this device within the account, used to tag
	// backup files.
	DeviceID string

	// AccessToken is the transport credential.  Backup payloads are
	// encrypted with a key derived from it so that any device holding
	// the same credential can restore them.
	AccessToken string

	// Send publishes events to the transport.
	Send SendEventFunc

	// Upload and Download move opaque files through the transport's
	// media store.
	Upload   filexfer.UploadFunc
	Download filexfer.DownloadFunc

	// DB is the database all projections and events are stored in.
	DB walletdb.DB

	// Engine is the underlying wallet software.
	Engine WalletEngine

	// BackupInterval overrides how often the auto backup loop fires.
	// Zero selects the default.
	BackupInterval time.Duration

	// BackupTicker overrides the backup loop's ticker, used by tests to
	// force ticks.  When nil a default interval ticker is created.
	BackupTicker ticker.Ticker
}

// cachedEvent wraps an event for the LRU cache, sized by its content.
type cachedEvent struct {
	event *chanevent.Event
}

// Size returns the approximate memory footprint of the cached event.
func (c *cachedEvent) Size() (uint64, error) {
	return uint64(len(c.event.Content) + len(c.event.ID)), nil
}

// Manager folds room events into wallet and transaction projections and
// authors new events on behalf of the local participant.
type Manager struct {
	cfg    *Config
	bridge *filexfer.Bridge

	// keyMtx guards keySems, which serializes event application per
	// routing key (room id for wallet events, init event id for
	// transaction events).  Semaphores rather than mutexes so waiters
	// respect context cancellation.
	keyMtx  sync.Mutex
	keySems map[string]*semaphore.Weighted

	eventCache *lru.Cache[string, *cachedEvent]

	// backupMtx guards the backup registration and dirty state below.
	backupMtx     sync.Mutex
	syncRoomID    string
	autoBackupOn  bool
	backupPending bool

	backupTicker ticker.Ticker

	started sync.Once
	stopped sync.Once
	quit    chan struct{}
	wg      sync.WaitGroup
}

// New creates a manager, ensuring the database buckets exist.
func New(cfg *Config) (*Manager, error) {
	if cfg.Send == nil {
		return nil, managerError(
			ErrNoTransport, "no send function configured", nil,
		)
	}

	err := walletdb.Update(cfg.DB, func(tx walletdb.ReadWriteTx) error {
		return createBuckets(tx)
	})
	if err != nil {
		return nil, err
	}

	backupTicker := cfg.BackupTicker
	if backupTicker == nil {
		interval := cfg.BackupInterval
		if interval == 0 {
			interval = defaultBackupInterval
		}
		backupTicker = ticker.New(interval)
	}

	return &Manager{
		cfg:     cfg,
		bridge:  filexfer.NewBridge(cfg.Upload, cfg.Download),
		keySems: make(map[string]*semaphore.Weighted),
		eventCache: lru.NewCache[string, *cachedEvent](
			defaultEventCacheSize,
		),
		backupTicker: backupTicker,
		quit:         make(chan struct{}),
	}, nil
}

// Start launches the auto backup loop.  It is idempotent.
func (m *Manager) Start() {
	m.started.Do(func() {
		m.wg.Add(1)
		go m.backupLoop()
	})
}

// Stop halts the auto backup loop and waits for it to exit.
func (m *Manager) Stop() {
	m.stopped.Do(func() {
		close(m.quit)
		m.backupTicker.Stop()
		m.wg.Wait()
	})
}

// keySem returns the semaphore serializing work for the given key.
func (m *Manager) keySem(key string) *semaphore.Weighted {
	m.keyMtx.Lock()
	defer m.keyMtx.Unlock()

	sem, ok := m.keySems[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		m.keySems[key] = sem
	}
	return sem
}

// cacheEvent remembers a recently touched event.
func (m *Manager) cacheEvent(e *chanevent.Event) {
	// Eviction errors only mean the cache shed entries.
	_, _ = m.eventCache.Put(e.ID, &cachedEvent{event: e})
}

// lookupCachedEvent returns a cached event, or nil on a miss.
func (m *Manager) lookupCachedEvent(id string) *chanevent.Event {
	entry, err := m.eventCache.Get(id)
	if err == cache.ErrElementNotFound || entry == nil {
		return nil
	}
	return entry.event
}

// markDirty records that a projection changed since the last backup.
func (m *Manager) markDirty() {
	m.backupMtx.Lock()
	m.backupPending = true
	m.backupMtx.Unlock()
}

// publish encodes a payload, sends it as an event of the given type, and
// folds the resulting event into the local projections.  The returned
// event is the authored event with its transport assigned id.
func (m *Manager) publish(ctx context.Context, roomID, eventType string,
	payload chanevent.Payload, rel *chanevent.RelatesTo,
	ignoreError bool) (*chanevent.Event, error) {

	content, err := chanevent.EncodeContent(payload, rel)
	if err != nil {
		return nil, err
	}

	eventID, err := m.cfg.Send(ctx, roomID, eventType, content, ignoreError)
	if err != nil {
		return nil, err
	}

	event := &chanevent.Event{
		Type:    eventType,
		Content: content,
		ID:      eventID,
		RoomID:  roomID,
		Sender:  m.cfg.Account,
		Time:    time.Now().UnixMilli(),
	}
	if err := m.ConsumeEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}
