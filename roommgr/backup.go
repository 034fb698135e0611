// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roommgr

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/chanwallet/chanevent"
	"github.com/btcsuite/chanwallet/filexfer"
	"github.com/btcsuite/chanwallet/roomtx"
	"github.com/btcsuite/chanwallet/roomwallet"
	"github.com/btcsuite/chanwallet/snacl"
)

// backupVersion is stamped into every backup payload.
const backupVersion = 1

// backupMimeType identifies encrypted backup blobs in the media store.
const backupMimeType = "application/octet-stream"

// backupPayload is the clear form of a backup blob: every projection
// plus the engine's opaque snapshot.
type backupPayload struct {
	Version      int                       `json:"version"`
	DeviceID     string                    `json:"device_id,omitempty"`
	Wallets      []*roomwallet.RoomWallet  `json:"wallets,omitempty"`
	Transactions []*roomtx.RoomTransaction `json:"transactions,omitempty"`
	EngineData   []byte                    `json:"engine_data,omitempty"`
}

// RegisterAutoBackup selects the sync room that backup files are
// published to and arms the periodic backup loop.  It must be called
// before Backup.
func (m *Manager) RegisterAutoBackup(syncRoomID string) {
	m.backupMtx.Lock()
	m.syncRoomID = syncRoomID
	m.backupMtx.Unlock()
}

// EnableAutoBackup turns the periodic backup loop on or off.  A disabled
// loop keeps accumulating dirty state so the next enabled tick uploads
// everything missed.
func (m *Manager) EnableAutoBackup(enable bool) {
	m.backupMtx.Lock()
	m.autoBackupOn = enable
	m.backupMtx.Unlock()

	if enable {
		m.backupTicker.Resume()
	} else {
		m.backupTicker.Pause()
	}
}

// backupLoop uploads a fresh backup whenever the projections changed
// since the last one.  Failures are logged and retried on the next tick.
func (m *Manager) backupLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.backupTicker.Ticks():
			m.backupMtx.Lock()
			due := m.autoBackupOn && m.backupPending &&
				m.syncRoomID != ""
			m.backupMtx.Unlock()
			if !due {
				continue
			}

			ctx, cancel := context.WithTimeout(
				context.Background(), time.Minute,
			)
			_, err := m.Backup(ctx)
			cancel()
			if err != nil {
				log.Warnf("Periodic backup failed: %v", err)
			}

		case <-m.quit:
			return
		}
	}
}

// Backup snapshots every projection and the engine state, encrypts the
// payload with a key derived from the transport credential, uploads it,
// and publishes a sync file event pointing at it.
func (m *Manager) Backup(ctx context.Context) (*chanevent.Event, error) {
	m.backupMtx.Lock()
	syncRoomID := m.syncRoomID
	m.backupMtx.Unlock()
	if syncRoomID == "" {
		return nil, managerError(
			ErrNotRegistered,
			"no sync room registered for backups", nil,
		)
	}

	payload, err := m.collectBackup(ctx)
	if err != nil {
		return nil, err
	}
	plain, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	blob, err := sealBackup(m.cfg.AccessToken, plain)
	if err != nil {
		return nil, err
	}

	fileName := fmt.Sprintf(
		"chanwallet-%s-%d.bak", m.cfg.DeviceID, time.Now().Unix(),
	)
	uri, err := m.bridge.Upload(ctx, fileName, backupMimeType, "", blob)
	if err != nil {
		return nil, err
	}

	event, err := m.publish(
		ctx, syncRoomID, chanevent.TypeSync,
		chanevent.SyncFile{
			FileName: fileName,
			MimeType: backupMimeType,
			URL:      uri,
		}, nil, false,
	)
	if err != nil {
		return nil, err
	}

	m.backupMtx.Lock()
	m.backupPending = false
	m.backupMtx.Unlock()

	log.Infof("Uploaded backup %s (%d bytes)", fileName, len(blob))
	return event, nil
}

// collectBackup assembles the clear backup payload from the database and
// the engine.
func (m *Manager) collectBackup(ctx context.Context) (*backupPayload, error) {
	payload := &backupPayload{
		Version:  backupVersion,
		DeviceID: m.cfg.DeviceID,
	}

	err := walletdb.View(m.cfg.DB, func(tx walletdb.ReadTx) error {
		walletNS := tx.ReadBucket(walletsBucketName)
		err := walletNS.ForEach(func(_, v []byte) error {
			w, err := roomwallet.FromJSON(v)
			if err != nil {
				return err
			}
			payload.Wallets = append(payload.Wallets, w)
			return nil
		})
		if err != nil {
			return err
		}

		txNS := tx.ReadBucket(txsBucketName)
		return txNS.ForEach(func(_, v []byte) error {
			t, err := roomtx.FromJSON(v)
			if err != nil {
				return err
			}
			payload.Transactions = append(payload.Transactions, t)
			return nil
		})
	})
	if err != nil {
		return nil, managerError(
			ErrDatabase, "failed to collect backup state", err,
		)
	}

	engineData, err := m.cfg.Engine.ExportBackup(ctx)
	if err != nil {
		return nil, err
	}
	payload.EngineData = engineData
	return payload, nil
}

// RestoreFromBackup decrypts a backup blob and merges its projections
// into the local state, then hands the engine snapshot to the engine.
// Merging rather than overwriting keeps local progress that the backup
// predates.
func (m *Manager) RestoreFromBackup(ctx context.Context, blob []byte,
	progress filexfer.ProgressFunc) error {

	plain, err := openBackup(m.cfg.AccessToken, blob)
	if err != nil {
		return err
	}
	var payload backupPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return managerError(
			ErrDatabase, "malformed backup payload", err,
		)
	}

	err = walletdb.Update(m.cfg.DB, func(tx walletdb.ReadWriteTx) error {
		walletNS := tx.ReadWriteBucket(walletsBucketName)
		for _, w := range payload.Wallets {
			local, err := fetchRoomWallet(walletNS, w.RoomID)
			if err != nil {
				return err
			}
			if local != nil {
				if err := local.Merge(w); err != nil {
					log.Warnf("Backup wallet for room "+
						"%s did not merge: %v",
						local.RoomID, err)
					continue
				}
				w = local
			}
			if err := putRoomWallet(walletNS, w); err != nil {
				return err
			}
		}

		txNS := tx.ReadWriteBucket(txsBucketName)
		for _, t := range payload.Transactions {
			local, err := fetchRoomTx(txNS, t.InitEventID)
			if err != nil {
				return err
			}
			if local != nil {
				if err := local.Merge(t); err != nil {
					log.Warnf("Backup transaction %s "+
						"did not merge: %v",
						local.InitEventID, err)
					continue
				}
				t = local
			}
			if err := putRoomTx(txNS, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(payload.EngineData) != 0 {
		err = m.cfg.Engine.ImportBackup(
			ctx, payload.EngineData, progress,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// UploadFileCallback publishes the sync file event for a blob the
// application uploaded out of band.
func (m *Manager) UploadFileCallback(ctx context.Context, fileName,
	mimeType, jsonInfo, uri string) (*chanevent.Event, error) {

	m.backupMtx.Lock()
	syncRoomID := m.syncRoomID
	m.backupMtx.Unlock()
	if syncRoomID == "" {
		return nil, managerError(
			ErrNotRegistered,
			"no sync room registered for backups", nil,
		)
	}

	return m.publish(
		ctx, syncRoomID, chanevent.TypeSync,
		chanevent.SyncFile{
			FileName: fileName,
			MimeType: mimeType,
			JSONInfo: jsonInfo,
			URL:      uri,
		}, nil, false,
	)
}

// DownloadFileCallback restores state from a backup blob the application
// already downloaded, typically in response to a sync file event.
func (m *Manager) DownloadFileCallback(ctx context.Context, blob []byte,
	progress filexfer.ProgressFunc) error {

	return m.RestoreFromBackup(ctx, blob, progress)
}

// WriteFileCallback downloads the blob referenced by a sync file event
// and streams it to a local path, reporting progress.
func (m *Manager) WriteFileCallback(ctx context.Context,
	file chanevent.SyncFile, path string,
	progress filexfer.ProgressFunc) (stopped bool, err error) {

	data, err := m.bridge.Download(
		ctx, file.FileName, file.MimeType, file.JSONInfo, file.URL,
	)
	if err != nil {
		return false, err
	}
	return filexfer.WriteFile(data, path, progress)
}

// sealBackup encrypts a clear backup payload under a key derived from
// the transport credential.  The key derivation parameters travel in
// clear ahead of the ciphertext so any device holding the credential can
// open it.
func sealBackup(credential string, plain []byte) ([]byte, error) {
	password := []byte(credential)
	key, err := snacl.NewSecretKey(
		&password, snacl.DefaultN, snacl.DefaultR, snacl.DefaultP,
	)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	sealed, err := key.Encrypt(plain)
	if err != nil {
		return nil, err
	}
	return append(key.Marshal(), sealed...), nil
}

// marshaledKeyLen is the clear prefix length of a sealed backup, fixed
// by the snacl parameter encoding.
const marshaledKeyLen = snacl.KeySize + sha256.Size + 24

// openBackup decrypts a sealed backup blob.
func openBackup(credential string, blob []byte) ([]byte, error) {
	if len(blob) <= marshaledKeyLen {
		return nil, snacl.ErrMalformed
	}

	var key snacl.SecretKey
	if err := key.Unmarshal(blob[:marshaledKeyLen]); err != nil {
		return nil, err
	}
	password := []byte(credential)
	if err := key.DeriveKey(&password); err != nil {
		return nil, err
	}
	defer key.Zero()

	return key.Decrypt(blob[marshaledKeyLen:])
}
