// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// chanwallet-replay folds an exported room event log into fresh wallet
// and transaction projections and prints the outcome.  It is an offline
// audit tool: nothing is published and the wallet engine is a dry run
// stand-in, so replaying the same export any number of times, in any
// order, converges on the same state.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/chanwallet/chanevent"
	"github.com/btcsuite/chanwallet/filexfer"
	"github.com/btcsuite/chanwallet/roommgr"
	"github.com/btcsuite/chanwallet/roomwallet"
	"github.com/davecgh/go-spew/spew"
	"golang.org/x/term"
)

const (
	// dbTimeout is how long to wait for the database file lock.
	dbTimeout = 10 * time.Second

	// maxEventLine bounds a single line of the event export.  Signing
	// events carry whole transaction snapshots, so lines can be large.
	maxEventLine = 4 * 1024 * 1024
)

// exportedEvent is one line of the JSON lines event export.
type exportedEvent struct {
	Type    string          `json:"type"`
	EventID string          `json:"event_id"`
	RoomID  string          `json:"room_id"`
	Sender  string          `json:"sender"`
	Time    int64           `json:"origin_server_ts"`
	Content json.RawMessage `json:"content"`
}

// dryRunEngine satisfies the wallet engine boundary without touching any
// real wallet.  Materializations are logged and answered with synthetic
// ids so the replayed projections still record them.
type dryRunEngine struct{}

func (*dryRunEngine) CreateWallet(_ context.Context,
	draft *roomwallet.Draft) (string, string, error) {

	log.Infof("Dry run: would create %d-of-%d wallet %q", draft.M,
		draft.N, draft.Name)
	return "dryrun-" + draft.Name, "", nil
}

func (*dryRunEngine) DeleteWallet(_ context.Context, walletID string) error {
	log.Infof("Dry run: would delete wallet %s", walletID)
	return nil
}

func (*dryRunEngine) CreateTransaction(_ context.Context, _ string,
	_ map[string]btcutil.Amount, _ string) (string, error) {

	return "", errors.New("replay engine cannot draft transactions")
}

func (*dryRunEngine) Broadcast(_ context.Context, _, _ string) (string,
	error) {

	return "", errors.New("replay engine cannot broadcast")
}

func (*dryRunEngine) ExportBackup(_ context.Context) ([]byte, error) {
	return nil, nil
}

func (*dryRunEngine) ImportBackup(_ context.Context, data []byte,
	_ filexfer.ProgressFunc) error {

	log.Infof("Dry run: ignoring %d bytes of engine backup state",
		len(data))
	return nil
}

// offlineSend refuses to publish.  Replay is strictly read-only; best
// effort notices the fold would author are dropped with a warning by the
// manager.
func offlineSend(_ context.Context, roomID, eventType string, _ []byte,
	_ bool) (string, error) {

	return "", fmt.Errorf("offline replay cannot publish %s to %s",
		eventType, roomID)
}

// promptCredential reads the backup credential without echoing it.
func promptCredential() (string, error) {
	fmt.Print("Enter the backup credential: ")
	token, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", err
	}
	token = bytes.TrimSpace(token)
	if len(token) == 0 {
		return "", errors.New("backup credential may not be empty")
	}
	return string(token), nil
}

// openDB opens the projection database, creating it on first use.
func openDB(dataDir string) (walletdb.DB, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, defaultDBFilename)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return walletdb.Create("bdb", dbPath, true, dbTimeout)
	}
	return walletdb.Open("bdb", dbPath, true, dbTimeout)
}

// replayEvents feeds every line of the export through the sync fold.  It
// returns how many events were consumed before finishing or being
// interrupted.
func replayEvents(ctx context.Context, mgr *roommgr.Manager,
	path string) (int, error) {

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var consumed int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var exported exportedEvent
		if err := json.Unmarshal(line, &exported); err != nil {
			log.Warnf("Skipping undecodable export line: %v", err)
			continue
		}

		stopped, err := mgr.ConsumeSyncEvent(ctx, &chanevent.Event{
			Type:    exported.Type,
			Content: exported.Content,
			ID:      exported.EventID,
			RoomID:  exported.RoomID,
			Sender:  exported.Sender,
			Time:    exported.Time,
		}, func(int) bool {
			return ctx.Err() != nil
		})
		if err != nil {
			return consumed, err
		}
		if stopped {
			log.Infof("Replay interrupted after %d events; "+
				"running again resumes where it left off",
				consumed)
			return consumed, nil
		}
		consumed++
	}
	if err := scanner.Err(); err != nil {
		return consumed, err
	}
	return consumed, nil
}

// printSummary logs the folded state of every room wallet and its
// transactions still collecting signatures.
func printSummary(mgr *roommgr.Manager) error {
	wallets, err := mgr.GetAllRoomWallets()
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		log.Info("No shared wallets in the replayed history")
		return nil
	}

	for _, w := range wallets {
		draft, err := w.Draft()
		if err != nil {
			return err
		}
		signers, err := w.EffectiveSigners()
		if err != nil {
			return err
		}
		names := make([]string, 0, len(signers))
		for _, s := range signers {
			names = append(names, s.Name)
		}
		log.Infof("Room %s: %d-of-%d wallet %q status=%v "+
			"signers=%v walletID=%s", w.RoomID, draft.M, draft.N,
			draft.Name, w.Status(), names, w.WalletID)

		pending, err := mgr.GetPendingTransactions(w.RoomID)
		if err != nil {
			return err
		}
		for _, t := range pending {
			count, err := t.SignatureCount()
			if err != nil {
				return err
			}
			log.Infof("  Transaction %s status=%v signatures=%d/%d",
				t.TxID, t.Status(), count,
				t.RequiredSignatures)
		}
	}
	return nil
}

func replayMain() error {
	cfg, activeNet, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := openDB(cfg.DataDir)
	if err != nil {
		log.Errorf("Failed to open projection database: %v", err)
		return err
	}
	defer db.Close()

	// The backup credential is only needed to open an encrypted backup.
	var accessToken string
	if cfg.RestoreFile != "" {
		accessToken, err = promptCredential()
		if err != nil {
			return err
		}
	}

	mgr, err := roommgr.New(&roommgr.Config{
		Params:      activeNet,
		Account:     cfg.Account,
		DeviceID:    cfg.DeviceID,
		AccessToken: accessToken,
		Send:        offlineSend,
		DB:          db,
		Engine:      &dryRunEngine{},
	})
	if err != nil {
		return err
	}

	if cfg.RestoreFile != "" {
		blob, err := os.ReadFile(cfg.RestoreFile)
		if err != nil {
			return err
		}
		err = mgr.RestoreFromBackup(ctx, blob, func(percent int) bool {
			log.Debugf("Restore progress: %d%%", percent)
			return ctx.Err() != nil
		})
		if err != nil {
			log.Errorf("Failed to restore backup: %v", err)
			return err
		}
		log.Infof("Restored backup %s", cfg.RestoreFile)
	}

	if cfg.EventsFile != "" {
		consumed, err := replayEvents(ctx, mgr, cfg.EventsFile)
		if err != nil {
			log.Errorf("Replay failed after %d events: %v",
				consumed, err)
			return err
		}
		log.Infof("Folded %d events from %s", consumed, cfg.EventsFile)
	}

	if err := printSummary(mgr); err != nil {
		return err
	}

	if cfg.DumpState {
		wallets, err := mgr.GetAllRoomWallets()
		if err != nil {
			return err
		}
		spew.Fdump(os.Stdout, wallets)
	}
	return nil
}

func main() {
	// Work around defer not working after os.Exit.
	if err := replayMain(); err != nil {
		os.Exit(1)
	}
}
