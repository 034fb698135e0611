// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chanevent

import (
	"encoding/json"
	"time"
)

// Event type identifiers for the shared-channel coordination protocol.
// Every event published to a room carries one of these type strings; the
// concrete operation is carried by the msgtype field inside the content.
const (
	TypeWallet      = "io.chanwallet.wallet"
	TypeTransaction = "io.chanwallet.transaction"
	TypeSync        = "io.chanwallet.sync"
	TypeError       = "io.chanwallet.error"
)

// Event is a single immutable timeline event observed on a shared channel.
// Events are created by the messaging layer and consumed read-only by the
// coordination engine.  The event ID is globally unique within a room and
// serves as the idempotency key for every projection mutation.
type Event struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
	ID      string          `json:"event_id"`
	RoomID  string          `json:"room_id"`
	Sender  string          `json:"sender"`
	Time    int64           `json:"ts"`
}

// Timestamp returns the event's origin timestamp.  The wire carries
// milliseconds since the unix epoch.
func (e *Event) Timestamp() time.Time {
	return time.UnixMilli(e.Time)
}

// Parse decodes a JSON-serialized timeline event.  The type and event ID
// fields are required; everything else is carried through opaquely.
func Parse(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, malformedError("invalid event json", err)
	}
	if e.Type == "" || e.ID == "" {
		return nil, malformedError("event missing type or event_id", nil)
	}
	return &e, nil
}

// MarshalEvent serializes an event back to its wire JSON form such that
// Parse(MarshalEvent(e)) reproduces e exactly.
func MarshalEvent(e *Event) ([]byte, error) {
	return json.Marshal(e)
}
