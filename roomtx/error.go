// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roomtx

import "fmt"

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrTransactionFinalized indicates a mutation was attempted on a
	// transaction that already reached a terminal broadcast or cancel
	// outcome.
	ErrTransactionFinalized ErrorCode = iota

	// ErrMismatchedNetworks indicates that two views of the transaction
	// claim different chains.
	ErrMismatchedNetworks

	// ErrStateConflict indicates a structural conflict between two views,
	// such as diverging terminal outcomes.
	ErrStateConflict

	// ErrMergeContract indicates that merge was invoked on views of two
	// different logical transactions.  This is a programming error, not a
	// data conflict.
	ErrMergeContract

	// ErrThresholdNotMet indicates that a broadcast was requested before
	// the transaction collected its required number of signatures.
	ErrThresholdNotMet

	// ErrInvalidSnapshot indicates that an embedded transaction snapshot
	// could not be parsed as a PSBT.
	ErrInvalidSnapshot

	// ErrCorruptContent indicates that the projection's stored state
	// could not be decoded.
	ErrCorruptContent
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrTransactionFinalized: "ErrTransactionFinalized",
	ErrMismatchedNetworks:   "ErrMismatchedNetworks",
	ErrStateConflict:        "ErrStateConflict",
	ErrMergeContract:        "ErrMergeContract",
	ErrThresholdNotMet:      "ErrThresholdNotMet",
	ErrInvalidSnapshot:      "ErrInvalidSnapshot",
	ErrCorruptContent:       "ErrCorruptContent",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during
// transaction projection updates.
type Error struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// IsError returns whether the error is an Error with a matching error code.
func IsError(err error, code ErrorCode) bool {
	e, ok := err.(Error)
	return ok && e.ErrorCode == code
}

func txError(code ErrorCode, desc string) Error {
	return Error{ErrorCode: code, Description: desc}
}
