// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roomwallet

import "fmt"

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrWalletExists indicates that a wallet proposal already exists for
	// the room and a second init cannot be accepted.
	ErrWalletExists ErrorCode = iota

	// ErrDuplicateKeys indicates that a join submitted a key that is
	// already part of the proposal.
	ErrDuplicateKeys

	// ErrMismatchedNetworks indicates that two views of the wallet claim
	// different chains, or that an event asserts a chain other than the
	// one fixed at init.
	ErrMismatchedNetworks

	// ErrStateConflict indicates a structural conflict between two views
	// of the wallet, such as diverging terminal outcomes (finalize on one
	// side, cancel on the other), or a transition that contradicts an
	// already-reached terminal state.
	ErrStateConflict

	// ErrNotFinalized indicates an operation that requires a finalized
	// wallet, such as delete, was attempted before finalization.
	ErrNotFinalized

	// ErrThresholdNotMet indicates that finalization was attempted
	// without enough effective participants for the declared m-of-n.
	ErrThresholdNotMet

	// ErrMergeContract indicates that merge was invoked on views of two
	// different logical wallets.  This is a programming error, not a data
	// conflict.
	ErrMergeContract

	// ErrCorruptContent indicates that the wallet's stored draft content
	// could not be decoded.
	ErrCorruptContent
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrWalletExists:       "ErrWalletExists",
	ErrDuplicateKeys:      "ErrDuplicateKeys",
	ErrMismatchedNetworks: "ErrMismatchedNetworks",
	ErrStateConflict:      "ErrStateConflict",
	ErrNotFinalized:       "ErrNotFinalized",
	ErrThresholdNotMet:    "ErrThresholdNotMet",
	ErrMergeContract:      "ErrMergeContract",
	ErrCorruptContent:     "ErrCorruptContent",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during wallet
// projection updates.
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

func walletError(code ErrorCode, desc string) Error {
	return Error{ErrorCode: code, Description: desc}
}
