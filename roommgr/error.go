// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roommgr

import "fmt"

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrDatabase indicates an error with the underlying database.  When
	// this error code is set, the Err field will be set to the underlying
	// error returned from the database.
	ErrDatabase ErrorCode = iota

	// ErrWalletNotFound indicates that no shared wallet exists for the
	// requested room.
	ErrWalletNotFound

	// ErrEventNotFound indicates that the requested event id is not known
	// to the manager.
	ErrEventNotFound

	// ErrTransactionNotFound indicates that no shared transaction exists
	// for the requested init event.
	ErrTransactionNotFound

	// ErrNotRegistered indicates that a backup operation was requested
	// before RegisterAutoBackup configured the sync room.
	ErrNotRegistered

	// ErrNoTransport indicates that a required injected collaborator
	// function (send, upload, download) was not configured.
	ErrNoTransport
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDatabase:            "ErrDatabase",
	ErrWalletNotFound:      "ErrWalletNotFound",
	ErrEventNotFound:       "ErrEventNotFound",
	ErrTransactionNotFound: "ErrTransactionNotFound",
	ErrNotRegistered:       "ErrNotRegistered",
	ErrNoTransport:         "ErrNoTransport",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during manager
// operation.
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

func managerError(code ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: code, Description: desc, Err: err}
}
