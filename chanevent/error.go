// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chanevent

import "fmt"

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrMalformedEvent indicates that an event's content could not be
	// parsed or that a required field is absent.
	ErrMalformedEvent ErrorCode = iota

	// ErrInvalidKey indicates that a signer key is not parseable as an
	// extended public key or compressed public key.
	ErrInvalidKey

	// ErrMismatchedNetworks indicates that a signer key was created for a
	// different network than the one it is being used on.
	ErrMismatchedNetworks

	// ErrMismatchedKeyTypes indicates that a signer key's derivation
	// scheme does not match the wallet's declared address type.
	ErrMismatchedKeyTypes
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrMalformedEvent:     "ErrMalformedEvent",
	ErrInvalidKey:         "ErrInvalidKey",
	ErrMismatchedNetworks: "ErrMismatchedNetworks",
	ErrMismatchedKeyTypes: "ErrMismatchedKeyTypes",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen while decoding
// or validating channel events.  It is similar to wtxmgr.TxStoreError.
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

func malformedError(desc string, err error) Error {
	return Error{ErrorCode: ErrMalformedEvent, Description: desc, Err: err}
}
