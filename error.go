// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the kind of an AuthGraph failure. The values are part
// of the wire protocol.
type ErrorCode int32

// Error codes
const (
	// Success.
	Ok ErrorCode = 0

	// The nonce sent by the peer is not 16 bytes long.
	InvalidPeerNonce ErrorCode = -1

	// The key exchange public key sent by the peer is malformed or has
	// unexpected parameters.
	InvalidPeerKeKey ErrorCode = -2

	// An identity could not be decoded or has the wrong version.
	InvalidIdentity ErrorCode = -3

	// A certificate chain failed validation: wrong version, non-canonical or
	// invalid root key, broken issuer/subject linkage or a repeated subject
	// key.
	InvalidCertChain ErrorCode = -4

	// A signature failed to verify. This covers the certificate chain links
	// and the session ID signatures.
	InvalidSignature ErrorCode = -5

	// The key exchange key given to Finish is unknown or was already used.
	InvalidKeKey ErrorCode = -6

	// The public key of a participant's own key exchange key is malformed.
	InvalidPubKeyInKey ErrorCode = -7

	// The sealed private key of a participant's own key exchange key cannot
	// be deciphered or is malformed.
	InvalidPrivKeyArcInKey ErrorCode = -8

	// Shared key arcs cannot be deciphered, disagree with each other, belong
	// to an unknown or already completed session or hold a degenerate key.
	InvalidSharedKeyArcs ErrorCode = -9

	// Memory could not be allocated.
	MemoryAllocationFailed ErrorCode = -10

	// The peer requested a protocol version that cannot be used.
	IncompatibleProtocolVersion ErrorCode = -11

	// An invariant was violated or a capability failed unexpectedly.
	InternalError ErrorCode = -12

	// The operation is not implemented.
	Unimplemented ErrorCode = -13
)

func (c ErrorCode) String() string {
	switch c {
	case Ok:
		return "Ok"
	case InvalidPeerNonce:
		return "InvalidPeerNonce"
	case InvalidPeerKeKey:
		return "InvalidPeerKeKey"
	case InvalidIdentity:
		return "InvalidIdentity"
	case InvalidCertChain:
		return "InvalidCertChain"
	case InvalidSignature:
		return "InvalidSignature"
	case InvalidKeKey:
		return "InvalidKeKey"
	case InvalidPubKeyInKey:
		return "InvalidPubKeyInKey"
	case InvalidPrivKeyArcInKey:
		return "InvalidPrivKeyArcInKey"
	case InvalidSharedKeyArcs:
		return "InvalidSharedKeyArcs"
	case MemoryAllocationFailed:
		return "MemoryAllocationFailed"
	case IncompatibleProtocolVersion:
		return "IncompatibleProtocolVersion"
	case InternalError:
		return "InternalError"
	case Unimplemented:
		return "Unimplemented"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int32(c))
	}
}

// Error is returned by all AuthGraph operations. It carries the error code
// which is reported to the peer and the underlying cause.
type Error struct {
	Code ErrorCode
	Err  error
}

// NewError returns an error with the given code and a formatted message. The
// %w verb may be used to wrap a cause.
func NewError(code ErrorCode, format string, a ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, a...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, &Error{Code: InvalidKeKey}) matches on code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Code == e.Code
}

// CodeOf returns the code of an AuthGraph error anywhere in the chain of err.
// Nil returns Ok and errors not from AuthGraph return InternalError.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return Ok
	}
	var agErr *Error
	if errors.As(err, &agErr) {
		return agErr.Code
	}
	return InternalError
}

// withCode keeps the code of an existing AuthGraph error and otherwise
// assigns code.
func withCode(code ErrorCode, err error, msg string) error {
	if err == nil {
		return nil
	}
	var agErr *Error
	if errors.As(err, &agErr) {
		return err
	}
	return &Error{Code: code, Err: fmt.Errorf("%s: %w", msg, err)}
}
