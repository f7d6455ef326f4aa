// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeValues(t *testing.T) {
	for code, want := range map[ErrorCode]int32{
		Ok:                          0,
		InvalidPeerNonce:            -1,
		InvalidPeerKeKey:            -2,
		InvalidIdentity:             -3,
		InvalidCertChain:            -4,
		InvalidSignature:            -5,
		InvalidKeKey:                -6,
		InvalidPubKeyInKey:          -7,
		InvalidPrivKeyArcInKey:      -8,
		InvalidSharedKeyArcs:        -9,
		MemoryAllocationFailed:      -10,
		IncompatibleProtocolVersion: -11,
		InternalError:               -12,
		Unimplemented:               -13,
	} {
		assert.Equal(t, want, int32(code), code.String())
	}
	assert.Equal(t, "ErrorCode(-99)", ErrorCode(-99).String())
}

func TestError(t *testing.T) {
	cause := errors.New("cause")
	err := NewError(InvalidKeKey, "finish failed: %w", cause)
	assert.Equal(t, "InvalidKeKey: finish failed: cause", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, &Error{Code: InvalidKeKey})
	assert.NotErrorIs(t, err, &Error{Code: InvalidSignature})
	assert.Equal(t, "Unimplemented", (&Error{Code: Unimplemented}).Error())

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, InvalidKeKey, CodeOf(wrapped))
	assert.Equal(t, Ok, CodeOf(nil))
	assert.Equal(t, InternalError, CodeOf(cause))
}

func TestWithCode(t *testing.T) {
	assert.NoError(t, withCode(InvalidIdentity, nil, "msg"))

	err := withCode(InvalidIdentity, errors.New("bad"), "validating")
	assert.Equal(t, InvalidIdentity, CodeOf(err))
	assert.Equal(t, "InvalidIdentity: validating: bad", err.Error())

	orig := NewError(InvalidCertChain, "bad chain")
	assert.Same(t, orig, withCode(InvalidIdentity, orig, "validating"))
}
