// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

import (
	"context"
	"fmt"
	"io"

	"github.com/fido-device-onboard/go-authgraph/cose"
)

// IdentityVerificationDecision is the outcome of comparing a peer identity
// with one seen previously.
type IdentityVerificationDecision int

// Identity verification decisions
const (
	// Match means that both identities are the same.
	Match IdentityVerificationDecision = iota + 1
	// Mismatch means that the identities belong to different devices or
	// that the change is not acceptable under the device policy.
	Mismatch
	// Updated means that the latest identity is an acceptable update of the
	// previous one.
	Updated
)

func (d IdentityVerificationDecision) String() string {
	switch d {
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	case Updated:
		return "updated"
	default:
		return fmt.Sprintf("IdentityVerificationDecision(%d)", int(d))
	}
}

// Device is the set of device specific functions used by a Participant.
type Device interface {
	// GetOrCreatePerBootKey returns the per-boot key, generating it on first
	// use. The key must not survive a reboot.
	GetOrCreatePerBootKey(aes AesGcm, rng io.Reader) (AesKey, error)

	// GetPerBootKey returns the per-boot key or an error if it has not been
	// created.
	GetPerBootKey() (AesKey, error)

	// GetIdentity returns the identity of the device. The signing key is nil
	// when signing is performed by SignData.
	GetIdentity() (*EcSignKey, *Identity, error)

	// GetCoseSignAlgorithm returns the algorithm of signatures produced by
	// the device.
	GetCoseSignAlgorithm() (cose.Algorithm, error)

	// SignData signs data with a key that is not available to the caller. It
	// is only called when GetIdentity returns a nil signing key.
	SignData(ecdsa EcDsa, data []byte) ([]byte, error)

	// ValidatePeerIdentity validates the identity of a peer, applying any
	// policy, and returns the key its signatures are verified with.
	ValidatePeerIdentity(id *Identity, ecdsa EcDsa) (*EcVerifyKey, error)

	// EvaluateIdentity compares an identity with one seen previously for the
	// same peer.
	EvaluateIdentity(latest, previous *Identity) (IdentityVerificationDecision, error)

	// GetVersion returns the latest protocol version supported.
	GetVersion() int32

	// GetNegotiatedVersion returns the protocol version to use with a peer
	// supporting peerVersion. The result must not exceed peerVersion.
	GetNegotiatedVersion(peerVersion int32) int32

	// RecordSharedSessions stores the arcs of a completed key exchange with
	// a peer. Implementations are free to store only a digest.
	RecordSharedSessions(ctx context.Context, peer *Identity, sessionID [SessionIDLen]byte, arcs [2][]byte, sha Sha256) error

	// ValidateSharedSessions checks that the arcs were stored for the peer
	// and session by RecordSharedSessions.
	ValidateSharedSessions(ctx context.Context, peer *Identity, sessionID [SessionIDLen]byte, arcs [][]byte, sha Sha256) error
}

// DeviceDefaults implements the parts of Device which most devices do not
// customize. It is meant to be embedded.
type DeviceDefaults struct{}

// ValidatePeerIdentity validates the certificate chain of the peer, ignoring
// any policy.
func (DeviceDefaults) ValidatePeerIdentity(id *Identity, ecdsa EcDsa) (*EcVerifyKey, error) {
	return id.Validate(ecdsa)
}

// GetVersion returns KeyExchangeProtocolVersion1.
func (DeviceDefaults) GetVersion() int32 { return KeyExchangeProtocolVersion1 }

// GetNegotiatedVersion returns KeyExchangeProtocolVersion1.
func (DeviceDefaults) GetNegotiatedVersion(int32) int32 { return KeyExchangeProtocolVersion1 }
