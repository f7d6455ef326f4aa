// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package device implements an AuthGraph device backed by keys and state in
// local memory or storage.
package device

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	authgraph "github.com/fido-device-onboard/go-authgraph"
	"github.com/fido-device-onboard/go-authgraph/cbor"
	"github.com/fido-device-onboard/go-authgraph/cose"
	"github.com/fido-device-onboard/go-authgraph/swcrypto"
)

// Local is a device whose identity is held in memory. Signatures are made
// with SignKey or, when it is nil, with Signer, which may be backed by
// hardware.
type Local struct {
	authgraph.DeviceDefaults

	Identity *authgraph.Identity
	SignKey  *authgraph.EcSignKey
	Signer   crypto.Signer

	// Version is the latest protocol version supported. Zero means
	// authgraph.KeyExchangeProtocolVersion1.
	Version int32

	// Sessions stores records of completed key exchanges.
	Sessions authgraph.SharedSessionState

	mu  sync.Mutex
	pbk *authgraph.AesKey
}

var _ authgraph.Device = (*Local)(nil)

// GetOrCreatePerBootKey returns the per-boot key, generating it on first use.
func (d *Local) GetOrCreatePerBootKey(aes authgraph.AesGcm, rng io.Reader) (authgraph.AesKey, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pbk == nil {
		key, err := aes.GenerateKey(rng)
		if err != nil {
			return authgraph.AesKey{}, err
		}
		d.pbk = &key
	}
	return *d.pbk, nil
}

// GetPerBootKey returns the per-boot key.
func (d *Local) GetPerBootKey() (authgraph.AesKey, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pbk == nil {
		return authgraph.AesKey{}, authgraph.NewError(authgraph.InternalError, "per-boot key has not been created")
	}
	return *d.pbk, nil
}

// Reboot forgets the per-boot key. Arcs sealed before the call can no longer
// be opened.
func (d *Local) Reboot() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pbk != nil {
		d.pbk.Zeroize()
		d.pbk = nil
	}
}

// GetIdentity returns the identity and static signing key.
func (d *Local) GetIdentity() (*authgraph.EcSignKey, *authgraph.Identity, error) {
	if d.Identity == nil {
		return nil, nil, authgraph.NewError(authgraph.InternalError, "device has no identity")
	}
	return d.SignKey, d.Identity, nil
}

// GetCoseSignAlgorithm returns the algorithm of the signing key.
func (d *Local) GetCoseSignAlgorithm() (cose.Algorithm, error) {
	if d.SignKey != nil {
		alg, err := d.SignKey.CoseSignAlgorithm()
		if err != nil {
			return 0, authgraph.NewError(authgraph.InternalError, "error selecting signature algorithm: %w", err)
		}
		return alg, nil
	}
	if d.Signer == nil {
		return 0, authgraph.NewError(authgraph.InternalError, "device has no signing key")
	}
	switch pub := d.Signer.Public().(type) {
	case ed25519.PublicKey:
		return cose.EdDSAAlg, nil
	case *ecdsa.PublicKey:
		switch pub.Curve {
		case elliptic.P256():
			return cose.ES256Alg, nil
		case elliptic.P384():
			return cose.ES384Alg, nil
		}
		return 0, authgraph.NewError(authgraph.InternalError, "unsupported signer curve %s", pub.Curve.Params().Name)
	default:
		return 0, authgraph.NewError(authgraph.InternalError, "unsupported signer key type %T", pub)
	}
}

// SignData signs with Signer.
func (d *Local) SignData(_ authgraph.EcDsa, data []byte) ([]byte, error) {
	if d.Signer == nil {
		return nil, authgraph.NewError(authgraph.InternalError, "device has no signer")
	}
	alg, err := d.GetCoseSignAlgorithm()
	if err != nil {
		return nil, err
	}
	if alg == cose.EdDSAAlg {
		return d.Signer.Sign(rand.Reader, data, crypto.Hash(0))
	}
	return swcrypto.SignECDSA(rand.Reader, d.Signer, alg, data)
}

// GetVersion returns the latest supported protocol version.
func (d *Local) GetVersion() int32 {
	if d.Version == 0 {
		return authgraph.KeyExchangeProtocolVersion1
	}
	return d.Version
}

// GetNegotiatedVersion returns the lower of the peer's and the device's
// versions.
func (d *Local) GetNegotiatedVersion(peerVersion int32) int32 {
	return min(d.GetVersion(), peerVersion)
}

// EvaluateIdentity compares the latest identity of a peer with the previous
// one. A chain which extends the previous chain under the same root key is
// an update.
func (d *Local) EvaluateIdentity(latest, previous *authgraph.Identity) (authgraph.IdentityVerificationDecision, error) {
	if latest == nil || previous == nil {
		return 0, authgraph.NewError(authgraph.InternalError, "identity is missing")
	}
	if latest.Equal(previous) {
		return authgraph.Match, nil
	}
	if latest.Version != previous.Version ||
		!latest.CertChain.RootKey.Equal(previous.CertChain.RootKey) ||
		len(latest.CertChain.DiceCertChain) < len(previous.CertChain.DiceCertChain) {
		return authgraph.Mismatch, nil
	}
	for i, entry := range previous.CertChain.DiceCertChain {
		if !entry.Equal(latest.CertChain.DiceCertChain[i]) {
			return authgraph.Mismatch, nil
		}
	}
	return authgraph.Updated, nil
}

// RecordSharedSessions stores the digests of the arcs of a completed key
// exchange.
func (d *Local) RecordSharedSessions(ctx context.Context, peer *authgraph.Identity, sessionID [authgraph.SessionIDLen]byte, arcs [2][]byte, sha authgraph.Sha256) error {
	if d.Sessions == nil {
		return authgraph.NewError(authgraph.InternalError, "device has no session state")
	}
	key, err := sessionKey(peer, sessionID, sha)
	if err != nil {
		return err
	}
	digests, err := arcDigests(arcs[:], sha)
	if err != nil {
		return err
	}
	if err := d.Sessions.AddSharedSession(ctx, key, digests); err != nil {
		return authgraph.NewError(authgraph.InternalError, "error recording shared session: %w", err)
	}
	return nil
}

// ValidateSharedSessions checks that each arc was recorded for the peer and
// session.
func (d *Local) ValidateSharedSessions(ctx context.Context, peer *authgraph.Identity, sessionID [authgraph.SessionIDLen]byte, arcs [][]byte, sha authgraph.Sha256) error {
	if d.Sessions == nil {
		return authgraph.NewError(authgraph.InternalError, "device has no session state")
	}
	key, err := sessionKey(peer, sessionID, sha)
	if err != nil {
		return err
	}
	recorded, err := d.Sessions.SharedSession(ctx, key)
	if errors.Is(err, authgraph.ErrNotFound) {
		return authgraph.NewError(authgraph.InvalidSharedKeyArcs, "no shared session recorded for peer and session id")
	}
	if err != nil {
		return authgraph.NewError(authgraph.InternalError, "error retrieving shared session: %w", err)
	}
	digests, err := arcDigests(arcs, sha)
	if err != nil {
		return err
	}
	for i, digest := range digests {
		if !slices.Contains(recorded, digest) {
			return authgraph.NewError(authgraph.InvalidSharedKeyArcs, "arc %d was not recorded for the session", i)
		}
	}
	return nil
}

func sessionKey(peer *authgraph.Identity, sessionID [authgraph.SessionIDLen]byte, sha authgraph.Sha256) ([authgraph.SHA256Len]byte, error) {
	id, err := cbor.Marshal(peer)
	if err != nil {
		return [authgraph.SHA256Len]byte{}, authgraph.NewError(authgraph.InternalError, "error encoding peer identity: %w", err)
	}
	var buf bytes.Buffer
	buf.Write(id)
	buf.Write(sessionID[:])
	return sha.ComputeSha256(buf.Bytes())
}

func arcDigests(arcs [][]byte, sha authgraph.Sha256) ([][authgraph.SHA256Len]byte, error) {
	digests := make([][authgraph.SHA256Len]byte, 0, len(arcs))
	for _, arc := range arcs {
		digest, err := sha.ComputeSha256(arc)
		if err != nil {
			return nil, fmt.Errorf("error computing arc digest: %w", err)
		}
		digests = append(digests, digest)
	}
	return digests, nil
}
