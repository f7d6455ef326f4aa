// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package authgraphtest contains test harnesses for AuthGraph participants:
// identity fixtures, devices backed by in-memory state and a driver for the
// complete key exchange.
package authgraphtest

import (
	"context"
	"crypto"
	"testing"

	"github.com/stretchr/testify/require"

	authgraph "github.com/fido-device-onboard/go-authgraph"
	"github.com/fido-device-onboard/go-authgraph/device"
	"github.com/fido-device-onboard/go-authgraph/dicechain"
	"github.com/fido-device-onboard/go-authgraph/internal/memory"
	"github.com/fido-device-onboard/go-authgraph/swcrypto"
)

// NewIdentity generates an identity whose chain holds the first chainLen of
// dicechain.DefaultComponents. It returns the signing key of the leaf.
func NewIdentity(tb testing.TB, variant authgraph.KeyVariant, chainLen int) (*authgraph.EcSignKey, *authgraph.Identity) {
	tb.Helper()
	chain := NewChain(tb, variant, chainLen)
	_, id, err := chain.Identity()
	require.NoError(tb, err)
	return chain.LeafKey(), id
}

// NewChain generates a chain holding the first chainLen of
// dicechain.DefaultComponents.
func NewChain(tb testing.TB, variant authgraph.KeyVariant, chainLen int) *dicechain.Builder {
	tb.Helper()
	require.LessOrEqual(tb, chainLen, len(dicechain.DefaultComponents), "chain length")
	chain, err := dicechain.New(variant)
	require.NoError(tb, err)
	for _, comp := range dicechain.DefaultComponents[:chainLen] {
		require.NoError(tb, chain.Extend(comp))
	}
	return chain
}

// NewGuestOSChain generates the chain of a protected VM guest OS. The entry of
// the guest OS carries instanceHash if it is not nil.
func NewGuestOSChain(tb testing.TB, instanceHash []byte, securityVersion uint32) *dicechain.Builder {
	tb.Helper()
	chain, err := dicechain.New(authgraph.Ed25519)
	require.NoError(tb, err)
	for _, comp := range []dicechain.Component{
		{Name: "ABL", Version: 1, SecurityVersion: 1, Resettable: true},
		{Name: "Protected VM firmware", Version: 1, SecurityVersion: 2, Resettable: true},
		{Name: authgraph.GuestOSComponentName, Version: 1, SecurityVersion: securityVersion, InstanceHash: instanceHash},
	} {
		require.NoError(tb, chain.Extend(comp))
	}
	return chain
}

// DeviceOption configures a device created by NewDevice.
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	variant  authgraph.KeyVariant
	chainLen int
	version  int32
	state    authgraph.SharedSessionState
	signer   crypto.Signer
}

// WithKeyVariant sets the variant of every key in the device's chain.
func WithKeyVariant(variant authgraph.KeyVariant) DeviceOption {
	return func(o *deviceOptions) { o.variant = variant }
}

// WithChainLength sets the number of entries in the device's chain.
func WithChainLength(n int) DeviceOption {
	return func(o *deviceOptions) { o.chainLen = n }
}

// WithVersion sets the latest protocol version supported by the device.
func WithVersion(version int32) DeviceOption {
	return func(o *deviceOptions) { o.version = version }
}

// WithSessionState replaces the in-memory shared session records.
func WithSessionState(state authgraph.SharedSessionState) DeviceOption {
	return func(o *deviceOptions) { o.state = state }
}

// WithSigner makes the last entry of the device's chain certify the key of
// signer, which then signs for the device in place of a software key. The
// chain must have at least one entry.
func WithSigner(signer crypto.Signer) DeviceOption {
	return func(o *deviceOptions) { o.signer = signer }
}

// NewDevice returns a device with a freshly generated identity. By default,
// keys are Ed25519, the chain has three entries and session records are kept
// in memory.
func NewDevice(tb testing.TB, opts ...DeviceOption) *device.Local {
	tb.Helper()
	options := deviceOptions{variant: authgraph.Ed25519, chainLen: 3}
	for _, opt := range opts {
		opt(&options)
	}
	if options.state == nil {
		options.state = memory.NewState()
	}
	if options.signer != nil {
		require.Positive(tb, options.chainLen, "chain length")
		chain := NewChain(tb, options.variant, options.chainLen-1)
		require.NoError(tb, chain.Certify(dicechain.DefaultComponents[options.chainLen-1], options.signer.Public()))
		_, id, err := chain.Identity()
		require.NoError(tb, err)
		return &device.Local{
			Identity: id,
			Signer:   options.signer,
			Version:  options.version,
			Sessions: options.state,
		}
	}

	signKey, id := NewIdentity(tb, options.variant, options.chainLen)
	return &device.Local{
		Identity: id,
		SignKey:  signKey,
		Version:  options.version,
		Sessions: options.state,
	}
}

// NewParticipant returns a participant using the software crypto backend.
func NewParticipant(tb testing.TB, dev authgraph.Device, opts ...authgraph.ParticipantOption) *authgraph.Participant {
	tb.Helper()
	p, err := authgraph.NewParticipant(swcrypto.New(), dev, opts...)
	require.NoError(tb, err)
	return p
}

// Exchange is the outcome of a complete key exchange.
type Exchange struct {
	SourceArcs [2][]byte
	SinkArcs   [2][]byte
	SessionID  []byte
}

// Source is the side of a participant which starts a key exchange. It is
// implemented by *authgraph.Participant and by remote participants.
type Source interface {
	Create(ctx context.Context) (*authgraph.SessionInitiationInfo, error)
	Finish(ctx context.Context, peerKey, peerID, peerSig, peerNonce []byte, peerVersion int32, ownKey authgraph.Key) (*authgraph.SessionInfo, error)
}

// Sink is the side of a participant which responds to a key exchange.
type Sink interface {
	Init(ctx context.Context, peerKey, peerID, peerNonce []byte, peerVersion int32) (*authgraph.KeInitResult, error)
	AuthenticationComplete(ctx context.Context, peerSig []byte, sharedKeys [2][]byte) ([2][]byte, error)
}

// RunKeyExchange runs the four steps of the key exchange between source and
// sink and fails the test on any error.
func RunKeyExchange(ctx context.Context, tb testing.TB, source Source, sink Sink) *Exchange {
	tb.Helper()

	created, err := source.Create(ctx)
	require.NoError(tb, err, "create")

	initialized, err := sink.Init(ctx, created.KeKey.PubKey, created.Identity, created.Nonce, created.Version)
	require.NoError(tb, err, "init")

	peer := initialized.SessionInitInfo
	finished, err := source.Finish(ctx, peer.KeKey.PubKey, peer.Identity,
		initialized.SessionInfo.SessionIDSignature, peer.Nonce, peer.Version, created.KeKey)
	require.NoError(tb, err, "finish")
	require.Equal(tb, initialized.SessionInfo.SessionID, finished.SessionID, "session ids differ")

	sinkArcs, err := sink.AuthenticationComplete(ctx, finished.SessionIDSignature, initialized.SessionInfo.SharedKeys)
	require.NoError(tb, err, "authentication complete")

	return &Exchange{
		SourceArcs: finished.SharedKeys,
		SinkArcs:   sinkArcs,
		SessionID:  finished.SessionID,
	}
}
