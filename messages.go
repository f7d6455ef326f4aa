// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

// Key is a key exchange key handle. The public key is an encoded COSE_Key and
// the private key is sealed in an arc which only its creator can open. Either
// may be absent, in which case it is encoded as null.
type Key struct {
	_          struct{} `cbor:",toarray"`
	PubKey     []byte
	ArcFromPbk []byte
}

// SessionInitiationInfo is the output of Create and the first part of the
// output of Init.
type SessionInitiationInfo struct {
	_ struct{} `cbor:",toarray"`

	// KeKey is the key exchange key. Only Create includes the arc.
	KeKey Key

	// Identity is the encoded Identity of the participant.
	Identity []byte

	Nonce []byte

	// Version is the latest version supported by a source, or the
	// negotiated version when returned by a sink.
	Version int32
}

// SessionInfo is the result of deriving the shared keys of a session.
type SessionInfo struct {
	_ struct{} `cbor:",toarray"`

	// SharedKeys holds the arcs of the inbound and outbound keys, in that
	// order.
	SharedKeys [2][]byte

	SessionID []byte

	// SessionIDSignature is an untagged COSE_Sign1 with the session ID as
	// detached payload.
	SessionIDSignature []byte
}

// KeInitResult is the output of Init.
type KeInitResult struct {
	_ struct{} `cbor:",toarray"`

	SessionInitInfo SessionInitiationInfo
	SessionInfo     SessionInfo
}
