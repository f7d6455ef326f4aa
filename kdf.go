// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

import (
	"github.com/fido-device-onboard/go-authgraph/cbor"
	"github.com/fido-device-onboard/go-authgraph/cose"
)

// HKDF expand contexts
const (
	ContextKeEncryptionKeySourceToSink = "KE_ENCRYPTION_KEY_SOURCE_TO_SINK"
	ContextKeEncryptionKeySinkToSource = "KE_ENCRYPTION_KEY_SINK_TO_SOURCE"
	ContextKeHmacKey                   = "KE_HMAC_KEY"
)

// Role of a participant in a key exchange.
type Role int

// Roles
const (
	// Source is the participant which calls Create and Finish.
	Source Role = iota + 1
	// Sink is the participant which calls Init and AuthenticationComplete.
	Sink
)

func (r Role) String() string {
	switch r {
	case Source:
		return "source"
	case Sink:
		return "sink"
	default:
		return "unknown role"
	}
}

// saltInput is hashed to produce the HKDF salt.
//
//	salt = SHA-256([
//	    source_version:    int,
//	    sink_ke_pub_key:   bstr .cbor PlainPubKey,
//	    source_ke_pub_key: bstr .cbor PlainPubKey,
//	    sink_ke_nonce:     bstr .size 16,
//	    source_ke_nonce:   bstr .size 16,
//	    sink_cert_chain:   bstr .cbor ExplicitKeyDiceCertChain,
//	    source_cert_chain: bstr .cbor ExplicitKeyDiceCertChain,
//	])
type saltInput struct {
	_               struct{} `cbor:",toarray"`
	SourceVersion   int32
	SinkKePubKey    cbor.Bstr[cose.Key]
	SourceKePubKey  cbor.Bstr[cose.Key]
	SinkKeNonce     []byte
	SourceKeNonce   []byte
	SinkCertChain   cbor.Bstr[CertChain]
	SourceCertChain cbor.Bstr[CertChain]
}

func computeSalt(sha Sha256, in saltInput) ([SHA256Len]byte, error) {
	data, err := cbor.Marshal(in)
	if err != nil {
		return [SHA256Len]byte{}, NewError(InternalError, "error encoding salt input: %w", err)
	}
	salt, err := sha.ComputeSha256(data)
	return salt, withCode(InternalError, err, "error computing salt")
}

// sessionIDInput is the HMAC input producing the session ID.
type sessionIDInput struct {
	_             struct{} `cbor:",toarray"`
	SinkKeNonce   []byte
	SourceKeNonce []byte
}

// sharedKeys are the keys derived from the ECDH secret, viewed from one side.
type sharedKeys struct {
	In, Out AesKey
	Hmac    HmacKey
}

func (k *sharedKeys) zeroize() {
	k.In.Zeroize()
	k.Out.Zeroize()
	clear(k.Hmac[:])
}

// deriveSharedKeys runs HKDF over the shared secret. The inbound key of the
// sink is the outbound key of the source and vice versa.
func deriveSharedKeys(hkdf Hkdf, secret EcdhSecret, salt []byte, role Role) (*sharedKeys, error) {
	prk, err := hkdf.Extract(salt, secret)
	if err != nil {
		return nil, withCode(InternalError, err, "HKDF extract")
	}
	defer clear(prk[:])

	expand := func(context string) ([32]byte, error) {
		okm, err := hkdf.Expand(&prk, []byte(context))
		if err != nil {
			return okm, withCode(InternalError, err, "HKDF expand "+context)
		}
		return okm, nil
	}
	hmacKey, err := expand(ContextKeHmacKey)
	if err != nil {
		return nil, err
	}
	sourceToSink, err := expand(ContextKeEncryptionKeySourceToSink)
	if err != nil {
		return nil, err
	}
	sinkToSource, err := expand(ContextKeEncryptionKeySinkToSource)
	if err != nil {
		return nil, err
	}

	keys := &sharedKeys{Hmac: hmacKey}
	switch role {
	case Sink:
		keys.In, keys.Out = sourceToSink, sinkToSource
	case Source:
		keys.In, keys.Out = sinkToSource, sourceToSink
	default:
		return nil, NewError(InternalError, "invalid role %d", role)
	}
	return keys, nil
}
