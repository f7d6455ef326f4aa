// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

import (
	"fmt"
	"io"

	"github.com/fido-device-onboard/go-authgraph/cose"
)

// Sizes
const (
	AES256KeyLen         = 32
	Curve25519PrivKeyLen = 32
	SHA256Len            = 32
	SessionIDLen         = 32
	NonceLen             = 16
)

// AesKey is an AES-256 key.
type AesKey [AES256KeyLen]byte

// Zeroize overwrites the key material.
func (k *AesKey) Zeroize() { clear(k[:]) }

// IsZero reports whether every byte of the key is zero.
func (k AesKey) IsZero() bool { return k == AesKey{} }

func aesKeyFromPayload(payload []byte) (AesKey, error) {
	var key AesKey
	if len(payload) != AES256KeyLen {
		return key, NewError(InvalidSharedKeyArcs, "payload key has invalid length: %d", len(payload))
	}
	copy(key[:], payload)
	return key, nil
}

// HmacKey is an HMAC-SHA256 key.
type HmacKey [32]byte

// PseudoRandKey is the 256 bit output of HKDF extract and expand.
type PseudoRandKey [32]byte

// EcdhSecret is the shared secret agreed with ECDH.
type EcdhSecret []byte

// Nonce16 is the nonce each participant contributes to a key exchange.
type Nonce16 [NonceLen]byte

// NewNonce16 reads a random nonce from rng.
func NewNonce16(rng io.Reader) (Nonce16, error) {
	var n Nonce16
	if _, err := io.ReadFull(rng, n[:]); err != nil {
		return n, NewError(InternalError, "error generating nonce: %w", err)
	}
	return n, nil
}

func nonce16FromBytes(b []byte) (Nonce16, bool) {
	var n Nonce16
	if len(b) != NonceLen {
		return n, false
	}
	copy(n[:], b)
	return n, true
}

// Nonce12 is an AES-GCM nonce.
type Nonce12 [12]byte

// EcExchangeKey is an ephemeral P-256 key pair used for ECDH.
type EcExchangeKey struct {
	// Pub is a COSE_Key with kty EC2, alg ECDH-ES+HKDF-256 and crv P-256.
	Pub cose.Key

	// Priv is the private key, in an encoding chosen by the EcDh
	// implementation. It is only ever sealed in an arc.
	Priv []byte
}

// KeyVariant is the curve of a signing or verification key.
type KeyVariant int

// Key variants
const (
	Ed25519 KeyVariant = iota + 1
	P256
	P384
)

func (v KeyVariant) String() string {
	switch v {
	case Ed25519:
		return "Ed25519"
	case P256:
		return "P-256"
	case P384:
		return "P-384"
	default:
		return fmt.Sprintf("KeyVariant(%d)", int(v))
	}
}

// CoseSignAlgorithm returns the COSE signature algorithm of keys of this
// variant.
func (v KeyVariant) CoseSignAlgorithm() (cose.Algorithm, error) {
	switch v {
	case Ed25519:
		return cose.EdDSAAlg, nil
	case P256:
		return cose.ES256Alg, nil
	case P384:
		return cose.ES384Alg, nil
	default:
		return 0, fmt.Errorf("invalid key variant: %s", v)
	}
}

// EcSignKey is a private signing key.
//
// For Ed25519 the bytes are the 32 byte seed. For P-256 and P-384 they are the
// big-endian private scalar, padded to the size of the curve.
type EcSignKey struct {
	Variant KeyVariant
	Bytes   []byte
}

// CoseSignAlgorithm returns the algorithm of signatures made with the key.
func (k EcSignKey) CoseSignAlgorithm() (cose.Algorithm, error) { return k.Variant.CoseSignAlgorithm() }

// Zeroize overwrites the key material.
func (k *EcSignKey) Zeroize() { clear(k.Bytes) }

// EcVerifyKey is a public signature verification key held as a COSE_Key.
type EcVerifyKey struct {
	Variant KeyVariant
	Key     cose.Key
}

// NewEcVerifyKey selects the variant of a COSE_Key from its algorithm. Only the
// algorithm is checked. The remaining parameters are checked by
// ValidateCoseKeyParams.
func NewEcVerifyKey(key cose.Key) (*EcVerifyKey, error) {
	alg, ok := key.Alg()
	if !ok {
		return nil, fmt.Errorf("algorithm is missing, expected EdDSA, ES256 or ES384")
	}
	switch alg {
	case cose.EdDSAAlg:
		return &EcVerifyKey{Variant: Ed25519, Key: key}, nil
	case cose.ES256Alg:
		return &EcVerifyKey{Variant: P256, Key: key}, nil
	case cose.ES384Alg:
		return &EcVerifyKey{Variant: P384, Key: key}, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %d, expected EdDSA, ES256 or ES384", alg)
	}
}

// CoseSignAlgorithm returns the algorithm of signatures verified with the
// key.
func (k EcVerifyKey) CoseSignAlgorithm() (cose.Algorithm, error) {
	return k.Variant.CoseSignAlgorithm()
}

// Canonicalize re-encodes the COSE_Key in the core deterministic encoding of
// RFC 8949 section 4.2.1: preferred serialization and labels in bytewise
// lexicographic order.
func (k *EcVerifyKey) Canonicalize() { k.Key = k.Key.Canonicalize() }

// IsCanonicalized reports whether the COSE_Key is already in canonical form.
func (k EcVerifyKey) IsCanonicalized() bool { return k.Key.IsCanonical() }

// ValidateCoseKeyParams checks that the key type, algorithm and curve match
// the variant. Failures have code InvalidCertChain.
func (k EcVerifyKey) ValidateCoseKeyParams() error {
	switch k.Variant {
	case Ed25519:
		return checkCoseKeyParams(k.Key, cose.OKPKeyType, cose.EdDSAAlg, cose.Ed25519Curve, InvalidCertChain)
	case P256:
		return checkCoseKeyParams(k.Key, cose.EC2KeyType, cose.ES256Alg, cose.P256Curve, InvalidCertChain)
	case P384:
		return checkCoseKeyParams(k.Key, cose.EC2KeyType, cose.ES384Alg, cose.P384Curve, InvalidCertChain)
	default:
		return NewError(InvalidCertChain, "invalid key variant %s", k.Variant)
	}
}

// Equal reports whether both keys have the same variant and encoding.
func (k EcVerifyKey) Equal(other EcVerifyKey) bool {
	return k.Variant == other.Variant && k.Key.Equal(other.Key)
}

// checkCoseKeyParams checks that a COSE_Key carries the expected key type,
// algorithm and curve, failing with code.
func checkCoseKeyParams(key cose.Key, kty cose.KeyType, alg cose.Algorithm, crv cose.Curve, code ErrorCode) error {
	if err := key.CheckParams(kty, alg, crv); err != nil {
		return &Error{Code: code, Err: err}
	}
	return nil
}
