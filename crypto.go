// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

import (
	"errors"
	"fmt"
	"io"

	"github.com/fido-device-onboard/go-authgraph/cose"
)

// KeyExchangeProtocolVersion1 is the first version of the key exchange
// protocol.
const KeyExchangeProtocolVersion1 int32 = 1

// Sha256 computes SHA-256 digests.
type Sha256 interface {
	ComputeSha256(data []byte) ([SHA256Len]byte, error)
}

// Hmac computes HMAC-SHA256.
type Hmac interface {
	ComputeHmac(key *HmacKey, data []byte) ([]byte, error)
}

// Hkdf implements the extract and expand steps of HKDF-SHA256 (RFC 5869).
type Hkdf interface {
	Extract(salt []byte, ikm EcdhSecret) (PseudoRandKey, error)
	Expand(prk *PseudoRandKey, context []byte) (PseudoRandKey, error)
}

// EcDh performs ECDH on P-256.
type EcDh interface {
	// GenerateKey returns a fresh key pair. The public key is a COSE_Key with
	// kty EC2, alg ECDH-ES+HKDF-256 and crv P-256.
	GenerateKey() (*EcExchangeKey, error)

	// ComputeSharedSecret returns the x-coordinate of the shared point.
	ComputeSharedSecret(ownKey []byte, peerKey cose.Key) (EcdhSecret, error)
}

// EcDsa signs and verifies with Ed25519, P-256 and P-384 keys. Signatures are
// in the COSE format: raw for Ed25519 and r||s for ECDSA.
type EcDsa interface {
	GenerateKey(variant KeyVariant) (*EcSignKey, *EcVerifyKey, error)
	Sign(key *EcSignKey, data []byte) ([]byte, error)
	VerifySignature(key *EcVerifyKey, data, signature []byte) error
}

// AesGcm is AES-256-GCM. The ciphertext includes the 16 byte tag.
type AesGcm interface {
	GenerateKey(rng io.Reader) (AesKey, error)
	Encrypt(key *AesKey, payload, aad []byte, nonce *Nonce12) ([]byte, error)
	Decrypt(key *AesKey, ciphertext, aad []byte, nonce *Nonce12) ([]byte, error)
}

// GenerateAesKey reads a key from rng. AesGcm implementations without special
// key handling can use it for GenerateKey.
func GenerateAesKey(rng io.Reader) (AesKey, error) {
	var key AesKey
	if _, err := io.ReadFull(rng, key[:]); err != nil {
		return key, NewError(InternalError, "error generating AES key: %w", err)
	}
	return key, nil
}

// Crypto is the set of cryptographic capabilities used by a Participant.
type Crypto struct {
	AesGcm AesGcm
	EcDh   EcDh
	EcDsa  EcDsa
	Hmac   Hmac
	Hkdf   Hkdf
	Sha256 Sha256
	Rng    io.Reader
}

func (c Crypto) validate() error {
	var missing []error
	for name, isNil := range map[string]bool{
		"AesGcm": c.AesGcm == nil,
		"EcDh":   c.EcDh == nil,
		"EcDsa":  c.EcDsa == nil,
		"Hmac":   c.Hmac == nil,
		"Hkdf":   c.Hkdf == nil,
		"Sha256": c.Sha256 == nil,
		"Rng":    c.Rng == nil,
	} {
		if isNil {
			missing = append(missing, fmt.Errorf("%s capability is missing", name))
		}
	}
	return errors.Join(missing...)
}

// crypter binds an AesGcm capability to a key for sealing arcs.
type crypter struct {
	aes AesGcm
	key *AesKey
}

var _ cose.Crypter = crypter{}

func (c crypter) Encrypt(plaintext, aad, iv []byte) ([]byte, error) {
	var nonce Nonce12
	if len(iv) != len(nonce) {
		return nil, fmt.Errorf("invalid nonce length: %d", len(iv))
	}
	copy(nonce[:], iv)
	return c.aes.Encrypt(c.key, plaintext, aad, &nonce)
}

func (c crypter) Decrypt(ciphertext, aad, iv []byte) ([]byte, error) {
	var nonce Nonce12
	if len(iv) != len(nonce) {
		return nil, fmt.Errorf("invalid nonce length: %d", len(iv))
	}
	copy(nonce[:], iv)
	return c.aes.Decrypt(c.key, ciphertext, aad, &nonce)
}
