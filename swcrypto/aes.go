// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package swcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"

	authgraph "github.com/fido-device-onboard/go-authgraph"
)

// AesGcm implements authgraph.AesGcm with AES-256-GCM and 16 byte tags.
type AesGcm struct{}

var _ authgraph.AesGcm = AesGcm{}

// GenerateKey reads a new key from rng.
func (AesGcm) GenerateKey(rng io.Reader) (authgraph.AesKey, error) {
	return authgraph.GenerateAesKey(rng)
}

// Encrypt returns the ciphertext with the tag appended.
func (AesGcm) Encrypt(key *authgraph.AesKey, payload, aad []byte, nonce *authgraph.Nonce12) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], payload, aad), nil
}

// Decrypt authenticates and decrypts ciphertext with the tag appended.
func (AesGcm) Decrypt(key *authgraph.AesKey, ciphertext, aad []byte, nonce *authgraph.Nonce12) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("error decrypting: %w", err)
	}
	return plaintext, nil
}

func newGCM(key *authgraph.AesKey) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("error creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("error creating GCM: %w", err)
	}
	return aead, nil
}
