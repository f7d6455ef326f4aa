// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package swcrypto implements the AuthGraph crypto capabilities in software,
// using the Go standard library and golang.org/x/crypto.
package swcrypto

import (
	"crypto/rand"
	"crypto/sha256"

	authgraph "github.com/fido-device-onboard/go-authgraph"
)

// New returns a full set of software crypto capabilities using crypto/rand as
// the random source.
func New() authgraph.Crypto {
	return authgraph.Crypto{
		AesGcm: AesGcm{},
		EcDh:   EcDh{Rand: rand.Reader},
		EcDsa:  EcDsa{Rand: rand.Reader},
		Hmac:   Hmac{},
		Hkdf:   Hkdf{},
		Sha256: Sha256{},
		Rng:    rand.Reader,
	}
}

// Sha256 implements authgraph.Sha256.
type Sha256 struct{}

var _ authgraph.Sha256 = Sha256{}

// ComputeSha256 returns the SHA-256 digest of data.
func (Sha256) ComputeSha256(data []byte) ([authgraph.SHA256Len]byte, error) {
	return sha256.Sum256(data), nil
}
