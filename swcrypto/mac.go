// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package swcrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	authgraph "github.com/fido-device-onboard/go-authgraph"
)

// Hmac implements authgraph.Hmac with HMAC-SHA256.
type Hmac struct{}

var _ authgraph.Hmac = Hmac{}

// ComputeHmac returns the 32 byte MAC of data.
func (Hmac) ComputeHmac(key *authgraph.HmacKey, data []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, key[:])
	_, _ = mac.Write(data)
	return mac.Sum(nil), nil
}

// Hkdf implements authgraph.Hkdf with HKDF-SHA256.
type Hkdf struct{}

var _ authgraph.Hkdf = Hkdf{}

// Extract derives a pseudorandom key from the input keying material.
func (Hkdf) Extract(salt []byte, ikm authgraph.EcdhSecret) (authgraph.PseudoRandKey, error) {
	var prk authgraph.PseudoRandKey
	out := hkdf.Extract(sha256.New, ikm, salt)
	if len(out) != len(prk) {
		return prk, fmt.Errorf("unexpected pseudorandom key length: %d", len(out))
	}
	copy(prk[:], out)
	clear(out)
	return prk, nil
}

// Expand derives 32 bytes of output keying material bound to context.
func (Hkdf) Expand(prk *authgraph.PseudoRandKey, context []byte) (authgraph.PseudoRandKey, error) {
	var okm authgraph.PseudoRandKey
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk[:], context), okm[:]); err != nil {
		return okm, fmt.Errorf("error expanding key: %w", err)
	}
	return okm, nil
}
