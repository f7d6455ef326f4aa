// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package swcrypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"fmt"
	"io"

	authgraph "github.com/fido-device-onboard/go-authgraph"
	"github.com/fido-device-onboard/go-authgraph/cose"
)

// EcDh implements authgraph.EcDh on P-256. Private keys are encoded as the
// 32 byte big-endian scalar.
type EcDh struct {
	Rand io.Reader
}

var _ authgraph.EcDh = EcDh{}

// GenerateKey returns a new key pair.
func (e EcDh) GenerateKey() (*authgraph.EcExchangeKey, error) {
	priv, err := ecdh.P256().GenerateKey(e.Rand)
	if err != nil {
		return nil, fmt.Errorf("error generating ECDH key: %w", err)
	}
	pub, err := cose.NewKey(priv.PublicKey(), cose.ECDHESHKDF256Alg)
	if err != nil {
		return nil, err
	}
	return &authgraph.EcExchangeKey{Pub: pub, Priv: priv.Bytes()}, nil
}

// ComputeSharedSecret returns the x-coordinate of the shared point.
func (EcDh) ComputeSharedSecret(ownKey []byte, peerKey cose.Key) (authgraph.EcdhSecret, error) {
	priv, err := ecdh.P256().NewPrivateKey(ownKey)
	if err != nil {
		return nil, fmt.Errorf("invalid ECDH private key: %w", err)
	}
	pub, err := peerKey.Public()
	if err != nil {
		return nil, fmt.Errorf("invalid ECDH peer key: %w", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("ECDH peer key is %T, expected an EC2 key", pub)
	}
	peer, err := ecPub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("invalid ECDH peer key: %w", err)
	}
	if peer.Curve() != priv.Curve() {
		return nil, fmt.Errorf("ECDH peer key is not on P-256")
	}
	secret, err := priv.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("error computing shared secret: %w", err)
	}
	return secret, nil
}
