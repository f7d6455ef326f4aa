// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package arc seals secrets into arcs.
//
// An arc is a COSE_Encrypt0 structure, encrypted with AES-256-GCM under a key
// that only the local participant holds (the per-boot key). Its protected
// headers bind the sealed payload to metadata such as a session ID, the pair
// of identities allowed to use it and the direction of traffic it protects.
// Because the headers are authenticated, they cannot be altered without the
// sealing key.
package arc

import (
	"errors"
	"fmt"
	"io"

	"github.com/fido-device-onboard/go-authgraph/cbor"
	"github.com/fido-device-onboard/go-authgraph/cose"
)

// Protected header labels
const (
	PermissionsLabel            cose.Label = -70001
	TimestampLabel              cose.Label = -70003
	KeNonceLabel                cose.Label = -70004
	DirectionLabel              cose.Label = -70008
	AuthenticationCompleteLabel cose.Label = -70009
	SessionIDLabel              cose.Label = -70010
)

// ErrDecipher is wrapped by every error returned from Decipher.
var ErrDecipher = errors.New("arc: failed to decipher")

// Direction of encryption of a key sealed in an arc.
type Direction int64

// Directions
const (
	In  Direction = 1
	Out Direction = 2
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return fmt.Sprintf("direction(%d)", int64(d))
	}
}

// Content is the plaintext view of an arc.
type Content struct {
	Payload []byte

	// Protected holds the protected headers other than the algorithm, in the
	// order they are sealed.
	Protected cbor.Map

	// Unprotected holds additional unprotected headers. The IV is managed by
	// Create and is not included when deciphering.
	Unprotected cbor.Map
}

// Create seals the content using the crypter, which must be bound to the
// sealing key, and returns the encoded arc.
func Create(c cose.Crypter, rng io.Reader, content Content) ([]byte, error) {
	var protected cbor.Map
	if err := protected.Set(cose.AlgLabel, cose.A256GCMAlg); err != nil {
		return nil, err
	}
	for _, e := range content.Protected {
		if _, ok := protected.Lookup(e.Key); ok {
			continue
		}
		protected = append(protected, e)
	}

	e0, err := cose.NewEncrypt0(protected)
	if err != nil {
		return nil, err
	}
	for _, e := range content.Unprotected {
		e0.Unprotected = append(e0.Unprotected, e)
	}
	if err := e0.Encrypt(c, rng, content.Payload, nil); err != nil {
		return nil, fmt.Errorf("error sealing arc: %w", err)
	}
	return cbor.Marshal(e0)
}

// Decipher opens an arc using the crypter, which must be bound to the key the
// arc was sealed with. All errors wrap ErrDecipher.
func Decipher(c cose.Crypter, arc []byte) (*Content, error) {
	var e0 cose.Encrypt0
	if err := cbor.Unmarshal(arc, &e0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecipher, err)
	}
	protected, err := e0.ProtectedHeader()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid protected header: %w", ErrDecipher, err)
	}
	var alg int64
	if ok, err := protected.Get(cose.AlgLabel, &alg); err != nil || !ok || cose.Algorithm(alg) != cose.A256GCMAlg {
		return nil, fmt.Errorf("%w: unexpected algorithm", ErrDecipher)
	}
	payload, err := e0.Decrypt(c, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecipher, err)
	}
	protected.Delete(cose.AlgLabel)
	e0.Unprotected.Delete(cose.IVLabel)
	return &Content{
		Payload:     payload,
		Protected:   protected,
		Unprotected: e0.Unprotected,
	}, nil
}
