// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cose_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fido-device-onboard/go-authgraph/cbor"
	"github.com/fido-device-onboard/go-authgraph/cose"
)

func ed25519Signer(priv ed25519.PrivateKey) func([]byte) ([]byte, error) {
	return func(tbs []byte) ([]byte, error) { return ed25519.Sign(priv, tbs), nil }
}

func ed25519Verifier(pub ed25519.PublicKey) func(sig, tbs []byte) error {
	return func(sig, tbs []byte) error {
		if !ed25519.Verify(pub, tbs, sig) {
			return errors.New("bad signature")
		}
		return nil
	}
}

func TestSign1Detached(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	s1, err := cose.NewSign1(cose.EdDSAAlg)
	require.NoError(t, err)
	payload := []byte("session id")
	require.NoError(t, s1.SignDetached(payload, nil, ed25519Signer(priv)))
	assert.Nil(t, s1.Payload)

	data, err := cbor.Marshal(s1)
	require.NoError(t, err)
	// [h'a10127', {}, null, h'...']
	assert.Equal(t, []byte{0x84, 0x43, 0xa1, 0x01, 0x27, 0xa0, 0xf6}, data[:7])

	var got cose.Sign1
	require.NoError(t, cbor.Unmarshal(data, &got))
	alg, ok := got.Algorithm()
	require.True(t, ok)
	assert.Equal(t, cose.EdDSAAlg, alg)

	require.NoError(t, got.VerifyDetached(payload, nil, ed25519Verifier(pub)))
	err = got.VerifyDetached([]byte("other"), nil, ed25519Verifier(pub))
	assert.ErrorIs(t, err, cose.ErrVerify)
	err = got.VerifyDetached(payload, []byte("aad"), ed25519Verifier(pub))
	assert.ErrorIs(t, err, cose.ErrVerify)
	assert.Error(t, got.Verify(nil, ed25519Verifier(pub)), "no attached payload")
}

func TestSign1Attached(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	s1, err := cose.NewSign1(cose.EdDSAAlg)
	require.NoError(t, err)
	require.NoError(t, s1.Sign([]byte{0xa0}, nil, ed25519Signer(priv)))

	data, err := cbor.Marshal(s1)
	require.NoError(t, err)

	var got cose.Sign1
	require.NoError(t, cbor.Unmarshal(data, &got))
	assert.Equal(t, []byte{0xa0}, got.Payload)
	require.NoError(t, got.Verify(nil, ed25519Verifier(pub)))

	got.Payload[0] = 0xa1
	assert.ErrorIs(t, got.Verify(nil, ed25519Verifier(pub)), cose.ErrVerify)
}

func TestSign1DecodeErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		data []byte
	}{
		{name: "too few items", data: []byte{0x83, 0x40, 0xa0, 0xf6}},
		{name: "protected not bytes", data: []byte{0x84, 0xa0, 0xa0, 0xf6, 0x40}},
		{name: "protected not a map", data: []byte{0x84, 0x41, 0x01, 0xa0, 0xf6, 0x40}},
		{name: "null signature", data: []byte{0x84, 0x40, 0xa0, 0xf6, 0xf6}},
		{name: "tagged", data: []byte{0xd2, 0x84, 0x40, 0xa0, 0xf6, 0x40}},
	} {
		t.Run(test.name, func(t *testing.T) {
			var s1 cose.Sign1
			assert.Error(t, cbor.Unmarshal(test.data, &s1))
		})
	}
}
