// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

import (
	"crypto/rand"
	"crypto/sha256"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/hkdf"

	"github.com/fido-device-onboard/go-authgraph/cbor"
	"github.com/fido-device-onboard/go-authgraph/cose"
)

type testSha256 struct{}

func (testSha256) ComputeSha256(data []byte) ([SHA256Len]byte, error) {
	return sha256.Sum256(data), nil
}

type testHkdf struct{}

func (testHkdf) Extract(salt []byte, ikm EcdhSecret) (PseudoRandKey, error) {
	var prk PseudoRandKey
	copy(prk[:], hkdf.Extract(sha256.New, ikm, salt))
	return prk, nil
}

func (testHkdf) Expand(prk *PseudoRandKey, context []byte) (PseudoRandKey, error) {
	var okm PseudoRandKey
	_, err := io.ReadFull(hkdf.Expand(sha256.New, prk[:], context), okm[:])
	return okm, err
}

func TestDeriveSharedKeys(t *testing.T) {
	secret := make(EcdhSecret, 32)
	_, _ = rand.Read(secret)
	salt := []byte("salt")

	sink, err := deriveSharedKeys(testHkdf{}, secret, salt, Sink)
	require.NoError(t, err)
	source, err := deriveSharedKeys(testHkdf{}, secret, salt, Source)
	require.NoError(t, err)

	assert.Equal(t, sink.In, source.Out)
	assert.Equal(t, sink.Out, source.In)
	assert.Equal(t, sink.Hmac, source.Hmac)
	assert.NotEqual(t, sink.In, sink.Out)
	assert.False(t, sink.In.IsZero())

	other, err := deriveSharedKeys(testHkdf{}, secret, []byte("other salt"), Sink)
	require.NoError(t, err)
	assert.NotEqual(t, sink.In, other.In)

	sink.zeroize()
	assert.True(t, sink.In.IsZero())
	assert.True(t, sink.Out.IsZero())
	assert.Equal(t, HmacKey{}, sink.Hmac)

	_, err = deriveSharedKeys(testHkdf{}, secret, salt, Role(0))
	assert.Equal(t, InternalError, CodeOf(err))
}

func TestComputeSalt(t *testing.T) {
	pub := cose.Key{}
	require.NoError(t, pub.Set(cose.KeyTypeKeyLabel, cose.EC2KeyType))
	in := saltInput{
		SourceVersion:  1,
		SinkKePubKey:   cbor.Bstr[cose.Key]{Val: pub},
		SourceKePubKey: cbor.Bstr[cose.Key]{Val: pub},
		SinkKeNonce:    make([]byte, NonceLen),
		SourceKeNonce:  make([]byte, NonceLen),
	}

	data, err := cbor.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, byte(0x87), data[0], "array of seven")
	assert.Equal(t, byte(0x01), data[1], "source version")
	assert.Equal(t, []byte{0x43, 0xa1, 0x01, 0x02}, data[2:6], "bstr wrapped key")

	salt, err := computeSalt(testSha256{}, in)
	require.NoError(t, err)
	assert.Equal(t, sha256.Sum256(data), salt)

	in.SourceVersion = 2
	other, err := computeSalt(testSha256{}, in)
	require.NoError(t, err)
	assert.NotEqual(t, salt, other)
}

func TestSessionIDInput(t *testing.T) {
	data, err := cbor.Marshal(sessionIDInput{SinkKeNonce: []byte{1}, SourceKeNonce: []byte{2}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x82, 0x41, 0x01, 0x41, 0x02}, data)
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "source", Source.String())
	assert.Equal(t, "sink", Sink.String())
	assert.Equal(t, "unknown role", Role(9).String())
}
