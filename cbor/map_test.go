// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cbor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fido-device-onboard/go-authgraph/cbor"
)

func TestMapPreservesOrder(t *testing.T) {
	// {3: -7, 1: 2}
	data := []byte{0xa2, 0x03, 0x26, 0x01, 0x02}

	var m cbor.Map
	require.NoError(t, cbor.Unmarshal(data, &m))
	require.Len(t, m, 2)
	assert.False(t, m.IsSorted())

	out, err := cbor.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, data, out, "re-encoding must not reorder entries")

	sorted, err := cbor.Marshal(m.Sorted())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa2, 0x01, 0x02, 0x03, 0x26}, sorted)
	assert.True(t, m.Sorted().IsSorted())
	assert.False(t, m.IsSorted(), "Sorted must not modify the receiver")
}

func TestMapBytewiseOrder(t *testing.T) {
	// Keys 10 (0x0a), -1 (0x20), 100 (0x18 0x64) sort as 0x0a < 0x18 < 0x20
	var m cbor.Map
	require.NoError(t, m.Set(-1, "a"))
	require.NoError(t, m.Set(10, "b"))
	require.NoError(t, m.Set(100, "c"))

	var keys []int
	for _, e := range m.Sorted() {
		var k int
		require.NoError(t, cbor.Unmarshal(e.Key, &k))
		keys = append(keys, k)
	}
	assert.Equal(t, []int{10, 100, -1}, keys)
}

func TestMapAccessors(t *testing.T) {
	var m cbor.Map
	require.NoError(t, m.Set(1, []byte{0xaa}))
	require.NoError(t, m.Set("name", "value"))
	require.NoError(t, m.Set(1, []byte{0xbb}))
	require.Len(t, m, 2)

	var b []byte
	ok, err := m.Get(1, &b)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0xbb}, b)

	var s string
	ok, err = m.Get(2, &s)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.Get("name", &b)
	assert.True(t, ok)
	assert.Error(t, err, "text value cannot decode into bytes")

	assert.True(t, m.Has("name"))
	m.Delete("name")
	assert.False(t, m.Has("name"))
	assert.Len(t, m, 1)
}

func TestMapUnmarshalErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		data []byte
	}{
		{name: "not a map", data: []byte{0x80}},
		{name: "duplicate key", data: []byte{0xa2, 0x01, 0x01, 0x01, 0x02}},
		{name: "indefinite length", data: []byte{0xbf, 0x01, 0x01, 0xff}},
		{name: "truncated", data: []byte{0xa2, 0x01, 0x01}},
	} {
		t.Run(test.name, func(t *testing.T) {
			var m cbor.Map
			assert.Error(t, cbor.Unmarshal(test.data, &m))
		})
	}
}

func TestMapEmpty(t *testing.T) {
	out, err := cbor.Marshal(cbor.Map{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa0}, out)

	var m cbor.Map
	require.NoError(t, cbor.Unmarshal([]byte{0xa0}, &m))
	assert.Empty(t, m)
}
