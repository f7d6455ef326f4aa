// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cbor

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Major types
const (
	UnsignedIntType MajorType = 0x00
	NegativeIntType MajorType = 0x01
	ByteStringType  MajorType = 0x02
	TextStringType  MajorType = 0x03
	ArrayType       MajorType = 0x04
	MapType         MajorType = 0x05
	TagType         MajorType = 0x06
	PrimitiveType   MajorType = 0x07
)

// MajorType is the high three bits of the initial byte of a data item.
type MajorType byte

// Additional info
const (
	oneByteAddInfo   byte = 24
	twoByteAddInfo   byte = 25
	fourByteAddInfo  byte = 26
	eightByteAddInfo byte = 27
	indefLenAddInfo  byte = 31
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cbor: invalid encoding options: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic("cbor: invalid decoding options: " + err.Error())
	}
}

// Marshaler is the interface implemented by types that can marshal themselves
// into valid CBOR.
type Marshaler = cbor.Marshaler

// Unmarshaler is the interface implemented by types that wish to unmarshal
// CBOR themselves.
type Unmarshaler = cbor.Unmarshaler

// RawBytes is an encoded CBOR data item. It is encoded as is and decoding
// stores a copy of the item.
type RawBytes = cbor.RawMessage

// Encoder writes CBOR values to an output stream.
type Encoder = cbor.Encoder

// Decoder reads CBOR values from an input stream.
type Decoder = cbor.Decoder

// Marshal returns the deterministic encoding of v.
func Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodes exactly one CBOR data item from data into v. It is an
// error for data to contain bytes after the item.
func Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// NewEncoder returns a new encoder that writes to w using deterministic
// encoding.
func NewEncoder(w io.Writer) *Encoder { return encMode.NewEncoder(w) }

// NewDecoder returns a new decoder that reads from r using the strict
// decoding options.
func NewDecoder(r io.Reader) *Decoder { return decMode.NewDecoder(r) }

// Major returns the major type of an encoded data item. It returns false if
// item is empty.
func Major(item []byte) (MajorType, bool) {
	if len(item) == 0 {
		return 0, false
	}
	return MajorType(item[0] >> 5), true
}

// IsInt reports whether item encodes an unsigned or negative integer.
func IsInt(item []byte) bool {
	mt, ok := Major(item)
	return ok && (mt == UnsignedIntType || mt == NegativeIntType)
}

// IsBytes reports whether item encodes a byte string.
func IsBytes(item []byte) bool {
	mt, ok := Major(item)
	return ok && mt == ByteStringType
}

// IsNull reports whether item encodes the simple value null.
func IsNull(item []byte) bool {
	return len(item) == 1 && item[0] == 0xf6
}

// appendHead appends the initial byte and argument of a data item using the
// shortest form.
func appendHead(b []byte, mt MajorType, n uint64) []byte {
	hi := byte(mt) << 5
	switch {
	case n < uint64(oneByteAddInfo):
		return append(b, hi|byte(n))
	case n <= 0xff:
		return append(b, hi|oneByteAddInfo, byte(n))
	case n <= 0xffff:
		return append(b, hi|twoByteAddInfo, byte(n>>8), byte(n))
	case n <= 0xffffffff:
		return append(b, hi|fourByteAddInfo, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	default:
		return append(b, hi|eightByteAddInfo,
			byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
			byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
}

// readHead parses the initial byte and argument of a definite length data
// item. It returns the major type, the argument and the number of bytes the
// head occupies.
func readHead(b []byte) (MajorType, uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, 0, io.ErrUnexpectedEOF
	}
	mt, info := MajorType(b[0]>>5), b[0]&0x1f
	var size int
	switch {
	case info < oneByteAddInfo:
		return mt, uint64(info), 1, nil
	case info == oneByteAddInfo:
		size = 1
	case info == twoByteAddInfo:
		size = 2
	case info == fourByteAddInfo:
		size = 4
	case info == eightByteAddInfo:
		size = 8
	case info == indefLenAddInfo:
		return 0, 0, 0, ErrIndefiniteLength
	default:
		return 0, 0, 0, ErrMalformed
	}
	if len(b) < 1+size {
		return 0, 0, 0, io.ErrUnexpectedEOF
	}
	var n uint64
	for _, c := range b[1 : 1+size] {
		n = n<<8 | uint64(c)
	}
	return mt, n, 1 + size, nil
}
