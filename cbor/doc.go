// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

/*
Package cbor provides the RFC 8949 Concise Binary Object Representation
(CBOR) encoding used by every AuthGraph message.

Encoding always uses the core deterministic encoding rules of RFC 8949 section
4.2.1: preferred serialization of integers and lengths, definite lengths only
and map keys sorted by the bytewise lexicographic order of their encodings.
Decoding is strict. Indefinite lengths, duplicate map keys and trailing bytes
after the top-level data item are all errors.

The actual codec is provided by [github.com/fxamacker/cbor/v2]. This package
fixes its options and adds the few types AuthGraph needs on top of it.

# Byte-wrapped values

Many AuthGraph structures embed the encoding of another structure inside a
byte string, written in CDDL as "bstr .cbor T". [Bstr] handles this wrapping:

	type Identity struct {
		Version   int
		CertChain cbor.Bstr[CertChain]
	}

# Ordered maps

Go maps cannot represent the order of entries in an encoded CBOR map, but the
canonical form of a COSE_Key depends on that order. [Map] keeps each entry as
encoded key and value bytes in the order they were read, so that a value can be
checked for canonical form and re-encoded exactly as it was received.

	var m cbor.Map
	if err := cbor.Unmarshal(data, &m); err != nil {
		return err
	}
	if !m.IsSorted() {
		m = m.Sorted()
	}

# Raw bytes

[RawBytes] holds an already encoded data item. It is written as is, except that
a nil or empty value is written as null.
*/
package cbor
