// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cose

import (
	"bytes"
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"errors"
	"fmt"
	"math/big"

	"github.com/fido-device-onboard/go-authgraph/cbor"
)

// Common Parameters
//
// +---------+-------+----------------+------------+-------------------+
// | Name    | Label | CBOR Type      | Value      | Description       |
// |         |       |                | Registry   |                   |
// +---------+-------+----------------+------------+-------------------+
// | kty     | 1     | tstr / int     | COSE Key   | Identification of |
// |         |       |                | Common     | the key type      |
// |         |       |                | Parameters |                   |
// | kid     | 2     | bstr           |            | Key               |
// |         |       |                |            | identification    |
// | alg     | 3     | tstr / int     | COSE       | Key usage         |
// |         |       |                | Algorithms | restriction to    |
// |         |       |                |            | this algorithm    |
// | key_ops | 4     | [+ (tstr/int)] |            | Restrict set of   |
// |         |       |                |            | permissible       |
// |         |       |                |            | operations        |
// +---------+-------+----------------+------------+-------------------+

// EC2 and OKP Parameters
//
// +-------+------+-------+--------+-----------------------------------+
// | Key   | Name | Label | CBOR   | Description                       |
// | Type  |      |       | Type   |                                   |
// +-------+------+-------+--------+-----------------------------------+
// | 1, 2  | crv  | -1    | int /  | EC identifier                     |
// |       |      |       | tstr   |                                   |
// | 1, 2  | x    | -2    | bstr   | x-coordinate or public key        |
// | 2     | y    | -3    | bstr / | y-coordinate                      |
// |       |      |       | bool   |                                   |
// | 1, 2  | d    | -4    | bstr   | Private key                       |
// +-------+------+-------+--------+-----------------------------------+
const (
	KeyTypeKeyLabel Label = 1
	KeyIDKeyLabel   Label = 2
	AlgKeyLabel     Label = 3
	KeyOpsKeyLabel  Label = 4
	CrvKeyLabel     Label = -1
	XKeyLabel       Label = -2
	YKeyLabel       Label = -3
	DKeyLabel       Label = -4
)

// KeyType is the "kty" value of a COSE_Key.
//
// +-----------+-------+-----------------------------------------------+
// | Name      | Value | Description                                   |
// +-----------+-------+-----------------------------------------------+
// | OKP       | 1     | Octet Key Pair                                |
// | EC2       | 2     | Elliptic Curve Keys w/ x- and y-coordinate    |
// |           |       | pair                                          |
// | Symmetric | 4     | Symmetric Keys                                |
// +-----------+-------+-----------------------------------------------+
type KeyType int64

// Key types
const (
	OKPKeyType       KeyType = 1
	EC2KeyType       KeyType = 2
	SymmetricKeyType KeyType = 4
)

// Curve is the "crv" value of an EC2 or OKP COSE_Key.
//
// +---------+-------+----------+------------------------------------+
// | Name    | Value | Key Type | Description                        |
// +---------+-------+----------+------------------------------------+
// | P-256   | 1     | EC2      | NIST P-256 also known as secp256r1 |
// | P-384   | 2     | EC2      | NIST P-384 also known as secp384r1 |
// | P-521   | 3     | EC2      | NIST P-521 also known as secp521r1 |
// | X25519  | 4     | OKP      | X25519 for use w/ ECDH only        |
// | Ed25519 | 6     | OKP      | Ed25519 for use w/ EdDSA only      |
// +---------+-------+----------+------------------------------------+
type Curve int64

// Curves
const (
	P256Curve    Curve = 1
	P384Curve    Curve = 2
	P521Curve    Curve = 3
	X25519Curve  Curve = 4
	Ed25519Curve Curve = 6
)

// Key operations
const (
	SignKeyOp   int64 = 1
	VerifyKeyOp int64 = 2
)

// Key is a COSE_Key. The entries are kept in encoded form and in the order
// they were decoded, so that the canonical form of a received key can be
// checked and the key re-encoded byte for byte.
//
// CDDL:
//
//	COSE_Key = {
//	    1 => tstr / int,          ; kty
//	    ? 2 => bstr,              ; kid
//	    ? 3 => tstr / int,        ; alg
//	    ? 4 => [+ (tstr / int) ], ; key_ops
//	    ? 5 => bstr,              ; Base IV
//	    * label => values
//	}
type Key cbor.Map

// NewKey creates a public COSE_Key for an Ed25519 or ECDSA public key. The
// entries are written in canonical order: kty, alg, crv, x and y.
func NewKey(pub crypto.PublicKey, alg Algorithm) (Key, error) {
	var k Key
	switch pub := pub.(type) {
	case ed25519.PublicKey:
		if err := k.setAll(
			KeyTypeKeyLabel, OKPKeyType,
			AlgKeyLabel, alg,
			CrvKeyLabel, Ed25519Curve,
			XKeyLabel, []byte(pub),
		); err != nil {
			return nil, err
		}
		return k, nil

	case *ecdsa.PublicKey:
		crv, size, err := curveOf(pub.Curve)
		if err != nil {
			return nil, err
		}
		x := make([]byte, size)
		y := make([]byte, size)
		pub.X.FillBytes(x)
		pub.Y.FillBytes(y)
		if err := k.setAll(
			KeyTypeKeyLabel, EC2KeyType,
			AlgKeyLabel, alg,
			CrvKeyLabel, crv,
			XKeyLabel, x,
			YKeyLabel, y,
		); err != nil {
			return nil, err
		}
		return k, nil

	case *ecdh.PublicKey:
		if pub.Curve() != ecdh.P256() {
			return nil, fmt.Errorf("unsupported ECDH curve: %s", pub.Curve())
		}
		raw := pub.Bytes() // 0x04 || x || y
		if err := k.setAll(
			KeyTypeKeyLabel, EC2KeyType,
			AlgKeyLabel, alg,
			CrvKeyLabel, P256Curve,
			XKeyLabel, raw[1:33],
			YKeyLabel, raw[33:65],
		); err != nil {
			return nil, err
		}
		return k, nil

	default:
		return nil, fmt.Errorf("unsupported key type: %T", pub)
	}
}

func (k *Key) setAll(kvs ...any) error {
	for i := 0; i+1 < len(kvs); i += 2 {
		if err := k.Set(kvs[i].(Label), kvs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func curveOf(c elliptic.Curve) (Curve, int, error) {
	switch c {
	case elliptic.P256():
		return P256Curve, 32, nil
	case elliptic.P384():
		return P384Curve, 48, nil
	default:
		return 0, 0, fmt.Errorf("unsupported curve: %s", c.Params().Name)
	}
}

// MarshalCBOR implements cbor.Marshaler.
func (k Key) MarshalCBOR() ([]byte, error) {
	if !cbor.Map(k).Has(KeyTypeKeyLabel) {
		return nil, errors.New("key type is required and missing")
	}
	return cbor.Map(k).MarshalCBOR()
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (k *Key) UnmarshalCBOR(data []byte) error {
	var m cbor.Map
	if err := m.UnmarshalCBOR(data); err != nil {
		return err
	}
	raw, ok := m.Lookup([]byte{byte(KeyTypeKeyLabel)})
	if !ok {
		return errors.New("key type is required and missing")
	}
	if bytes.Equal(raw, []byte{0x00}) {
		return errors.New("key type 0 is reserved")
	}
	*k = Key(m)
	return nil
}

// Set replaces or appends a parameter.
func (k *Key) Set(label Label, value any) error {
	return (*cbor.Map)(k).Set(label, value)
}

// Get decodes a parameter into v. It returns false if the parameter is
// absent.
func (k Key) Get(label Label, v any) (bool, error) {
	return cbor.Map(k).Get(label, v)
}

func (k Key) intParam(label Label) (int64, bool) {
	var v int64
	if ok, err := k.Get(label, &v); !ok || err != nil {
		return 0, false
	}
	return v, true
}

func (k Key) bytesParam(label Label) ([]byte, bool) {
	var v []byte
	if ok, err := k.Get(label, &v); !ok || err != nil {
		return nil, false
	}
	return v, true
}

// Kty returns the key type. It returns false if the value is missing or not an
// integer.
func (k Key) Kty() (KeyType, bool) {
	v, ok := k.intParam(KeyTypeKeyLabel)
	return KeyType(v), ok
}

// Alg returns the algorithm. It returns false if the value is missing or not
// an integer.
func (k Key) Alg() (Algorithm, bool) {
	v, ok := k.intParam(AlgKeyLabel)
	return Algorithm(v), ok
}

// Crv returns the curve. It returns false if the value is missing or not an
// integer.
func (k Key) Crv() (Curve, bool) {
	v, ok := k.intParam(CrvKeyLabel)
	return Curve(v), ok
}

// X returns the x-coordinate, or the public key of an OKP key.
func (k Key) X() ([]byte, bool) { return k.bytesParam(XKeyLabel) }

// Y returns the y-coordinate of an EC2 key.
func (k Key) Y() ([]byte, bool) { return k.bytesParam(YKeyLabel) }

// D returns the private key.
func (k Key) D() ([]byte, bool) { return k.bytesParam(DKeyLabel) }

// Canonicalize returns a copy of the key with every label and value in
// deterministic encoding and the entries in the bytewise lexicographic order
// of their encoded labels.
func (k Key) Canonicalize() Key {
	out := make(cbor.Map, len(k))
	for i, e := range k {
		out[i] = cbor.Entry{Key: deterministic(e.Key), Value: deterministic(e.Value)}
	}
	return Key(out.Sorted())
}

// IsCanonical reports whether canonicalizing the key leaves its encoding
// unchanged.
func (k Key) IsCanonical() bool { return k.Equal(k.Canonicalize()) }

// deterministic re-encodes a data item. Items which do not decode are kept
// as is.
func deterministic(item cbor.RawBytes) cbor.RawBytes {
	var v any
	if err := cbor.Unmarshal(item, &v); err != nil {
		return item
	}
	re, err := cbor.Marshal(v)
	if err != nil {
		return item
	}
	return re
}

// Equal reports whether two keys have the same encoding.
func (k Key) Equal(other Key) bool {
	a, err := cbor.Marshal(k)
	if err != nil {
		return false
	}
	b, err := cbor.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// CheckParams checks that the key type, algorithm and curve are all present
// and equal to the expected values.
func (k Key) CheckParams(kty KeyType, alg Algorithm, crv Curve) error {
	if got, ok := k.Kty(); !ok || got != kty {
		return fmt.Errorf("expected key type %d, got %d (present: %t)", kty, got, ok)
	}
	if got, ok := k.Alg(); !ok || got != alg {
		return fmt.Errorf("expected algorithm %s, got %s (present: %t)", alg, got, ok)
	}
	if got, ok := k.Crv(); !ok || got != crv {
		return fmt.Errorf("expected curve %d, got %d (present: %t)", crv, got, ok)
	}
	return nil
}

// Public returns the public portion of the key as an ed25519.PublicKey or an
// *ecdsa.PublicKey.
func (k Key) Public() (crypto.PublicKey, error) {
	kty, ok := k.Kty()
	if !ok {
		return nil, errors.New("key type missing or invalid")
	}
	crv, ok := k.Crv()
	if !ok {
		return nil, errors.New("curve missing or invalid")
	}
	x, ok := k.X()
	if !ok {
		return nil, errors.New("x parameter missing or invalid")
	}

	switch kty {
	case OKPKeyType:
		if crv != Ed25519Curve {
			return nil, fmt.Errorf("unsupported OKP curve: %d", crv)
		}
		if len(x) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid Ed25519 public key length: %d", len(x))
		}
		return ed25519.PublicKey(bytes.Clone(x)), nil

	case EC2KeyType:
		var curve elliptic.Curve
		switch crv {
		case P256Curve:
			curve = elliptic.P256()
		case P384Curve:
			curve = elliptic.P384()
		default:
			return nil, fmt.Errorf("unsupported EC2 curve: %d", crv)
		}
		y, ok := k.Y()
		if !ok {
			return nil, errors.New("y parameter missing or invalid")
		}
		size := (curve.Params().BitSize + 7) / 8
		if len(x) != size || len(y) != size {
			return nil, fmt.Errorf("invalid coordinate length for curve %d", crv)
		}
		pub := &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		}
		// Reject points not on the curve
		if _, err := pub.ECDH(); err != nil {
			return nil, fmt.Errorf("invalid EC2 public key: %w", err)
		}
		return pub, nil

	default:
		return nil, fmt.Errorf("unsupported key type: %d", kty)
	}
}
