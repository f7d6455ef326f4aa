// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package cose implements the parts of CBOR Object Signing and Encryption
// (COSE, RFC 9052/9053) used by AuthGraph: COSE_Key, COSE_Sign1 with attached
// or detached payloads and COSE_Encrypt0.
//
// All structures are encoded untagged.
package cose

import (
	"crypto"
	"errors"
)

/*
COSE Tags

	+-------+---------------+---------------+---------------------------+
	| CBOR  | cose-type     | Data Item     | Semantics                 |
	| Tag   |               |               |                           |
	+-------+---------------+---------------+---------------------------+
	| 18    | cose-sign1    | COSE_Sign1    | COSE Single Signer Data   |
	|       |               |               | Object                    |
	| 16    | cose-encrypt0 | COSE_Encrypt0 | COSE Single Recipient     |
	|       |               |               | Encrypted Data Object     |
	+-------+---------------+---------------+---------------------------+
*/
const (
	Sign1TagNum    uint64 = 18
	Encrypt0TagNum uint64 = 16
)

// Sentinel errors
var (
	ErrVerify      = errors.New("cose: signature verification failed")
	ErrUnsupported = errors.New("cose: unsupported algorithm")
)

// Label is an integer map label. COSE also allows text labels, which are
// treated as opaque entries by this package.
type Label = int64

// Header labels
//
//	+------+-------+------------+
//	| Name | Label | Value Type |
//	+------+-------+------------+
//	| alg  | 1     | int / tstr |
//	| kid  | 4     | bstr       |
//	| IV   | 5     | bstr       |
//	+------+-------+------------+
const (
	AlgLabel Label = 1
	KidLabel Label = 4
	IVLabel  Label = 5
)

// Algorithm is a COSE algorithm identifier.
type Algorithm int64

// Algorithms
//
//	+--------------------+-------+----------------------------------+
//	| Name               | Value | Description                      |
//	+--------------------+-------+----------------------------------+
//	| EdDSA              | -8    | EdDSA                            |
//	| ES256              | -7    | ECDSA w/ SHA-256                 |
//	| ES384              | -35   | ECDSA w/ SHA-384                 |
//	| ECDH-ES + HKDF-256 | -25   | ECDH ES w/ HKDF, SHA-256         |
//	| A256GCM            | 3     | AES-GCM mode w/ 256-bit key      |
//	+--------------------+-------+----------------------------------+
const (
	EdDSAAlg         Algorithm = -8
	ES256Alg         Algorithm = -7
	ES384Alg         Algorithm = -35
	ECDHESHKDF256Alg Algorithm = -25
	A256GCMAlg       Algorithm = 3
)

// HashFunc returns the hash used to compute the signature input for the
// algorithm. EdDSA signs the message directly and returns zero.
func (alg Algorithm) HashFunc() crypto.Hash {
	switch alg {
	case ES256Alg:
		return crypto.SHA256
	case ES384Alg:
		return crypto.SHA384
	default:
		return 0
	}
}

func (alg Algorithm) String() string {
	switch alg {
	case EdDSAAlg:
		return "EdDSA"
	case ES256Alg:
		return "ES256"
	case ES384Alg:
		return "ES384"
	case ECDHESHKDF256Alg:
		return "ECDH-ES+HKDF-256"
	case A256GCMAlg:
		return "A256GCM"
	default:
		return "unknown"
	}
}
