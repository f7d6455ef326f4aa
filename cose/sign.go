// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cose

import (
	"errors"
	"fmt"

	"github.com/fido-device-onboard/go-authgraph/cbor"
)

const sig1Context = "Signature1"

// Sign1 is a COSE_Sign1 signature structure, which is used when only one
// signature is being placed on a message.
//
// CDDL:
//
//	COSE_Sign1 = [
//	    protected : bstr .cbor header_map / bstr .size 0,
//	    unprotected : header_map,
//	    payload : bstr / nil,
//	    signature : bstr
//	]
type Sign1 struct {
	// Protected holds the serialized protected header map. It is kept
	// serialized because the signature covers these exact bytes.
	Protected   []byte
	Unprotected cbor.Map
	// Payload is nil when the payload is transported separately.
	Payload   []byte
	Signature []byte
}

// NewSign1 returns a COSE_Sign1 with the algorithm set as its only protected
// header.
func NewSign1(alg Algorithm) (*Sign1, error) {
	var hdr cbor.Map
	if err := hdr.Set(AlgLabel, alg); err != nil {
		return nil, err
	}
	protected, err := cbor.Marshal(hdr)
	if err != nil {
		return nil, err
	}
	return &Sign1{Protected: protected}, nil
}

// MarshalCBOR implements cbor.Marshaler.
func (s1 Sign1) MarshalCBOR() ([]byte, error) {
	unprotected := s1.Unprotected
	if unprotected == nil {
		unprotected = cbor.Map{}
	}
	var payload any
	if s1.Payload != nil {
		payload = s1.Payload
	}
	return cbor.Marshal([]any{orEmpty(s1.Protected), unprotected, payload, orEmpty(s1.Signature)})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (s1 *Sign1) UnmarshalCBOR(data []byte) error {
	if s1 == nil {
		return errors.New("cannot unmarshal to a nil pointer")
	}
	if mt, _ := cbor.Major(data); mt != cbor.ArrayType {
		return errors.New("COSE_Sign1 must be an untagged array")
	}
	var raw struct {
		_           struct{} `cbor:",toarray"`
		Protected   cbor.RawBytes
		Unprotected cbor.Map
		Payload     cbor.RawBytes
		Signature   cbor.RawBytes
	}
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("error decoding COSE_Sign1: %w", err)
	}

	protected, err := decodeBstr(raw.Protected, "protected header")
	if err != nil {
		return err
	}
	if len(protected) > 0 {
		var hdr cbor.Map
		if err := cbor.Unmarshal(protected, &hdr); err != nil {
			return fmt.Errorf("error decoding protected header map: %w", err)
		}
	}
	var payload []byte
	if !cbor.IsNull(raw.Payload) {
		if payload, err = decodeBstr(raw.Payload, "payload"); err != nil {
			return err
		}
	}
	signature, err := decodeBstr(raw.Signature, "signature")
	if err != nil {
		return err
	}

	*s1 = Sign1{
		Protected:   protected,
		Unprotected: raw.Unprotected,
		Payload:     payload,
		Signature:   signature,
	}
	return nil
}

// ProtectedHeader decodes the protected header map.
func (s1 Sign1) ProtectedHeader() (cbor.Map, error) {
	if len(s1.Protected) == 0 {
		return cbor.Map{}, nil
	}
	var hdr cbor.Map
	if err := cbor.Unmarshal(s1.Protected, &hdr); err != nil {
		return nil, err
	}
	return hdr, nil
}

// Algorithm returns the algorithm of the protected header. It returns false
// if no integer algorithm is set.
func (s1 Sign1) Algorithm() (Algorithm, bool) {
	hdr, err := s1.ProtectedHeader()
	if err != nil {
		return 0, false
	}
	var alg int64
	if ok, err := hdr.Get(AlgLabel, &alg); !ok || err != nil {
		return 0, false
	}
	return Algorithm(alg), true
}

// ToBeSigned returns the encoded Sig_structure covering the protected
// header, external AAD and payload.
//
//	Sig_structure = [
//	    context : "Signature1",
//	    body_protected : empty_or_serialized_map,
//	    external_aad : bstr,
//	    payload : bstr
//	]
func (s1 Sign1) ToBeSigned(payload, externalAAD []byte) ([]byte, error) {
	return cbor.Marshal([]any{sig1Context, orEmpty(s1.Protected), orEmpty(externalAAD), orEmpty(payload)})
}

// Sign signs an attached payload. The signer receives the Sig_structure
// bytes and returns the raw signature.
func (s1 *Sign1) Sign(payload, externalAAD []byte, signer func(tbs []byte) ([]byte, error)) error {
	if err := s1.SignDetached(payload, externalAAD, signer); err != nil {
		return err
	}
	s1.Payload = orEmpty(payload)
	return nil
}

// SignDetached signs a payload which is transported separately, leaving the
// Payload field nil.
func (s1 *Sign1) SignDetached(payload, externalAAD []byte, signer func(tbs []byte) ([]byte, error)) error {
	tbs, err := s1.ToBeSigned(payload, externalAAD)
	if err != nil {
		return fmt.Errorf("error encoding Sig_structure: %w", err)
	}
	sig, err := signer(tbs)
	if err != nil {
		return fmt.Errorf("error signing: %w", err)
	}
	s1.Payload = nil
	s1.Signature = sig
	return nil
}

// Verify checks the signature over the attached payload. The verifier
// receives the raw signature and the Sig_structure bytes.
func (s1 Sign1) Verify(externalAAD []byte, verifier func(sig, tbs []byte) error) error {
	if s1.Payload == nil {
		return errors.New("payload was transported independently but Verify expects it attached")
	}
	return s1.VerifyDetached(s1.Payload, externalAAD, verifier)
}

// VerifyDetached checks the signature over a separately transported payload.
// Verification failures wrap ErrVerify.
func (s1 Sign1) VerifyDetached(payload, externalAAD []byte, verifier func(sig, tbs []byte) error) error {
	tbs, err := s1.ToBeSigned(payload, externalAAD)
	if err != nil {
		return fmt.Errorf("error encoding Sig_structure: %w", err)
	}
	if err := verifier(s1.Signature, tbs); err != nil {
		return fmt.Errorf("%w: %w", ErrVerify, err)
	}
	return nil
}

func orEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func decodeBstr(raw cbor.RawBytes, what string) ([]byte, error) {
	if !cbor.IsBytes(raw) {
		return nil, fmt.Errorf("%s must be a byte string", what)
	}
	var b []byte
	if err := cbor.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", what, err)
	}
	return orEmpty(b), nil
}
