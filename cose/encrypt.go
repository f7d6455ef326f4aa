// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cose

import (
	"errors"
	"fmt"
	"io"

	"github.com/fido-device-onboard/go-authgraph/cbor"
)

const (
	encrypt0Context = "Encrypt0"

	// GCMNonceSize is the IV length used with AES-GCM.
	GCMNonceSize = 12
)

// Crypter encrypts and decrypts data using an AEAD cipher bound to a key.
type Crypter interface {
	// Encrypt returns the ciphertext with the authentication tag appended.
	Encrypt(plaintext, aad, iv []byte) ([]byte, error)

	// Decrypt authenticates and decrypts a ciphertext produced by Encrypt.
	Decrypt(ciphertext, aad, iv []byte) ([]byte, error)
}

// Encrypt0 holds the encrypted content of an enveloped structure. It contains
// no recipient information, so the recipient must already know the key.
//
// CDDL:
//
//	COSE_Encrypt0 = [
//	    protected : bstr .cbor header_map / bstr .size 0,
//	    unprotected : header_map,
//	    ciphertext : bstr / nil,
//	]
type Encrypt0 struct {
	Protected   []byte
	Unprotected cbor.Map
	Ciphertext  []byte
}

// NewEncrypt0 returns an Encrypt0 whose protected header is the given map.
func NewEncrypt0(protected cbor.Map) (*Encrypt0, error) {
	if len(protected) == 0 {
		return &Encrypt0{Protected: []byte{}}, nil
	}
	data, err := cbor.Marshal(protected)
	if err != nil {
		return nil, fmt.Errorf("error encoding protected header map: %w", err)
	}
	return &Encrypt0{Protected: data}, nil
}

// MarshalCBOR implements cbor.Marshaler.
func (e0 Encrypt0) MarshalCBOR() ([]byte, error) {
	unprotected := e0.Unprotected
	if unprotected == nil {
		unprotected = cbor.Map{}
	}
	var ciphertext any
	if e0.Ciphertext != nil {
		ciphertext = e0.Ciphertext
	}
	return cbor.Marshal([]any{orEmpty(e0.Protected), unprotected, ciphertext})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (e0 *Encrypt0) UnmarshalCBOR(data []byte) error {
	if e0 == nil {
		return errors.New("cannot unmarshal to a nil pointer")
	}
	if mt, _ := cbor.Major(data); mt != cbor.ArrayType {
		return errors.New("COSE_Encrypt0 must be an untagged array")
	}
	var raw struct {
		_           struct{} `cbor:",toarray"`
		Protected   cbor.RawBytes
		Unprotected cbor.Map
		Ciphertext  cbor.RawBytes
	}
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("error decoding COSE_Encrypt0: %w", err)
	}
	protected, err := decodeBstr(raw.Protected, "protected header")
	if err != nil {
		return err
	}
	var ciphertext []byte
	if !cbor.IsNull(raw.Ciphertext) {
		if ciphertext, err = decodeBstr(raw.Ciphertext, "ciphertext"); err != nil {
			return err
		}
	}
	*e0 = Encrypt0{
		Protected:   protected,
		Unprotected: raw.Unprotected,
		Ciphertext:  ciphertext,
	}
	return nil
}

// ProtectedHeader decodes the protected header map.
func (e0 Encrypt0) ProtectedHeader() (cbor.Map, error) {
	if len(e0.Protected) == 0 {
		return cbor.Map{}, nil
	}
	var hdr cbor.Map
	if err := cbor.Unmarshal(e0.Protected, &hdr); err != nil {
		return nil, err
	}
	return hdr, nil
}

// Encrypt sets the ciphertext of plaintext, generating a random IV which is
// stored in the unprotected header.
func (e0 *Encrypt0) Encrypt(c Crypter, rng io.Reader, plaintext, externalAAD []byte) error {
	iv := make([]byte, GCMNonceSize)
	if _, err := io.ReadFull(rng, iv); err != nil {
		return fmt.Errorf("error generating IV: %w", err)
	}
	aad, err := e0.encStructure(externalAAD)
	if err != nil {
		return err
	}
	ciphertext, err := c.Encrypt(plaintext, aad, iv)
	if err != nil {
		return fmt.Errorf("error encrypting plaintext: %w", err)
	}
	if err := e0.Unprotected.Set(IVLabel, iv); err != nil {
		return err
	}
	e0.Ciphertext = ciphertext
	return nil
}

// Decrypt returns the plaintext of the ciphertext using the IV stored in the
// unprotected header.
func (e0 Encrypt0) Decrypt(c Crypter, externalAAD []byte) ([]byte, error) {
	if e0.Ciphertext == nil {
		return nil, errors.New("nil ciphertext")
	}
	var iv []byte
	if ok, err := e0.Unprotected.Get(IVLabel, &iv); err != nil {
		return nil, fmt.Errorf("invalid IV header: %w", err)
	} else if !ok {
		return nil, errors.New("missing IV header")
	}
	if len(iv) != GCMNonceSize {
		return nil, fmt.Errorf("invalid IV length: %d", len(iv))
	}
	aad, err := e0.encStructure(externalAAD)
	if err != nil {
		return nil, err
	}
	plaintext, err := c.Decrypt(e0.Ciphertext, aad, iv)
	if err != nil {
		return nil, fmt.Errorf("error decrypting ciphertext: %w", err)
	}
	return plaintext, nil
}

// Build and encode Enc_structure
//
//	Enc_structure = [
//	    context : "Encrypt0",
//	    protected : empty_or_serialized_map,
//	    external_aad : bstr
//	]
func (e0 Encrypt0) encStructure(externalAAD []byte) ([]byte, error) {
	aad, err := cbor.Marshal([]any{encrypt0Context, orEmpty(e0.Protected), orEmpty(externalAAD)})
	if err != nil {
		return nil, fmt.Errorf("error encoding Enc_structure: %w", err)
	}
	return aad, nil
}
