// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cbor

import (
	"errors"
	"fmt"
)

// Bstr is a byte string which holds the encoding of a T, written in CDDL as
// "bstr .cbor T".
type Bstr[T any] struct {
	Val T
}

// NewBstr is a helper to create a byte string wrapping a value.
func NewBstr[T any](v T) *Bstr[T] {
	return &Bstr[T]{Val: v}
}

// MarshalCBOR implements Marshaler interface.
func (b Bstr[T]) MarshalCBOR() ([]byte, error) {
	data, err := Marshal(b.Val)
	if err != nil {
		return nil, err
	}
	return Marshal(data)
}

// UnmarshalCBOR implements Unmarshaler interface.
func (b *Bstr[T]) UnmarshalCBOR(p []byte) error {
	if b == nil {
		return errors.New("cannot unmarshal to a nil pointer")
	}
	var data []byte
	if err := Unmarshal(p, &data); err != nil {
		return err
	}
	if err := Unmarshal(data, &b.Val); err != nil {
		return fmt.Errorf("error decoding wrapped %T: %w", b.Val, err)
	}
	return nil
}
