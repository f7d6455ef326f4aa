// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cbor

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
)

// Sentinel errors
var (
	ErrIndefiniteLength = errors.New("cbor: indefinite length items are not supported")
	ErrMalformed        = errors.New("cbor: malformed data item")
	ErrDuplicateKey     = errors.New("cbor: duplicate map key")
)

// Entry is one key/value pair of a [Map]. Both are held in encoded form.
type Entry struct {
	Key   RawBytes
	Value RawBytes
}

// Map is a CBOR map which keeps its entries in the order they were decoded or
// added. Keys are compared by their encoded bytes.
type Map []Entry

// MarshalCBOR implements Marshaler. The entries are written in order.
func (m Map) MarshalCBOR() ([]byte, error) {
	out := appendHead(nil, MapType, uint64(len(m)))
	for i, e := range m {
		if len(e.Key) == 0 {
			return nil, fmt.Errorf("cbor: map entry %d has no key", i)
		}
		out = append(out, e.Key...)
		if len(e.Value) == 0 {
			out = append(out, 0xf6)
			continue
		}
		out = append(out, e.Value...)
	}
	return out, nil
}

// UnmarshalCBOR implements Unmarshaler.
func (m *Map) UnmarshalCBOR(data []byte) error {
	if m == nil {
		return errors.New("cbor: cannot unmarshal to a nil pointer")
	}
	mt, n, size, err := readHead(data)
	if err != nil {
		return err
	}
	if mt != MapType {
		return fmt.Errorf("cbor: expected map, got major type %d", mt)
	}
	// Each entry needs at least two bytes
	if n > uint64(len(data)-size)/2 {
		return ErrMalformed
	}

	r := bytes.NewReader(data[size:])
	dec := NewDecoder(r)
	entries := make(Map, 0, int(n))
	for i := uint64(0); i < n; i++ {
		var e Entry
		if err := dec.Decode(&e.Key); err != nil {
			return fmt.Errorf("cbor: map key %d: %w", i, err)
		}
		if err := dec.Decode(&e.Value); err != nil {
			return fmt.Errorf("cbor: map value %d: %w", i, err)
		}
		if _, dup := entries.Lookup(e.Key); dup {
			return fmt.Errorf("%w: %x", ErrDuplicateKey, []byte(e.Key))
		}
		entries = append(entries, e)
	}
	if dec.NumBytesRead() != len(data)-size {
		return ErrMalformed
	}

	*m = entries
	return nil
}

// Lookup returns the encoded value stored under the encoded key.
func (m Map) Lookup(key []byte) (RawBytes, bool) {
	for _, e := range m {
		if bytes.Equal(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

// Get decodes the value stored under key into v. It returns false without
// error if no entry has the key.
func (m Map) Get(key, v any) (bool, error) {
	k, err := Marshal(key)
	if err != nil {
		return false, err
	}
	raw, ok := m.Lookup(k)
	if !ok {
		return false, nil
	}
	if err := Unmarshal(raw, v); err != nil {
		return true, err
	}
	return true, nil
}

// Has reports whether an entry exists for key.
func (m Map) Has(key any) bool {
	k, err := Marshal(key)
	if err != nil {
		return false
	}
	_, ok := m.Lookup(k)
	return ok
}

// Set replaces the value of an existing entry for key or appends a new entry.
func (m *Map) Set(key, value any) error {
	k, err := Marshal(key)
	if err != nil {
		return fmt.Errorf("cbor: error encoding map key: %w", err)
	}
	v, err := Marshal(value)
	if err != nil {
		return fmt.Errorf("cbor: error encoding map value: %w", err)
	}
	for i := range *m {
		if bytes.Equal((*m)[i].Key, k) {
			(*m)[i].Value = v
			return nil
		}
	}
	*m = append(*m, Entry{Key: k, Value: v})
	return nil
}

// Delete removes the entry for key, if present.
func (m *Map) Delete(key any) {
	k, err := Marshal(key)
	if err != nil {
		return
	}
	*m = slices.DeleteFunc(*m, func(e Entry) bool { return bytes.Equal(e.Key, k) })
}

// Sorted returns a copy of m with entries in the bytewise lexicographic order
// of their encoded keys.
func (m Map) Sorted() Map {
	sorted := slices.Clone(m)
	slices.SortStableFunc(sorted, func(a, b Entry) int { return bytes.Compare(a.Key, b.Key) })
	return sorted
}

// IsSorted reports whether the entries of m are in the bytewise lexicographic
// order of their encoded keys.
func (m Map) IsSorted() bool {
	return slices.IsSortedFunc(m, func(a, b Entry) int { return bytes.Compare(a.Key, b.Key) })
}
