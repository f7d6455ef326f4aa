// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package arc

import (
	"errors"
	"fmt"

	"github.com/fido-device-onboard/go-authgraph/cbor"
)

// Permissions labels
const (
	SourceIDLabel int64 = -4770552
	SinkIDLabel   int64 = -4770553
)

// Permissions names the identities allowed to use the payload of an arc. Both
// identities are held in their encoded form.
//
//	Permissions = {
//	    ? -4770552 : Identity, ; source_id
//	    ? -4770553 : Identity, ; sink_id
//	}
type Permissions struct {
	SourceID cbor.RawBytes
	SinkID   cbor.RawBytes
}

// MarshalCBOR implements cbor.Marshaler.
func (p Permissions) MarshalCBOR() ([]byte, error) {
	var m cbor.Map
	for _, e := range []struct {
		label int64
		id    cbor.RawBytes
	}{
		{SourceIDLabel, p.SourceID},
		{SinkIDLabel, p.SinkID},
	} {
		if len(e.id) == 0 {
			continue
		}
		key, err := cbor.Marshal(e.label)
		if err != nil {
			return nil, err
		}
		m = append(m, cbor.Entry{Key: key, Value: e.id})
	}
	return cbor.Marshal(m)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (p *Permissions) UnmarshalCBOR(data []byte) error {
	if p == nil {
		return errors.New("cannot unmarshal to a nil pointer")
	}
	var m cbor.Map
	if err := cbor.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("error decoding permissions: %w", err)
	}
	var perm Permissions
	for _, e := range m {
		var label int64
		if err := cbor.Unmarshal(e.Key, &label); err != nil {
			return fmt.Errorf("invalid permissions label: %w", err)
		}
		switch label {
		case SourceIDLabel:
			perm.SourceID = e.Value
		case SinkIDLabel:
			perm.SinkID = e.Value
		}
	}
	*p = perm
	return nil
}
