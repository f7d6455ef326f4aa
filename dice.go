// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

import (
	"errors"
	"fmt"

	"github.com/fido-device-onboard/go-authgraph/cbor"
	"github.com/fido-device-onboard/go-authgraph/cose"
)

// DICE chain entry payload labels
const (
	IssuerLabel                  int64 = 1
	SubjectLabel                 int64 = 2
	ProfileNameLabel             int64 = -4670554
	SubjectPublicKeyLabel        int64 = -4670552
	KeyUsageLabel                int64 = -4670553
	CodeHashLabel                int64 = -4670545
	CodeDescriptorLabel          int64 = -4670546
	ConfigurationHashLabel       int64 = -4670547
	ConfigurationDescriptorLabel int64 = -4670548
	AuthorityHashLabel           int64 = -4670549
	AuthorityDescriptorLabel     int64 = -4670550
	ModeLabel                    int64 = -4670551
)

// Configuration descriptor labels
const (
	ComponentNameLabel    int64 = -70002
	ComponentVersionLabel int64 = -70003
	ResettableLabel       int64 = -70004
	SecurityVersionLabel  int64 = -70005
	RkpVMMarkerLabel      int64 = -70006
	InstanceHashLabel     int64 = -71003
)

// GuestOSComponentName is the component name of the DICE chain entry that
// carries the instance hash of a protected VM.
const GuestOSComponentName = "vm_entry"

// DiceChainEntry is a certificate of a DICE chain. It is encoded as the
// untagged COSE_Sign1 alone. The payload is decoded for validation.
type DiceChainEntry struct {
	Signature cose.Sign1
	Payload   DiceChainEntryPayloadPartiallyDecoded
}

// MarshalCBOR implements cbor.Marshaler.
func (e DiceChainEntry) MarshalCBOR() ([]byte, error) { return cbor.Marshal(e.Signature) }

// UnmarshalCBOR implements cbor.Unmarshaler.
func (e *DiceChainEntry) UnmarshalCBOR(data []byte) error {
	if e == nil {
		return errors.New("cannot unmarshal to a nil pointer")
	}
	var s1 cose.Sign1
	if err := cbor.Unmarshal(data, &s1); err != nil {
		return err
	}
	if s1.Payload == nil {
		return errors.New("DICE chain entry has no payload")
	}
	var payload DiceChainEntryPayloadPartiallyDecoded
	if err := cbor.Unmarshal(s1.Payload, &payload); err != nil {
		return fmt.Errorf("error decoding DICE chain entry payload: %w", err)
	}
	*e = DiceChainEntry{Signature: s1, Payload: payload}
	return nil
}

// Equal reports whether both entries have the same encoding.
func (e DiceChainEntry) Equal(other DiceChainEntry) bool {
	return encodedEqual(e, other)
}

// DiceChainEntryPayloadPartiallyDecoded holds the payload fields required to
// validate a chain. FullMap keeps the complete encoded payload.
type DiceChainEntryPayloadPartiallyDecoded struct {
	Issuer        *string
	Subject       *string
	SubjectPubKey *EcVerifyKey
	FullMap       cbor.RawBytes
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (p *DiceChainEntryPayloadPartiallyDecoded) UnmarshalCBOR(data []byte) error {
	if p == nil {
		return errors.New("cannot unmarshal to a nil pointer")
	}
	var m cbor.Map
	if err := cbor.Unmarshal(data, &m); err != nil {
		return err
	}
	var payload DiceChainEntryPayloadPartiallyDecoded
	for _, e := range m {
		label, err := intLabel(e.Key)
		if err != nil {
			return err
		}
		switch {
		case label == IssuerLabel && isText(e.Value):
			if payload.Issuer != nil {
				return errors.New("repeated entries for issuer")
			}
			payload.Issuer = new(string)
			if err := cbor.Unmarshal(e.Value, payload.Issuer); err != nil {
				return err
			}
		case label == SubjectLabel && isText(e.Value):
			if payload.Subject != nil {
				return errors.New("repeated entries for subject")
			}
			payload.Subject = new(string)
			if err := cbor.Unmarshal(e.Value, payload.Subject); err != nil {
				return err
			}
		case label == SubjectPublicKeyLabel && cbor.IsBytes(e.Value):
			if payload.SubjectPubKey != nil {
				return errors.New("repeated entries for subject public key")
			}
			key, err := decodeVerifyKey(e.Value)
			if err != nil {
				return fmt.Errorf("subject public key: %w", err)
			}
			payload.SubjectPubKey = key
		}
	}
	payload.FullMap = append(cbor.RawBytes(nil), data...)
	*p = payload
	return nil
}

// CustomField is a field of a DICE payload or configuration descriptor with a
// label that is not otherwise interpreted.
type CustomField struct {
	Label int64
	Value cbor.RawBytes
}

// DiceChainEntryPayload is the fully decoded payload of a DICE chain entry.
type DiceChainEntryPayload struct {
	Issuer                  *string
	Subject                 *string
	ProfileName             *string
	SubjectPubKey           *EcVerifyKey
	KeyUsage                []byte
	CodeHash                []byte
	CodeDescriptor          []byte
	ConfigurationHash       []byte
	ConfigurationDescriptor *ConfigurationDescriptorOrLegacy
	AuthorityHash           []byte
	AuthorityDescriptor     []byte
	Mode                    []byte
	CustomFields            []CustomField
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (p *DiceChainEntryPayload) UnmarshalCBOR(data []byte) error {
	if p == nil {
		return errors.New("cannot unmarshal to a nil pointer")
	}
	var m cbor.Map
	if err := cbor.Unmarshal(data, &m); err != nil {
		return err
	}
	var payload DiceChainEntryPayload
	bytesFields := map[int64]*[]byte{
		KeyUsageLabel:            &payload.KeyUsage,
		CodeHashLabel:            &payload.CodeHash,
		CodeDescriptorLabel:      &payload.CodeDescriptor,
		ConfigurationHashLabel:   &payload.ConfigurationHash,
		AuthorityHashLabel:       &payload.AuthorityHash,
		AuthorityDescriptorLabel: &payload.AuthorityDescriptor,
		ModeLabel:                &payload.Mode,
	}
	textFields := map[int64]**string{
		IssuerLabel:      &payload.Issuer,
		SubjectLabel:     &payload.Subject,
		ProfileNameLabel: &payload.ProfileName,
	}
	for _, e := range m {
		label, err := intLabel(e.Key)
		if err != nil {
			return err
		}

		if field, ok := textFields[label]; ok && isText(e.Value) {
			if *field != nil {
				return fmt.Errorf("repeated entries for label %d", label)
			}
			*field = new(string)
			if err := cbor.Unmarshal(e.Value, *field); err != nil {
				return err
			}
			continue
		}
		if field, ok := bytesFields[label]; ok && cbor.IsBytes(e.Value) {
			if *field != nil {
				return fmt.Errorf("repeated entries for label %d", label)
			}
			if err := cbor.Unmarshal(e.Value, field); err != nil {
				return err
			}
			if *field == nil {
				*field = []byte{}
			}
			continue
		}

		switch {
		case label == SubjectPublicKeyLabel && cbor.IsBytes(e.Value):
			if payload.SubjectPubKey != nil {
				return errors.New("repeated entries for subject public key")
			}
			key, err := decodeVerifyKey(e.Value)
			if err != nil {
				return fmt.Errorf("subject public key: %w", err)
			}
			payload.SubjectPubKey = key
		case label == ConfigurationDescriptorLabel && cbor.IsBytes(e.Value):
			if payload.ConfigurationDescriptor != nil {
				return errors.New("repeated entries for configuration descriptor")
			}
			var raw []byte
			if err := cbor.Unmarshal(e.Value, &raw); err != nil {
				return err
			}
			var desc ConfigurationDescriptor
			if err := cbor.Unmarshal(raw, &desc); err != nil {
				// Older devices use a different format
				payload.ConfigurationDescriptor = &ConfigurationDescriptorOrLegacy{Legacy: raw}
			} else {
				payload.ConfigurationDescriptor = &ConfigurationDescriptorOrLegacy{Descriptor: &desc}
			}
		default:
			payload.CustomFields = append(payload.CustomFields, CustomField{Label: label, Value: e.Value})
		}
	}
	*p = payload
	return nil
}

// ConfigurationDescriptorOrLegacy holds either a decoded configuration
// descriptor or, when it does not decode, the raw descriptor bytes.
type ConfigurationDescriptorOrLegacy struct {
	Descriptor *ConfigurationDescriptor
	Legacy     []byte
}

// ComponentVersion is either a text or an integer version.
type ComponentVersion struct {
	Text  string
	Int   uint32
	IsInt bool
}

func (v ComponentVersion) String() string {
	if v.IsInt {
		return fmt.Sprint(v.Int)
	}
	return v.Text
}

// ConfigurationDescriptor describes the configuration of a DICE component.
type ConfigurationDescriptor struct {
	ComponentName    *string
	ComponentVersion *ComponentVersion
	Resettable       bool
	SecurityVersion  *uint32
	RkpVMMarker      bool
	CustomFields     []CustomField
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (d *ConfigurationDescriptor) UnmarshalCBOR(data []byte) error {
	if d == nil {
		return errors.New("cannot unmarshal to a nil pointer")
	}
	var m cbor.Map
	if err := cbor.Unmarshal(data, &m); err != nil {
		return err
	}
	var desc ConfigurationDescriptor
	for _, e := range m {
		label, err := intLabel(e.Key)
		if err != nil {
			return err
		}
		switch {
		case label == ComponentNameLabel && isText(e.Value):
			desc.ComponentName = new(string)
			if err := cbor.Unmarshal(e.Value, desc.ComponentName); err != nil {
				return err
			}
		case label == ComponentVersionLabel && isText(e.Value):
			desc.ComponentVersion = new(ComponentVersion)
			if err := cbor.Unmarshal(e.Value, &desc.ComponentVersion.Text); err != nil {
				return err
			}
		case label == ComponentVersionLabel && cbor.IsInt(e.Value):
			desc.ComponentVersion = &ComponentVersion{IsInt: true}
			if err := cbor.Unmarshal(e.Value, &desc.ComponentVersion.Int); err != nil {
				return fmt.Errorf("component version is not a uint32: %w", err)
			}
		case label == ResettableLabel && cbor.IsNull(e.Value):
			desc.Resettable = true
		case label == SecurityVersionLabel && cbor.IsInt(e.Value):
			desc.SecurityVersion = new(uint32)
			if err := cbor.Unmarshal(e.Value, desc.SecurityVersion); err != nil {
				return fmt.Errorf("security version is not a uint32: %w", err)
			}
		case label == RkpVMMarkerLabel && cbor.IsNull(e.Value):
			desc.RkpVMMarker = true
		default:
			desc.CustomFields = append(desc.CustomFields, CustomField{Label: label, Value: e.Value})
		}
	}
	*d = desc
	return nil
}

// CustomField returns the value of the first custom field with the label.
func (d ConfigurationDescriptor) CustomField(label int64) (cbor.RawBytes, bool) {
	for _, f := range d.CustomFields {
		if f.Label == label {
			return f.Value, true
		}
	}
	return nil, false
}

func intLabel(key cbor.RawBytes) (int64, error) {
	if !cbor.IsInt(key) {
		return 0, errors.New("map label is not an integer")
	}
	var label int64
	if err := cbor.Unmarshal(key, &label); err != nil {
		return 0, fmt.Errorf("map label is not an int64: %w", err)
	}
	return label, nil
}

func isText(item []byte) bool {
	mt, ok := cbor.Major(item)
	return ok && mt == cbor.TextStringType
}

// decodeVerifyKey decodes a "bstr .cbor COSE_Key" holding a verification key.
func decodeVerifyKey(item []byte) (*EcVerifyKey, error) {
	var key cbor.Bstr[cose.Key]
	if err := cbor.Unmarshal(item, &key); err != nil {
		return nil, err
	}
	return NewEcVerifyKey(key.Val)
}
