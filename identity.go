// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/fido-device-onboard/go-authgraph/cbor"
	"github.com/fido-device-onboard/go-authgraph/cose"
)

// Versions of the identity and certificate chain encodings
const (
	IdentityVersion                 int32 = 1
	ExplicitKeyDiceCertChainVersion int32 = 1
)

// Identity of a participant.
//
//	Identity = [
//	    1,                             ; version
//	    cert_chain: bstr .cbor ExplicitKeyDiceCertChain,
//	    ? policy: bstr,
//	]
type Identity struct {
	Version   int32
	CertChain CertChain

	// Policy is the identity verification policy. It is preserved, but not
	// interpreted.
	Policy []byte
}

// MarshalCBOR implements cbor.Marshaler.
func (id Identity) MarshalCBOR() ([]byte, error) {
	items := []any{id.Version, cbor.NewBstr(id.CertChain)}
	if id.Policy != nil {
		items = append(items, id.Policy)
	}
	return cbor.Marshal(items)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (id *Identity) UnmarshalCBOR(data []byte) error {
	if id == nil {
		return errors.New("cannot unmarshal to a nil pointer")
	}
	var items []cbor.RawBytes
	if err := cbor.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("identity is not an array: %w", err)
	}
	if len(items) != 2 && len(items) != 3 {
		return fmt.Errorf("identity must have two or three items, got %d", len(items))
	}
	var ident Identity
	if err := cbor.Unmarshal(items[0], &ident.Version); err != nil {
		return fmt.Errorf("identity version: %w", err)
	}
	var chain cbor.Bstr[CertChain]
	if err := cbor.Unmarshal(items[1], &chain); err != nil {
		return fmt.Errorf("identity cert chain: %w", err)
	}
	ident.CertChain = chain.Val
	if len(items) == 3 {
		if err := cbor.Unmarshal(items[2], &ident.Policy); err != nil {
			return fmt.Errorf("identity policy: %w", err)
		}
		if ident.Policy == nil {
			ident.Policy = []byte{}
		}
	}
	*id = ident
	return nil
}

// Validate checks the version and certificate chain of the identity and
// returns the key which verifies signatures made by the participant.
func (id *Identity) Validate(ecdsa EcDsa) (*EcVerifyKey, error) {
	if id.Version != IdentityVersion {
		return nil, NewError(InvalidIdentity, "identity version mismatch: %d", id.Version)
	}
	// TODO: apply Policy once a policy format is defined
	return id.CertChain.Validate(ecdsa)
}

// Equal reports whether both identities have the same encoding.
func (id *Identity) Equal(other *Identity) bool {
	if id == nil || other == nil {
		return id == other
	}
	return encodedEqual(id, other)
}

// CertChain is an explicit key DICE certificate chain.
//
//	ExplicitKeyDiceCertChain = [
//	    1,                          ; version
//	    DiceCertChainInitialPayload, ; bstr .cbor COSE_Key
//	    * DiceChainEntry,
//	]
type CertChain struct {
	Version int32

	// RootKey verifies the signature of the first entry or, when there are
	// no entries, signatures made by the participant.
	RootKey EcVerifyKey

	DiceCertChain []DiceChainEntry
}

// MarshalCBOR implements cbor.Marshaler. The root key is always encoded in
// canonical form.
func (c CertChain) MarshalCBOR() ([]byte, error) {
	root, err := cbor.Marshal(c.RootKey.Key.Canonicalize())
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, 2+len(c.DiceCertChain))
	items = append(items, c.Version, root)
	for _, entry := range c.DiceCertChain {
		items = append(items, entry)
	}
	return cbor.Marshal(items)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (c *CertChain) UnmarshalCBOR(data []byte) error {
	if c == nil {
		return errors.New("cannot unmarshal to a nil pointer")
	}
	var items []cbor.RawBytes
	if err := cbor.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("cert chain is not an array: %w", err)
	}
	if len(items) < 2 {
		return fmt.Errorf("cert chain must have two or more items, got %d", len(items))
	}
	var chain CertChain
	if err := cbor.Unmarshal(items[0], &chain.Version); err != nil {
		return fmt.Errorf("cert chain version: %w", err)
	}
	if !cbor.IsBytes(items[1]) {
		return errors.New("cert chain root key is not an encoded COSE_Key")
	}
	root, err := decodeVerifyKey(items[1])
	if err != nil {
		return fmt.Errorf("cert chain root key: %w", err)
	}
	chain.RootKey = *root
	for i, item := range items[2:] {
		var entry DiceChainEntry
		if err := cbor.Unmarshal(item, &entry); err != nil {
			return fmt.Errorf("DICE chain entry %d: %w", i, err)
		}
		chain.DiceCertChain = append(chain.DiceCertChain, entry)
	}
	*c = chain
	return nil
}

// Validate checks the certificate chain and returns the key of its leaf, or
// the root key if the chain has no entries.
//
// The root key must be canonical and every entry must be signed by the key
// of its parent. The issuer of each entry after the first must equal the
// subject of its parent and no subject key may appear twice.
func (c *CertChain) Validate(ecdsa EcDsa) (*EcVerifyKey, error) {
	if c.Version != ExplicitKeyDiceCertChainVersion {
		return nil, NewError(InvalidCertChain, "cert chain version mismatch: %d", c.Version)
	}
	if !c.RootKey.IsCanonicalized() {
		return nil, NewError(InvalidCertChain, "root key is not in the required canonical form")
	}
	if err := c.RootKey.ValidateCoseKeyParams(); err != nil {
		return nil, err
	}

	parentKey := &c.RootKey
	var parentSubject string
	seen := make([]*EcVerifyKey, 0, len(c.DiceCertChain))
	for i, entry := range c.DiceCertChain {
		subjectKey := entry.Payload.SubjectPubKey
		if subjectKey == nil {
			return nil, NewError(InternalError, "subject public key is missing in entry %d", i)
		}
		if err := subjectKey.ValidateCoseKeyParams(); err != nil {
			return nil, err
		}
		if entry.Payload.Subject == nil {
			return nil, NewError(InternalError, "subject is missing in entry %d", i)
		}
		if err := verifyEntry(ecdsa, parentKey, &entry); err != nil {
			return nil, &Error{Code: InvalidSignature, Err: fmt.Errorf("entry %d: %w", i, err)}
		}
		if i > 0 {
			if entry.Payload.Issuer == nil {
				return nil, NewError(InvalidCertChain, "issuer is missing in entry %d", i)
			}
			if *entry.Payload.Issuer != parentSubject {
				return nil, NewError(InvalidCertChain, "parent's subject does not match the issuer of entry %d", i)
			}
		}
		if slices.ContainsFunc(seen, func(k *EcVerifyKey) bool { return k.Equal(*subjectKey) }) {
			return nil, NewError(InvalidCertChain, "subject public key of entry %d is repeated", i)
		}
		seen = append(seen, subjectKey)
		parentKey, parentSubject = subjectKey, *entry.Payload.Subject
	}

	leaf := *parentKey
	return &leaf, nil
}

// ExtendWith returns a copy of the chain with entry appended as the new leaf.
// The entry must be signed by the current leaf key.
func (c *CertChain) ExtendWith(entry *DiceChainEntry, ecdsa EcDsa) (*CertChain, error) {
	parentKey := &c.RootKey
	if n := len(c.DiceCertChain); n > 0 {
		parentKey = c.DiceCertChain[n-1].Payload.SubjectPubKey
		if parentKey == nil {
			return nil, NewError(InternalError, "subject public key is missing in the leaf")
		}
	}
	if err := parentKey.ValidateCoseKeyParams(); err != nil {
		return nil, err
	}
	if err := verifyEntry(ecdsa, parentKey, entry); err != nil {
		return nil, &Error{Code: InvalidSignature, Err: fmt.Errorf("failed to verify signature on the leaf cert: %w", err)}
	}
	extended := *c
	extended.DiceCertChain = append(slices.Clone(c.DiceCertChain), *entry)
	return &extended, nil
}

// IsCurrentLeaf reports whether entry is the last entry of the chain.
func (c *CertChain) IsCurrentLeaf(entry *DiceChainEntry) bool {
	if len(c.DiceCertChain) == 0 {
		return false
	}
	return c.DiceCertChain[len(c.DiceCertChain)-1].Equal(*entry)
}

// ExtractInstanceIdentifierInGuestOSEntry returns the instance hash of the
// last entry whose configuration descriptor names the guest OS component, or
// nil if there is none.
func (c *CertChain) ExtractInstanceIdentifierInGuestOSEntry() ([]byte, error) {
	for i := len(c.DiceCertChain) - 1; i >= 0; i-- {
		fullMap := c.DiceCertChain[i].Payload.FullMap
		if len(fullMap) == 0 {
			continue
		}
		var payload DiceChainEntryPayload
		if err := cbor.Unmarshal(fullMap, &payload); err != nil {
			return nil, &Error{Code: InvalidCertChain, Err: fmt.Errorf("error decoding payload of entry %d: %w", i, err)}
		}
		if payload.ConfigurationDescriptor == nil || payload.ConfigurationDescriptor.Descriptor == nil {
			continue
		}
		desc := payload.ConfigurationDescriptor.Descriptor
		if desc.ComponentName == nil || *desc.ComponentName != GuestOSComponentName {
			continue
		}
		if value, ok := desc.CustomField(InstanceHashLabel); ok && cbor.IsBytes(value) {
			var instanceHash []byte
			if err := cbor.Unmarshal(value, &instanceHash); err != nil {
				return nil, &Error{Code: InvalidCertChain, Err: err}
			}
			return instanceHash, nil
		}
	}
	return nil, nil
}

// CertChainFromNonExplicitKey parses a DICE chain which may not carry the
// explicit key version and encoded root key, converting it when necessary.
//
//	DiceCertChain = [
//	    COSE_Key,         ; root public key
//	    + DiceChainEntry,
//	]
func CertChainFromNonExplicitKey(b []byte) (*CertChain, error) {
	var items []cbor.RawBytes
	if err := cbor.Unmarshal(b, &items); err != nil {
		return nil, &Error{Code: InvalidCertChain, Err: fmt.Errorf("cert chain is not a cbor array: %w", err)}
	}

	if len(items) >= 2 && cbor.IsInt(items[0]) && cbor.IsBytes(items[1]) {
		var chain CertChain
		if err := cbor.Unmarshal(b, &chain); err != nil {
			return nil, &Error{Code: InvalidCertChain, Err: err}
		}
		return &chain, nil
	}

	if len(items) == 0 {
		return nil, NewError(InvalidCertChain, "cert chain is an empty array")
	}
	var root cose.Key
	if err := cbor.Unmarshal(items[0], &root); err != nil {
		return nil, &Error{Code: InvalidCertChain, Err: fmt.Errorf("root key: %w", err)}
	}
	rootBytes, err := cbor.Marshal(root.Canonicalize())
	if err != nil {
		return nil, &Error{Code: InvalidCertChain, Err: err}
	}
	explicit := make([]any, 0, len(items)+1)
	explicit = append(explicit, ExplicitKeyDiceCertChainVersion, rootBytes)
	for _, item := range items[1:] {
		explicit = append(explicit, item)
	}
	data, err := cbor.Marshal(explicit)
	if err != nil {
		return nil, &Error{Code: InvalidCertChain, Err: err}
	}
	var chain CertChain
	if err := cbor.Unmarshal(data, &chain); err != nil {
		return nil, &Error{Code: InvalidCertChain, Err: err}
	}
	return &chain, nil
}

func verifyEntry(ecdsa EcDsa, key *EcVerifyKey, entry *DiceChainEntry) error {
	return entry.Signature.Verify(nil, func(sig, tbs []byte) error {
		return ecdsa.VerifySignature(key, tbs, sig)
	})
}

func encodedEqual(a, b any) bool {
	x, err := cbor.Marshal(a)
	if err != nil {
		return false
	}
	y, err := cbor.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(x, y)
}
