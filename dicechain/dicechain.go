// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package dicechain issues explicit key DICE certificate chains and the
// AuthGraph identities holding them, signing every entry in software.
package dicechain

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"

	authgraph "github.com/fido-device-onboard/go-authgraph"
	"github.com/fido-device-onboard/go-authgraph/cbor"
	"github.com/fido-device-onboard/go-authgraph/cose"
	"github.com/fido-device-onboard/go-authgraph/swcrypto"
)

// DICE mode values
const (
	NotConfiguredMode byte = 0
	NormalMode        byte = 1
	DebugMode         byte = 2
	MaintenanceMode   byte = 3
)

// keyCertSign is the X.509 key usage bit allowing certificate signing.
const keyCertSign byte = 0x20

// Component describes the DICE stage certified by a chain entry.
type Component struct {
	Name            string
	Version         uint32
	SecurityVersion uint32
	Resettable      bool

	// InstanceHash is added to the configuration descriptor when not nil.
	InstanceHash []byte
}

// DefaultComponents are typical stages of an Android boot, in boot order.
var DefaultComponents = []Component{
	{Name: "ABL", Version: 1, SecurityVersion: 1, Resettable: true},
	{Name: "AVB", Version: 1, SecurityVersion: 1, Resettable: true},
	{Name: "Android", Version: 1, SecurityVersion: 1, Resettable: true},
	{Name: "Protected VM firmware", Version: 1, SecurityVersion: 2, Resettable: true},
	{Name: "Microdroid payload", Version: 1, SecurityVersion: 3, Resettable: true},
}

// Builder builds an explicit key DICE certificate chain. Every key it
// generates has the same variant.
type Builder struct {
	Variant authgraph.KeyVariant

	// RootKey is the canonical root public key, restricted to verification.
	RootKey cose.Key

	sw      swcrypto.EcDsa
	signKey *authgraph.EcSignKey
	subject string
	entries []cbor.RawBytes
}

// New generates a root key and returns a builder for a chain with no
// entries.
func New(variant authgraph.KeyVariant) (*Builder, error) {
	sw := swcrypto.EcDsa{Rand: rand.Reader}
	signKey, verifyKey, err := sw.GenerateKey(variant)
	if err != nil {
		return nil, err
	}
	root := verifyKey.Key
	if err := root.Set(cose.KeyOpsKeyLabel, []int64{cose.VerifyKeyOp}); err != nil {
		return nil, err
	}
	root = root.Canonicalize()
	subject, err := subjectName(root)
	if err != nil {
		return nil, err
	}
	return &Builder{
		Variant: variant,
		RootKey: root,
		sw:      sw,
		signKey: signKey,
		subject: subject,
	}, nil
}

// LeafKey returns the signing key of the last entry, or of the root if the
// chain is empty.
func (c *Builder) LeafKey() *authgraph.EcSignKey { return c.signKey }

// Subject returns the subject name of the last entry, or the name derived
// from the root key if the chain is empty.
func (c *Builder) Subject() string { return c.subject }

// Len returns the number of entries.
func (c *Builder) Len() int { return len(c.entries) }

// Extend issues an entry for the component with the current leaf key and
// appends it.
func (c *Builder) Extend(comp Component) error {
	entry, signKey, subject, err := c.issue(comp)
	if err != nil {
		return err
	}
	c.entries = append(c.entries, entry)
	c.signKey, c.subject = signKey, subject
	return nil
}

// NextEntry issues an entry for the component with the current leaf key
// without appending it. It returns the encoded entry and the signing key of
// its subject.
func (c *Builder) NextEntry(comp Component) (cbor.RawBytes, *authgraph.EcSignKey, error) {
	entry, signKey, _, err := c.issue(comp)
	return entry, signKey, err
}

// CertChain returns the encoded ExplicitKeyDiceCertChain.
func (c *Builder) CertChain() ([]byte, error) {
	root, err := cbor.Marshal(c.RootKey)
	if err != nil {
		return nil, err
	}
	items := []any{authgraph.ExplicitKeyDiceCertChainVersion, root}
	for _, entry := range c.entries {
		items = append(items, entry)
	}
	return cbor.Marshal(items)
}

// NonExplicitCertChain returns the chain in the DiceCertChain format, where
// the root key is not wrapped in a byte string and there is no version.
func (c *Builder) NonExplicitCertChain() ([]byte, error) {
	items := []any{c.RootKey}
	for _, entry := range c.entries {
		items = append(items, entry)
	}
	return cbor.Marshal(items)
}

// Identity returns the encoded and decoded identity holding the chain.
func (c *Builder) Identity() ([]byte, *authgraph.Identity, error) {
	chain, err := c.CertChain()
	if err != nil {
		return nil, nil, err
	}
	data, err := cbor.Marshal([]any{authgraph.IdentityVersion, chain})
	if err != nil {
		return nil, nil, err
	}
	var id authgraph.Identity
	if err := cbor.Unmarshal(data, &id); err != nil {
		return nil, nil, fmt.Errorf("error decoding generated identity: %w", err)
	}
	return data, &id, nil
}

// Certify issues an entry for the component whose subject key is pub, for
// example a key resident in hardware, and appends it. The chain cannot be
// extended afterwards, so LeafKey returns nil.
func (c *Builder) Certify(comp Component, pub crypto.PublicKey) error {
	if c.signKey == nil {
		return errors.New("chain leaf key is not available")
	}
	variant, err := variantOf(pub)
	if err != nil {
		return err
	}
	alg, err := variant.CoseSignAlgorithm()
	if err != nil {
		return err
	}
	key, err := cose.NewKey(pub, alg)
	if err != nil {
		return err
	}
	entry, subject, err := c.issueFor(comp, key)
	if err != nil {
		return err
	}
	c.entries = append(c.entries, entry)
	c.signKey, c.subject = nil, subject
	return nil
}

func (c *Builder) issue(comp Component) (cbor.RawBytes, *authgraph.EcSignKey, string, error) {
	if c.signKey == nil {
		return nil, nil, "", errors.New("chain leaf key is not available")
	}
	signKey, verifyKey, err := c.sw.GenerateKey(c.Variant)
	if err != nil {
		return nil, nil, "", err
	}
	entry, subject, err := c.issueFor(comp, verifyKey.Key)
	if err != nil {
		return nil, nil, "", err
	}
	return entry, signKey, subject, nil
}

func (c *Builder) issueFor(comp Component, subjectKey cose.Key) (cbor.RawBytes, string, error) {
	subject, err := subjectName(subjectKey)
	if err != nil {
		return nil, "", err
	}
	pubKey, err := cbor.Marshal(subjectKey)
	if err != nil {
		return nil, "", err
	}
	desc, err := configurationDescriptor(comp)
	if err != nil {
		return nil, "", err
	}

	var payload cbor.Map
	for _, field := range []struct {
		label int64
		value any
	}{
		{authgraph.IssuerLabel, c.subject},
		{authgraph.SubjectLabel, subject},
		{authgraph.CodeHashLabel, hash64("code", comp.Name)},
		{authgraph.ConfigurationDescriptorLabel, desc},
		{authgraph.AuthorityHashLabel, hash64("authority", comp.Name)},
		{authgraph.ModeLabel, []byte{DebugMode}},
		{authgraph.SubjectPublicKeyLabel, pubKey},
		{authgraph.KeyUsageLabel, []byte{keyCertSign}},
	} {
		if err := payload.Set(field.label, field.value); err != nil {
			return nil, "", err
		}
	}
	payloadBytes, err := cbor.Marshal(payload)
	if err != nil {
		return nil, "", err
	}

	alg, err := c.signKey.Variant.CoseSignAlgorithm()
	if err != nil {
		return nil, "", err
	}
	s1, err := cose.NewSign1(alg)
	if err != nil {
		return nil, "", err
	}
	if err := s1.Sign(payloadBytes, nil, func(tbs []byte) ([]byte, error) {
		return c.sw.Sign(c.signKey, tbs)
	}); err != nil {
		return nil, "", err
	}
	entry, err := cbor.Marshal(s1)
	if err != nil {
		return nil, "", err
	}
	return entry, subject, nil
}

func variantOf(pub crypto.PublicKey) (authgraph.KeyVariant, error) {
	switch pub := pub.(type) {
	case ed25519.PublicKey:
		return authgraph.Ed25519, nil
	case *ecdsa.PublicKey:
		switch pub.Curve {
		case elliptic.P256():
			return authgraph.P256, nil
		case elliptic.P384():
			return authgraph.P384, nil
		}
		return 0, fmt.Errorf("unsupported curve %s", pub.Curve.Params().Name)
	default:
		return 0, fmt.Errorf("unsupported public key type %T", pub)
	}
}

func configurationDescriptor(comp Component) ([]byte, error) {
	var desc cbor.Map
	if err := desc.Set(authgraph.ComponentNameLabel, comp.Name); err != nil {
		return nil, err
	}
	if err := desc.Set(authgraph.ComponentVersionLabel, comp.Version); err != nil {
		return nil, err
	}
	if comp.Resettable {
		if err := desc.Set(authgraph.ResettableLabel, nil); err != nil {
			return nil, err
		}
	}
	if err := desc.Set(authgraph.SecurityVersionLabel, comp.SecurityVersion); err != nil {
		return nil, err
	}
	if comp.InstanceHash != nil {
		if err := desc.Set(authgraph.InstanceHashLabel, comp.InstanceHash); err != nil {
			return nil, err
		}
	}
	return cbor.Marshal(desc)
}

// subjectName derives a subject name from a public key, as the hex encoding
// of the first 20 bytes of its digest.
func subjectName(key cose.Key) (string, error) {
	data, err := cbor.Marshal(key)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:20]), nil
}

func hash64(kind, name string) []byte {
	sum := sha512.Sum512([]byte(kind + ":" + name))
	return sum[:]
}
