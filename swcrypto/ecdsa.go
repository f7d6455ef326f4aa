// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package swcrypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	_ "crypto/sha512" // ES384
	"errors"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	authgraph "github.com/fido-device-onboard/go-authgraph"
	"github.com/fido-device-onboard/go-authgraph/cose"
)

// EcDsa implements authgraph.EcDsa for Ed25519, P-256 and P-384.
//
// Signing keys are encoded as the Ed25519 seed or the ECDSA private scalar,
// padded to the curve size. ECDSA signatures are in the r||s form used by
// COSE.
type EcDsa struct {
	Rand io.Reader
}

var _ authgraph.EcDsa = EcDsa{}

// GenerateKey returns a new key pair of the given variant.
func (e EcDsa) GenerateKey(variant authgraph.KeyVariant) (*authgraph.EcSignKey, *authgraph.EcVerifyKey, error) {
	switch variant {
	case authgraph.Ed25519:
		pub, priv, err := ed25519.GenerateKey(e.Rand)
		if err != nil {
			return nil, nil, fmt.Errorf("error generating Ed25519 key: %w", err)
		}
		return KeyPair(variant, priv.Seed(), pub)

	case authgraph.P256, authgraph.P384:
		curve := curveOf(variant)
		priv, err := ecdsa.GenerateKey(curve, e.Rand)
		if err != nil {
			return nil, nil, fmt.Errorf("error generating %s key: %w", variant, err)
		}
		return KeyPair(variant, priv.D.FillBytes(make([]byte, coordSize(curve))), &priv.PublicKey)

	default:
		return nil, nil, fmt.Errorf("unsupported key variant: %s", variant)
	}
}

// KeyPair builds the AuthGraph representation of an existing key pair. The
// private key is the Ed25519 seed or the padded ECDSA scalar.
func KeyPair(variant authgraph.KeyVariant, priv []byte, pub crypto.PublicKey) (*authgraph.EcSignKey, *authgraph.EcVerifyKey, error) {
	alg, err := variant.CoseSignAlgorithm()
	if err != nil {
		return nil, nil, err
	}
	key, err := cose.NewKey(pub, alg)
	if err != nil {
		return nil, nil, err
	}
	return &authgraph.EcSignKey{Variant: variant, Bytes: priv},
		&authgraph.EcVerifyKey{Variant: variant, Key: key}, nil
}

// Sign signs data, hashing it first for ECDSA.
func (e EcDsa) Sign(key *authgraph.EcSignKey, data []byte) ([]byte, error) {
	switch key.Variant {
	case authgraph.Ed25519:
		if len(key.Bytes) != ed25519.SeedSize {
			return nil, fmt.Errorf("invalid Ed25519 seed length: %d", len(key.Bytes))
		}
		return ed25519.Sign(ed25519.NewKeyFromSeed(key.Bytes), data), nil

	case authgraph.P256, authgraph.P384:
		priv, err := ecdsaPrivateKey(key)
		if err != nil {
			return nil, err
		}
		alg, err := key.CoseSignAlgorithm()
		if err != nil {
			return nil, err
		}
		return SignECDSA(e.Rand, priv, alg, data)

	default:
		return nil, fmt.Errorf("unsupported key variant: %s", key.Variant)
	}
}

// SignECDSA signs data with any crypto.Signer holding an ECDSA key and
// returns the r||s signature. The hash is selected by alg.
func SignECDSA(rand io.Reader, signer crypto.Signer, alg cose.Algorithm, data []byte) ([]byte, error) {
	pub, ok := signer.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("signer key is %T, expected ECDSA", signer.Public())
	}
	hash := alg.HashFunc()
	if hash == 0 {
		return nil, fmt.Errorf("algorithm %s is not an ECDSA algorithm", alg)
	}
	h := hash.New()
	_, _ = h.Write(data)
	der, err := signer.Sign(rand, h.Sum(nil), hash)
	if err != nil {
		return nil, fmt.Errorf("error signing: %w", err)
	}
	r, s, err := parseASN1Signature(der)
	if err != nil {
		return nil, err
	}
	size := coordSize(pub.Curve)
	sig := make([]byte, 2*size)
	r.FillBytes(sig[:size])
	s.FillBytes(sig[size:])
	return sig, nil
}

// VerifySignature checks signature over data.
func (EcDsa) VerifySignature(key *authgraph.EcVerifyKey, data, signature []byte) error {
	pub, err := key.Key.Public()
	if err != nil {
		return fmt.Errorf("invalid verification key: %w", err)
	}
	switch pub := pub.(type) {
	case ed25519.PublicKey:
		if key.Variant != authgraph.Ed25519 {
			return fmt.Errorf("key variant %s does not match Ed25519 key", key.Variant)
		}
		if !ed25519.Verify(pub, data, signature) {
			return errors.New("Ed25519 signature verification failed")
		}
		return nil

	case *ecdsa.PublicKey:
		if curveOf(key.Variant) != pub.Curve {
			return fmt.Errorf("key variant %s does not match curve %s", key.Variant, pub.Curve.Params().Name)
		}
		size := coordSize(pub.Curve)
		if len(signature) != 2*size {
			return fmt.Errorf("invalid ECDSA signature length: %d", len(signature))
		}
		alg, err := key.CoseSignAlgorithm()
		if err != nil {
			return err
		}
		h := alg.HashFunc().New()
		_, _ = h.Write(data)
		r := new(big.Int).SetBytes(signature[:size])
		s := new(big.Int).SetBytes(signature[size:])
		if !ecdsa.Verify(pub, h.Sum(nil), r, s) {
			return errors.New("ECDSA signature verification failed")
		}
		return nil

	default:
		return fmt.Errorf("unsupported verification key type: %T", pub)
	}
}

func ecdsaPrivateKey(key *authgraph.EcSignKey) (*ecdsa.PrivateKey, error) {
	curve := curveOf(key.Variant)
	if len(key.Bytes) != coordSize(curve) {
		return nil, fmt.Errorf("invalid %s private key length: %d", key.Variant, len(key.Bytes))
	}
	d := new(big.Int).SetBytes(key.Bytes)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, fmt.Errorf("invalid %s private key", key.Variant)
	}
	priv := &ecdsa.PrivateKey{D: d}
	priv.Curve = curve
	priv.X, priv.Y = curve.ScalarBaseMult(key.Bytes)
	return priv, nil
}

func curveOf(variant authgraph.KeyVariant) elliptic.Curve {
	switch variant {
	case authgraph.P256:
		return elliptic.P256()
	case authgraph.P384:
		return elliptic.P384()
	default:
		return nil
	}
}

func coordSize(curve elliptic.Curve) int { return (curve.Params().BitSize + 7) / 8 }

func parseASN1Signature(der []byte) (r, s *big.Int, _ error) {
	r, s = new(big.Int), new(big.Int)
	var inner cryptobyte.String
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1Integer(r) || !inner.ReadASN1Integer(s) || !inner.Empty() {
		return nil, nil, errors.New("invalid ASN.1 ECDSA signature")
	}
	return r, s, nil
}
