// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package tpm

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/asn1"
	"fmt"
	"io"
	"math/big"

	"github.com/google/go-tpm/tpm2"
)

// Key is an ECDSA signing key resident in a TPM. It implements crypto.Signer
// and must be closed to flush it from the TPM.
type Key struct {
	device TPM
	handle tpm2.NamedHandle
	hash   tpm2.TPMIAlgHash
	pub    *ecdsa.PublicKey
}

var _ crypto.Signer = (*Key)(nil)

// GenerateECKey creates a P-256 or P-384 primary key in the owner hierarchy.
// The hash used for signing is SHA-256 for P-256 and SHA-384 for P-384.
//
// Primary keys are derived from the TPM seed and the template, so the same
// key is returned each time until the owner hierarchy is cleared.
func GenerateECKey(t TPM, curve elliptic.Curve) (*Key, error) {
	var curveID tpm2.TPMECCCurve
	var hash tpm2.TPMIAlgHash
	switch curve {
	case elliptic.P256():
		curveID, hash = tpm2.TPMECCNistP256, tpm2.TPMAlgSHA256
	case elliptic.P384():
		curveID, hash = tpm2.TPMECCNistP384, tpm2.TPMAlgSHA384
	default:
		return nil, fmt.Errorf("unsupported curve: %s", curve.Params().Name)
	}

	resp, err := tpm2.CreatePrimary{
		PrimaryHandle: tpm2.TPMRHOwner,
		InPublic:      tpm2.New2B(eccTemplate(curveID, hash)),
	}.Execute(t)
	if err != nil {
		return nil, fmt.Errorf("unable to create primary key: %w", err)
	}
	key := &Key{
		device: t,
		handle: tpm2.NamedHandle{Handle: resp.ObjectHandle, Name: resp.Name},
		hash:   hash,
	}

	outPub, err := resp.OutPublic.Contents()
	if err != nil {
		_ = key.Close()
		return nil, fmt.Errorf("unmarshaling public data: %w", err)
	}
	if key.pub, err = ecdsaPublicKey(curve, outPub); err != nil {
		_ = key.Close()
		return nil, err
	}
	return key, nil
}

func eccTemplate(curveID tpm2.TPMECCCurve, hash tpm2.TPMIAlgHash) tpm2.TPMTPublic {
	return tpm2.TPMTPublic{
		Type:    tpm2.TPMAlgECC,
		NameAlg: tpm2.TPMAlgSHA256,
		ObjectAttributes: tpm2.TPMAObject{
			FixedTPM:            true, // Key can never be duplicated
			FixedParent:         true, // Key can never be changed to a new parent
			SensitiveDataOrigin: true,
			UserWithAuth:        true,
			SignEncrypt:         true,
		},
		Parameters: tpm2.NewTPMUPublicParms(tpm2.TPMAlgECC,
			&tpm2.TPMSECCParms{
				CurveID: curveID,
				Scheme: tpm2.TPMTECCScheme{
					Scheme: tpm2.TPMAlgECDSA,
					Details: tpm2.NewTPMUAsymScheme(tpm2.TPMAlgECDSA,
						&tpm2.TPMSSigSchemeECDSA{HashAlg: hash}),
				},
			},
		),
	}
}

func ecdsaPublicKey(curve elliptic.Curve, pub *tpm2.TPMTPublic) (*ecdsa.PublicKey, error) {
	point, err := pub.Unique.ECC()
	if err != nil {
		return nil, fmt.Errorf("ECC pubkey: %w", err)
	}
	key := &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(point.X.Buffer),
		Y:     new(big.Int).SetBytes(point.Y.Buffer),
	}
	if !curve.IsOnCurve(key.X, key.Y) {
		return nil, fmt.Errorf("TPM returned a point which is not on %s", curve.Params().Name)
	}
	return key, nil
}

// Public returns the *ecdsa.PublicKey of the key.
func (k *Key) Public() crypto.PublicKey { return k.pub }

// Sign signs a digest and returns an ASN.1 DER encoded signature, like
// *ecdsa.PrivateKey. The hash of opts must match the curve of the key.
func (k *Key) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	want, err := k.hash.Hash()
	if err != nil {
		return nil, err
	}
	if opts == nil || opts.HashFunc() != want {
		return nil, fmt.Errorf("key signs %s digests", want)
	}
	if len(digest) != want.Size() {
		return nil, fmt.Errorf("digest length %d does not match %s", len(digest), want)
	}

	resp, err := tpm2.Sign{
		KeyHandle: k.handle,
		Digest: tpm2.TPM2BDigest{
			Buffer: digest,
		},
		InScheme: tpm2.TPMTSigScheme{
			Scheme: tpm2.TPMAlgECDSA,
			Details: tpm2.NewTPMUSigScheme(tpm2.TPMAlgECDSA,
				&tpm2.TPMSSchemeHash{HashAlg: k.hash}),
		},
		Validation: tpm2.TPMTTKHashCheck{
			Tag: tpm2.TPMSTHashCheck,
		},
	}.Execute(k.device)
	if err != nil {
		return nil, fmt.Errorf("unable to sign digest: %w", err)
	}

	sig, err := resp.Signature.Signature.ECDSA()
	if err != nil {
		return nil, fmt.Errorf("unable to extract signature data: %w", err)
	}
	return asn1.Marshal(struct{ R, S *big.Int }{
		R: new(big.Int).SetBytes(sig.SignatureR.Buffer),
		S: new(big.Int).SetBytes(sig.SignatureS.Buffer),
	})
}

// Close flushes the key from the TPM.
func (k *Key) Close() error {
	if _, err := (tpm2.FlushContext{FlushHandle: k.handle.Handle}).Execute(k.device); err != nil {
		return fmt.Errorf("unable to flush key: %w", err)
	}
	return nil
}
