// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fido-device-onboard/go-authgraph/arc"
	"github.com/fido-device-onboard/go-authgraph/cbor"
	"github.com/fido-device-onboard/go-authgraph/cose"
)

// Participant runs the authenticated key exchange with a peer. The source
// calls Create and Finish and the sink calls Init and AuthenticationComplete.
//
// Between steps, state is carried by the peers in arcs sealed with the
// per-boot key of the Device. The Participant only tracks digests of started
// exchanges, so that each Create is finished at most once and each Init is
// completed at most once.
type Participant struct {
	crypto Crypto
	device Device

	openedKeSessions     *openedSessions
	openedSharedSessions *openedSessions
}

type participantOptions struct {
	maxOpenedSessions int
}

// ParticipantOption configures a Participant.
type ParticipantOption func(*participantOptions)

// MaxOpenedSessions sets the number of started key exchanges tracked for each
// role. When exceeded, the oldest is forgotten and can no longer be finished.
func MaxOpenedSessions(n int) ParticipantOption {
	return func(opts *participantOptions) { opts.maxOpenedSessions = n }
}

// NewParticipant returns a Participant using the crypto capabilities and
// device.
func NewParticipant(crypto Crypto, dev Device, opts ...ParticipantOption) (*Participant, error) {
	options := participantOptions{maxOpenedSessions: DefaultMaxOpenedSessions}
	for _, opt := range opts {
		opt(&options)
	}
	if options.maxOpenedSessions < 1 {
		return nil, NewError(InternalError, "max opened sessions must be positive, got %d", options.maxOpenedSessions)
	}
	if dev == nil {
		return nil, NewError(InternalError, "device is required")
	}
	if err := crypto.validate(); err != nil {
		return nil, &Error{Code: InternalError, Err: err}
	}
	return &Participant{
		crypto:               crypto,
		device:               dev,
		openedKeSessions:     newOpenedSessions(options.maxOpenedSessions),
		openedSharedSessions: newOpenedSessions(options.maxOpenedSessions),
	}, nil
}

// Version returns the latest protocol version supported by the device.
func (p *Participant) Version() int32 { return p.device.GetVersion() }

// Create is the first step of the key exchange, run by the source. It
// generates an ECDH key pair and a nonce. The private key is returned sealed
// in an arc, to be passed back to Finish.
func (p *Participant) Create(ctx context.Context) (*SessionInitiationInfo, error) {
	keKey, err := p.crypto.EcDh.GenerateKey()
	if err != nil {
		return nil, withCode(InternalError, err, "error generating key exchange key")
	}
	defer clear(keKey.Priv)

	nonce, err := NewNonce16(p.crypto.Rng)
	if err != nil {
		return nil, err
	}

	pbk, err := p.device.GetOrCreatePerBootKey(p.crypto.AesGcm, p.crypto.Rng)
	if err != nil {
		return nil, withCode(InternalError, err, "error getting per-boot key")
	}
	defer pbk.Zeroize()

	var protected cbor.Map
	if err := protected.Set(arc.KeNonceLabel, nonce[:]); err != nil {
		return nil, &Error{Code: InternalError, Err: err}
	}
	privKeyArc, err := arc.Create(crypter{aes: p.crypto.AesGcm, key: &pbk}, p.crypto.Rng, arc.Content{
		Payload:   keKey.Priv,
		Protected: protected,
	})
	if err != nil {
		return nil, withCode(InternalError, err, "error sealing private key")
	}

	_, identity, err := p.ownIdentity()
	if err != nil {
		return nil, err
	}
	identityBytes, err := cbor.Marshal(identity)
	if err != nil {
		return nil, NewError(InternalError, "error encoding identity: %w", err)
	}

	pubKey, err := cbor.Marshal(keKey.Pub)
	if err != nil {
		return nil, NewError(InternalError, "error encoding public key: %w", err)
	}
	key := Key{PubKey: pubKey, ArcFromPbk: privKeyArc}
	digest, err := p.keKeyDigest(key)
	if err != nil {
		return nil, err
	}
	p.openedKeSessions.add(digest)

	version := p.device.GetVersion()
	slog.DebugContext(ctx, "key exchange created", "version", version)
	return &SessionInitiationInfo{
		KeKey:    key,
		Identity: identityBytes,
		Nonce:    nonce[:],
		Version:  version,
	}, nil
}

// Init is the second step of the key exchange, run by the sink with the
// output of Create. It derives the shared keys, returns them sealed in arcs
// and signs the session ID.
//
// The arcs cannot be used until AuthenticationComplete has verified the
// signature of the source.
func (p *Participant) Init(ctx context.Context, peerKey, peerID, peerNonce []byte, peerVersion int32) (*KeInitResult, error) {
	negotiated := p.device.GetNegotiatedVersion(peerVersion)
	if negotiated > peerVersion {
		return nil, NewError(IncompatibleProtocolVersion,
			"negotiated version %d is greater than peer's version %d", negotiated, peerVersion)
	}

	keKey, err := p.crypto.EcDh.GenerateKey()
	if err != nil {
		return nil, withCode(InternalError, err, "error generating key exchange key")
	}
	defer clear(keKey.Priv)

	ownNonce, err := NewNonce16(p.crypto.Rng)
	if err != nil {
		return nil, err
	}

	peer, err := decodePeerInfo(peerKey, peerID, peerNonce)
	if err != nil {
		return nil, err
	}
	secret, err := p.computeSharedSecret(keKey.Priv, peer.key)
	if err != nil {
		return nil, err
	}
	defer clear(secret)

	signKey, ownIdentity, err := p.ownIdentity()
	if err != nil {
		return nil, err
	}

	salt, err := computeSalt(p.crypto.Sha256, saltInput{
		SourceVersion:   peerVersion,
		SinkKePubKey:    cbor.Bstr[cose.Key]{Val: keKey.Pub},
		SourceKePubKey:  cbor.Bstr[cose.Key]{Val: peer.key},
		SinkKeNonce:     ownNonce[:],
		SourceKeNonce:   peer.nonce[:],
		SinkCertChain:   cbor.Bstr[CertChain]{Val: ownIdentity.CertChain},
		SourceCertChain: cbor.Bstr[CertChain]{Val: peer.identity.CertChain},
	})
	if err != nil {
		return nil, err
	}
	keys, err := deriveSharedKeys(p.crypto.Hkdf, secret, salt[:], Sink)
	if err != nil {
		return nil, err
	}
	defer keys.zeroize()

	sessionID, signature, err := p.computeSignSessionID(sessionIDInput{
		SinkKeNonce:   ownNonce[:],
		SourceKeNonce: peer.nonce[:],
	}, &keys.Hmac, signKey)
	if err != nil {
		return nil, err
	}

	pbk, err := p.device.GetOrCreatePerBootKey(p.crypto.AesGcm, p.crypto.Rng)
	if err != nil {
		return nil, withCode(InternalError, err, "error getting per-boot key")
	}
	defer pbk.Zeroize()
	arcs, err := p.createSharedKeyArcs(&pbk, ownIdentity, peer.identity, keys, sessionID, false)
	if err != nil {
		return nil, err
	}

	digest, err := p.sessionDigest(peer.identity, sessionID)
	if err != nil {
		return nil, err
	}
	p.openedSharedSessions.add(digest)

	pubKey, err := cbor.Marshal(keKey.Pub)
	if err != nil {
		return nil, NewError(InternalError, "error encoding public key: %w", err)
	}
	identityBytes, err := cbor.Marshal(ownIdentity)
	if err != nil {
		return nil, NewError(InternalError, "error encoding identity: %w", err)
	}

	slog.DebugContext(ctx, "key exchange initialized", "peer version", peerVersion, "version", negotiated)
	return &KeInitResult{
		SessionInitInfo: SessionInitiationInfo{
			KeKey:    Key{PubKey: pubKey},
			Identity: identityBytes,
			Nonce:    ownNonce[:],
			Version:  negotiated,
		},
		SessionInfo: SessionInfo{
			SharedKeys:         arcs,
			SessionID:          sessionID[:],
			SessionIDSignature: signature,
		},
	}, nil
}

// Finish is the third step of the key exchange, run by the source with the
// output of Init and the key returned by its own Create. It authenticates the
// sink, derives the shared keys and signs the session ID.
//
// A key returned by Create can only be finished once.
func (p *Participant) Finish(ctx context.Context, peerKey, peerID, peerSig, peerNonce []byte, peerVersion int32, ownKey Key) (*SessionInfo, error) {
	keDigest, err := p.keKeyDigest(ownKey)
	if err != nil {
		return nil, err
	}
	if !p.openedKeSessions.remove(keDigest) {
		return nil, NewError(InvalidKeKey, "finish is called on invalid session")
	}
	if version := p.device.GetVersion(); version < peerVersion {
		return nil, NewError(IncompatibleProtocolVersion,
			"peer's protocol version %d is incompatible with %d", peerVersion, version)
	}

	pbk, err := p.device.GetPerBootKey()
	if err != nil {
		return nil, withCode(InternalError, err, "error getting per-boot key")
	}
	defer pbk.Zeroize()

	privKeyArc, err := arc.Decipher(crypter{aes: p.crypto.AesGcm, key: &pbk}, ownKey.ArcFromPbk)
	if err != nil {
		return nil, &Error{Code: InvalidPrivKeyArcInKey, Err: err}
	}
	defer clear(privKeyArc.Payload)
	ownNonce, err := extractNonce(privKeyArc.Protected)
	if err != nil {
		return nil, err
	}

	peer, err := decodePeerInfo(peerKey, peerID, peerNonce)
	if err != nil {
		return nil, err
	}
	secret, err := p.computeSharedSecret(privKeyArc.Payload, peer.key)
	if err != nil {
		return nil, err
	}
	defer clear(secret)

	signKey, ownIdentity, err := p.ownIdentity()
	if err != nil {
		return nil, err
	}

	var ownPubKey cose.Key
	if err := cbor.Unmarshal(ownKey.PubKey, &ownPubKey); err != nil {
		return nil, NewError(InvalidPubKeyInKey, "invalid own key for key agreement: %w", err)
	}

	salt, err := computeSalt(p.crypto.Sha256, saltInput{
		SourceVersion:   p.device.GetVersion(),
		SinkKePubKey:    cbor.Bstr[cose.Key]{Val: peer.key},
		SourceKePubKey:  cbor.Bstr[cose.Key]{Val: ownPubKey},
		SinkKeNonce:     peer.nonce[:],
		SourceKeNonce:   ownNonce[:],
		SinkCertChain:   cbor.Bstr[CertChain]{Val: peer.identity.CertChain},
		SourceCertChain: cbor.Bstr[CertChain]{Val: ownIdentity.CertChain},
	})
	if err != nil {
		return nil, err
	}
	keys, err := deriveSharedKeys(p.crypto.Hkdf, secret, salt[:], Source)
	if err != nil {
		return nil, err
	}
	defer keys.zeroize()

	sessionID, signature, err := p.computeSignSessionID(sessionIDInput{
		SinkKeNonce:   peer.nonce[:],
		SourceKeNonce: ownNonce[:],
	}, &keys.Hmac, signKey)
	if err != nil {
		return nil, err
	}

	// Authenticate the sink over the locally computed session ID. Any
	// tampering with the exchanged values, including the version, results in
	// a different session ID.
	verifyKey, err := p.device.ValidatePeerIdentity(peer.identity, p.crypto.EcDsa)
	if err != nil {
		return nil, withCode(InvalidIdentity, err, "error validating peer identity")
	}
	if err := p.VerifySignatureOnSessionID(verifyKey, sessionID[:], peerSig); err != nil {
		return nil, err
	}

	arcs, err := p.createSharedKeyArcs(&pbk, peer.identity, ownIdentity, keys, sessionID, true)
	if err != nil {
		return nil, err
	}
	if err := p.device.RecordSharedSessions(ctx, peer.identity, sessionID, arcs, p.crypto.Sha256); err != nil {
		return nil, withCode(InternalError, err, "error recording shared sessions")
	}

	slog.DebugContext(ctx, "key exchange finished", "version", p.device.GetVersion())
	return &SessionInfo{
		SharedKeys:         arcs,
		SessionID:          sessionID[:],
		SessionIDSignature: signature,
	}, nil
}

// AuthenticationComplete is the final step of the key exchange, run by the
// sink with the signature of the source and the arcs returned by Init. It
// authenticates the source and returns the arcs marked as authenticated.
func (p *Participant) AuthenticationComplete(ctx context.Context, peerSig []byte, sharedKeys [2][]byte) ([2][]byte, error) {
	pbk, err := p.device.GetPerBootKey()
	if err != nil {
		return [2][]byte{}, withCode(InternalError, err, "error getting per-boot key")
	}
	defer pbk.Zeroize()
	c := crypter{aes: p.crypto.AesGcm, key: &pbk}

	var contents [2]*arc.Content
	var headers [2]*sharedKeyArcHeaders
	for i, sharedKey := range sharedKeys {
		content, err := arc.Decipher(c, sharedKey)
		if err != nil {
			return [2][]byte{}, NewError(InvalidSharedKeyArcs, "failed to decrypt %s shared key: %w", arc.Direction(i+1), err)
		}
		defer clear(content.Payload)
		hdr, err := processSharedKeyArcHeaders(content.Protected, false)
		if err != nil {
			return [2][]byte{}, err
		}
		contents[i], headers[i] = content, hdr
	}
	in, out := headers[0], headers[1]
	if in.sessionID != out.sessionID {
		return [2][]byte{}, NewError(InvalidSharedKeyArcs, "session id mismatch")
	}
	if !in.source.Equal(out.source) {
		return [2][]byte{}, NewError(InvalidSharedKeyArcs, "peer identity mismatch")
	}

	digest, err := p.sessionDigest(in.source, in.sessionID)
	if err != nil {
		return [2][]byte{}, err
	}
	if !p.openedSharedSessions.remove(digest) {
		return [2][]byte{}, NewError(InvalidSharedKeyArcs, "authentication_complete is called on invalid session")
	}

	verifyKey, err := p.device.ValidatePeerIdentity(in.source, p.crypto.EcDsa)
	if err != nil {
		return [2][]byte{}, withCode(InvalidIdentity, err, "error validating peer identity")
	}
	if err := p.VerifySignatureOnSessionID(verifyKey, in.sessionID[:], peerSig); err != nil {
		return [2][]byte{}, err
	}

	var updated [2][]byte
	for i, content := range contents {
		content.Protected.Delete(arc.AuthenticationCompleteLabel)
		if err := content.Protected.Set(arc.AuthenticationCompleteLabel, true); err != nil {
			return [2][]byte{}, &Error{Code: InternalError, Err: err}
		}
		if updated[i], err = arc.Create(c, p.crypto.Rng, *content); err != nil {
			return [2][]byte{}, withCode(InternalError, err, "error sealing shared key")
		}
	}
	if err := p.device.RecordSharedSessions(ctx, in.source, in.sessionID, updated, p.crypto.Sha256); err != nil {
		return [2][]byte{}, withCode(InternalError, err, "error recording shared sessions")
	}

	slog.DebugContext(ctx, "key exchange authenticated")
	return updated, nil
}

// DecipherSharedKeysFromArcs returns the keys sealed in one or two arcs from
// a completed key exchange. The arcs must have been recorded by the device at
// the end of the exchange.
func (p *Participant) DecipherSharedKeysFromArcs(ctx context.Context, arcs [][]byte) ([]AesKey, error) {
	if len(arcs) == 0 || len(arcs) > 2 {
		return nil, NewError(InvalidSharedKeyArcs, "expected one or two arcs, provided %d arcs", len(arcs))
	}

	pbk, err := p.device.GetPerBootKey()
	if err != nil {
		return nil, withCode(InternalError, err, "error getting per-boot key")
	}
	defer pbk.Zeroize()
	c := crypter{aes: p.crypto.AesGcm, key: &pbk}

	var (
		contents []*arc.Content
		first    *sharedKeyArcHeaders
	)
	for _, a := range arcs {
		content, err := arc.Decipher(c, a)
		if err != nil {
			return nil, NewError(InvalidSharedKeyArcs, "failed to decrypt shared key: %w", err)
		}
		defer clear(content.Payload)
		hdr, err := processSharedKeyArcHeaders(content.Protected, true)
		if err != nil {
			return nil, err
		}
		contents = append(contents, content)

		if first == nil {
			first = hdr
			continue
		}
		switch {
		case hdr.sessionID != first.sessionID:
			return nil, NewError(InvalidSharedKeyArcs, "session id mismatch")
		case !hdr.source.Equal(first.source):
			return nil, NewError(InvalidSharedKeyArcs, "source identity mismatch")
		case !hdr.sink.Equal(first.sink):
			return nil, NewError(InvalidSharedKeyArcs, "sink identity mismatch")
		}
	}

	_, self, err := p.device.GetIdentity()
	if err != nil {
		return nil, withCode(InternalError, err, "error getting identity")
	}
	if self == nil {
		return nil, NewError(InternalError, "device has no identity")
	}
	var peer *Identity
	switch {
	case self.Equal(first.source):
		peer = first.sink
	case self.Equal(first.sink):
		peer = first.source
	default:
		return nil, NewError(InvalidSharedKeyArcs, "self identity is not included in the arc")
	}
	if err := p.device.ValidateSharedSessions(ctx, peer, first.sessionID, arcs, p.crypto.Sha256); err != nil {
		return nil, withCode(InvalidSharedKeyArcs, err, "error validating shared sessions")
	}

	keys := make([]AesKey, 0, len(contents))
	for _, content := range contents {
		key, err := aesKeyFromPayload(content.Payload)
		if err != nil {
			return nil, err
		}
		if key.IsZero() {
			return nil, NewError(InvalidSharedKeyArcs, "payload key is all zero")
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// PeerVerificationKeyFromIdentity decodes and validates the identity of a peer
// and returns the key which verifies its signatures.
func (p *Participant) PeerVerificationKeyFromIdentity(identity []byte) (*EcVerifyKey, error) {
	var id Identity
	if err := cbor.Unmarshal(identity, &id); err != nil {
		return nil, NewError(InvalidIdentity, "invalid peer identity: %w", err)
	}
	key, err := p.device.ValidatePeerIdentity(&id, p.crypto.EcDsa)
	if err != nil {
		return nil, withCode(InvalidIdentity, err, "error validating peer identity")
	}
	return key, nil
}

// VerifySignatureOnSessionID verifies an encoded COSE_Sign1 with the session ID
// as detached payload.
func (p *Participant) VerifySignatureOnSessionID(key *EcVerifyKey, sessionID, signature []byte) error {
	var s1 cose.Sign1
	if err := cbor.Unmarshal(signature, &s1); err != nil {
		return NewError(InvalidSignature, "invalid session id signature: %w", err)
	}
	if err := key.ValidateCoseKeyParams(); err != nil {
		return err
	}
	if err := s1.VerifyDetached(sessionID, nil, func(sig, tbs []byte) error {
		return p.crypto.EcDsa.VerifySignature(key, tbs, sig)
	}); err != nil {
		return &Error{Code: InvalidSignature, Err: fmt.Errorf("session id signature: %w", err)}
	}
	return nil
}

// ownIdentity returns the identity of the device after validating it.
func (p *Participant) ownIdentity() (*EcSignKey, *Identity, error) {
	signKey, identity, err := p.device.GetIdentity()
	if err != nil {
		return nil, nil, withCode(InternalError, err, "error getting identity")
	}
	if identity == nil {
		return nil, nil, NewError(InternalError, "device has no identity")
	}
	if _, err := identity.Validate(p.crypto.EcDsa); err != nil {
		return nil, nil, err
	}
	return signKey, identity, nil
}

func (p *Participant) computeSharedSecret(ownKey []byte, peerKey cose.Key) (EcdhSecret, error) {
	if err := checkCoseKeyParams(peerKey, cose.EC2KeyType, cose.ECDHESHKDF256Alg, cose.P256Curve, InvalidPeerKeKey); err != nil {
		return nil, err
	}
	secret, err := p.crypto.EcDh.ComputeSharedSecret(ownKey, peerKey)
	if err != nil {
		return nil, withCode(InvalidPeerKeKey, err, "error computing shared secret")
	}
	return secret, nil
}

func (p *Participant) computeSignSessionID(in sessionIDInput, hmacKey *HmacKey, signKey *EcSignKey) (sessionID [SessionIDLen]byte, signature []byte, _ error) {
	data, err := cbor.Marshal(in)
	if err != nil {
		return sessionID, nil, NewError(InternalError, "error encoding session id input: %w", err)
	}
	mac, err := p.crypto.Hmac.ComputeHmac(hmacKey, data)
	if err != nil {
		return sessionID, nil, withCode(InternalError, err, "error computing session id")
	}
	if len(mac) != SessionIDLen {
		return sessionID, nil, NewError(InternalError, "invalid session id length: %d", len(mac))
	}
	copy(sessionID[:], mac)

	alg, err := p.device.GetCoseSignAlgorithm()
	if err != nil {
		return sessionID, nil, withCode(InternalError, err, "error getting signature algorithm")
	}
	s1, err := cose.NewSign1(alg)
	if err != nil {
		return sessionID, nil, &Error{Code: InternalError, Err: err}
	}
	if err := s1.SignDetached(sessionID[:], nil, func(tbs []byte) ([]byte, error) {
		if signKey != nil {
			return p.crypto.EcDsa.Sign(signKey, tbs)
		}
		return p.device.SignData(p.crypto.EcDsa, tbs)
	}); err != nil {
		return sessionID, nil, withCode(InternalError, err, "error signing session id")
	}
	if signature, err = cbor.Marshal(s1); err != nil {
		return sessionID, nil, NewError(InternalError, "error encoding session id signature: %w", err)
	}
	return sessionID, signature, nil
}

// createSharedKeyArcs seals the inbound and outbound keys, in that order.
func (p *Participant) createSharedKeyArcs(pbk *AesKey, sink, source *Identity, keys *sharedKeys, sessionID [SessionIDLen]byte, authComplete bool) ([2][]byte, error) {
	var perm arc.Permissions
	var err error
	if perm.SourceID, err = cbor.Marshal(source); err != nil {
		return [2][]byte{}, NewError(InternalError, "error encoding source identity: %w", err)
	}
	if perm.SinkID, err = cbor.Marshal(sink); err != nil {
		return [2][]byte{}, NewError(InternalError, "error encoding sink identity: %w", err)
	}

	c := crypter{aes: p.crypto.AesGcm, key: pbk}
	var arcs [2][]byte
	for i, key := range []struct {
		payload   []byte
		direction arc.Direction
	}{
		{keys.In[:], arc.In},
		{keys.Out[:], arc.Out},
	} {
		var protected cbor.Map
		for _, hdr := range []struct {
			label cose.Label
			value any
		}{
			{arc.AuthenticationCompleteLabel, authComplete},
			{arc.SessionIDLabel, sessionID[:]},
			{arc.PermissionsLabel, perm},
			{arc.DirectionLabel, key.direction},
		} {
			if err := protected.Set(hdr.label, hdr.value); err != nil {
				return [2][]byte{}, NewError(InternalError, "error encoding arc header %d: %w", hdr.label, err)
			}
		}
		if arcs[i], err = arc.Create(c, p.crypto.Rng, arc.Content{Payload: key.payload, Protected: protected}); err != nil {
			return [2][]byte{}, withCode(InternalError, err, "error sealing "+key.direction.String()+" shared key")
		}
	}
	return arcs, nil
}

// keKeyDigest identifies a key exchange started by Create.
func (p *Participant) keKeyDigest(key Key) ([SHA256Len]byte, error) {
	if key.PubKey == nil {
		return [SHA256Len]byte{}, NewError(InvalidPubKeyInKey, "missing public key")
	}
	if key.ArcFromPbk == nil {
		return [SHA256Len]byte{}, NewError(InvalidPrivKeyArcInKey, "missing private key arc")
	}
	digest, err := p.crypto.Sha256.ComputeSha256(append(append([]byte(nil), key.PubKey...), key.ArcFromPbk...))
	return digest, withCode(InternalError, err, "error computing key digest")
}

// sessionDigest identifies a key exchange started by Init.
func (p *Participant) sessionDigest(peer *Identity, sessionID [SessionIDLen]byte) ([SHA256Len]byte, error) {
	id, err := cbor.Marshal(peer)
	if err != nil {
		return [SHA256Len]byte{}, NewError(InternalError, "error encoding peer identity: %w", err)
	}
	digest, err := p.crypto.Sha256.ComputeSha256(append(id, sessionID[:]...))
	return digest, withCode(InternalError, err, "error computing session digest")
}

type peerInfo struct {
	key      cose.Key
	identity *Identity
	nonce    Nonce16
}

func decodePeerInfo(key, identity, nonce []byte) (*peerInfo, error) {
	var peer peerInfo
	if err := cbor.Unmarshal(key, &peer.key); err != nil {
		return nil, NewError(InvalidPeerKeKey, "invalid peer key for key agreement: %w", err)
	}
	peer.identity = new(Identity)
	if err := cbor.Unmarshal(identity, peer.identity); err != nil {
		return nil, NewError(InvalidIdentity, "invalid peer identity: %w", err)
	}
	var ok bool
	if peer.nonce, ok = nonce16FromBytes(nonce); !ok {
		return nil, NewError(InvalidPeerNonce, "invalid nonce size: %d", len(nonce))
	}
	return &peer, nil
}

// extractNonce returns the key exchange nonce sealed with a private key.
func extractNonce(protected cbor.Map) (Nonce16, error) {
	b, ok, err := bytesHeader(protected, arc.KeNonceLabel)
	if err != nil {
		return Nonce16{}, NewError(InvalidPrivKeyArcInKey, "invalid encoding of own nonce: %w", err)
	}
	if !ok {
		return Nonce16{}, NewError(InvalidPrivKeyArcInKey, "own nonce for key agreement is missing")
	}
	nonce, ok := nonce16FromBytes(b)
	if !ok {
		return Nonce16{}, NewError(InvalidPrivKeyArcInKey, "invalid length of own nonce for key agreement: %d", len(b))
	}
	return nonce, nil
}

type sharedKeyArcHeaders struct {
	sessionID [SessionIDLen]byte
	source    *Identity
	sink      *Identity
}

// processSharedKeyArcHeaders checks the authentication status of a shared key
// arc and returns its session ID and identities.
func processSharedKeyArcHeaders(protected cbor.Map, wantAuthComplete bool) (*sharedKeyArcHeaders, error) {
	var hdr sharedKeyArcHeaders

	sessionID, ok, err := bytesHeader(protected, arc.SessionIDLabel)
	if err != nil {
		return nil, NewError(InvalidSharedKeyArcs, "invalid encoding of session id: %w", err)
	} else if !ok {
		return nil, NewError(InvalidSharedKeyArcs, "session id is missing")
	}
	if len(sessionID) != SessionIDLen {
		return nil, NewError(InvalidSharedKeyArcs, "invalid session id length: %d", len(sessionID))
	}
	copy(hdr.sessionID[:], sessionID)

	var perm arc.Permissions
	if ok, err := protected.Get(arc.PermissionsLabel, &perm); err != nil {
		return nil, NewError(InvalidSharedKeyArcs, "invalid permissions: %w", err)
	} else if !ok {
		return nil, NewError(InvalidSharedKeyArcs, "permissions are missing")
	}
	if hdr.source, err = permittedIdentity(perm.SourceID, "source"); err != nil {
		return nil, err
	}
	if hdr.sink, err = permittedIdentity(perm.SinkID, "sink"); err != nil {
		return nil, err
	}

	var authComplete bool
	if ok, err := protected.Get(arc.AuthenticationCompleteLabel, &authComplete); err != nil {
		return nil, NewError(InvalidSharedKeyArcs, "invalid encoding of authentication complete: %w", err)
	} else if !ok {
		return nil, NewError(InvalidSharedKeyArcs, "authentication complete is missing")
	}
	if authComplete != wantAuthComplete {
		return nil, NewError(InvalidSharedKeyArcs, "invalid authentication complete status")
	}
	return &hdr, nil
}

func permittedIdentity(raw cbor.RawBytes, role string) (*Identity, error) {
	if len(raw) == 0 {
		return nil, NewError(InvalidSharedKeyArcs, "%s identity is missing in the permissions", role)
	}
	var id Identity
	if err := cbor.Unmarshal(raw, &id); err != nil {
		return nil, NewError(InvalidSharedKeyArcs, "invalid %s identity in the permissions: %w", role, err)
	}
	return &id, nil
}

// bytesHeader returns a header value which must be a byte string.
func bytesHeader(hdrs cbor.Map, label cose.Label) ([]byte, bool, error) {
	key, err := cbor.Marshal(label)
	if err != nil {
		return nil, false, err
	}
	raw, ok := hdrs.Lookup(key)
	if !ok {
		return nil, false, nil
	}
	if !cbor.IsBytes(raw) {
		return nil, true, errors.New("header is not a byte string")
	}
	var b []byte
	if err := cbor.Unmarshal(raw, &b); err != nil {
		return nil, true, err
	}
	return b, true, nil
}
