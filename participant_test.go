// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph_test

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authgraph "github.com/fido-device-onboard/go-authgraph"
	"github.com/fido-device-onboard/go-authgraph/arc"
	"github.com/fido-device-onboard/go-authgraph/authgraphtest"
	"github.com/fido-device-onboard/go-authgraph/cbor"
	"github.com/fido-device-onboard/go-authgraph/device"
	"github.com/fido-device-onboard/go-authgraph/internal/memory"
	"github.com/fido-device-onboard/go-authgraph/swcrypto"
)

func newPair(t *testing.T, sourceOpts, sinkOpts []authgraphtest.DeviceOption, opts ...authgraph.ParticipantOption) (source, sink *authgraph.Participant, sourceDev, sinkDev *device.Local) {
	t.Helper()
	sourceDev = authgraphtest.NewDevice(t, sourceOpts...)
	sinkDev = authgraphtest.NewDevice(t, sinkOpts...)
	return authgraphtest.NewParticipant(t, sourceDev, opts...), authgraphtest.NewParticipant(t, sinkDev, opts...), sourceDev, sinkDev
}

func assertCode(t *testing.T, want authgraph.ErrorCode, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, authgraph.CodeOf(err), "%v", err)
}

func TestKeyExchange(t *testing.T) {
	authgraphtest.SetDebugLog(t)
	ctx := context.Background()

	for _, variant := range variants {
		t.Run(variant.String(), func(t *testing.T) {
			source, sink, _, _ := newPair(t,
				[]authgraphtest.DeviceOption{authgraphtest.WithKeyVariant(variant)},
				[]authgraphtest.DeviceOption{authgraphtest.WithKeyVariant(variant), authgraphtest.WithChainLength(5)},
			)
			ex := authgraphtest.RunKeyExchange(ctx, t, source, sink)
			require.Len(t, ex.SessionID, authgraph.SessionIDLen)

			sourceKeys, err := source.DecipherSharedKeysFromArcs(ctx, ex.SourceArcs[:])
			require.NoError(t, err)
			sinkKeys, err := sink.DecipherSharedKeysFromArcs(ctx, ex.SinkArcs[:])
			require.NoError(t, err)
			require.Len(t, sourceKeys, 2)
			require.Len(t, sinkKeys, 2)

			// The inbound key of each participant is the outbound key of the
			// other.
			assert.Equal(t, sourceKeys[0], sinkKeys[1])
			assert.Equal(t, sourceKeys[1], sinkKeys[0])
			assert.NotEqual(t, sourceKeys[0], sourceKeys[1])

			single, err := sink.DecipherSharedKeysFromArcs(ctx, ex.SinkArcs[1:])
			require.NoError(t, err)
			assert.Equal(t, sinkKeys[1:], single)
		})
	}
}

func TestKeyExchangeVersions(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name          string
		source, sink  int32
		wantNegotiate int32
	}{
		{"same", 1, 1, 1},
		{"newer source", 2, 1, 1},
		{"newer sink", 1, 2, 1},
		{"both newer", 2, 2, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			source, sink, _, _ := newPair(t,
				[]authgraphtest.DeviceOption{authgraphtest.WithVersion(tc.source)},
				[]authgraphtest.DeviceOption{authgraphtest.WithVersion(tc.sink)},
			)
			assert.Equal(t, tc.source, source.Version())
			assert.Equal(t, tc.sink, sink.Version())

			created, err := source.Create(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.source, created.Version)

			initialized, err := sink.Init(ctx, created.KeKey.PubKey, created.Identity, created.Nonce, created.Version)
			require.NoError(t, err)
			assert.Equal(t, tc.wantNegotiate, initialized.SessionInitInfo.Version)
			assert.Nil(t, initialized.SessionInitInfo.KeKey.ArcFromPbk)

			peer := initialized.SessionInitInfo
			finished, err := source.Finish(ctx, peer.KeKey.PubKey, peer.Identity,
				initialized.SessionInfo.SessionIDSignature, peer.Nonce, peer.Version, created.KeKey)
			require.NoError(t, err)
			assert.Equal(t, initialized.SessionInfo.SessionID, finished.SessionID)

			_, err = sink.AuthenticationComplete(ctx, finished.SessionIDSignature, initialized.SessionInfo.SharedKeys)
			require.NoError(t, err)
		})
	}
}

func TestKeyExchangeVersionDowngrade(t *testing.T) {
	ctx := context.Background()
	source, sink, _, _ := newPair(t,
		[]authgraphtest.DeviceOption{authgraphtest.WithVersion(2)},
		[]authgraphtest.DeviceOption{authgraphtest.WithVersion(2)},
	)

	created, err := source.Create(ctx)
	require.NoError(t, err)

	// The version is altered in transit
	initialized, err := sink.Init(ctx, created.KeKey.PubKey, created.Identity, created.Nonce, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), initialized.SessionInitInfo.Version)

	peer := initialized.SessionInitInfo
	_, err = source.Finish(ctx, peer.KeKey.PubKey, peer.Identity,
		initialized.SessionInfo.SessionIDSignature, peer.Nonce, peer.Version, created.KeKey)
	assertCode(t, authgraph.InvalidSignature, err)
}

func TestFinishNewerPeerVersion(t *testing.T) {
	ctx := context.Background()
	source, sink, _, _ := newPair(t, nil, []authgraphtest.DeviceOption{authgraphtest.WithVersion(2)})

	created, err := source.Create(ctx)
	require.NoError(t, err)
	initialized, err := sink.Init(ctx, created.KeKey.PubKey, created.Identity, created.Nonce, created.Version)
	require.NoError(t, err)

	peer := initialized.SessionInitInfo
	_, err = source.Finish(ctx, peer.KeKey.PubKey, peer.Identity,
		initialized.SessionInfo.SessionIDSignature, peer.Nonce, 2, created.KeKey)
	assertCode(t, authgraph.IncompatibleProtocolVersion, err)
}

// greedyDevice negotiates a version above what the peer supports.
type greedyDevice struct{ *device.Local }

func (greedyDevice) GetNegotiatedVersion(int32) int32 { return 5 }

func TestInitNegotiatedAbovePeer(t *testing.T) {
	ctx := context.Background()
	source := authgraphtest.NewParticipant(t, authgraphtest.NewDevice(t))
	sink := authgraphtest.NewParticipant(t, greedyDevice{authgraphtest.NewDevice(t, authgraphtest.WithVersion(5))})

	created, err := source.Create(ctx)
	require.NoError(t, err)
	_, err = sink.Init(ctx, created.KeKey.PubKey, created.Identity, created.Nonce, created.Version)
	assertCode(t, authgraph.IncompatibleProtocolVersion, err)
}

func TestKeyExchangeReplay(t *testing.T) {
	ctx := context.Background()
	source, sink, _, _ := newPair(t, nil, nil)

	created, err := source.Create(ctx)
	require.NoError(t, err)
	initialized, err := sink.Init(ctx, created.KeKey.PubKey, created.Identity, created.Nonce, created.Version)
	require.NoError(t, err)
	peer := initialized.SessionInitInfo
	finished, err := source.Finish(ctx, peer.KeKey.PubKey, peer.Identity,
		initialized.SessionInfo.SessionIDSignature, peer.Nonce, peer.Version, created.KeKey)
	require.NoError(t, err)
	_, err = sink.AuthenticationComplete(ctx, finished.SessionIDSignature, initialized.SessionInfo.SharedKeys)
	require.NoError(t, err)

	// A second init with the same create output starts a new session
	again, err := sink.Init(ctx, created.KeKey.PubKey, created.Identity, created.Nonce, created.Version)
	require.NoError(t, err)
	peer = again.SessionInitInfo
	_, err = source.Finish(ctx, peer.KeKey.PubKey, peer.Identity,
		again.SessionInfo.SessionIDSignature, peer.Nonce, peer.Version, created.KeKey)
	assertCode(t, authgraph.InvalidKeKey, err)

	_, err = sink.AuthenticationComplete(ctx, finished.SessionIDSignature, initialized.SessionInfo.SharedKeys)
	assertCode(t, authgraph.InvalidSharedKeyArcs, err)
}

func TestMaxOpenedSessions(t *testing.T) {
	ctx := context.Background()
	authgraphtest.SetDebugLog(t)
	source, sink, _, _ := newPair(t, nil, nil, authgraph.MaxOpenedSessions(1))

	first, err := source.Create(ctx)
	require.NoError(t, err)
	second, err := source.Create(ctx)
	require.NoError(t, err)

	for _, tc := range []struct {
		created *authgraph.SessionInitiationInfo
		want    authgraph.ErrorCode
	}{
		{first, authgraph.InvalidKeKey},
		{second, authgraph.Ok},
	} {
		initialized, err := sink.Init(ctx, tc.created.KeKey.PubKey, tc.created.Identity, tc.created.Nonce, tc.created.Version)
		require.NoError(t, err)
		peer := initialized.SessionInitInfo
		_, err = source.Finish(ctx, peer.KeKey.PubKey, peer.Identity,
			initialized.SessionInfo.SessionIDSignature, peer.Nonce, peer.Version, tc.created.KeKey)
		if tc.want == authgraph.Ok {
			require.NoError(t, err)
			continue
		}
		assertCode(t, tc.want, err)
	}
}

func TestNewParticipantErrors(t *testing.T) {
	dev := authgraphtest.NewDevice(t)

	_, err := authgraph.NewParticipant(swcrypto.New(), nil)
	assertCode(t, authgraph.InternalError, err)

	_, err = authgraph.NewParticipant(swcrypto.New(), dev, authgraph.MaxOpenedSessions(0))
	assertCode(t, authgraph.InternalError, err)

	crypto := swcrypto.New()
	crypto.Hkdf = nil
	_, err = authgraph.NewParticipant(crypto, dev)
	assertCode(t, authgraph.InternalError, err)

	_, err = authgraph.NewParticipant(authgraph.Crypto{}, dev)
	assertCode(t, authgraph.InternalError, err)
}

func TestCreateWithoutIdentity(t *testing.T) {
	p := authgraphtest.NewParticipant(t, &device.Local{Sessions: memory.NewState()})
	_, err := p.Create(context.Background())
	assertCode(t, authgraph.InternalError, err)
}

func TestInitErrors(t *testing.T) {
	ctx := context.Background()
	source, sink, sourceDev, _ := newPair(t, nil, nil)
	created, err := source.Create(ctx)
	require.NoError(t, err)

	rootKey, err := cbor.Marshal(sourceDev.Identity.CertChain.RootKey.Key)
	require.NoError(t, err)

	for _, tc := range []struct {
		name                 string
		key, identity, nonce []byte
		want                 authgraph.ErrorCode
	}{
		{"short nonce", created.KeKey.PubKey, created.Identity, created.Nonce[:15], authgraph.InvalidPeerNonce},
		{"long nonce", created.KeKey.PubKey, created.Identity, append(created.Nonce, 0), authgraph.InvalidPeerNonce},
		{"malformed key", []byte{0x01}, created.Identity, created.Nonce, authgraph.InvalidPeerKeKey},
		{"signing key", rootKey, created.Identity, created.Nonce, authgraph.InvalidPeerKeKey},
		{"malformed identity", created.KeKey.PubKey, []byte{0x80}, created.Nonce, authgraph.InvalidIdentity},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sink.Init(ctx, tc.key, tc.identity, tc.nonce, created.Version)
			assertCode(t, tc.want, err)
		})
	}
}

func TestFinishErrors(t *testing.T) {
	ctx := context.Background()
	source, sink, sourceDev, _ := newPair(t, nil, nil)

	start := func(t *testing.T) (*authgraph.SessionInitiationInfo, *authgraph.KeInitResult) {
		t.Helper()
		created, err := source.Create(ctx)
		require.NoError(t, err)
		initialized, err := sink.Init(ctx, created.KeKey.PubKey, created.Identity, created.Nonce, created.Version)
		require.NoError(t, err)
		return created, initialized
	}

	t.Run("missing public key", func(t *testing.T) {
		created, initialized := start(t)
		peer := initialized.SessionInitInfo
		_, err := source.Finish(ctx, peer.KeKey.PubKey, peer.Identity, initialized.SessionInfo.SessionIDSignature,
			peer.Nonce, peer.Version, authgraph.Key{ArcFromPbk: created.KeKey.ArcFromPbk})
		assertCode(t, authgraph.InvalidPubKeyInKey, err)
	})

	t.Run("missing arc", func(t *testing.T) {
		created, initialized := start(t)
		peer := initialized.SessionInitInfo
		_, err := source.Finish(ctx, peer.KeKey.PubKey, peer.Identity, initialized.SessionInfo.SessionIDSignature,
			peer.Nonce, peer.Version, authgraph.Key{PubKey: created.KeKey.PubKey})
		assertCode(t, authgraph.InvalidPrivKeyArcInKey, err)
	})

	t.Run("unknown key", func(t *testing.T) {
		created, initialized := start(t)
		peer := initialized.SessionInitInfo
		arc := append([]byte(nil), created.KeKey.ArcFromPbk...)
		arc[len(arc)-1] ^= 0xff
		_, err := source.Finish(ctx, peer.KeKey.PubKey, peer.Identity, initialized.SessionInfo.SessionIDSignature,
			peer.Nonce, peer.Version, authgraph.Key{PubKey: created.KeKey.PubKey, ArcFromPbk: arc})
		assertCode(t, authgraph.InvalidKeKey, err)
	})

	t.Run("bad signature", func(t *testing.T) {
		created, initialized := start(t)
		_, other := start(t)
		peer := initialized.SessionInitInfo
		_, err := source.Finish(ctx, peer.KeKey.PubKey, peer.Identity, other.SessionInfo.SessionIDSignature,
			peer.Nonce, peer.Version, created.KeKey)
		assertCode(t, authgraph.InvalidSignature, err)
	})

	t.Run("malformed signature", func(t *testing.T) {
		created, initialized := start(t)
		peer := initialized.SessionInitInfo
		_, err := source.Finish(ctx, peer.KeKey.PubKey, peer.Identity, []byte{0xf6},
			peer.Nonce, peer.Version, created.KeKey)
		assertCode(t, authgraph.InvalidSignature, err)
	})

	t.Run("wrong nonce", func(t *testing.T) {
		created, initialized := start(t)
		peer := initialized.SessionInitInfo
		nonce := append([]byte(nil), peer.Nonce...)
		nonce[0] ^= 0xff
		_, err := source.Finish(ctx, peer.KeKey.PubKey, peer.Identity, initialized.SessionInfo.SessionIDSignature,
			nonce, peer.Version, created.KeKey)
		assertCode(t, authgraph.InvalidSignature, err)
	})

	t.Run("invalid peer chain", func(t *testing.T) {
		created, initialized := start(t)
		peer := initialized.SessionInitInfo
		var id authgraph.Identity
		require.NoError(t, cbor.Unmarshal(peer.Identity, &id))
		id.CertChain.Version = 2
		badID, err := cbor.Marshal(id)
		require.NoError(t, err)
		_, err = source.Finish(ctx, peer.KeKey.PubKey, badID, initialized.SessionInfo.SessionIDSignature,
			peer.Nonce, peer.Version, created.KeKey)
		assertCode(t, authgraph.InvalidCertChain, err)
	})

	t.Run("invalid own identity", func(t *testing.T) {
		created, initialized := start(t)
		peer := initialized.SessionInitInfo
		valid := sourceDev.Identity
		t.Cleanup(func() { sourceDev.Identity = valid })
		invalid := *valid
		invalid.Version++
		sourceDev.Identity = &invalid
		_, err := source.Finish(ctx, peer.KeKey.PubKey, peer.Identity, initialized.SessionInfo.SessionIDSignature,
			peer.Nonce, peer.Version, created.KeKey)
		assertCode(t, authgraph.InvalidIdentity, err)
	})
}

func TestAuthenticationCompleteErrors(t *testing.T) {
	ctx := context.Background()
	source, sink, _, _ := newPair(t, nil, nil)

	finish := func(t *testing.T) (*authgraph.KeInitResult, *authgraph.SessionInfo) {
		t.Helper()
		created, err := source.Create(ctx)
		require.NoError(t, err)
		initialized, err := sink.Init(ctx, created.KeKey.PubKey, created.Identity, created.Nonce, created.Version)
		require.NoError(t, err)
		peer := initialized.SessionInitInfo
		finished, err := source.Finish(ctx, peer.KeKey.PubKey, peer.Identity,
			initialized.SessionInfo.SessionIDSignature, peer.Nonce, peer.Version, created.KeKey)
		require.NoError(t, err)
		return initialized, finished
	}

	t.Run("bad signature", func(t *testing.T) {
		initialized, _ := finish(t)
		_, other := finish(t)
		_, err := sink.AuthenticationComplete(ctx, other.SessionIDSignature, initialized.SessionInfo.SharedKeys)
		assertCode(t, authgraph.InvalidSignature, err)
	})

	t.Run("malformed arc", func(t *testing.T) {
		initialized, finished := finish(t)
		arcs := initialized.SessionInfo.SharedKeys
		arcs[1] = []byte{0x80}
		_, err := sink.AuthenticationComplete(ctx, finished.SessionIDSignature, arcs)
		assertCode(t, authgraph.InvalidSharedKeyArcs, err)
	})

	t.Run("mixed sessions", func(t *testing.T) {
		initialized, finished := finish(t)
		other, _ := finish(t)
		arcs := [2][]byte{initialized.SessionInfo.SharedKeys[0], other.SessionInfo.SharedKeys[1]}
		_, err := sink.AuthenticationComplete(ctx, finished.SessionIDSignature, arcs)
		assertCode(t, authgraph.InvalidSharedKeyArcs, err)
	})

	t.Run("completed arcs", func(t *testing.T) {
		_, finished := finish(t)
		_, err := source.AuthenticationComplete(ctx, finished.SessionIDSignature, finished.SharedKeys)
		assertCode(t, authgraph.InvalidSharedKeyArcs, err)
	})
}

func TestDecipherSharedKeysFromArcsErrors(t *testing.T) {
	ctx := context.Background()
	source, sink, sourceDev, sinkDev := newPair(t, nil, nil)
	ex := authgraphtest.RunKeyExchange(ctx, t, source, sink)

	t.Run("zero key", func(t *testing.T) {
		pbk, err := sourceDev.GetPerBootKey()
		require.NoError(t, err)
		_, sourceID, err := sourceDev.GetIdentity()
		require.NoError(t, err)
		_, sinkID, err := sinkDev.GetIdentity()
		require.NoError(t, err)

		var perm arc.Permissions
		perm.SourceID, err = cbor.Marshal(sourceID)
		require.NoError(t, err)
		perm.SinkID, err = cbor.Marshal(sinkID)
		require.NoError(t, err)
		var sessionID [authgraph.SessionIDLen]byte
		sessionID[0] = 0x5a

		c := pbkCrypter{key: &pbk}
		var arcs [2][]byte
		for i, dir := range []arc.Direction{arc.In, arc.Out} {
			var protected cbor.Map
			require.NoError(t, protected.Set(arc.AuthenticationCompleteLabel, true))
			require.NoError(t, protected.Set(arc.SessionIDLabel, sessionID[:]))
			require.NoError(t, protected.Set(arc.PermissionsLabel, perm))
			require.NoError(t, protected.Set(arc.DirectionLabel, dir))
			arcs[i], err = arc.Create(c, rand.Reader, arc.Content{
				Payload:   make([]byte, authgraph.AES256KeyLen),
				Protected: protected,
			})
			require.NoError(t, err)
		}
		require.NoError(t, sourceDev.RecordSharedSessions(ctx, sinkID, sessionID, arcs, swcrypto.Sha256{}))

		_, err = source.DecipherSharedKeysFromArcs(ctx, arcs[:])
		assertCode(t, authgraph.InvalidSharedKeyArcs, err)
		assert.ErrorContains(t, err, "all zero")
	})

	t.Run("arc count", func(t *testing.T) {
		_, err := source.DecipherSharedKeysFromArcs(ctx, nil)
		assertCode(t, authgraph.InvalidSharedKeyArcs, err)
		_, err = source.DecipherSharedKeysFromArcs(ctx, [][]byte{ex.SourceArcs[0], ex.SourceArcs[1], ex.SourceArcs[0]})
		assertCode(t, authgraph.InvalidSharedKeyArcs, err)
	})

	t.Run("other participant", func(t *testing.T) {
		_, err := sink.DecipherSharedKeysFromArcs(ctx, ex.SourceArcs[:])
		assertCode(t, authgraph.InvalidSharedKeyArcs, err)
	})

	t.Run("not authenticated", func(t *testing.T) {
		created, err := source.Create(ctx)
		require.NoError(t, err)
		initialized, err := sink.Init(ctx, created.KeKey.PubKey, created.Identity, created.Nonce, created.Version)
		require.NoError(t, err)
		_, err = sink.DecipherSharedKeysFromArcs(ctx, initialized.SessionInfo.SharedKeys[:])
		assertCode(t, authgraph.InvalidSharedKeyArcs, err)
	})

	t.Run("mixed sessions", func(t *testing.T) {
		other := authgraphtest.RunKeyExchange(ctx, t, source, sink)
		_, err := source.DecipherSharedKeysFromArcs(ctx, [][]byte{ex.SourceArcs[0], other.SourceArcs[1]})
		assertCode(t, authgraph.InvalidSharedKeyArcs, err)
	})

	t.Run("unrecorded", func(t *testing.T) {
		dev := authgraphtest.NewDevice(t)
		sink := authgraphtest.NewParticipant(t, dev)
		ex := authgraphtest.RunKeyExchange(ctx, t, source, sink)
		dev.Sessions = memory.NewState()
		_, err := sink.DecipherSharedKeysFromArcs(ctx, ex.SinkArcs[:])
		assertCode(t, authgraph.InvalidSharedKeyArcs, err)
	})

	t.Run("reboot", func(t *testing.T) {
		sourceDev.Reboot()
		_, err := source.DecipherSharedKeysFromArcs(ctx, ex.SourceArcs[:])
		assertCode(t, authgraph.InternalError, err)
	})
}

// pbkCrypter seals arcs the way a participant does with its per-boot key.
type pbkCrypter struct{ key *authgraph.AesKey }

func (c pbkCrypter) Encrypt(plaintext, aad, iv []byte) ([]byte, error) {
	var nonce authgraph.Nonce12
	copy(nonce[:], iv)
	return swcrypto.AesGcm{}.Encrypt(c.key, plaintext, aad, &nonce)
}

func (c pbkCrypter) Decrypt(ciphertext, aad, iv []byte) ([]byte, error) {
	var nonce authgraph.Nonce12
	copy(nonce[:], iv)
	return swcrypto.AesGcm{}.Decrypt(c.key, ciphertext, aad, &nonce)
}

func TestSessionIDSignature(t *testing.T) {
	ctx := context.Background()
	source, sink, _, _ := newPair(t, []authgraphtest.DeviceOption{authgraphtest.WithKeyVariant(authgraph.P384)}, nil)

	created, err := source.Create(ctx)
	require.NoError(t, err)
	initialized, err := sink.Init(ctx, created.KeKey.PubKey, created.Identity, created.Nonce, created.Version)
	require.NoError(t, err)

	key, err := source.PeerVerificationKeyFromIdentity(initialized.SessionInitInfo.Identity)
	require.NoError(t, err)
	sid, sig := initialized.SessionInfo.SessionID, initialized.SessionInfo.SessionIDSignature
	require.NoError(t, source.VerifySignatureOnSessionID(key, sid, sig))

	other := append([]byte(nil), sid...)
	other[0] ^= 1
	assertCode(t, authgraph.InvalidSignature, source.VerifySignatureOnSessionID(key, other, sig))
	assertCode(t, authgraph.InvalidSignature, source.VerifySignatureOnSessionID(key, sid, []byte{0x01}))

	sourceKey, err := sink.PeerVerificationKeyFromIdentity(created.Identity)
	require.NoError(t, err)
	assert.Equal(t, authgraph.P384, sourceKey.Variant)
	assertCode(t, authgraph.InvalidSignature, sink.VerifySignatureOnSessionID(sourceKey, sid, sig))

	_, err = sink.PeerVerificationKeyFromIdentity([]byte{0x80})
	assertCode(t, authgraph.InvalidIdentity, err)
}
