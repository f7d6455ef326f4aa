// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package sqlite_test

import (
	"context"
	"crypto/sha256"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authgraph "github.com/fido-device-onboard/go-authgraph"
	"github.com/fido-device-onboard/go-authgraph/authgraphtest"
	"github.com/fido-device-onboard/go-authgraph/sqlite"
)

func newDB(t *testing.T, path string) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(path, "test_password")
	require.NoError(t, err)
	db.DebugLog = authgraphtest.TestingLog(t)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSharedSessions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db.test")
	db := newDB(t, path)

	key := sha256.Sum256([]byte("session"))
	digests := [][authgraph.SHA256Len]byte{
		sha256.Sum256([]byte("in")),
		sha256.Sum256([]byte("out")),
	}

	_, err := db.SharedSession(ctx, key)
	assert.ErrorIs(t, err, authgraph.ErrNotFound)

	require.NoError(t, db.AddSharedSession(ctx, key, digests))
	got, err := db.SharedSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, digests, got)

	// Replacing a record drops the old digests
	require.NoError(t, db.AddSharedSession(ctx, key, digests[1:]))
	got, err = db.SharedSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, digests[1:], got)

	// Records survive reopening the database
	require.NoError(t, db.Close())
	db = newDB(t, path)
	got, err = db.SharedSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, digests[1:], got)

	require.NoError(t, db.RemoveSharedSession(ctx, key))
	assert.ErrorIs(t, db.RemoveSharedSession(ctx, key), authgraph.ErrNotFound)
	_, err = db.SharedSession(ctx, key)
	assert.ErrorIs(t, err, authgraph.ErrNotFound)

	var orphans int
	require.NoError(t, db.DB().QueryRow("SELECT COUNT(*) FROM shared_session_arcs").Scan(&orphans))
	assert.Zero(t, orphans, "arc digests must be removed with their session")
}

func TestClearSharedSessions(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, filepath.Join(t.TempDir(), "db.test"))

	keys := [][authgraph.SHA256Len]byte{sha256.Sum256([]byte("a")), sha256.Sum256([]byte("b"))}
	for _, key := range keys {
		require.NoError(t, db.AddSharedSession(ctx, key, [][authgraph.SHA256Len]byte{key}))
	}
	require.NoError(t, db.ClearSharedSessions(ctx))
	for _, key := range keys {
		_, err := db.SharedSession(ctx, key)
		assert.ErrorIs(t, err, authgraph.ErrNotFound)
	}
}

func TestWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.test")
	db := newDB(t, path)
	require.NoError(t, db.AddSharedSession(context.Background(), sha256.Sum256(nil), nil))
	require.NoError(t, db.Close())

	_, err := sqlite.Open(path, "wrong_password")
	assert.Error(t, err)
}

func TestKeyExchange(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sourceDB := newDB(t, filepath.Join(dir, "source.db"))
	sinkDB := newDB(t, filepath.Join(dir, "sink.db"))

	sourceDev := authgraphtest.NewDevice(t, authgraphtest.WithSessionState(sourceDB))
	sinkDev := authgraphtest.NewDevice(t, authgraphtest.WithSessionState(sinkDB), authgraphtest.WithKeyVariant(authgraph.P384))
	source := authgraphtest.NewParticipant(t, sourceDev)
	sink := authgraphtest.NewParticipant(t, sinkDev)

	ex := authgraphtest.RunKeyExchange(ctx, t, source, sink)

	sourceKeys, err := source.DecipherSharedKeysFromArcs(ctx, ex.SourceArcs[:])
	require.NoError(t, err)
	sinkKeys, err := sink.DecipherSharedKeysFromArcs(ctx, ex.SinkArcs[:])
	require.NoError(t, err)
	assert.Equal(t, sourceKeys[0], sinkKeys[1])
	assert.Equal(t, sourceKeys[1], sinkKeys[0])

	// Without a record the arcs are rejected
	require.NoError(t, sinkDB.ClearSharedSessions(ctx))
	_, err = sink.DecipherSharedKeysFromArcs(ctx, ex.SinkArcs[:])
	require.Error(t, err)
	assert.Equal(t, authgraph.InvalidSharedKeyArcs, authgraph.CodeOf(err))
}
