// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraphtest

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
)

// TestingLog creates a testing logger.
func TestingLog(t testing.TB) io.Writer { return &testLog{t} }

type testLog struct{ tb testing.TB }

// Write implements io.Writer.
func (l *testLog) Write(p []byte) (int, error) {
	l.tb.Helper()
	l.tb.Log(string(bytes.TrimSpace(p)))
	return len(p), nil
}

// SetDebugLog routes the default slog logger to the test log at debug level
// and restores the previous logger when the test ends.
func SetDebugLog(t testing.TB) {
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(TestingLog(t), &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
}
