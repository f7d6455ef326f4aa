// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package memory implements device state using non-persistent memory. This
// matches the lifetime of a per-boot key, so it is sufficient for devices
// which do not need to share records between processes.
package memory

import (
	"context"
	"slices"
	"sync"

	authgraph "github.com/fido-device-onboard/go-authgraph"
)

// State implements interfaces for state which must be persisted between key
// exchange steps, but not between boots.
type State struct {
	mu       sync.RWMutex
	Sessions map[[authgraph.SHA256Len]byte][][authgraph.SHA256Len]byte
}

var _ authgraph.SharedSessionState = (*State)(nil)

// NewState initializes the in-memory state.
func NewState() *State {
	return &State{
		Sessions: make(map[[authgraph.SHA256Len]byte][][authgraph.SHA256Len]byte),
	}
}

// AddSharedSession stores a shared session record.
func (s *State) AddSharedSession(_ context.Context, key [authgraph.SHA256Len]byte, arcDigests [][authgraph.SHA256Len]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sessions[key] = slices.Clone(arcDigests)
	return nil
}

// SharedSession retrieves a shared session record.
func (s *State) SharedSession(_ context.Context, key [authgraph.SHA256Len]byte) ([][authgraph.SHA256Len]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	digests, ok := s.Sessions[key]
	if !ok {
		return nil, authgraph.ErrNotFound
	}
	return slices.Clone(digests), nil
}
