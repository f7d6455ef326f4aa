// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

import (
	"log/slog"
	"slices"
	"sync"
)

// DefaultMaxOpenedSessions is the default number of key exchanges a
// Participant tracks between steps.
const DefaultMaxOpenedSessions = 16

// openedSessions is a bounded FIFO of digests identifying key exchanges which
// have been started but not completed. When full, the oldest is dropped.
type openedSessions struct {
	mu      sync.Mutex
	limit   int
	digests [][SHA256Len]byte
}

func newOpenedSessions(limit int) *openedSessions {
	return &openedSessions{limit: limit, digests: make([][SHA256Len]byte, 0, limit)}
}

func (s *openedSessions) add(digest [SHA256Len]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.digests) >= s.limit {
		slog.Info("max number of opened sessions reached", "max", s.limit)
		s.digests = slices.Delete(s.digests, 0, len(s.digests)-s.limit+1)
	}
	s.digests = append(s.digests, digest)
}

// remove deletes the digest and reports whether it was present. A digest can
// only be removed once.
func (s *openedSessions) remove(digest [SHA256Len]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.Index(s.digests, digest)
	if i < 0 {
		return false
	}
	s.digests = slices.Delete(s.digests, i, i+1)
	return true
}

func (s *openedSessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.digests)
}
