// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package authgraph

import (
	"context"
	"fmt"
)

// ErrNotFound is used when no record exists for a key.
var ErrNotFound = fmt.Errorf("not found")

// SharedSessionState stores records of completed key exchanges. A record is
// keyed by the digest of the peer identity and session ID and holds the
// digests of the arcs returned to the caller.
//
// Records only need to live as long as the per-boot key which sealed the
// arcs.
type SharedSessionState interface {
	// AddSharedSession stores a record, replacing any record with the same
	// key.
	AddSharedSession(ctx context.Context, key [SHA256Len]byte, arcDigests [][SHA256Len]byte) error

	// SharedSession returns the arc digests of a record or ErrNotFound.
	SharedSession(ctx context.Context, key [SHA256Len]byte) ([][SHA256Len]byte, error)
}
