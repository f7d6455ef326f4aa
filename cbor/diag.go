// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cbor

import (
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
)

// Diagnose returns the RFC 8949 diagnostic notation of an encoded data item.
// If the item cannot be parsed, the hex encoding of data is returned instead,
// which makes the result always safe to log.
func Diagnose(data []byte) string {
	diag, err := cbor.Diagnose(data)
	if err != nil {
		return hex.EncodeToString(data)
	}
	return diag
}
