// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package tpm implements AuthGraph device signing keys resident in a TPM 2.0.
package tpm

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/go-tpm/tpm2/transport"
)

// TPM is a TPM 2.0 command transport.
type TPM = transport.TPM

// Closer is a TPM which must be closed after use.
type Closer = transport.TPMCloser

// DevNodeKind distinguishes TPM device nodes with and without the kernel
// resource manager.
type DevNodeKind int

// Device node kinds
const (
	DevNodeManaged DevNodeKind = iota
	DevNodeUnmanaged
)

// PathPrefix returns the path of device nodes of the kind, without the
// trailing number.
func (k DevNodeKind) PathPrefix() string {
	if k == DevNodeUnmanaged {
		return "/dev/tpm"
	}
	return "/dev/tpmrm"
}

var devNodePattern = map[DevNodeKind]*regexp.Regexp{
	DevNodeManaged:   regexp.MustCompile(`^/dev/tpmrm[0-9]+$`),
	DevNodeUnmanaged: regexp.MustCompile(`^/dev/tpm[0-9]+$`),
}

// IsDevNode reports whether path is a TPM device node of the given kind.
func IsDevNode(path string, kind DevNodeKind) bool {
	re, ok := devNodePattern[kind]
	return ok && re.MatchString(path)
}

// Open opens the TPM device at the given path.
//
// Clients should use /dev/tpmrm0 because using /dev/tpm0 requires more
// extensive resource management that the kernel already handles for us
// when using the kernel resource manager.
func Open(path string) (Closer, error) {
	switch {
	case IsDevNode(path, DevNodeManaged):
		return transport.OpenTPM(path)
	case IsDevNode(path, DevNodeUnmanaged):
		slog.Warn("direct use of the TPM can lead to resource exhaustion, use a TPM resource manager instead")
		return transport.OpenTPM(path)
	default:
		return nil, fmt.Errorf("unsupported TPM device path: %s", path)
	}
}
