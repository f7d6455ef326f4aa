// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package authgraph implements the AuthGraph authenticated key exchange.
//
// Two participants, each identified by an explicit key DICE certificate
// chain, agree on a pair of AES-256 keys. The source calls [Participant.Create]
// and [Participant.Finish] while the sink calls [Participant.Init] and
// [Participant.AuthenticationComplete]. Keys never leave a participant in
// the clear: they are returned as arcs, COSE_Encrypt0 messages sealed with a
// per-boot key, which only [Participant.DecipherSharedKeysFromArcs] of the
// same participant can open.
//
// Cryptographic primitives are provided by the capabilities of [Crypto]. The
// swcrypto subpackage implements all of them in software. The state of a
// participant, its identity and signing key are provided by a [Device].
// [device.Local] is a device backed by in-memory state, whose record of
// completed key exchanges may be kept in any [SharedSessionState], such as
// [sqlite.DB] in a separate, optional module. The signing key may be a
// [crypto.Signer], such as a [tpm.Key] which never leaves a TPM 2.0.
//
// To reach a participant in another process, the wire subpackage encodes
// its operations as CBOR messages and the http subpackage carries them over
// HTTP.
//
// [device.Local]: https://pkg.go.dev/github.com/fido-device-onboard/go-authgraph/device#Local
// [sqlite.DB]: https://pkg.go.dev/github.com/fido-device-onboard/go-authgraph/sqlite#DB
// [tpm.Key]: https://pkg.go.dev/github.com/fido-device-onboard/go-authgraph/tpm#Key
package authgraph
