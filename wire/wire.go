// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package wire implements the messages used to call the operations of a
// remote AuthGraph participant.
//
// Every message is a CBOR array of its fields in order. A request is sent as
// a PerformOpReq and answered with a PerformOpResponse, which carries an
// error code and, on success, the PerformOpRsp of the operation.
package wire

import (
	"errors"
	"fmt"

	authgraph "github.com/fido-device-onboard/go-authgraph"
	"github.com/fido-device-onboard/go-authgraph/cbor"
)

// OperationCode identifies the operation of a request or response.
type OperationCode int32

// Operation codes
const (
	CreateOp                 OperationCode = 0x10
	InitOp                   OperationCode = 0x11
	FinishOp                 OperationCode = 0x12
	AuthenticationCompleteOp OperationCode = 0x13
)

func (c OperationCode) String() string {
	switch c {
	case CreateOp:
		return "Create"
	case InitOp:
		return "Init"
	case FinishOp:
		return "Finish"
	case AuthenticationCompleteOp:
		return "AuthenticationComplete"
	default:
		return fmt.Sprintf("OperationCode(%#x)", int32(c))
	}
}

// ErrUnknownOperation is returned when decoding a message with an unknown
// operation code.
var ErrUnknownOperation = errors.New("unknown operation code")

// Request is the body of a PerformOpReq.
type Request interface {
	OpCode() OperationCode
}

// Response is the body of a PerformOpRsp.
type Response interface {
	OpCode() OperationCode
}

// CreateRequest starts a key exchange as the source.
type CreateRequest struct {
	_ struct{} `cbor:",toarray"`
}

// OpCode implements Request.
func (CreateRequest) OpCode() OperationCode { return CreateOp }

// CreateResponse is the result of CreateRequest.
type CreateResponse struct {
	_   struct{} `cbor:",toarray"`
	Ret authgraph.SessionInitiationInfo
}

// OpCode implements Response.
func (CreateResponse) OpCode() OperationCode { return CreateOp }

// InitRequest continues a key exchange as the sink.
type InitRequest struct {
	_ struct{} `cbor:",toarray"`

	// PeerPubKey is an encoded COSE_Key.
	PeerPubKey []byte
	// PeerID is an encoded Identity.
	PeerID      []byte
	PeerNonce   []byte
	PeerVersion int32
}

// OpCode implements Request.
func (InitRequest) OpCode() OperationCode { return InitOp }

// InitResponse is the result of InitRequest.
type InitResponse struct {
	_   struct{} `cbor:",toarray"`
	Ret authgraph.KeInitResult
}

// OpCode implements Response.
func (InitResponse) OpCode() OperationCode { return InitOp }

// FinishRequest completes a key exchange as the source.
type FinishRequest struct {
	_ struct{} `cbor:",toarray"`

	PeerPubKey []byte
	PeerID     []byte
	// PeerSignature is an encoded COSE_Sign1 over the session ID.
	PeerSignature []byte
	PeerNonce     []byte
	PeerVersion   int32
	// OwnKey is the key returned by CreateResponse.
	OwnKey authgraph.Key
}

// OpCode implements Request.
func (FinishRequest) OpCode() OperationCode { return FinishOp }

// FinishResponse is the result of FinishRequest.
type FinishResponse struct {
	_   struct{} `cbor:",toarray"`
	Ret authgraph.SessionInfo
}

// OpCode implements Response.
func (FinishResponse) OpCode() OperationCode { return FinishOp }

// AuthenticationCompleteRequest completes a key exchange as the sink.
type AuthenticationCompleteRequest struct {
	_ struct{} `cbor:",toarray"`

	PeerSignature []byte
	// SharedKeys are the arcs returned by InitResponse.
	SharedKeys [2][]byte
}

// OpCode implements Request.
func (AuthenticationCompleteRequest) OpCode() OperationCode { return AuthenticationCompleteOp }

// AuthenticationCompleteResponse is the result of
// AuthenticationCompleteRequest.
type AuthenticationCompleteResponse struct {
	_   struct{} `cbor:",toarray"`
	Ret [2][]byte
}

// OpCode implements Response.
func (AuthenticationCompleteResponse) OpCode() OperationCode { return AuthenticationCompleteOp }

// PerformOpReq is a request tagged with its operation code.
//
//	PerformOpReq = [
//	    code: int,
//	    req: CreateRequest / InitRequest / FinishRequest / AuthenticationCompleteRequest,
//	]
type PerformOpReq struct {
	Request Request
}

// MarshalCBOR implements cbor.Marshaler.
func (r PerformOpReq) MarshalCBOR() ([]byte, error) {
	if r.Request == nil {
		return nil, errors.New("request is missing")
	}
	return cbor.Marshal([]any{r.Request.OpCode(), r.Request})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (r *PerformOpReq) UnmarshalCBOR(data []byte) error {
	if r == nil {
		return errors.New("cannot unmarshal to a nil pointer")
	}
	code, body, err := splitOp(data)
	if err != nil {
		return err
	}
	var req Request
	switch code {
	case CreateOp:
		req, err = decode[CreateRequest](body)
	case InitOp:
		req, err = decode[InitRequest](body)
	case FinishOp:
		req, err = decode[FinishRequest](body)
	case AuthenticationCompleteOp:
		req, err = decode[AuthenticationCompleteRequest](body)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownOperation, code)
	}
	if err != nil {
		return fmt.Errorf("error decoding %s request: %w", code, err)
	}
	r.Request = req
	return nil
}

// PerformOpRsp is a response tagged with its operation code.
//
//	PerformOpRsp = [
//	    code: int,
//	    rsp: CreateResponse / InitResponse / FinishResponse / AuthenticationCompleteResponse,
//	]
type PerformOpRsp struct {
	Response Response
}

// MarshalCBOR implements cbor.Marshaler.
func (r PerformOpRsp) MarshalCBOR() ([]byte, error) {
	if r.Response == nil {
		return nil, errors.New("response is missing")
	}
	return cbor.Marshal([]any{r.Response.OpCode(), r.Response})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (r *PerformOpRsp) UnmarshalCBOR(data []byte) error {
	if r == nil {
		return errors.New("cannot unmarshal to a nil pointer")
	}
	code, body, err := splitOp(data)
	if err != nil {
		return err
	}
	var rsp Response
	switch code {
	case CreateOp:
		rsp, err = decode[CreateResponse](body)
	case InitOp:
		rsp, err = decode[InitResponse](body)
	case FinishOp:
		rsp, err = decode[FinishResponse](body)
	case AuthenticationCompleteOp:
		rsp, err = decode[AuthenticationCompleteResponse](body)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownOperation, code)
	}
	if err != nil {
		return fmt.Errorf("error decoding %s response: %w", code, err)
	}
	r.Response = rsp
	return nil
}

// PerformOpResponse is the result of a PerformOpReq. Rsp is only present
// when the error code is Ok.
//
//	PerformOpResponse = [
//	    error_code: int,
//	    rsp: PerformOpRsp / null,
//	]
type PerformOpResponse struct {
	_         struct{} `cbor:",toarray"`
	ErrorCode authgraph.ErrorCode
	Rsp       *PerformOpRsp
}

func splitOp(data []byte) (OperationCode, cbor.RawBytes, error) {
	var items []cbor.RawBytes
	if err := cbor.Unmarshal(data, &items); err != nil {
		return 0, nil, fmt.Errorf("operation is not an array: %w", err)
	}
	if len(items) != 2 {
		return 0, nil, fmt.Errorf("operation must have two items, got %d", len(items))
	}
	var code OperationCode
	if err := cbor.Unmarshal(items[0], &code); err != nil {
		return 0, nil, fmt.Errorf("operation code: %w", err)
	}
	return code, items[1], nil
}

func decode[T any](body []byte) (T, error) {
	var v T
	err := cbor.Unmarshal(body, &v)
	return v, err
}
