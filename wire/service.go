// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package wire

import (
	"context"
	"errors"
	"log/slog"

	authgraph "github.com/fido-device-onboard/go-authgraph"
	"github.com/fido-device-onboard/go-authgraph/cbor"
)

// internalErrorResponse is the encoding of PerformOpResponse{InternalError,
// null}, used when a response cannot be encoded.
var internalErrorResponse = []byte{0x82, 0x2b, 0xf6}

// Performer performs operations on a participant, local or remote.
type Performer interface {
	Perform(ctx context.Context, req Request) (Response, error)
}

// Service dispatches operations to a local participant.
type Service struct {
	Participant *authgraph.Participant
}

var _ Performer = (*Service)(nil)

// PerformOp decodes a PerformOpReq, performs it and returns the encoded
// PerformOpResponse. Failures are reported through the error code of the
// response.
func (s *Service) PerformOp(ctx context.Context, data []byte) []byte {
	debugEnabled := slog.Default().Enabled(ctx, slog.LevelDebug)
	if debugEnabled {
		slog.Debug("authgraph request", "body", cbor.Diagnose(data))
	}

	var msg PerformOpReq
	var resp PerformOpResponse
	if err := cbor.Unmarshal(data, &msg); err != nil {
		resp.ErrorCode = authgraph.InternalError
		if errors.Is(err, ErrUnknownOperation) {
			resp.ErrorCode = authgraph.Unimplemented
		}
		slog.Debug("error decoding request", "code", resp.ErrorCode, "error", err)
	} else {
		rsp, err := s.Perform(ctx, msg.Request)
		resp.ErrorCode = authgraph.CodeOf(err)
		if err == nil {
			resp.Rsp = &PerformOpRsp{Response: rsp}
		}
		slog.Debug("authgraph operation", "op", msg.Request.OpCode(), "code", resp.ErrorCode, "error", err)
	}

	out, err := cbor.Marshal(resp)
	if err != nil {
		slog.Error("error encoding response", "error", err)
		return internalErrorResponse
	}
	if debugEnabled {
		slog.Debug("authgraph response", "body", cbor.Diagnose(out))
	}
	return out
}

// Perform calls the participant operation matching the request type.
func (s *Service) Perform(ctx context.Context, req Request) (Response, error) {
	if s.Participant == nil {
		return nil, authgraph.NewError(authgraph.InternalError, "service has no participant")
	}
	p := s.Participant
	switch req := req.(type) {
	case CreateRequest:
		ret, err := p.Create(ctx)
		if err != nil {
			return nil, err
		}
		return CreateResponse{Ret: *ret}, nil

	case InitRequest:
		ret, err := p.Init(ctx, req.PeerPubKey, req.PeerID, req.PeerNonce, req.PeerVersion)
		if err != nil {
			return nil, err
		}
		return InitResponse{Ret: *ret}, nil

	case FinishRequest:
		ret, err := p.Finish(ctx, req.PeerPubKey, req.PeerID, req.PeerSignature, req.PeerNonce, req.PeerVersion, req.OwnKey)
		if err != nil {
			return nil, err
		}
		return FinishResponse{Ret: *ret}, nil

	case AuthenticationCompleteRequest:
		ret, err := p.AuthenticationComplete(ctx, req.PeerSignature, req.SharedKeys)
		if err != nil {
			return nil, err
		}
		return AuthenticationCompleteResponse{Ret: ret}, nil

	default:
		return nil, authgraph.NewError(authgraph.Unimplemented, "unsupported request type %T", req)
	}
}

// EncodeRequest encodes a PerformOpReq.
func EncodeRequest(req Request) ([]byte, error) {
	return cbor.Marshal(PerformOpReq{Request: req})
}

// DecodeResponse decodes a PerformOpResponse to the request of operation op.
// A non-Ok error code is returned as an *authgraph.Error with that code.
func DecodeResponse(data []byte, op OperationCode) (Response, error) {
	var resp PerformOpResponse
	if err := cbor.Unmarshal(data, &resp); err != nil {
		return nil, authgraph.NewError(authgraph.InternalError, "error decoding %s response: %w", op, err)
	}
	if resp.ErrorCode != authgraph.Ok {
		return nil, authgraph.NewError(resp.ErrorCode, "peer failed to perform %s", op)
	}
	if resp.Rsp == nil {
		return nil, authgraph.NewError(authgraph.InternalError, "%s response is missing", op)
	}
	if got := resp.Rsp.Response.OpCode(); got != op {
		return nil, authgraph.NewError(authgraph.InternalError, "expected %s response, got %s", op, got)
	}
	return resp.Rsp.Response, nil
}

// Remote calls the operations of a participant through a Performer, with the
// same signatures as the methods of authgraph.Participant.
type Remote struct {
	Performer Performer
}

// Create calls Create on the remote participant.
func (r Remote) Create(ctx context.Context) (*authgraph.SessionInitiationInfo, error) {
	rsp, err := perform[CreateResponse](ctx, r.Performer, CreateRequest{})
	if err != nil {
		return nil, err
	}
	return &rsp.Ret, nil
}

// Init calls Init on the remote participant.
func (r Remote) Init(ctx context.Context, peerKey, peerID, peerNonce []byte, peerVersion int32) (*authgraph.KeInitResult, error) {
	rsp, err := perform[InitResponse](ctx, r.Performer, InitRequest{
		PeerPubKey:  peerKey,
		PeerID:      peerID,
		PeerNonce:   peerNonce,
		PeerVersion: peerVersion,
	})
	if err != nil {
		return nil, err
	}
	return &rsp.Ret, nil
}

// Finish calls Finish on the remote participant.
func (r Remote) Finish(ctx context.Context, peerKey, peerID, peerSig, peerNonce []byte, peerVersion int32, ownKey authgraph.Key) (*authgraph.SessionInfo, error) {
	rsp, err := perform[FinishResponse](ctx, r.Performer, FinishRequest{
		PeerPubKey:    peerKey,
		PeerID:        peerID,
		PeerSignature: peerSig,
		PeerNonce:     peerNonce,
		PeerVersion:   peerVersion,
		OwnKey:        ownKey,
	})
	if err != nil {
		return nil, err
	}
	return &rsp.Ret, nil
}

// AuthenticationComplete calls AuthenticationComplete on the remote
// participant.
func (r Remote) AuthenticationComplete(ctx context.Context, peerSig []byte, sharedKeys [2][]byte) ([2][]byte, error) {
	rsp, err := perform[AuthenticationCompleteResponse](ctx, r.Performer, AuthenticationCompleteRequest{
		PeerSignature: peerSig,
		SharedKeys:    sharedKeys,
	})
	if err != nil {
		return [2][]byte{}, err
	}
	return rsp.Ret, nil
}

func perform[T Response](ctx context.Context, p Performer, req Request) (*T, error) {
	if p == nil {
		return nil, authgraph.NewError(authgraph.InternalError, "remote has no performer")
	}
	rsp, err := p.Perform(ctx, req)
	if err != nil {
		return nil, err
	}
	typed, ok := rsp.(T)
	if !ok {
		return nil, authgraph.NewError(authgraph.InternalError, "%s: unexpected response type %T", req.OpCode(), rsp)
	}
	return &typed, nil
}
