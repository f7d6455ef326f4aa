// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/fido-device-onboard/go-authgraph/wire"
)

// OpPath is the path to which PerformOpReq messages are posted.
const OpPath = "/authgraph/v1/op"

// ContentType is the media type of request and response bodies.
const ContentType = "application/cbor"

// DefaultMaxContentLength limits request and response bodies when
// MaxContentLength is zero.
const DefaultMaxContentLength = 65535

// Handler implements http.Handler and performs the AuthGraph operation
// encoded in each request with a local participant.
type Handler struct {
	Service *wire.Service

	// MaxContentLength defaults to 65535. Negative values disable content
	// length checking.
	MaxContentLength int64
}

var _ http.Handler = (*Handler)(nil)

// RegisterRoutes registers the handler on the operation path of mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST "+OpPath, h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	debugHandler(w, r, h.handleRequest)
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.error(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != ContentType {
		h.error(w, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported content type %q", r.Header.Get("Content-Type")))
		return
	}

	// Validate content length
	maxSize := h.MaxContentLength
	if maxSize == 0 {
		maxSize = DefaultMaxContentLength
	}
	if maxSize > 0 && r.ContentLength > maxSize {
		h.error(w, http.StatusRequestEntityTooLarge, fmt.Errorf("content too large (%d bytes)", r.ContentLength))
		return
	}
	if maxSize > 0 && r.ContentLength < 0 {
		h.error(w, http.StatusLengthRequired, errors.New("content length must be specified in request headers"))
		return
	}

	// Allow reading up to expected content length
	var body io.Reader = r.Body
	if r.ContentLength > 0 {
		body = io.LimitReader(r.Body, r.ContentLength)
	}
	req, err := io.ReadAll(body)
	if err != nil {
		h.error(w, http.StatusBadRequest, fmt.Errorf("error reading request body: %w", err))
		return
	}

	resp := h.Service.PerformOp(r.Context(), req)

	w.Header().Set("Content-Length", strconv.Itoa(len(resp)))
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp); err != nil {
		slog.Warn("error writing response", "error", err)
	}
}

func (h *Handler) error(w http.ResponseWriter, status int, err error) {
	slog.Debug("rejected request", "status", status, "error", err)
	http.Error(w, err.Error(), status)
}
