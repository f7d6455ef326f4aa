// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package http

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"

	"github.com/fido-device-onboard/go-authgraph/cbor"
)

func debugEnabled(ctx context.Context) bool {
	return slog.Default().Enabled(ctx, slog.LevelDebug)
}

// statusRecorder captures the status and length of a response while writing
// it through.
type statusRecorder struct {
	http.ResponseWriter
	status int
	n      int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.n += n
	return n, err
}

// debugHandler logs the headers of requests and the outcome of responses.
// Message bodies are logged by the wire service.
func debugHandler(w http.ResponseWriter, r *http.Request, handler http.HandlerFunc) {
	if !debugEnabled(r.Context()) {
		handler(w, r)
		return
	}

	dump, _ := httputil.DumpRequest(r, false)
	slog.Debug("request", "dump", string(bytes.TrimSpace(dump)))

	rec := &statusRecorder{ResponseWriter: w}
	handler(rec, r)
	slog.Debug("response", "status", rec.status, "length", rec.n,
		"content-type", rec.Header().Get("Content-Type"))
}

func debugRequestOut(req *http.Request, body []byte) {
	if !debugEnabled(req.Context()) {
		return
	}
	dump, _ := httputil.DumpRequestOut(req, false)
	slog.Debug("request", "dump", string(bytes.TrimSpace(dump)),
		"body", cbor.Diagnose(body))
}

// debugResponse logs a response, replacing its body with a buffered copy.
func debugResponse(ctx context.Context, resp *http.Response) {
	if !debugEnabled(ctx) {
		return
	}
	dump, _ := httputil.DumpResponse(resp, false)
	var saveBody bytes.Buffer
	if _, err := saveBody.ReadFrom(resp.Body); err == nil {
		resp.Body = io.NopCloser(&saveBody)
	}
	slog.Debug("response", "dump", string(bytes.TrimSpace(dump)),
		"body", cbor.Diagnose(saveBody.Bytes()))
}
