// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/fido-device-onboard/go-authgraph/wire"
)

// Transport performs AuthGraph operations on a remote participant over HTTP.
// It may be used as the Performer of a wire.Remote.
type Transport struct {
	// Client to use for HTTP requests. Nil indicates that the default client
	// should be used.
	Client *http.Client

	// Base URL including scheme. e.g. https://example.com/something_or_not
	BaseURL string

	// MaxContentLength defaults to 65535. Negative values disable content
	// length checking.
	MaxContentLength int64
}

var _ wire.Performer = (*Transport)(nil)

// Perform sends a single request and decodes its response. If the remote
// participant fails the operation, the returned *authgraph.Error carries the
// remote error code.
func (t *Transport) Perform(ctx context.Context, req wire.Request) (wire.Response, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	// Create request with URL and body
	uri, err := url.JoinPath(t.BaseURL, OpPath)
	if err != nil {
		return nil, fmt.Errorf("error parsing base URL: %w", err)
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("error encoding %s request: %w", req.OpCode(), err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error creating AuthGraph request: %w", err)
	}
	httpReq.Header.Set("Content-Type", ContentType)
	debugRequestOut(httpReq, data)

	// Perform HTTP request
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making HTTP request for %s: %w", req.OpCode(), err)
	}
	debugResponse(ctx, resp)
	respBody, err := t.handleResponse(resp)
	if err != nil {
		return nil, err
	}
	return wire.DecodeResponse(respBody, req.OpCode())
}

func (t *Transport) handleResponse(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected HTTP response code: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	// Validate content length
	maxSize := t.MaxContentLength
	if maxSize == 0 {
		maxSize = DefaultMaxContentLength
	}
	if maxSize > 0 && resp.ContentLength > maxSize {
		return nil, fmt.Errorf("content too large (%d bytes)", resp.ContentLength)
	}
	if maxSize > 0 && resp.ContentLength < 0 {
		return nil, errors.New("content length must be specified in response headers")
	}

	// Allow reading up to expected content length
	var body io.Reader = resp.Body
	if resp.ContentLength >= 0 {
		body = io.LimitReader(resp.Body, resp.ContentLength)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	return data, nil
}
