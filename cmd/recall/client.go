// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// defaultHTTPClient is the package-level HTTP client used by commands that
// talk to a running service. Overridden in tests.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// serviceClient provides HTTP access to a running recall service.
type serviceClient struct {
	baseURL string
	http    *http.Client
}

// newServiceClient targets addr, which may be a host:port (an empty host
// means loopback) or a full URL.
func newServiceClient(addr string) *serviceClient {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		if strings.HasPrefix(base, ":") {
			base = "127.0.0.1" + base
		}
		base = "http://" + base
	}
	return &serviceClient{
		baseURL: strings.TrimSuffix(base, "/"),
		http:    defaultHTTPClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
func (c *serviceClient) getJSON(path string, dest any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		if isDialError(err) {
			return recallerr.Wrap(err, recallerr.CodeCLIServerNotRunning, "recall is not running (connection refused)")
		}
		return recallerr.Wrap(err, recallerr.CodeCLIRequestFailure, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return recallerr.Errorf(recallerr.CodeCLIRequestFailure,
			"service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return recallerr.Wrap(err, recallerr.CodeCLIResponseInvalid, "invalid response")
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
