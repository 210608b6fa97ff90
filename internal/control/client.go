// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package control

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"
)

// DefaultClientTimeout bounds each control request.
const DefaultClientTimeout = 2 * time.Second

// Client talks to a running process over its control socket.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient creates a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: DefaultClientTimeout,
		},
	}
}

// Health queries /health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", &resp)
	return resp, err
}

// Status queries /status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", &resp)
	return resp, err
}

// Reset clears the running process's failure counter.
func (c *Client) Reset(ctx context.Context) (ResetResponse, error) {
	var resp ResetResponse
	err := c.do(ctx, http.MethodPost, "/reset", &resp)
	return resp, err
}

// Shutdown asks the process to stop gracefully.
func (c *Client) Shutdown(ctx context.Context) (ShutdownResponse, error) {
	var resp ShutdownResponse
	err := c.do(ctx, http.MethodPost, "/shutdown", &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	errb := oops.Code("CONTROL_REQUEST_FAILED").
		With("socket", c.socketPath).
		With("path", path)

	req, err := http.NewRequestWithContext(ctx, method, "http://localhost"+path, http.NoBody)
	if err != nil {
		return errb.Wrap(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errb.Wrapf(err, "connect to control socket")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errb.With("status", resp.StatusCode).Errorf("control request failed: %s", body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errb.Wrapf(err, "decode control response")
	}
	return nil
}
