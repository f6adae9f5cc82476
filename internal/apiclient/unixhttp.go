//go:build unix

// Package apiclient talks to the wordforge daemon over its unix socket.
package apiclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/KONFeature/wordforge/internal/limits"
	"github.com/KONFeature/wordforge/internal/paths"
)

type Client struct {
	http       *http.Client
	baseURL    string
	socketPath string
}

// New returns a client for the daemon listening on socketPath, or on the
// default socket when socketPath is empty.
func New(socketPath string) *Client {
	if socketPath == "" {
		socketPath = paths.DefaultSocketPath()
	}
	tr := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		// Starting the sidecar polls for up to its readiness budget and a
		// config refresh may restart it, so headers can take a while.
		ResponseHeaderTimeout: 5 * time.Minute,
		IdleConnTimeout:       60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		http:       &http.Client{Transport: tr}, // no Timeout; use ctx per-request
		baseURL:    "http://unix",
		socketPath: socketPath,
	}
}

type APIError struct {
	StatusCode int
	Body       []byte
	Message    string // parsed from {"error": "..."} if present
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, string(e.Body))
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, limits.ErrorBody))
	var m struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(b, &m)
	return &APIError{StatusCode: resp.StatusCode, Body: b, Message: m.Error}
}

func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) PostJSON(ctx context.Context, path string, in any, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) PutJSON(ctx context.Context, path string, in any, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, in, out)
}

func (c *Client) DeleteJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return c.wrapConnErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(io.LimitReader(resp.Body, limits.JSON)).Decode(out)
}

// Stream issues a request whose response is NDJSON and calls fn with each
// line until the stream ends, ctx is done, or fn returns an error.
func (c *Client) Stream(ctx context.Context, method, path string, in any, fn func(json.RawMessage) error) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/x-ndjson")
	resp, err := c.http.Do(req)
	if err != nil {
		return c.wrapConnErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return decodeAPIError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), limits.JSON)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(json.RawMessage(line)); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func IsNotFound(err error) bool {
	var api *APIError
	return errors.As(err, &api) && api.StatusCode == http.StatusNotFound
}

// Friendly hint when the daemon isn't running / socket missing.
func (c *Client) wrapConnErr(err error) error {
	// best-effort heuristics without importing x/sys
	if strings.Contains(err.Error(), "connect: no such file or directory") ||
		strings.Contains(err.Error(), "unknown network unix") ||
		strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("cannot connect to wordforge daemon at %s; is it running? try `wordforge daemon start` (%w)", c.socketPath, err)
	}
	return err
}
