// Package wordpress is a client for the WordForge plugin's desktop REST
// endpoints.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KONFeature/wordforge/internal/limits"
	"github.com/KONFeature/wordforge/internal/remote"
)

const (
	apiBase         = "/wp-json/wordforge/v1"
	exchangePath    = apiBase + "/desktop/exchange"
	configHashPath  = apiBase + "/desktop/config-hash"
	localConfigPath = apiBase + "/opencode/local-config?runtime=bun"
	localSettings   = apiBase + "/opencode/local-settings"
)

var (
	// ErrTokenExchange means the site refused or garbled a token exchange.
	ErrTokenExchange = errors.New("token exchange failed")
	// ErrConfigDownload means the config bundle could not be fetched.
	ErrConfigDownload = errors.New("config download failed")
)

// Client talks to linked sites. It is stateless: the site URL and the
// Basic credential are passed per call.
type Client struct {
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewClient(httpClient *http.Client, logger *zap.SugaredLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{httpClient: httpClient, logger: logger}
}

func endpoint(siteURL, path string) string {
	return strings.TrimRight(siteURL, "/") + path
}

// newRequest builds a request with optional JSON body and Basic auth.
func newRequest(ctx context.Context, method, url, auth string, body any) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if auth != "" {
		req.Header.Set("Authorization", remote.BasicAuth(auth, "", ""))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Exchange trades a one-time token for application credentials.
func (c *Client) Exchange(ctx context.Context, siteURL, token string) (*ExchangeResponse, error) {
	url := endpoint(siteURL, exchangePath)
	req, err := newRequest(ctx, http.MethodPost, url, "", map[string]string{"token": token})
	if err != nil {
		return nil, err
	}

	c.logger.Infow("exchanging connect token", "url", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", remote.ErrTransport, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limits.JSON))
	if err != nil {
		return nil, fmt.Errorf("%w: reading exchange response: %v", remote.ErrTransport, err)
	}
	c.logger.Debugw("exchange response", "status", resp.StatusCode)

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrTokenExchange, resp.StatusCode, remote.Truncate(string(body), limits.ErrorSnippet))
	}

	var out ExchangeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v. Body: %s", ErrTokenExchange, err, remote.Truncate(string(body), limits.ErrorSnippet))
	}
	if !out.Success {
		return nil, fmt.Errorf("%w: site rejected the token", ErrTokenExchange)
	}
	return &out, nil
}

// ConfigHash fetches the remote configuration fingerprint.
func (c *Client) ConfigHash(ctx context.Context, siteURL, auth string) (*Fingerprint, error) {
	req, err := newRequest(ctx, http.MethodGet, endpoint(siteURL, configHashPath), auth, nil)
	if err != nil {
		return nil, err
	}
	resp, err := remote.Do(c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var fp Fingerprint
	if err := remote.DecodeJSON(resp.Body, limits.JSON, &fp); err != nil {
		return nil, err
	}
	c.logger.Debugw("remote config hash", "site", siteURL, "hash", fp.Hash)
	return &fp, nil
}

// LocalConfig downloads the zipped configuration bundle for a local sidecar.
func (c *Client) LocalConfig(ctx context.Context, siteURL, auth string) ([]byte, error) {
	url := endpoint(siteURL, localConfigPath)
	req, err := newRequest(ctx, http.MethodGet, url, auth, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/zip")

	c.logger.Infow("downloading config bundle", "url", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", remote.ErrTransport, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, limits.ErrorBody))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrConfigDownload, resp.StatusCode, remote.Truncate(string(body), limits.ErrorSnippet))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limits.ConfigBundle+1))
	if err != nil {
		return nil, fmt.Errorf("%w: download interrupted: %v", remote.ErrTransport, err)
	}
	if len(data) > limits.ConfigBundle {
		return nil, fmt.Errorf("%w: bundle exceeds %d bytes", ErrConfigDownload, limits.ConfigBundle)
	}
	c.logger.Debugw("config bundle downloaded", "bytes", len(data))
	return data, nil
}

// PushLocalSettings registers this device's sidecar endpoint with the site.
func (c *Client) PushLocalSettings(ctx context.Context, siteURL, auth string, settings LocalSettings) error {
	req, err := newRequest(ctx, http.MethodPost, endpoint(siteURL, localSettings), auth, settings)
	if err != nil {
		return err
	}
	resp, err := remote.Do(c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
