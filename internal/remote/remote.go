// Package remote holds the HTTP plumbing shared by the clients that talk to
// the release index and to linked WordPress sites.
package remote

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/KONFeature/wordforge/internal/limits"
)

var (
	// ErrTransport covers failures to reach the remote at all.
	ErrTransport = errors.New("transport error")
	// ErrParse covers responses that arrived but could not be decoded.
	ErrParse = errors.New("parse error")
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Body       []byte
	Message    string // parsed from {"message": "..."} or {"error": "..."} if present
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote error %d: %s", e.StatusCode, Truncate(string(e.Body), limits.ErrorSnippet))
}

// DecodeAPIError reads a bounded prefix of a failed response body.
func DecodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, limits.ErrorBody))
	var m struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(b, &m)
	msg := m.Message
	if msg == "" {
		msg = m.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Body: b, Message: msg}
}

func IsStatus(err error, code int) bool {
	var api *APIError
	return errors.As(err, &api) && api.StatusCode == code
}

// Do executes req, mapping network failures to ErrTransport and non-2xx
// responses to *APIError. The caller owns the returned body.
func Do(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, req.URL.Redacted(), err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, DecodeAPIError(resp)
	}
	return resp, nil
}

// DecodeJSON decodes at most limit bytes of r into out, mapping failures to
// ErrParse.
func DecodeJSON(r io.Reader, limit int64, out any) error {
	if err := json.NewDecoder(io.LimitReader(r, limit)).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

// BasicAuth returns the Authorization header value for a pre-encoded
// credential, or for a username/password pair when encoded is empty.
func BasicAuth(encoded, username, password string) string {
	if encoded == "" {
		encoded = base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	}
	return "Basic " + encoded
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
