package remote

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 200))
	assert.Len(t, Truncate(strings.Repeat("x", 500), 200), 200)
	// "é" is two bytes; cutting inside it backs off to the rune start.
	assert.Equal(t, "ab", Truncate("abé", 3))
}

func TestDoMapsStatusToAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":"rest_forbidden","message":"Sorry, you are not allowed to do that."}`))
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = Do(srv.Client(), req)
	require.Error(t, err)

	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, http.StatusForbidden, api.StatusCode)
	assert.Equal(t, "Sorry, you are not allowed to do that.", api.Message)
	assert.True(t, IsStatus(err, http.StatusForbidden))
}

func TestDoMapsNetworkFailureToTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)

	_, err = Do(http.DefaultClient, req)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestDecodeJSONMapsToParse(t *testing.T) {
	var out map[string]any
	err := DecodeJSON(strings.NewReader("<html>"), 1024, &out)
	assert.ErrorIs(t, err, ErrParse)
}

func TestBasicAuth(t *testing.T) {
	assert.Equal(t, "Basic YWRtaW46c2VjcmV0", BasicAuth("", "admin", "secret"))
	assert.Equal(t, "Basic abc", BasicAuth("abc", "ignored", "ignored"))
}
