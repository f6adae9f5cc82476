package wordpress_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KONFeature/wordforge/internal/remote"
	"github.com/KONFeature/wordforge/internal/wordpress"
	"github.com/KONFeature/wordforge/internal/wordpress/wptest"
)

func newClient() *wordpress.Client {
	return wordpress.NewClient(nil, zap.NewNop().Sugar())
}

func TestExchange(t *testing.T) {
	site := wptest.New(t, "tok-1", "My Blog", nil)
	c := newClient()

	resp, err := c.Exchange(context.Background(), site.URL()+"/", "tok-1")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "My Blog", resp.Site.Name)
	assert.Equal(t, site.URL(), resp.Site.URL)
	assert.Equal(t, wptest.Username, resp.Credentials.Username)
	assert.Equal(t, wptest.Auth(), resp.Credentials.Auth)

	// Tokens are single use on the site side too.
	_, err = c.Exchange(context.Background(), site.URL(), "tok-1")
	assert.ErrorIs(t, err, wordpress.ErrTokenExchange)
	assert.ErrorContains(t, err, "HTTP 403")
}

func TestExchangeTruncatesGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>" + strings.Repeat("x", 1000) + "</html>"))
	}))
	defer srv.Close()

	_, err := newClient().Exchange(context.Background(), srv.URL, "tok")
	require.ErrorIs(t, err, wordpress.ErrTokenExchange)
	assert.Less(t, len(err.Error()), 400)
}

func TestExchangeUnsuccessfulEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"credentials":{},"site":{}}`))
	}))
	defer srv.Close()

	_, err := newClient().Exchange(context.Background(), srv.URL, "tok")
	assert.ErrorIs(t, err, wordpress.ErrTokenExchange)
}

func TestExchangeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient().Exchange(context.Background(), url, "tok")
	assert.ErrorIs(t, err, remote.ErrTransport)
}

func TestConfigHash(t *testing.T) {
	site := wptest.New(t, "tok", "Blog", nil)
	site.SetHash("abc")
	c := newClient()

	fp, err := c.ConfigHash(context.Background(), site.URL(), wptest.Auth())
	require.NoError(t, err)
	assert.Equal(t, "abc", fp.Hash)
	assert.Equal(t, "p", fp.Components.PluginsHash)

	_, err = c.ConfigHash(context.Background(), site.URL(), "wrong")
	assert.True(t, remote.IsStatus(err, http.StatusUnauthorized))
}

func TestLocalConfig(t *testing.T) {
	bundle := wptest.Bundle(t, map[string]string{"opencode.json": "{}"})
	site := wptest.New(t, "tok", "Blog", bundle)
	c := newClient()

	data, err := c.LocalConfig(context.Background(), site.URL(), wptest.Auth())
	require.NoError(t, err)
	assert.Equal(t, bundle, data)

	site.FailConfig(http.StatusInternalServerError)
	_, err = c.LocalConfig(context.Background(), site.URL(), wptest.Auth())
	assert.ErrorIs(t, err, wordpress.ErrConfigDownload)
	assert.ErrorContains(t, err, "HTTP 500")
}

func TestPushLocalSettings(t *testing.T) {
	site := wptest.New(t, "tok", "Blog", nil)
	c := newClient()

	err := c.PushLocalSettings(context.Background(), site.URL(), wptest.Auth(), wordpress.LocalSettings{
		Port: 4096, DeviceID: "dev-1", Enabled: true, ProjectID: "pid", ProjectDir: "/p",
	})
	require.NoError(t, err)

	pushed := site.PushedSettings()
	require.Len(t, pushed, 1)
	assert.Equal(t, 4096, pushed[0].Port)
	assert.True(t, pushed[0].Enabled)
	assert.Equal(t, "dev-1", pushed[0].DeviceID)

	err = c.PushLocalSettings(context.Background(), site.URL(), "bad", wordpress.LocalSettings{})
	var api *remote.APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, http.StatusUnauthorized, api.StatusCode)
}
