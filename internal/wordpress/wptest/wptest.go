// Package wptest runs an in-process WordForge site for tests.
package wptest

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/KONFeature/wordforge/internal/wordpress"
)

const (
	Username    = "admin"
	AppPassword = "abcd efgh ijkl mnop"
)

// Site serves the desktop endpoints of a WordForge plugin. Fields may be
// changed between requests; access is synchronized.
type Site struct {
	Server *httptest.Server

	mu             sync.Mutex
	token          string
	name           string
	hash           string
	bundle         []byte
	exchangeStatus int
	hashStatus     int
	configStatus   int
	settings       []wordpress.LocalSettings
	configRequests int
}

// New starts a site that accepts token, is called name and serves bundle.
func New(t testing.TB, token, name string, bundle []byte) *Site {
	t.Helper()
	s := &Site{token: token, name: name, hash: "hash-1", bundle: bundle}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /wp-json/wordforge/v1/desktop/exchange", s.handleExchange)
	mux.HandleFunc("GET /wp-json/wordforge/v1/desktop/config-hash", s.authed(s.handleConfigHash))
	mux.HandleFunc("GET /wp-json/wordforge/v1/opencode/local-config", s.authed(s.handleLocalConfig))
	mux.HandleFunc("POST /wp-json/wordforge/v1/opencode/local-settings", s.authed(s.handleLocalSettings))
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

func (s *Site) URL() string { return s.Server.URL }

// Auth is the Basic credential the site hands out.
func Auth() string {
	return base64.StdEncoding.EncodeToString([]byte(Username + ":" + AppPassword))
}

func (s *Site) SetHash(h string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hash = h
}

func (s *Site) SetBundle(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundle = b
}

// FailExchange makes the exchange endpoint answer with status.
func (s *Site) FailExchange(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchangeStatus = status
}

func (s *Site) FailConfigHash(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashStatus = status
}

func (s *Site) FailConfig(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configStatus = status
}

// PushedSettings returns every local-settings payload received.
func (s *Site) PushedSettings() []wordpress.LocalSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wordpress.LocalSettings(nil), s.settings...)
}

func (s *Site) ConfigRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configRequests
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Site) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Basic "+Auth() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "rest_not_logged_in", "message": "You are not currently logged in."})
			return
		}
		next(w, r)
	}
}

func (s *Site) handleExchange(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exchangeStatus != 0 {
		writeJSON(w, s.exchangeStatus, map[string]string{"code": "exchange_failed", "message": "Exchange unavailable"})
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token != s.token {
		writeJSON(w, http.StatusForbidden, map[string]string{"code": "invalid_token", "message": "Invalid or expired token"})
		return
	}
	// One-time token.
	s.token = ""

	base := s.Server.URL
	writeJSON(w, http.StatusOK, wordpress.ExchangeResponse{
		Success: true,
		Credentials: wordpress.Credentials{
			Username:    Username,
			AppPassword: AppPassword,
			Auth:        Auth(),
		},
		Site: wordpress.SiteInfo{
			Name:         s.name,
			URL:          base,
			RestURL:      base + "/wp-json/",
			MCPEndpoint:  base + "/wp-json/wordforge/mcp",
			AbilitiesURL: base + "/wp-json/wp-abilities/v1/abilities",
		},
	})
}

func (s *Site) handleConfigHash(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hashStatus != 0 {
		writeJSON(w, s.hashStatus, map[string]string{"message": "hash unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, wordpress.Fingerprint{
		Hash: s.hash,
		Components: wordpress.Components{
			PluginsHash:   "p",
			ThemeHash:     "t",
			AgentsHash:    "a",
			ProvidersHash: "pr",
		},
		Generated: 1_700_000_000,
	})
}

func (s *Site) handleLocalConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configRequests++
	if r.URL.Query().Get("runtime") != "bun" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "runtime required"})
		return
	}
	if s.configStatus != 0 {
		writeJSON(w, s.configStatus, map[string]string{"message": "bundle unavailable"})
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	_, _ = w.Write(s.bundle)
}

func (s *Site) handleLocalSettings(w http.ResponseWriter, r *http.Request) {
	var settings wordpress.LocalSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	s.settings = append(s.settings, settings)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Bundle zips files (path -> contents). Paths ending in ".sh" are marked
// executable.
func Bundle(t testing.TB, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		h := &zip.FileHeader{Name: name, Method: zip.Deflate}
		mode := os.FileMode(0o644)
		if len(name) > 3 && name[len(name)-3:] == ".sh" {
			mode = 0o755
		}
		h.SetMode(mode)
		w, err := zw.CreateHeader(h)
		if err != nil {
			t.Fatalf("zip header: %v", err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
