// Package deeplink parses connect links handed to the desktop by the OS
// and makes sure each one-time token is acted on at most once.
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

const (
	DefaultScheme = "wordforge"
	defaultName   = "WordPress Site"
)

var ErrInvalidURL = errors.New("invalid deep link")

// Link is a parsed connect request.
type Link struct {
	URL     string `json:"url"`
	SiteURL string `json:"site_url"`
	Token   string `json:"token"`
	Name    string `json:"name"`
}

// Guard remembers which tokens it has already seen for as long as it lives.
// Construct one per host process.
type Guard struct {
	scheme string

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewGuard(scheme string) *Guard {
	if scheme == "" {
		scheme = DefaultScheme
	}
	return &Guard{scheme: scheme, seen: make(map[string]struct{})}
}

// Matches reports whether raw looks like a link for this guard's scheme.
func (g *Guard) Matches(raw string) bool {
	return strings.HasPrefix(strings.ToLower(raw), g.scheme+"://")
}

// Parse validates a connect link. The token and site query parameters are
// required; name defaults to "WordPress Site".
func (g *Guard) Parse(raw string) (Link, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !strings.EqualFold(u.Scheme, g.scheme) {
		return Link{}, fmt.Errorf("%w: invalid scheme %q", ErrInvalidURL, u.Scheme)
	}

	q := u.Query()
	token := q.Get("token")
	if token == "" {
		return Link{}, fmt.Errorf("%w: missing token", ErrInvalidURL)
	}
	site := q.Get("site")
	if site == "" {
		return Link{}, fmt.Errorf("%w: missing site", ErrInvalidURL)
	}

	name := defaultName
	if q.Has("name") {
		// Sites encode the name once more on top of query encoding.
		name = q.Get("name")
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}
	}

	return Link{URL: raw, SiteURL: site, Token: token, Name: name}, nil
}

// IsNew records token and reports whether it had not been seen before.
func (g *Guard) IsNew(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[token]; ok {
		return false
	}
	g.seen[token] = struct{}{}
	return true
}
