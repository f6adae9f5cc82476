package app

import (
	"context"

	"github.com/KONFeature/wordforge/internal/deeplink"
	"github.com/KONFeature/wordforge/internal/events"
	"github.com/KONFeature/wordforge/internal/registry"
)

// DeepLinkResult reports what happened to one incoming URL.
type DeepLinkResult struct {
	Link deeplink.Link `json:"link"`
	// Duplicate is set when the token was already seen; nothing is published.
	Duplicate bool           `json:"duplicate"`
	Site      *registry.Site `json:"site,omitempty"`
}

// HandleDeepLink validates raw and publishes a connect request for tokens
// not seen before. With connect set the site is also linked right away.
func (a *App) HandleDeepLink(ctx context.Context, raw string, connect bool) (DeepLinkResult, error) {
	link, err := a.guard.Parse(raw)
	if err != nil {
		a.logger.Warnw("rejected deep link", "error", err)
		return DeepLinkResult{}, err
	}

	res := DeepLinkResult{Link: link}
	if !a.guard.IsNew(link.Token) {
		a.logger.Infow("ignoring replayed deep link token", "site", link.SiteURL)
		res.Duplicate = true
		return res, nil
	}

	a.bus.Publish(events.TopicDeepLinkConnect, link)
	if !connect {
		return res, nil
	}

	site, err := a.sites.Connect(ctx, link.SiteURL, link.Token)
	if err != nil {
		return res, err
	}
	res.Site = &site
	return res, nil
}

// HandleDeepLinks feeds URLs the host was launched with through the guard.
// URLs of other schemes are skipped.
func (a *App) HandleDeepLinks(ctx context.Context, urls []string) {
	for _, raw := range urls {
		if !a.guard.Matches(raw) {
			continue
		}
		if _, err := a.HandleDeepLink(ctx, raw, false); err != nil {
			a.logger.Warnw("failed to handle launch deep link", "url", raw, "error", err)
		}
	}
}
