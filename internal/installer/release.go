package installer

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/KONFeature/wordforge/internal/archive"
	"github.com/KONFeature/wordforge/internal/limits"
	"github.com/KONFeature/wordforge/internal/remote"
)

type release struct {
	TagName string  `json:"tag_name"`
	Assets  []asset `json:"assets"`
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

var (
	osNames = map[string]string{
		"darwin":  "darwin",
		"linux":   "linux",
		"windows": "win32",
	}
	archNames = map[string]string{
		"amd64": "x64",
		"arm64": "arm64",
	}
)

// platformTag maps the Go platform to the "<os>-<arch>" fragment used in
// release asset names.
func platformTag(goos, goarch string) (string, error) {
	o, ok := osNames[goos]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	a, ok := archNames[goarch]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	return o + "-" + a, nil
}

func selectAsset(assets []asset, tag string) (asset, error) {
	for _, a := range assets {
		if strings.Contains(a.Name, tag) && archive.Format(a.Name) != "" {
			return a, nil
		}
	}
	return asset{}, fmt.Errorf("%w: %s", ErrNoMatchingAsset, tag)
}

func (i *Installer) latestRelease(ctx context.Context) (*release, error) {
	ctx, cancel := context.WithTimeout(ctx, i.metadataTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/repos/%s/releases/latest", i.apiURL, i.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := remote.Do(i.http, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rel release
	if err := remote.DecodeJSON(resp.Body, limits.JSON, &rel); err != nil {
		return nil, err
	}
	if rel.TagName == "" {
		return nil, fmt.Errorf("%w: release has no tag_name", remote.ErrParse)
	}
	return &rel, nil
}

// LatestVersion returns the tag of the newest published release.
func (i *Installer) LatestVersion(ctx context.Context) (string, error) {
	rel, err := i.latestRelease(ctx)
	if err != nil {
		return "", err
	}
	return rel.TagName, nil
}
