//go:build unix

package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/KONFeature/wordforge/internal/deeplink"
	"github.com/KONFeature/wordforge/internal/installer"
	"github.com/KONFeature/wordforge/internal/limits"
	"github.com/KONFeature/wordforge/internal/registry"
	"github.com/KONFeature/wordforge/internal/remote"
	"github.com/KONFeature/wordforge/internal/sites"
	"github.com/KONFeature/wordforge/internal/supervisor"
	"github.com/KONFeature/wordforge/internal/wordpress"
)

var errBadRequest = errors.New("bad request")

// statusFor maps a command error to the HTTP status the CLI sees. The body
// always carries the flattened message.
func statusFor(err error) int {
	var apiErr *remote.APIError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, deeplink.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrSiteNotFound), errors.Is(err, sites.ErrNoActiveSite):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrNotInstalled), errors.Is(err, installer.ErrNotInstalled):
		return http.StatusPreconditionFailed
	case errors.Is(err, supervisor.ErrReadinessTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, wordpress.ErrTokenExchange),
		errors.Is(err, wordpress.ErrConfigDownload),
		errors.Is(err, remote.ErrTransport),
		errors.Is(err, remote.ErrParse),
		errors.Is(err, installer.ErrNoMatchingAsset),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (d *Daemon) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		d.logger.Warnw("command failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, err.Error(), status)
}

// decodeBody reads a JSON request body into v. An empty body leaves v as is.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limits.JSON))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}
