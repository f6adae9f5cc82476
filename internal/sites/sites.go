// Package sites links the desktop to WordPress sites and keeps each site's
// local project in sync with the configuration the site publishes.
package sites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KONFeature/wordforge/internal/archive"
	"github.com/KONFeature/wordforge/internal/project"
	"github.com/KONFeature/wordforge/internal/registry"
	"github.com/KONFeature/wordforge/internal/wordpress"
)

var (
	// ErrNoActiveSite is returned when an operation defaults to the active
	// site and there is none.
	ErrNoActiveSite = errors.New("no active site")
	// ErrProjectDir means the local project directory could not be prepared.
	ErrProjectDir = errors.New("failed to prepare project directory")
)

// Service owns no lock of its own: registry reads and writes are short and
// all network I/O happens between them.
type Service struct {
	registry *registry.Registry
	client   *wordpress.Client
	projects *project.Manager
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewService(reg *registry.Registry, client *wordpress.Client, projects *project.Manager, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		registry: reg,
		client:   client,
		projects: projects,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) Registry() *registry.Registry { return s.registry }

// Resolve returns the site with id, or the active site when id is empty.
func (s *Service) Resolve(id string) (registry.Site, error) {
	if id != "" {
		return s.registry.Get(id)
	}
	site, ok := s.registry.Active()
	if !ok {
		return registry.Site{}, ErrNoActiveSite
	}
	return site, nil
}

// Connect exchanges a one-time token, provisions the site's project
// directory, downloads its configuration and stores it as the active site.
// Nothing is registered unless every required step succeeds.
func (s *Service) Connect(ctx context.Context, siteURL, token string) (registry.Site, error) {
	resp, err := s.client.Exchange(ctx, siteURL, token)
	if err != nil {
		return registry.Site{}, err
	}

	dir, created, err := s.projects.Create(resp.Site.Name)
	if err != nil {
		return registry.Site{}, fmt.Errorf("%w: %v", ErrProjectDir, err)
	}
	success := false
	defer func() {
		if !success && created {
			if rmErr := s.projects.Remove(dir); rmErr != nil {
				s.logger.Warnw("failed to remove project dir after failed connect", "dir", dir, "error", rmErr)
			}
		}
	}()

	if _, err := s.projects.EnsureMarker(dir); err != nil {
		return registry.Site{}, fmt.Errorf("%w: %v", ErrProjectDir, err)
	}

	if err := s.applyBundle(ctx, siteURL, resp.Credentials.Auth, dir); err != nil {
		return registry.Site{}, err
	}

	now := s.now()
	site := registry.Site{
		ID:              registry.GenerateID(),
		Name:            resp.Site.Name,
		URL:             resp.Site.URL,
		RestURL:         resp.Site.RestURL,
		MCPEndpoint:     resp.Site.MCPEndpoint,
		AbilitiesURL:    resp.Site.AbilitiesURL,
		Username:        resp.Credentials.Username,
		AppPassword:     resp.Credentials.AppPassword,
		Auth:            resp.Credentials.Auth,
		ProjectDir:      dir,
		CreatedAt:       now.Unix(),
		LastUsedAt:      now.Unix(),
		ConfigUpdatedAt: now.Unix(),
	}

	if fp, err := s.client.ConfigHash(ctx, site.URL, site.Auth); err != nil {
		s.logger.Warnw("config hash unavailable after connect", "site", site.URL, "error", err)
	} else {
		site.ConfigHash = fp.Hash
	}

	stored, err := s.registry.AddActive(site)
	if err != nil {
		return registry.Site{}, err
	}
	success = true
	s.logger.Infow("site connected", "site_id", stored.ID, "name", stored.Name, "project_dir", dir)
	return stored, nil
}

// applyBundle downloads the config bundle and unpacks it into dir.
func (s *Service) applyBundle(ctx context.Context, siteURL, auth, dir string) error {
	data, err := s.client.LocalConfig(ctx, siteURL, auth)
	if err != nil {
		return err
	}
	if err := archive.ExtractZipBytes(ctx, data, dir); err != nil {
		return fmt.Errorf("%w: %v", wordpress.ErrConfigDownload, err)
	}
	s.logger.Infow("config bundle applied", "dir", dir, "bytes", len(data))
	return nil
}

// CheckHash fetches the site's current configuration fingerprint.
func (s *Service) CheckHash(ctx context.Context, site registry.Site) (*wordpress.Fingerprint, error) {
	return s.client.ConfigHash(ctx, site.URL, site.Auth)
}

// Refresh re-downloads the configuration of site id and records the new
// fingerprint. The stored site only changes once everything succeeded.
func (s *Service) Refresh(ctx context.Context, id string) (string, error) {
	site, err := s.registry.Get(id)
	if err != nil {
		return "", err
	}

	fp, err := s.CheckHash(ctx, site)
	if err != nil {
		return "", err
	}
	if err := s.applyBundle(ctx, site.URL, site.Auth, site.ProjectDir); err != nil {
		return "", err
	}
	if err := s.registry.UpdateConfigHash(id, fp.Hash, s.now()); err != nil {
		return "", err
	}

	s.logger.Infow("site config refreshed", "site_id", id, "hash", fp.Hash)
	return fp.Hash, nil
}

// PushLocalEndpoint tells the site which port this device's sidecar
// listens on. Callers treat failures as non-fatal.
func (s *Service) PushLocalEndpoint(ctx context.Context, site registry.Site, port int, deviceID string) error {
	settings := wordpress.LocalSettings{
		Port:       port,
		DeviceID:   deviceID,
		Enabled:    true,
		ProjectID:  project.ID(site.ProjectDir),
		ProjectDir: site.ProjectDir,
	}
	if err := s.client.PushLocalSettings(ctx, site.URL, site.Auth, settings); err != nil {
		return fmt.Errorf("failed to sync settings: %w", err)
	}
	s.logger.Infow("local endpoint pushed", "site_id", site.ID, "port", port, "device_id", deviceID)
	return nil
}

// Remove cleans the site's project data and unregisters it. Cleanup
// failures are logged and do not prevent removal.
func (s *Service) Remove(id string) (registry.Site, error) {
	site, err := s.registry.Get(id)
	if err != nil {
		return registry.Site{}, err
	}
	if err := s.projects.Cleanup(site.ProjectDir); err != nil {
		s.logger.Warnw("failed to clean up project", "site_id", id, "project_dir", site.ProjectDir, "error", err)
	}
	return s.registry.Remove(id)
}

// Folder returns the project directory of site id.
func (s *Service) Folder(id string) (string, error) {
	site, err := s.registry.Get(id)
	if err != nil {
		return "", err
	}
	return site.ProjectDir, nil
}

// Agents lists the agent definitions from site id's config bundle.
func (s *Service) Agents(id string) ([]project.Agent, error) {
	site, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return s.projects.Agents(site.ProjectDir)
}
