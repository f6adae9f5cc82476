package sites

import (
	"context"

	"github.com/KONFeature/wordforge/internal/registry"
)

// SyncStatus compares the locally applied config with the remote one.
type SyncStatus struct {
	UpdateAvailable bool   `json:"update_available"`
	CurrentHash     string `json:"current_hash,omitempty"`
	RemoteHash      string `json:"remote_hash,omitempty"`
	LastChecked     int64  `json:"last_checked"`
}

// UpdateAvailable decides whether the remote config should be pulled. An
// unknown remote hash never signals an update.
func UpdateAvailable(localHash, remoteHash string) bool {
	switch {
	case remoteHash == "":
		return false
	case localHash == "":
		return true
	default:
		return localHash != remoteHash
	}
}

func (s *Service) SyncStatus(site registry.Site, remoteHash string) SyncStatus {
	return SyncStatus{
		UpdateAvailable: UpdateAvailable(site.ConfigHash, remoteHash),
		CurrentHash:     site.ConfigHash,
		RemoteHash:      remoteHash,
		LastChecked:     s.now().Unix(),
	}
}

// CheckConfigUpdate reports the sync status of site id (or the active
// site). A fingerprint that cannot be fetched counts as unknown.
func (s *Service) CheckConfigUpdate(ctx context.Context, id string) (SyncStatus, error) {
	site, err := s.Resolve(id)
	if err != nil {
		return SyncStatus{}, err
	}

	var remoteHash string
	if fp, err := s.CheckHash(ctx, site); err != nil {
		s.logger.Warnw("config hash check failed", "site_id", site.ID, "error", err)
	} else {
		remoteHash = fp.Hash
	}
	return s.SyncStatus(site, remoteHash), nil
}
