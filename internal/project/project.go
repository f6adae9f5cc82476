// Package project manages the per-site directories the sidecar runs in.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const markerFile = "opencode"

// Manager creates and removes project directories below a single root and
// cleans the sidecar's per-project storage when a project goes away.
type Manager struct {
	root       string
	storageDir string
	logger     *zap.SugaredLogger
}

func NewManager(root, storageDir string, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{root: root, storageDir: storageDir, logger: logger}
}

// Dir is the project directory a site name maps to.
func (m *Manager) Dir(name string) string {
	return filepath.Join(m.root, Slug(name))
}

// Create makes the project directory for name. created reports whether the
// directory did not exist before.
func (m *Manager) Create(name string) (dir string, created bool, err error) {
	dir = m.Dir(name)
	if _, statErr := os.Stat(dir); errors.Is(statErr, os.ErrNotExist) {
		created = true
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create project dir %s: %w", dir, err)
	}
	return dir, created, nil
}

// ID is the sidecar's project id for dir: the first 20 bytes of the SHA-256
// of its path, hex encoded.
func ID(dir string) string {
	sum := sha256.Sum256([]byte(dir))
	return hex.EncodeToString(sum[:20])
}

// EnsureMarker initializes a git repository in dir if there is none and
// writes the project id to .git/opencode, where the sidecar looks it up.
func (m *Manager) EnsureMarker(dir string) (string, error) {
	id := ID(dir)

	if _, err := git.PlainInit(dir, false); err != nil && !errors.Is(err, git.ErrRepositoryAlreadyExists) {
		return "", fmt.Errorf("failed to initialize repository in %s: %w", dir, err)
	}

	marker := filepath.Join(dir, git.GitDirName, markerFile)
	if err := os.WriteFile(marker, []byte(id), 0o644); err != nil {
		return "", fmt.Errorf("failed to write project marker: %w", err)
	}

	m.logger.Infow("project marker written", "project_id", id, "dir", dir)
	return id, nil
}

// Cleanup removes the repository in dir along with the sidecar's stored
// project record and sessions. Every step is attempted; failures are
// combined into the returned error.
func (m *Manager) Cleanup(dir string) error {
	id := ID(dir)
	var errs error

	targets := []string{
		filepath.Join(dir, git.GitDirName),
		filepath.Join(m.storageDir, "project", id+".json"),
		filepath.Join(m.storageDir, "session", id),
	}
	for _, target := range targets {
		if _, err := os.Lstat(target); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := os.RemoveAll(target); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("remove %s: %w", target, err))
			continue
		}
		m.logger.Infow("removed project data", "path", target, "project_id", id)
	}
	return errs
}

// Remove deletes the project directory itself. It only touches directories
// below the manager's root.
func (m *Manager) Remove(dir string) error {
	rel, err := filepath.Rel(m.root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove %s outside %s", dir, m.root)
	}
	return os.RemoveAll(dir)
}
