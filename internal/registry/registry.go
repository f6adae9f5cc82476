package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSiteNotFound indicates the site ID doesn't exist
var ErrSiteNotFound = errors.New("site not found")

// Registry is the durable store of linked sites. Every mutation rewrites the
// whole document; reads hand out copies.
type Registry struct {
	filePath string
	logger   *zap.SugaredLogger
	now      func() time.Time

	mu          sync.RWMutex
	data        *Document
	lastWritten []byte
}

// New creates a Registry backed by filePath, loading it when present.
func New(filePath string, logger *zap.SugaredLogger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Registry{
		filePath: filepath.Clean(filePath),
		logger:   logger,
		now:      time.Now,
		data:     emptyDocument(),
	}

	if err := r.Load(); err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return r, nil
}

func emptyDocument() *Document {
	return &Document{Sites: make(map[string]*Site)}
}

func (r *Registry) Path() string { return r.filePath }

// Load reads the registry from disk. A missing file yields an empty registry.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			r.data = emptyDocument()
			r.lastWritten = nil
			return nil
		}
		return err
	}

	doc, err := decode(data)
	if err != nil {
		return err
	}
	r.data = doc
	r.lastWritten = data
	return nil
}

func decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry: %w", err)
	}
	if doc.Sites == nil {
		doc.Sites = make(map[string]*Site)
	}
	if doc.ActiveSiteID != "" {
		if _, ok := doc.Sites[doc.ActiveSiteID]; !ok {
			doc.ActiveSiteID = ""
		}
	}
	return &doc, nil
}

// saveNoLock persists the registry without locking (caller must hold lock)
func (r *Registry) saveNoLock() error {
	dir := filepath.Dir(r.filePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	f, err := os.CreateTemp(dir, ".sites-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to fsync registry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close registry file: %w", err)
	}

	if err := os.Rename(tmp, r.filePath); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}

	if dirf, err := os.Open(dir); err == nil {
		_ = dirf.Sync()
		_ = dirf.Close()
	}

	r.lastWritten = data
	return nil
}

// mutate applies fn to a deep copy of the document and swaps it in only if
// persisting succeeds, so a failed write leaves memory untouched.
func (r *Registry) mutate(fn func(doc *Document) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.data
	next := prev.clone()
	if err := fn(next); err != nil {
		return err
	}

	r.data = next
	if err := r.saveNoLock(); err != nil {
		r.data = prev
		return fmt.Errorf("persist failed: %w", err)
	}
	return nil
}

func (d *Document) clone() *Document {
	out := &Document{
		Sites:        make(map[string]*Site, len(d.Sites)),
		ActiveSiteID: d.ActiveSiteID,
		DeviceID:     d.DeviceID,
	}
	for id, s := range d.Sites {
		cp := *s
		out.Sites[id] = &cp
	}
	return out
}

// List returns all sites sorted by name then ID
func (r *Registry) List() []Site {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sites := make([]Site, 0, len(r.data.Sites))
	for _, s := range r.data.Sites {
		sites = append(sites, *s)
	}

	sort.Slice(sites, func(i, j int) bool {
		if sites[i].Name == sites[j].Name {
			return sites[i].ID < sites[j].ID
		}
		return sites[i].Name < sites[j].Name
	})
	return sites
}

func (r *Registry) Get(id string) (Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.data.Sites[id]
	if !ok {
		return Site{}, fmt.Errorf("%w: %s", ErrSiteNotFound, id)
	}
	return *s, nil
}

// Active returns the active site, if any.
func (r *Registry) Active() (Site, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data.ActiveSiteID == "" {
		return Site{}, false
	}
	s, ok := r.data.Sites[r.data.ActiveSiteID]
	if !ok {
		return Site{}, false
	}
	return *s, true
}

// SetActive marks id as the active site and bumps its last-used time.
func (r *Registry) SetActive(id string) error {
	return r.mutate(func(doc *Document) error {
		s, ok := doc.Sites[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrSiteNotFound, id)
		}
		doc.ActiveSiteID = id
		s.LastUsedAt = r.now().Unix()
		return nil
	})
}

// AddActive stores site, generating an ID and timestamps when missing, and
// makes it the active site. It returns the stored copy.
func (r *Registry) AddActive(site Site) (Site, error) {
	now := r.now().Unix()
	if site.ID == "" {
		site.ID = GenerateID()
	}
	if site.CreatedAt == 0 {
		site.CreatedAt = now
	}
	if site.LastUsedAt == 0 {
		site.LastUsedAt = now
	}

	err := r.mutate(func(doc *Document) error {
		cp := site
		doc.Sites[site.ID] = &cp
		doc.ActiveSiteID = site.ID
		return nil
	})
	if err != nil {
		return Site{}, err
	}
	return site, nil
}

// Remove deletes a site. When it was active, the remaining site with the
// lowest ID becomes active, or none if the registry is now empty.
func (r *Registry) Remove(id string) (Site, error) {
	var removed Site
	err := r.mutate(func(doc *Document) error {
		s, ok := doc.Sites[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrSiteNotFound, id)
		}
		removed = *s
		delete(doc.Sites, id)

		if doc.ActiveSiteID == id {
			doc.ActiveSiteID = ""
			ids := make([]string, 0, len(doc.Sites))
			for k := range doc.Sites {
				ids = append(ids, k)
			}
			if len(ids) > 0 {
				sort.Strings(ids)
				doc.ActiveSiteID = ids[0]
			}
		}
		return nil
	})
	if err != nil {
		return Site{}, err
	}
	return removed, nil
}

// UpdateConfigHash records the fingerprint of the last applied config bundle.
func (r *Registry) UpdateConfigHash(id, hash string, at time.Time) error {
	return r.mutate(func(doc *Document) error {
		s, ok := doc.Sites[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrSiteNotFound, id)
		}
		s.ConfigHash = hash
		s.ConfigUpdatedAt = at.Unix()
		return nil
	})
}

// DeviceID returns the installation's device id, creating it on first use.
// If the new id cannot be persisted it is still returned and kept in memory.
func (r *Registry) DeviceID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data.DeviceID != "" {
		return r.data.DeviceID
	}

	r.data.DeviceID = GenerateID()
	if err := r.saveNoLock(); err != nil {
		r.logger.Warnw("failed to persist device id", "error", err)
	}
	return r.data.DeviceID
}

// reloadIfChanged picks up writes made by another process. Our own writes
// are recognized by content and ignored. The read happens under the lock so
// a mutation cannot commit between reading and comparing.
func (r *Registry) reloadIfChanged() {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warnw("failed to read registry after change", "path", r.filePath, "error", err)
		}
		return
	}
	if bytes.Equal(data, r.lastWritten) {
		return
	}
	doc, err := decode(data)
	if err != nil {
		r.logger.Warnw("ignoring unreadable registry change", "path", r.filePath, "error", err)
		return
	}
	r.data = doc
	r.lastWritten = data
	r.logger.Infow("registry reloaded after external change", "sites", len(doc.Sites))
}
