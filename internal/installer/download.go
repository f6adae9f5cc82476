package installer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/KONFeature/wordforge/internal/archive"
	"github.com/KONFeature/wordforge/internal/limits"
	"github.com/KONFeature/wordforge/internal/remote"
)

// Progress is one download step. Percent grows monotonically from 0 to 100.
type Progress struct {
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

type ProgressFunc func(Progress)

const (
	downloadStart = 20
	downloadSpan  = 60
)

// Download installs the latest release and returns its version. The version
// marker is only rewritten once the archive has been fully extracted.
func (i *Installer) Download(ctx context.Context, progress ProgressFunc) (string, error) {
	if progress == nil {
		progress = func(Progress) {}
	}

	progress(Progress{Message: "Fetching release info...", Percent: 0})
	tag, err := platformTag(i.goos, i.goarch)
	if err != nil {
		return "", err
	}
	rel, err := i.latestRelease(ctx)
	if err != nil {
		return "", err
	}
	a, err := selectAsset(rel.Assets, tag)
	if err != nil {
		return "", err
	}
	i.logger.Infow("downloading sidecar", "version", rel.TagName, "asset", a.Name)

	progress(Progress{Message: "Creating directories...", Percent: 10})
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create install dir: %w", err)
	}

	progress(Progress{Message: "Downloading...", Percent: downloadStart})
	archivePath := filepath.Join(i.dir, a.Name)
	defer func() {
		if rmErr := os.Remove(archivePath); rmErr != nil && !os.IsNotExist(rmErr) {
			i.logger.Warnw("failed to remove release archive", "path", archivePath, "error", rmErr)
		}
	}()
	if err := i.fetch(ctx, a.BrowserDownloadURL, archivePath, progress); err != nil {
		return "", err
	}

	progress(Progress{Message: "Extracting archive...", Percent: 80})
	if err := i.extract(ctx, archivePath); err != nil {
		return "", err
	}

	if i.goos != "windows" {
		if err := os.Chmod(i.BinaryPath(), 0o755); err != nil {
			return "", fmt.Errorf("failed to mark sidecar executable: %w", err)
		}
	}

	progress(Progress{Message: "Saving version info...", Percent: 95})
	if err := i.recordInstalledVersion(rel.TagName); err != nil {
		return "", err
	}

	progress(Progress{Message: "Download complete!", Percent: 100})
	i.logger.Infow("sidecar installed", "version", rel.TagName, "path", i.BinaryPath())
	return rel.TagName, nil
}

func (i *Installer) fetch(ctx context.Context, url, dst string, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := remote.Do(i.http, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	body := io.Reader(resp.Body)
	if resp.ContentLength > 0 {
		body = &progressReader{r: resp.Body, total: resp.ContentLength, last: downloadStart, report: progress}
	}

	n, copyErr := io.Copy(out, io.LimitReader(body, limits.ReleaseArchive+1))
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("%w: download interrupted: %v", remote.ErrTransport, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to finalize archive: %w", closeErr)
	}
	if n > limits.ReleaseArchive {
		return fmt.Errorf("release archive exceeds maximum size (%d bytes)", limits.ReleaseArchive)
	}
	return nil
}

// extract runs the archive extraction on its own goroutine and waits for it
// or for ctx. A cancelled extraction stops at the next archive entry.
func (i *Installer) extract(ctx context.Context, archivePath string) error {
	done := make(chan error, 1)
	go func() {
		done <- archive.ExtractFile(ctx, archivePath, i.dir)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		<-done
		err = ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if !i.IsInstalled() {
		return fmt.Errorf("%w: archive did not contain %s", ErrExtractionFailed, filepath.Base(i.BinaryPath()))
	}
	return nil
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	pct := downloadStart + int(float64(p.read)/float64(p.total)*downloadSpan)
	if pct > downloadStart+downloadSpan {
		pct = downloadStart + downloadSpan
	}
	if pct > p.last {
		p.last = pct
		p.report(Progress{Message: "Downloading...", Percent: pct})
	}
	return n, err
}
