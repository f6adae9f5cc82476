// Package archive unpacks the zip and tar.gz files the host downloads:
// sidecar release archives and per-site configuration bundles.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxFileCount        = 10000
	maxFileSize         = 500 << 20
	maxTotalExtractSize = 1 << 30

	creatorUnix = 3
)

var ErrUnsupportedFormat = errors.New("unsupported archive format")

// Format returns "zip", "tar.gz" or "" for the given file name.
func Format(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return "zip"
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return "tar.gz"
	default:
		return ""
	}
}

// ExtractFile unpacks archivePath into destDir, picking the format from the
// file extension.
func ExtractFile(ctx context.Context, archivePath, destDir string) error {
	switch Format(archivePath) {
	case "zip":
		r, err := zip.OpenReader(archivePath)
		if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
			return fmt.Errorf("open zip: %w", err)
		}
		defer r.Close()
		return extractZip(ctx, &r.Reader, destDir)
	case "tar.gz":
		f, err := os.Open(archivePath)
		if err != nil {
			return err
		}
		defer f.Close()
		return ExtractTarGz(ctx, f, destDir)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(archivePath))
	}
}

// ExtractZipBytes unpacks an in-memory zip, overwriting existing files.
// Entries created on unix keep their permission bits.
func ExtractZipBytes(ctx context.Context, data []byte, destDir string) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	// Insecure names still yield a usable reader; safeTarget rejects them.
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("open zip: %w", err)
	}
	return extractZip(ctx, r, destDir)
}

func extractZip(ctx context.Context, r *zip.Reader, destDir string) error {
	var totalSize int64

	if len(r.File) > maxFileCount {
		return fmt.Errorf("archive contains too many files (max %d)", maxFileCount)
	}

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("extraction cancelled: %w", err)
		}

		if f.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("archive contains symlink (not allowed): %s", f.Name)
		}

		target, skip, err := safeTarget(destDir, f.Name)
		if err != nil {
			return err
		}
		if skip {
			continue
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", f.Name, err)
			}
			continue
		}

		mode := os.FileMode(0o644)
		if f.CreatorVersion>>8 == creatorUnix {
			mode = f.Mode().Perm() | 0o600
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
		written, err := writeFile(target, rc, mode)
		rc.Close()
		if err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}

		totalSize += written
		if totalSize > maxTotalExtractSize {
			return fmt.Errorf("archive exceeds total extraction limit (%d bytes)", maxTotalExtractSize)
		}
	}
	return nil
}

// ExtractTarGz unpacks a gzip-compressed tarball read from r.
func ExtractTarGz(ctx context.Context, r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	count := 0
	var totalSize int64

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("extraction cancelled: %w", err)
		}
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		count++
		if count > maxFileCount {
			return fmt.Errorf("archive contains too many files (max %d)", maxFileCount)
		}

		if header.Typeflag == tar.TypeSymlink || header.Typeflag == tar.TypeLink {
			return fmt.Errorf("archive contains link entry (not allowed): %s", header.Name)
		}

		target, skip, err := safeTarget(destDir, header.Name)
		if err != nil {
			return err
		}
		if skip {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			mode := os.FileMode(header.Mode).Perm() | 0o600
			written, err := writeFile(target, tr, mode)
			if err != nil {
				return fmt.Errorf("extract %s: %w", header.Name, err)
			}
			totalSize += written
			if totalSize > maxTotalExtractSize {
				return fmt.Errorf("archive exceeds total extraction limit (%d bytes)", maxTotalExtractSize)
			}
		}
	}
	return nil
}

// safeTarget resolves name below destDir, rejecting entries that escape it.
// The archive root itself ("./") is skipped.
func safeTarget(destDir, name string) (string, bool, error) {
	cleanDest := filepath.Clean(destDir)
	target := filepath.Clean(filepath.Join(cleanDest, name))
	if target == cleanDest {
		return "", true, nil
	}
	if !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
		return "", false, fmt.Errorf("invalid path in archive: %s", name)
	}
	return target, false, nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}
	written, copyErr := io.Copy(out, io.LimitReader(r, maxFileSize+1))
	closeErr := out.Close()
	if copyErr != nil {
		return written, copyErr
	}
	if closeErr != nil {
		return written, closeErr
	}
	if written > maxFileSize {
		return written, fmt.Errorf("file exceeds maximum size (%d bytes)", maxFileSize)
	}
	// OpenFile only applies the mode on creation and through the umask.
	if err := os.Chmod(target, mode); err != nil {
		return written, err
	}
	return written, nil
}
