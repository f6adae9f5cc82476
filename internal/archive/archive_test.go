package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name string
	body string
	mode os.FileMode
}

func buildZip(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		h := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		if e.mode != 0 {
			h.SetMode(e.mode)
		}
		w, err := zw.CreateHeader(h)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildTarGz(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     e.name,
			Mode:     int64(e.mode),
			Size:     int64(len(e.body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "zip", Format("opencode-win32-x64.zip"))
	assert.Equal(t, "tar.gz", Format("opencode-linux-x64.tar.gz"))
	assert.Equal(t, "tar.gz", Format("bundle.TGZ"))
	assert.Equal(t, "", Format("opencode-linux-x64.deb"))
}

func TestExtractZipBytesAppliesUnixModes(t *testing.T) {
	dest := t.TempDir()
	data := buildZip(t, []entry{
		{name: "opencode.json", body: `{"a":1}`, mode: 0o644},
		{name: "bin/hook.sh", body: "#!/bin/sh\n", mode: 0o755},
	})

	require.NoError(t, ExtractZipBytes(context.Background(), data, dest))

	got, err := os.ReadFile(filepath.Join(dest, "opencode.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	info, err := os.Stat(filepath.Join(dest, "bin", "hook.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestExtractZipBytesOverwrites(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "opencode.json"), []byte("old contents"), 0o644))

	data := buildZip(t, []entry{{name: "opencode.json", body: "new", mode: 0o644}})
	require.NoError(t, ExtractZipBytes(context.Background(), data, dest))

	got, err := os.ReadFile(filepath.Join(dest, "opencode.json"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestExtractRejectsTraversal(t *testing.T) {
	dest := t.TempDir()
	data := buildZip(t, []entry{{name: "../escape.txt", body: "x"}})

	err := ExtractZipBytes(context.Background(), data, dest)
	assert.ErrorContains(t, err, "invalid path")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "escape.txt"))
}

func TestExtractFileTarGz(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "opencode-linux-x64.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, buildTarGz(t, []entry{
		{name: "opencode", body: "binary", mode: 0o755},
	}), 0o644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, ExtractFile(context.Background(), archivePath, dest))

	info, err := os.Stat(filepath.Join(dest, "opencode"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestExtractFileUnknownFormat(t *testing.T) {
	err := ExtractFile(context.Background(), "sidecar.rar", t.TempDir())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := buildZip(t, []entry{{name: "a.txt", body: "a"}})

	err := ExtractZipBytes(ctx, data, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}
