package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewWritesToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "host.log")

	logger, err := New(Options{Level: "debug", File: file})
	require.NoError(t, err)

	logger.Infow("sidecar started", "port", 4096)
	_ = logger.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sidecar started")
	assert.Contains(t, string(data), "4096")
}
