package project

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "My Blog", "my-blog"},
		{"accents", "Café Crème", "cafe-creme"},
		{"folded letters", "Straße Øst", "strasse-ost"},
		{"symbols collapse", "Shop!!! & More", "shop-more"},
		{"leading and trailing", "  --Hello World--  ", "hello-world"},
		{"keeps underscore", "dev_site 2", "dev_site-2"},
		{"nothing usable", "!!!", "wordpress-site"},
		{"cyrillic", "Мой сайт", "moi-sait"},
		{"full width", "Ｂｌｏｇ", "blog"},
		{"emoji only", "🎉", "wordpress-site"},
		{"empty", "", "wordpress-site"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.in))
		})
	}
}

func TestSlugInvariants(t *testing.T) {
	valid := regexp.MustCompile(`^[a-z0-9_]+(-[a-z0-9_]+)*$`)
	inputs := []string{
		"Hello", "a--b", "-x-", "Ünïcödé Sité", "tab\tseparated", "UPPER lower 123",
		"émoji 🎉 party", "ends with space ", "___", "a-", "-", "Ωmega",
		"Мой сайт", "Ελληνικά", "東京ブログ", "서울 카페",
	}
	for _, in := range inputs {
		got := Slug(in)
		assert.Regexp(t, valid, got, "input %q", in)
		assert.Equal(t, got, Slug(in), "deterministic for %q", in)
	}
}

func TestSlugTransliteratesNonLatinScripts(t *testing.T) {
	names := []string{"Мой сайт", "Ελληνικά", "東京ブログ", "서울 카페"}
	seen := map[string]string{}
	for _, name := range names {
		got := Slug(name)
		assert.NotEqual(t, fallbackSlug, got, "input %q", name)
		if prev, ok := seen[got]; ok {
			t.Errorf("%q and %q share slug %q", prev, name, got)
		}
		seen[got] = name
	}
}

func TestID(t *testing.T) {
	dir := "/data/wordforge/sites/my-blog"
	sum := sha256.Sum256([]byte(dir))

	id := ID(dir)
	assert.Equal(t, hex.EncodeToString(sum[:20]), id)
	assert.Len(t, id, 40)
}

func TestCreateAndMarker(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, filepath.Join(root, "storage"), zap.NewNop().Sugar())

	dir, created, err := m.Create("My Blog")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, filepath.Join(root, "my-blog"), dir)

	_, created, err = m.Create("my blog")
	require.NoError(t, err)
	assert.False(t, created, "same slug reuses the directory")

	id, err := m.EnsureMarker(dir)
	require.NoError(t, err)
	assert.Equal(t, ID(dir), id)

	data, err := os.ReadFile(filepath.Join(dir, ".git", "opencode"))
	require.NoError(t, err)
	assert.Equal(t, id, string(data))

	_, err = git.PlainOpen(dir)
	assert.NoError(t, err)

	// Idempotent on an existing repository.
	again, err := m.EnsureMarker(dir)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestCleanup(t *testing.T) {
	root := t.TempDir()
	storage := filepath.Join(root, "storage")
	m := NewManager(filepath.Join(root, "sites"), storage, zap.NewNop().Sugar())

	dir, _, err := m.Create("blog")
	require.NoError(t, err)
	id, err := m.EnsureMarker(dir)
	require.NoError(t, err)

	projectFile := filepath.Join(storage, "project", id+".json")
	sessionDir := filepath.Join(storage, "session", id)
	otherSession := filepath.Join(storage, "session", "someone-else")
	for _, d := range []string{filepath.Dir(projectFile), sessionDir, otherSession} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	require.NoError(t, os.WriteFile(projectFile, []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "ses_1.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("# agents"), 0o644))

	require.NoError(t, m.Cleanup(dir))

	assert.NoDirExists(t, filepath.Join(dir, ".git"))
	assert.NoFileExists(t, projectFile)
	assert.NoDirExists(t, sessionDir)
	assert.DirExists(t, otherSession)
	assert.FileExists(t, filepath.Join(dir, "AGENTS.md"), "config files stay")

	// Nothing left to remove is not an error.
	assert.NoError(t, m.Cleanup(dir))
}

func TestRemoveRefusesOutsideRoot(t *testing.T) {
	root := t.TempDir()
	m := NewManager(filepath.Join(root, "sites"), "", zap.NewNop().Sugar())

	assert.Error(t, m.Remove(root))
	assert.Error(t, m.Remove(filepath.Join(root, "sites")))

	dir, _, err := m.Create("doomed")
	require.NoError(t, err)
	require.NoError(t, m.Remove(dir))
	assert.NoDirExists(t, dir)
}

func TestAgents(t *testing.T) {
	dir := t.TempDir()
	agentDir := filepath.Join(dir, ".opencode", "agent")
	require.NoError(t, os.MkdirAll(agentDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(agentDir, "wordpress-manager.md"), []byte(`---
description: WordPress site orchestrator
mode: primary
temperature: 0.2
tools:
  write: false
  edit: false
---
You manage the site.
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, "wordpress-auditor.md"), []byte(`---
description: Audits the site
mode: subagent
model: anthropic/claude-sonnet
---
Audit things.
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, "notes.txt"), []byte("ignored"), 0o644))

	m := NewManager(dir, "", zap.NewNop().Sugar())
	agents, err := m.Agents(dir)
	require.NoError(t, err)
	require.Len(t, agents, 2)

	assert.Equal(t, "wordpress-auditor", agents[0].Name)
	assert.Equal(t, "subagent", agents[0].Mode)
	assert.Equal(t, "anthropic/claude-sonnet", agents[0].Model)

	assert.Equal(t, "wordpress-manager", agents[1].Name)
	assert.Equal(t, "WordPress site orchestrator", agents[1].Description)
	require.NotNil(t, agents[1].Temperature)
	assert.InDelta(t, 0.2, *agents[1].Temperature, 1e-9)
	assert.Equal(t, map[string]bool{"write": false, "edit": false}, agents[1].Tools)
}

func TestAgentsWithoutBundle(t *testing.T) {
	m := NewManager(t.TempDir(), "", zap.NewNop().Sugar())
	agents, err := m.Agents(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, agents)
}
