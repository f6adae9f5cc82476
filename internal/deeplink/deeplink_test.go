package deeplink

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	g := NewGuard("")

	link, err := g.Parse("wordforge://connect?token=abc&site=https%3A%2F%2Fx.com&name=My%20Site")
	require.NoError(t, err)
	assert.Equal(t, "abc", link.Token)
	assert.Equal(t, "https://x.com", link.SiteURL)
	assert.Equal(t, "My Site", link.Name)
}

func TestParseDoubleEncodedName(t *testing.T) {
	g := NewGuard("wordforge")

	link, err := g.Parse("wordforge://connect?token=abc&site=https://x.com&name=Caf%25C3%25A9%2520Blog")
	require.NoError(t, err)
	assert.Equal(t, "Café Blog", link.Name)
}

func TestParseDefaultsName(t *testing.T) {
	g := NewGuard("wordforge")

	link, err := g.Parse("wordforge://connect?token=abc&site=https://x.com")
	require.NoError(t, err)
	assert.Equal(t, "WordPress Site", link.Name)
}

func TestParseErrors(t *testing.T) {
	g := NewGuard("wordforge")
	tests := []struct {
		name string
		raw  string
		msg  string
	}{
		{"wrong scheme", "https://connect?token=abc&site=x", "invalid scheme"},
		{"missing token", "wordforge://connect?site=https://x.com", "missing token"},
		{"empty token", "wordforge://connect?token=&site=https://x.com", "missing token"},
		{"missing site", "wordforge://connect?token=abc", "missing site"},
		{"unparseable", "wordforge://%zz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Parse(tt.raw)
			require.ErrorIs(t, err, ErrInvalidURL)
			if tt.msg != "" {
				assert.ErrorContains(t, err, tt.msg)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	g := NewGuard("wordforge")
	assert.True(t, g.Matches("wordforge://connect?token=a"))
	assert.True(t, g.Matches("WordForge://connect"))
	assert.False(t, g.Matches("https://example.com"))
	assert.False(t, g.Matches("--verbose"))
}

func TestIsNew(t *testing.T) {
	g := NewGuard("wordforge")
	assert.True(t, g.IsNew("abc"))
	assert.False(t, g.IsNew("abc"))
	assert.True(t, g.IsNew("def"))

	// A fresh guard has no memory.
	assert.True(t, NewGuard("wordforge").IsNew("abc"))
}

func TestIsNewConcurrent(t *testing.T) {
	g := NewGuard("wordforge")
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.IsNew("same-token") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
