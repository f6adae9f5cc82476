package project

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/unicode/norm"
)

const fallbackSlug = "wordpress-site"

// toASCII transliterates s. NFKC first folds compatibility forms such as
// full-width letters so the transliteration table sees canonical runes.
func toASCII(s string) string {
	return unidecode.Unidecode(norm.NFKC.String(s))
}

// Slug turns a display name into a directory name: ASCII only, lowercase,
// [a-z0-9_-], no leading, trailing or repeated hyphens. Names with nothing
// usable left become "wordpress-site".
func Slug(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range toASCII(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'):
			b.WriteRune(unicode.ToLower(r))
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return fallbackSlug
	}
	return slug
}
