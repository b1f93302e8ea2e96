// Package identifier derives the filesystem-safe key an article is stored under.
//
// The derivation must stay stable: identifiers already on disk are looked up
// by re-sanitizing caller input, so any change here orphans stored articles.
package identifier

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength caps the identifier length in characters.
const MaxLength = 255

var (
	reservedReplacer = strings.NewReplacer(
		"<", "",
		">", "",
		":", "",
		"\"", "",
		"/", "",
		"\\", "",
		"|", "",
		"?", "",
		"*", "",
	)
	disallowed  = regexp.MustCompile(`[^a-z0-9_-]+`)
	underscores = regexp.MustCompile(`_{2,}`)
)

// Sanitize converts an article title into its storage identifier.
// Accented letters fold to their ASCII base, spaces become underscores, and
// everything outside [a-z0-9_-] is dropped.
func Sanitize(title string) string {
	s := foldASCII(title)
	s = strings.ReplaceAll(s, " ", "_")
	s = reservedReplacer.Replace(s)
	s = strings.ToLower(s)
	s = disallowed.ReplaceAllString(s, "")
	s = underscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "_")
	}
	return s
}

// FromURL derives an identifier from a page address for articles whose title
// sanitizes to nothing.
func FromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Sanitize(strings.NewReplacer("/", " ", ".", " ").Replace(raw))
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	return Sanitize(strings.NewReplacer("/", " ", ".", " ").Replace(host + " " + u.Path))
}

func foldASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, s)
	if err != nil {
		return ""
	}
	return out
}
