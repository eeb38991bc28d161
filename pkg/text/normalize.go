// Package text holds the pure string transforms shared by the translation
// memory: markup and pictograph stripping, language tag canonicalization,
// sentence segmentation, term extraction and bigram similarity.
package text

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// tagPattern matches a single HTML-like tag. Nested fragments such as "<<b>i>"
// are handled by repeating the replacement until nothing changes.
var tagPattern = regexp.MustCompile(`<[^<>]*>`)

// pictographs approximates the Unicode Extended_Pictographic property.
var pictographs = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x203c, Hi: 0x203c, Stride: 1},
		{Lo: 0x2049, Hi: 0x2049, Stride: 1},
		{Lo: 0x2122, Hi: 0x2122, Stride: 1},
		{Lo: 0x2139, Hi: 0x2139, Stride: 1},
		{Lo: 0x2194, Hi: 0x2199, Stride: 1},
		{Lo: 0x21a9, Hi: 0x21aa, Stride: 1},
		{Lo: 0x231a, Hi: 0x231b, Stride: 1},
		{Lo: 0x2328, Hi: 0x2328, Stride: 1},
		{Lo: 0x23cf, Hi: 0x23cf, Stride: 1},
		{Lo: 0x23e9, Hi: 0x23f3, Stride: 1},
		{Lo: 0x23f8, Hi: 0x23fa, Stride: 1},
		{Lo: 0x24c2, Hi: 0x24c2, Stride: 1},
		{Lo: 0x25aa, Hi: 0x25ab, Stride: 1},
		{Lo: 0x25b6, Hi: 0x25b6, Stride: 1},
		{Lo: 0x25c0, Hi: 0x25c0, Stride: 1},
		{Lo: 0x25fb, Hi: 0x25fe, Stride: 1},
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2b05, Hi: 0x2b07, Stride: 1},
		{Lo: 0x2b1b, Hi: 0x2b1c, Stride: 1},
		{Lo: 0x2b50, Hi: 0x2b50, Stride: 1},
		{Lo: 0x2b55, Hi: 0x2b55, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303d, Hi: 0x303d, Stride: 1},
		{Lo: 0x3297, Hi: 0x3297, Stride: 1},
		{Lo: 0x3299, Hi: 0x3299, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1faff, Stride: 1},
		{Lo: 0x1fc00, Hi: 0x1fffd, Stride: 1},
	},
}

// isPresentationMark reports runes that only ever modify how an emoji renders.
func isPresentationMark(r rune) bool {
	return r == 0xfe0e || r == 0xfe0f || r == 0x20e3 || (r >= 0xe0020 && r <= 0xe007f)
}

// Normalize removes HTML-like tags and pictographic code points from s and
// trims surrounding whitespace. It never fails; the empty string maps to
// itself. Normalize is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	for {
		next := stripPictographs(tagPattern.ReplaceAllString(s, ""))
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

// stripPictographs drops pictographs together with the joiners that glue
// multi-codepoint emoji sequences. A zero width joiner outside an emoji
// sequence is kept since several scripts depend on it.
func stripPictographs(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inEmoji := false
	for _, r := range s {
		switch {
		case unicode.Is(pictographs, r):
			inEmoji = true
		case isPresentationMark(r):
		case r == 0x200d && inEmoji:
		default:
			inEmoji = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeLanguage canonicalizes a language tag: lowercase, trimmed, and with
// internal whitespace runs replaced by a single hyphen ("en US" -> "en-us").
func NormalizeLanguage(tag string) string {
	return strings.Join(strings.Fields(strings.ToLower(tag)), "-")
}

// Fold returns the case-insensitive matching key for s. Callers pass text that
// has already been through Normalize.
func Fold(s string) string {
	// A Caser keeps state between calls and must not be shared.
	return cases.Fold().String(norm.NFC.String(s))
}
