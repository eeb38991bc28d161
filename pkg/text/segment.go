package text

import (
	"iter"
	"slices"
	"strings"
	"unicode"
)

// nonSegmenting lists the primary language subtags whose scripts do not split
// reliably on punctuation. Text in these languages is handled as one segment.
var nonSegmenting = map[string]struct{}{
	"ja": {}, // Japanese
	"zh": {}, // Chinese
	"th": {}, // Thai
	"lo": {}, // Lao
	"km": {}, // Khmer
	"my": {}, // Burmese
	"bo": {}, // Tibetan
	"dz": {}, // Dzongkha
}

// NonSegmenting reports whether text in lang bypasses sentence segmentation.
// lang is expected in NormalizeLanguage form; only the primary subtag counts.
func NonSegmenting(lang string) bool {
	if idx := strings.IndexAny(lang, "-_"); idx >= 0 {
		lang = lang[:idx]
	}
	_, ok := nonSegmenting[lang]
	return ok
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

// isWideTerminator covers full-width punctuation, which ends a sentence even
// when no space follows.
func isWideTerminator(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '”', '’', '」', '』', '）':
		return true
	}
	return false
}

// Segments yields the sentence-like units of text from left to right. Every
// yielded value is trimmed and non-empty. A sentence ends at a line break or
// at terminal punctuation (with any trailing quotes or brackets) followed by
// whitespace or the end of the text, so "3.5" and "example.com" stay whole.
// The returned sequence can be ranged over any number of times.
func Segments(s string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rs := []rune(s)
		emit := func(seg []rune) bool {
			t := strings.TrimSpace(string(seg))
			if t == "" {
				return true
			}
			return yield(t)
		}

		start := 0
		for i := 0; i < len(rs); i++ {
			r := rs[i]
			if r == '\n' || r == '\r' {
				if !emit(rs[start:i]) {
					return
				}
				start = i + 1
				continue
			}
			if !isTerminator(r) {
				continue
			}
			j := i + 1
			for j < len(rs) && (isTerminator(rs[j]) || isCloser(rs[j])) {
				j++
			}
			if j < len(rs) && !unicode.IsSpace(rs[j]) && !isWideTerminator(rs[j-1]) && !isWideTerminator(r) {
				i = j - 1
				continue
			}
			if !emit(rs[start:j]) {
				return
			}
			start = j
			i = j - 1
		}
		emit(rs[start:])
	}
}

// Split segments s for lang. Non-segmenting languages get the whole text back
// as a single segment. Empty input yields no segments.
func Split(lang, s string) []string {
	if NonSegmenting(lang) {
		if t := strings.TrimSpace(s); t != "" {
			return []string{t}
		}
		return nil
	}
	return slices.Collect(Segments(s))
}

// Pair is one aligned source/target segment.
type Pair struct {
	Source string
	Target string
}

// Align segments source and target independently and pairs them by position.
// When the two sides produce a different number of segments nothing is paired
// partially: the whole source and the whole target become one pair, and the
// second return value is false.
func Align(sourceLang, targetLang, source, target string) ([]Pair, bool) {
	src := Split(sourceLang, source)
	tgt := Split(targetLang, target)
	if len(src) == 0 || len(src) != len(tgt) {
		return []Pair{{Source: strings.TrimSpace(source), Target: strings.TrimSpace(target)}}, false
	}
	pairs := make([]Pair, len(src))
	for i := range src {
		pairs[i] = Pair{Source: src[i], Target: tgt[i]}
	}
	return pairs, true
}
