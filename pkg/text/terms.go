package text

import (
	"strings"
	"sync"
	"unicode"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

var (
	morphOnce sync.Once
	morph     *tokenizer.Tokenizer
	morphErr  error
)

// morphology loads the IPA dictionary on first use. Text without Han or Kana
// never pays for it.
func morphology() (*tokenizer.Tokenizer, error) {
	morphOnce.Do(func() {
		morph, morphErr = tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	})
	return morph, morphErr
}

// needsMorphology reports whether s contains scripts written without spaces
// between words.
func needsMorphology(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return true
		}
	}
	return false
}

func isTermRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}

// Terms splits s into distinct case-folded search terms in order of first
// appearance. Punctuation never forms a term. Han and Kana text is split with
// a morphological analyzer; everything else splits on non-word runes.
func Terms(s string) []string {
	s = Fold(s)
	var raw []string
	if needsMorphology(s) {
		raw = morphTerms(s)
	} else {
		raw = strings.FieldsFunc(s, func(r rune) bool { return !isTermRune(r) })
	}

	seen := make(map[string]struct{}, len(raw))
	terms := raw[:0]
	for _, t := range raw {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}

func morphTerms(s string) []string {
	t, err := morphology()
	if err != nil {
		// Without a dictionary, fall back to the whitespace split.
		return strings.FieldsFunc(s, func(r rune) bool { return !isTermRune(r) })
	}
	var out []string
	for _, tok := range t.Tokenize(s) {
		if tok.Class == tokenizer.DUMMY {
			continue
		}
		surface := strings.TrimSpace(tok.Surface)
		if strings.IndexFunc(surface, isTermRune) < 0 {
			continue
		}
		out = append(out, surface)
	}
	return out
}
