package text

import (
	"strings"
	"unicode"
)

type bigram [2]rune

// Similarity returns the Dice coefficient of the character bigrams of a and b,
// scaled to [0,100]. Whitespace is ignored and case is folded. Identical
// non-empty inputs score 100; otherwise an input shorter than two characters
// scores 0. The result is symmetric and deterministic.
func Similarity(a, b string) float64 {
	ra := []rune(compact(a))
	rb := []rune(compact(b))
	if len(ra) > 0 && string(ra) == string(rb) {
		return 100
	}
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	counts := make(map[bigram]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		counts[bigram{ra[i], ra[i+1]}]++
	}
	shared := 0
	for i := 0; i < len(rb)-1; i++ {
		bg := bigram{rb[i], rb[i+1]}
		if counts[bg] > 0 {
			counts[bg]--
			shared++
		}
	}
	return 200 * float64(shared) / float64(len(ra)-1+len(rb)-1)
}

func compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, Fold(s))
}
