package store

import (
	"strings"
	"unicode/utf8"

	"github.com/dasmlab/tmengine/pkg/text"
)

// termSeparator joins query terms into a single SQL argument.
const termSeparator = "\x1f"

// SQL names of the match functions registered on every connection.
var clauseFunctions = map[MatchKind]string{
	MatchPhrase:   "tm_phrase",
	MatchAllTerms: "tm_all_terms",
	MatchFuzzy:    "tm_fuzzy",
}

// phraseScore is non-zero when phrase occurs in field. Shorter fields that
// contain the phrase score higher, up to 1 for an exact match.
func phraseScore(field, phrase string) float64 {
	if phrase == "" {
		return 0
	}
	folded := text.Fold(field)
	if !strings.Contains(folded, phrase) {
		return 0
	}
	return float64(utf8.RuneCountInString(phrase)) / float64(utf8.RuneCountInString(folded))
}

// allTermsScore is non-zero when every query term is a term of field. The score
// is the share of the field's terms covered by the query.
func allTermsScore(field, joined string) float64 {
	terms := splitTerms(joined)
	if len(terms) == 0 {
		return 0
	}
	fieldTerms := text.Terms(field)
	have := make(map[string]struct{}, len(fieldTerms))
	for _, t := range fieldTerms {
		have[t] = struct{}{}
	}
	for _, t := range terms {
		if _, ok := have[t]; !ok {
			return 0
		}
	}
	return coverage(len(terms), len(terms), len(fieldTerms))
}

// fuzzyScore counts query terms that have a field term within the allowed
// edit distance and normalizes by the larger term count.
func fuzzyScore(field, joined string) float64 {
	terms := splitTerms(joined)
	if len(terms) == 0 {
		return 0
	}
	fieldTerms := text.Terms(field)
	matched := 0
	for _, t := range terms {
		limit := fuzziness(t)
		for _, ft := range fieldTerms {
			if withinDistance(t, ft, limit) {
				matched++
				break
			}
		}
	}
	return coverage(matched, len(terms), len(fieldTerms))
}

func coverage(matched, queryTerms, fieldTerms int) float64 {
	if matched == 0 {
		return 0
	}
	return float64(matched) / float64(max(queryTerms, fieldTerms))
}

func splitTerms(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, termSeparator)
}

// fuzziness mirrors the usual AUTO setting of search engines: short terms must
// match exactly, medium terms allow one edit and long terms two.
func fuzziness(term string) int {
	switch n := utf8.RuneCountInString(term); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// withinDistance reports whether the Levenshtein distance between a and b is
// at most limit.
func withinDistance(a, b string, limit int) bool {
	if a == b {
		return true
	}
	if limit == 0 {
		return false
	}
	ra, rb := []rune(a), []rune(b)
	if abs(len(ra)-len(rb)) > limit {
		return false
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, cur[j])
		}
		if rowMin > limit {
			return false
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)] <= limit
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
