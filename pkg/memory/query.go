package memory

import (
	"github.com/dasmlab/tmengine/pkg/store"
	"github.com/dasmlab/tmengine/pkg/text"
)

// Boosts of the fuzzy lookup clauses, highest first.
const (
	phraseBoost   = 3.0
	allTermsBoost = 2.0
	fuzzyBoost    = 1.0
)

func pairFilters(sourceLang, targetLang string) map[string]string {
	return map[string]string{
		FieldSourceLanguage: sourceLang,
		FieldTargetLanguage: targetLang,
	}
}

// exactQuery matches the stored segment whose folded source equals segment's.
func exactQuery(sourceLang, targetLang, segment string) store.ExactQuery {
	filters := pairFilters(sourceLang, targetLang)
	filters[FieldSourceKey] = SourceKey(segment)
	return store.ExactQuery{Filters: filters}
}

// fuzzyQuery ranks the segments of a language pair by a disjunction of phrase,
// all-terms and edit-distance matches on the source text.
func fuzzyQuery(sourceLang, targetLang, segment string) store.FuzzyQuery {
	return store.FuzzyQuery{
		Filters: pairFilters(sourceLang, targetLang),
		Field:   FieldSourceText,
		Text:    segment,
		Terms:   text.Terms(segment),
		Should: []store.Clause{
			{Kind: store.MatchPhrase, Boost: phraseBoost},
			{Kind: store.MatchAllTerms, Boost: allTermsBoost},
			{Kind: store.MatchFuzzy, Boost: fuzzyBoost},
		},
		MinimumShouldMatch: 1,
	}
}
