package memory

import (
	"github.com/dasmlab/tmengine/pkg/store"
	"github.com/dasmlab/tmengine/pkg/text"
)

// ReuseThreshold is the lowest similarity at which a fuzzy candidate is reused.
const ReuseThreshold = 50.0

// Policy decides whether a stored candidate can stand in for a translation.
type Policy struct {
	// Threshold is the minimum similarity for reuse.
	Threshold float64
	// Score compares the input segment with a stored source. Defaults to
	// text.Similarity.
	Score func(a, b string) float64
}

// DefaultPolicy reuses candidates scoring at least ReuseThreshold.
func DefaultPolicy() Policy {
	return Policy{Threshold: ReuseThreshold, Score: text.Similarity}
}

// Reuse reports whether a candidate with the given score is reused.
func (p Policy) Reuse(score float64) bool {
	return score >= p.Threshold
}

// Match turns a lookup hit into a MatchResult. Exact hits are always reused.
// Fuzzy hits are scored against the stored source and become a Miss below
// the threshold.
func (p Policy) Match(segment string, hit *store.Hit, exact bool) MatchResult {
	if hit == nil {
		return MatchResult{Kind: Miss}
	}
	score := p.score(segment, hit.Fields[FieldSourceText])
	res := MatchResult{
		Identifier:  hit.ID,
		Translation: hit.Fields[FieldTranslatedText],
		Source:      hit.Fields[FieldSourceText],
		Score:       score,
	}
	switch {
	case exact:
		res.Kind = ExactHit
	case p.Reuse(score):
		res.Kind = FuzzyHit
	default:
		res.Kind = Miss
	}
	return res
}

func (p Policy) score(a, b string) float64 {
	if p.Score == nil {
		return text.Similarity(a, b)
	}
	return p.Score(a, b)
}
