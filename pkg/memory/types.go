package memory

// Origin tags where a translated segment came from.
type Origin string

const (
	// OriginStored means the translation was reused from the memory.
	OriginStored Origin = "stored"
	// OriginFallback means the fallback translator produced the translation.
	OriginFallback Origin = "fallback"
)

// Action reports what an add request did to a segment.
type Action string

const (
	// ActionInserted means a new segment was stored.
	ActionInserted Action = "inserted"
	// ActionUpdated means an existing segment had its translation overwritten.
	ActionUpdated Action = "updated"
)

// AddRequest asks the engine to store a source text and its translation.
type AddRequest struct {
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	SourceText     string `json:"sourceText"`
	TranslatedText string `json:"translatedText"`
}

// SegmentOutcome is the result of storing one segment.
type SegmentOutcome struct {
	Segment    string `json:"segment"`
	Identifier string `json:"identifier"`
	Action     Action `json:"action"`
}

// AddResponse lists the stored segments in input order. Aligned is false when
// the source and target segment counts differed and both texts were stored
// as a single segment.
type AddResponse struct {
	Segments []SegmentOutcome `json:"segments"`
	Aligned  bool             `json:"aligned"`
}

// TranslateRequest asks the engine to translate a source text.
type TranslateRequest struct {
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	SourceText     string `json:"sourceText"`
}

// TranslatedSegment is the translation of one input segment. SourceText holds
// the stored source the translation was reused from and is empty for
// fallback results.
type TranslatedSegment struct {
	Segment        string  `json:"segment"`
	TranslatedText string  `json:"translatedText"`
	SourceText     string  `json:"sourceText,omitempty"`
	Similarity     float64 `json:"similarity"`
	Origin         Origin  `json:"origin"`
}

// TranslateResponse carries the joined translation and the per-segment detail
// in input order.
type TranslateResponse struct {
	TranslatedText string              `json:"translatedText"`
	Segments       []TranslatedSegment `json:"segments"`
}

// MatchKind classifies a lookup result.
type MatchKind int

const (
	// Miss means nothing reusable was found.
	Miss MatchKind = iota
	// ExactHit means a stored segment matched the input case-insensitively.
	ExactHit
	// FuzzyHit means the best fuzzy candidate scored at or above the threshold.
	FuzzyHit
)

func (k MatchKind) String() string {
	switch k {
	case ExactHit:
		return "exact"
	case FuzzyHit:
		return "fuzzy"
	default:
		return "miss"
	}
}

// MatchResult is the outcome of looking up one segment. It is never stored.
type MatchResult struct {
	Kind        MatchKind
	Identifier  string
	Translation string
	Source      string
	Score       float64
}
