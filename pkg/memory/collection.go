package memory

import (
	"strings"

	"github.com/dasmlab/tmengine/pkg/store"
	"github.com/dasmlab/tmengine/pkg/text"
)

// Field names of a segment document.
const (
	FieldSourceLanguage = "source_language"
	FieldTargetLanguage = "target_language"
	FieldSourceKey      = "source_key"
	FieldSourceText     = "source_text"
	FieldTranslatedText = "translated_text"
)

// SegmentSchema is the fixed schema of every translations collection. The
// source key holds the case-folded source text for exact matching.
var SegmentSchema = store.Schema{
	ExactField:    FieldSourceKey,
	FuzzyField:    FieldSourceText,
	KeywordFields: []string{FieldSourceLanguage, FieldTargetLanguage},
	StoredFields:  []string{FieldTranslatedText},
}

const collectionPrefix = "translations_"

// CollectionName returns the collection holding segments translated into
// targetLang. Runes outside [a-z0-9] become underscores.
func CollectionName(targetLang string) string {
	var b strings.Builder
	b.WriteString(collectionPrefix)
	for _, r := range text.NormalizeLanguage(targetLang) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SourceKey is the exact-match key of a source segment.
func SourceKey(segment string) string {
	return text.Fold(segment)
}

func segmentDocument(sourceLang, targetLang, source, translation string) store.Document {
	return store.Document{
		FieldSourceLanguage: sourceLang,
		FieldTargetLanguage: targetLang,
		FieldSourceKey:      SourceKey(source),
		FieldSourceText:     source,
		FieldTranslatedText: translation,
	}
}
