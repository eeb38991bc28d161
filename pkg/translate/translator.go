package translate

import (
	"context"
	"strings"
)

// Translator is a machine translation backend used when the memory has no
// reusable match.
type Translator interface {
	// Translate translates text from sourceLang to targetLang. Language tags
	// may be regional ("fr-ca"); implementations map them to what the backend
	// accepts.
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)

	// CheckHealth verifies that the backend is ready.
	CheckHealth(ctx context.Context) error

	// SupportedLanguages returns the backend's language codes.
	SupportedLanguages(ctx context.Context) ([]string, error)
}

// LanguageMapper converts normalized language tags to backend codes.
type LanguageMapper struct {
	overrides map[string]string
}

// NewLanguageMapper creates a mapper. overrides maps full tags to backend
// codes before the default primary-subtag rule applies.
func NewLanguageMapper(overrides map[string]string) *LanguageMapper {
	return &LanguageMapper{overrides: overrides}
}

// ToBackendCode converts a tag to a backend code.
// Examples:
//   - "EN" -> "en"
//   - "fr-ca" -> "fr"
//   - "zh_Hant" -> "zh", unless overridden
func (lm *LanguageMapper) ToBackendCode(tag string) string {
	lang := strings.ToLower(strings.TrimSpace(tag))
	lang = strings.ReplaceAll(lang, "_", "-")
	if lm != nil {
		if code, ok := lm.overrides[lang]; ok {
			return code
		}
	}
	if idx := strings.IndexByte(lang, '-'); idx >= 0 {
		lang = lang[:idx]
	}
	return lang
}
