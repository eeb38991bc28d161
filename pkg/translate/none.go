package translate

import (
	"context"
	"errors"
)

// ErrNoEngine is returned by the "none" engine for every translation.
var ErrNoEngine = errors.New("no fallback translation engine configured")

// NoneTranslator serves deployments that rely on the memory alone. Every
// miss surfaces as a fallback failure.
type NoneTranslator struct{}

func (NoneTranslator) Translate(context.Context, string, string, string) (string, error) {
	return "", ErrNoEngine
}

func (NoneTranslator) CheckHealth(context.Context) error { return nil }

func (NoneTranslator) SupportedLanguages(context.Context) ([]string, error) { return nil, nil }
