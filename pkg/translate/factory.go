package translate

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// EngineType represents the type of translation engine to use.
type EngineType string

const (
	// EngineLibreTranslate uses LibreTranslate as the backend.
	EngineLibreTranslate EngineType = "libretranslate"
	// EngineArgos uses Argos Translate as the backend.
	EngineArgos EngineType = "argos"
	// EngineOpenAI uses an OpenAI chat model as the backend.
	EngineOpenAI EngineType = "openai"
	// EngineNone disables fallback translation.
	EngineNone EngineType = "none"
)

// Config holds configuration for creating a Translator instance.
type Config struct {
	// Engine specifies which translation engine to use.
	Engine EngineType
	// BaseURL is the base URL for the translation engine API.
	BaseURL string
	// APIKey authenticates against LibreTranslate or OpenAI.
	APIKey string
	// Model is the OpenAI model name.
	Model string
	// Timeout bounds each backend call.
	Timeout time.Duration
	// Breaker configures the circuit breaker around the backend.
	Breaker BreakerSettings
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

// NewTranslator creates the configured backend wrapped with metrics and a
// circuit breaker. The "none" engine is returned unwrapped.
func NewTranslator(cfg Config) (Translator, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	cfg.Logger.WithFields(logrus.Fields{
		"engine":   cfg.Engine,
		"base_url": cfg.BaseURL,
	}).Info("Creating translator instance")

	var backend Translator
	switch cfg.Engine {
	case EngineLibreTranslate:
		backend = NewLibreTranslateClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, cfg.Logger)
	case EngineArgos:
		backend = NewArgosClient(cfg.BaseURL, cfg.Timeout, cfg.Logger)
	case EngineOpenAI:
		client, err := NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout, cfg.Logger)
		if err != nil {
			return nil, err
		}
		backend = client
	case EngineNone:
		return NoneTranslator{}, nil
	default:
		cfg.Logger.WithFields(logrus.Fields{
			"engine": cfg.Engine,
		}).Error("Unknown translation engine")
		return nil, fmt.Errorf("unknown translation engine: %s", cfg.Engine)
	}

	return NewBreakerTranslator(NewInstrumentedTranslator(backend, cfg.Engine), cfg.Engine, cfg.Breaker, cfg.Logger), nil
}

// ParseEngineType parses a string into an EngineType, ignoring case.
func ParseEngineType(s string) (EngineType, error) {
	switch e := EngineType(strings.ToLower(strings.TrimSpace(s))); e {
	case EngineLibreTranslate, EngineArgos, EngineOpenAI, EngineNone:
		return e, nil
	default:
		return "", fmt.Errorf("unknown engine type: %s (supported: libretranslate, argos, openai, none)", s)
	}
}
