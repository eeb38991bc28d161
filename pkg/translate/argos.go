package translate

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultArgosURL is the default base URL for an Argos Translate service.
	DefaultArgosURL = "http://127.0.0.1:5000"
	// DefaultArgosTimeout is the default timeout for HTTP requests.
	DefaultArgosTimeout = 30 * time.Second
)

// argosLanguages is what a stock Argos installation ships packages for. The
// service has no languages endpoint.
var argosLanguages = []string{
	"en", "es", "fr", "de", "it", "pt", "ru", "zh", "ja", "ko",
	"ar", "hi", "tr", "pl", "nl", "sv", "da", "fi", "no", "cs",
	"ro", "hu", "bg", "hr", "sk", "sl", "et", "lv", "lt", "el",
}

// ArgosClient implements Translator against Argos Translate wrapped in an
// HTTP service.
type ArgosClient struct {
	api    apiClient
	mapper *LanguageMapper
}

// NewArgosClient creates a new Argos Translate client.
func NewArgosClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *ArgosClient {
	if baseURL == "" {
		baseURL = DefaultArgosURL
	}
	if timeout <= 0 {
		timeout = DefaultArgosTimeout
	}
	return &ArgosClient{
		api:    newAPIClient(EngineArgos, baseURL, timeout, logger),
		mapper: NewLanguageMapper(nil),
	}
}

type argosTranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type argosTranslateResponse struct {
	TranslatedText string `json:"translated_text"`
}

// Translate translates one segment.
func (c *ArgosClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	req := argosTranslateRequest{
		Text:       text,
		SourceLang: c.mapper.ToBackendCode(sourceLang),
		TargetLang: c.mapper.ToBackendCode(targetLang),
	}
	var resp argosTranslateResponse
	if err := c.api.do(ctx, http.MethodPost, "/translate", req, &resp); err != nil {
		c.api.logger.WithError(err).WithFields(logrus.Fields{
			"source_lang": req.SourceLang,
			"target_lang": req.TargetLang,
		}).Error("Argos translation failed")
		return "", err
	}
	return resp.TranslatedText, nil
}

// CheckHealth calls the service's /health endpoint.
func (c *ArgosClient) CheckHealth(ctx context.Context) error {
	return c.api.do(ctx, http.MethodGet, "/health", nil, nil)
}

// SupportedLanguages returns the stock Argos language list.
func (c *ArgosClient) SupportedLanguages(ctx context.Context) ([]string, error) {
	return append([]string(nil), argosLanguages...), nil
}
