package translate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultLibreTranslateURL is the default base URL for LibreTranslate API.
	DefaultLibreTranslateURL = "http://localhost:5000"
	// DefaultLibreTranslateTimeout bounds each segment translation.
	DefaultLibreTranslateTimeout = 30 * time.Second
)

// LibreTranslateClient implements Translator using a LibreTranslate server.
type LibreTranslateClient struct {
	api    apiClient
	apiKey string
	mapper *LanguageMapper
}

// NewLibreTranslateClient creates a new LibreTranslate client. apiKey may be
// empty for servers that do not require one.
func NewLibreTranslateClient(baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *LibreTranslateClient {
	if baseURL == "" {
		baseURL = DefaultLibreTranslateURL
	}
	if timeout <= 0 {
		timeout = DefaultLibreTranslateTimeout
	}
	return &LibreTranslateClient{
		api:    newAPIClient(EngineLibreTranslate, baseURL, timeout, logger),
		apiKey: apiKey,
		// LibreTranslate names traditional Chinese "zt".
		mapper: NewLanguageMapper(map[string]string{"zh-hant": "zt", "zh-tw": "zt"}),
	}
}

type libreTranslateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreTranslateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

type libreLanguage struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Translate translates one segment.
func (c *LibreTranslateClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	req := libreTranslateRequest{
		Q:      text,
		Source: c.mapper.ToBackendCode(sourceLang),
		Target: c.mapper.ToBackendCode(targetLang),
		Format: "text",
		APIKey: c.apiKey,
	}
	var resp libreTranslateResponse
	if err := c.api.do(ctx, http.MethodPost, "/translate", req, &resp); err != nil {
		c.api.logger.WithError(err).WithFields(logrus.Fields{
			"source_lang": req.Source,
			"target_lang": req.Target,
		}).Error("LibreTranslate translation failed")
		return "", err
	}
	if resp.Error != "" {
		return "", errors.New("libretranslate: " + resp.Error)
	}
	return resp.TranslatedText, nil
}

// CheckHealth queries the languages endpoint.
func (c *LibreTranslateClient) CheckHealth(ctx context.Context) error {
	_, err := c.SupportedLanguages(ctx)
	return err
}

// SupportedLanguages returns the codes the server has models for.
func (c *LibreTranslateClient) SupportedLanguages(ctx context.Context) ([]string, error) {
	var languages []libreLanguage
	if err := c.api.do(ctx, http.MethodGet, "/languages", nil, &languages); err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(languages))
	for _, lang := range languages {
		codes = append(codes, lang.Code)
	}
	return codes, nil
}
