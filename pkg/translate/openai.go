package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.GPT4oMini

// OpenAIClient implements Translator with a chat completion model.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *logrus.Logger
}

// NewOpenAIClient creates an OpenAI translator. baseURL overrides the API
// endpoint for compatible servers and may be empty.
func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration, logger *logrus.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key not found")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// languageName renders a tag as an English language name for the prompt,
// falling back to the tag itself.
func languageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Tags().Name(t); name != "" {
		return name
	}
	return tag
}

// Translate asks the model for a translation of one segment.
func (c *OpenAIClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf("Translate the user's text from %s to %s. Respond with only the translation, nothing else.",
					languageName(sourceLang), languageName(targetLang)),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		Temperature: 0.2,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"model":       c.model,
			"source_lang": sourceLang,
			"target_lang": targetLang,
		}).Error("OpenAI translation failed")
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no translation returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CheckHealth lists models to verify the key and endpoint.
func (c *OpenAIClient) CheckHealth(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	return nil
}

// SupportedLanguages returns nil: the model accepts any language.
func (c *OpenAIClient) SupportedLanguages(ctx context.Context) ([]string, error) {
	return nil, nil
}
