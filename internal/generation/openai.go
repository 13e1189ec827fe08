package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"flash-study/internal/config"
	"flash-study/internal/models"
)

// OpenAITimeout is the orchestrator budget for the chat-completion call.
const OpenAITimeout = 8 * time.Second

// OpenAIProvider sends the multiple-choice prompt to any OpenAI-compatible
// chat completion endpoint and parses the JSON array out of the reply.
type OpenAIProvider struct {
	apiKey  string
	model   string
	timeout time.Duration
	client  *openai.Client
}

func NewOpenAIProvider(apiKey, model, apiEndpoint string) *OpenAIProvider {
	p := &OpenAIProvider{apiKey: apiKey, model: model, timeout: OpenAITimeout}
	if !config.IsConfiguredKey(apiKey) {
		return p
	}
	cfg := openai.DefaultConfig(apiKey)
	if apiEndpoint != "" {
		cfg.BaseURL = apiEndpoint
	}
	p.client = openai.NewClientWithConfig(cfg)
	return p
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Enabled() bool { return p.client != nil && p.model != "" }

func (p *OpenAIProvider) Timeout() time.Duration { return p.timeout }

func (p *OpenAIProvider) Generate(ctx context.Context, text string) ([]models.Flashcard, error) {
	if !p.Enabled() {
		return nil, ErrProviderUnavailable
	}

	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert educator who writes concise multiple-choice flashcards. Reply with the JSON array only.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: multipleChoicePrompt + truncateRunes(text, cohereInputLimit),
			},
		},
		Temperature: 0.7,
		MaxTokens:   800,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &HTTPError{Provider: p.Name(), Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("request openai flashcards: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai returned no choices", ErrUnrecognizedShape)
	}

	cards, err := parseCardArray(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parse openai flashcards: %w", err)
	}
	return cards, nil
}

var _ Provider = (*OpenAIProvider)(nil)
