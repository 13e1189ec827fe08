package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/core"
	"github.com/cohere-ai/cohere-go/v2/option"

	"flash-study/internal/config"
	"flash-study/internal/models"
)

const (
	// CohereTimeout is the orchestrator budget for the Cohere call.
	CohereTimeout = 8 * time.Second

	cohereInputLimit = 800
	cohereModel      = "command"
)

// CohereProvider asks a single deterministic-prompt model for a JSON array
// of multiple-choice cards.
type CohereProvider struct {
	apiKey  string
	timeout time.Duration
	client  *cohereclient.Client
}

// NewCohereProvider builds the provider. baseURL overrides the API root
// (the generate path is appended by the client); empty keeps the default.
func NewCohereProvider(apiKey, baseURL string, httpClient *http.Client) *CohereProvider {
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	opts := []option.RequestOption{
		option.WithToken(apiKey),
		option.WithHTTPClient(httpClient),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &CohereProvider{
		apiKey:  apiKey,
		timeout: CohereTimeout,
		client:  cohereclient.NewClient(opts...),
	}
}

func (p *CohereProvider) Name() string { return "cohere" }

func (p *CohereProvider) Enabled() bool { return config.IsConfiguredKey(p.apiKey) }

func (p *CohereProvider) Timeout() time.Duration { return p.timeout }

func (p *CohereProvider) Generate(ctx context.Context, text string) ([]models.Flashcard, error) {
	if !p.Enabled() {
		return nil, ErrProviderUnavailable
	}

	resp, err := p.client.Generate(ctx, &cohere.GenerateRequest{
		Prompt:        multipleChoicePrompt + truncateRunes(text, cohereInputLimit),
		Model:         cohere.String(cohereModel),
		MaxTokens:     cohere.Int(500),
		Temperature:   cohere.Float64(0.7),
		StopSequences: []string{"\n\n"},
	})
	if err != nil {
		var apiErr *core.APIError
		if errors.As(err, &apiErr) {
			return nil, &HTTPError{Provider: p.Name(), Status: apiErr.StatusCode, Body: maxBodyPreview([]byte(err.Error()))}
		}
		return nil, fmt.Errorf("cohere generate: %w", err)
	}
	if resp == nil || len(resp.Generations) == 0 || resp.Generations[0] == nil {
		return nil, fmt.Errorf("%w: no generations", ErrUnrecognizedShape)
	}

	cards, err := parseCardArray(resp.Generations[0].Text)
	if err != nil {
		return nil, fmt.Errorf("parse cohere flashcards: %w", err)
	}
	return cards, nil
}

var _ Provider = (*CohereProvider)(nil)
