package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"flash-study/internal/config"
	"flash-study/internal/models"
)

const (
	// HuggingFaceTimeout is the orchestrator budget for the whole model race.
	HuggingFaceTimeout = 10 * time.Second
	// PerModelTimeout bounds each model request inside the race.
	PerModelTimeout = 5 * time.Second

	huggingFaceInputLimit = 400
	minModelYield         = 3
	maxModelCards         = 5
)

// DefaultHuggingFaceModels are raced in parallel; the order only affects logging.
var DefaultHuggingFaceModels = []string{
	"google/flan-t5-base",
	"facebook/blenderbot-400M-distill",
	"microsoft/DialoGPT-medium",
}

// HuggingFaceProvider races several hosted instruction-following models and
// keeps the first one, by completion, that yields enough question/answer pairs.
type HuggingFaceProvider struct {
	apiKey          string
	baseURL         string
	models          []string
	timeout         time.Duration
	perModelTimeout time.Duration
	client          *http.Client
}

func NewHuggingFaceProvider(apiKey, baseURL string, client *http.Client) *HuggingFaceProvider {
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co/models/"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if client == nil {
		client = defaultHTTPClient()
	}
	return &HuggingFaceProvider{
		apiKey:          apiKey,
		baseURL:         baseURL,
		models:          append([]string(nil), DefaultHuggingFaceModels...),
		timeout:         HuggingFaceTimeout,
		perModelTimeout: PerModelTimeout,
		client:          client,
	}
}

type huggingFaceRequest struct {
	Inputs     string                `json:"inputs"`
	Parameters huggingFaceParameters `json:"parameters"`
}

type huggingFaceParameters struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	DoSample     bool    `json:"do_sample"`
}

func (p *HuggingFaceProvider) Name() string { return "huggingface" }

func (p *HuggingFaceProvider) Enabled() bool { return config.IsConfiguredKey(p.apiKey) }

func (p *HuggingFaceProvider) Timeout() time.Duration { return p.timeout }

type modelOutcome struct {
	model string
	cards []models.Flashcard
	err   error
}

func (p *HuggingFaceProvider) Generate(ctx context.Context, text string) ([]models.Flashcard, error) {
	if !p.Enabled() {
		return nil, ErrProviderUnavailable
	}
	if len(p.models) == 0 {
		return nil, fmt.Errorf("%w: no models configured", ErrInsufficientYield)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	input := fmt.Sprintf("Generate 5 flashcards from: %s\nFormat: Question? Answer", truncateRunes(text, huggingFaceInputLimit))

	// Buffered so losing models never block after the winner returns.
	outcomes := make(chan modelOutcome, len(p.models))
	for _, model := range p.models {
		go func() {
			mctx, mcancel := context.WithTimeout(ctx, p.perModelTimeout)
			defer mcancel()
			cards, err := p.generateWithModel(mctx, model, input)
			outcomes <- modelOutcome{model: model, cards: cards, err: err}
		}()
	}

	var errs []error
	for range p.models {
		select {
		case out := <-outcomes:
			if out.err == nil {
				return out.cards, nil
			}
			errs = append(errs, fmt.Errorf("%s: %w", out.model, out.err))
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("no model produced sufficient flashcards: %w", errors.Join(errs...))
}

func (p *HuggingFaceProvider) generateWithModel(ctx context.Context, model, input string) ([]models.Flashcard, error) {
	reqBody, err := json.Marshal(huggingFaceRequest{
		Inputs: input,
		Parameters: huggingFaceParameters{
			MaxNewTokens: 150,
			Temperature:  0.7,
			DoSample:     true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+model, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Provider: p.Name(), Status: resp.StatusCode, Body: maxBodyPreview(body)}
	}

	generated, err := decodeGeneratedText(body)
	if err != nil {
		return nil, err
	}

	cards := extractLinePairs(generated, maxModelCards)
	if len(cards) < minModelYield {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientYield, len(cards), minModelYield)
	}
	return cards, nil
}

var _ Provider = (*HuggingFaceProvider)(nil)
