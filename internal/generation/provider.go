package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"flash-study/internal/models"
)

var (
	// ErrProviderUnavailable is returned when a provider has no usable credential.
	ErrProviderUnavailable = errors.New("provider is not configured")
	// ErrNoJSONArray means the response text held no JSON array.
	ErrNoJSONArray = errors.New("no json array found in response")
	// ErrUnrecognizedShape means a response decoded but matched no known variant.
	ErrUnrecognizedShape = errors.New("unrecognized response shape")
	// ErrInsufficientYield means fewer usable cards were produced than required.
	ErrInsufficientYield = errors.New("insufficient flashcards produced")
)

// Provider wraps one remote text-generation service.
type Provider interface {
	Name() string
	// Enabled reports whether the provider has a usable credential.
	Enabled() bool
	// Timeout is the overall budget the orchestrator grants this provider.
	Timeout() time.Duration
	Generate(ctx context.Context, text string) ([]models.Flashcard, error)
}

// HTTPError reports a non-success response from a provider.
type HTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s api error: status=%d, body=%s", e.Provider, e.Status, e.Body)
}

const multipleChoicePrompt = `Generate 5 multiple-choice flashcards from the following text. Format as JSON array: [{"question": "Question?", "options": ["A. Option1", "B. Option2", "C. Option3", "D. Option4"], "answer": "Correct Answer"}]. Text: `

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func maxBodyPreview(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
