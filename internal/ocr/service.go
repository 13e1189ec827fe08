package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"flash-study/internal/config"
	"flash-study/internal/logger"
)

// Service reads text out of images with a vision chat model and transcribes
// audio with a speech-to-text model.
type Service struct {
	vision      *openai.Client
	visionModel string

	audio      *openai.Client
	audioModel string

	maxRetries int
	retryDelay time.Duration
	log        *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		visionModel: cfg.VisionModel,
		audioModel:  cfg.TranscribeModel,
		maxRetries:  2,
		retryDelay:  2 * time.Second,
		log:         log.With("service", "OCR"),
	}
	if s.audioModel == "" {
		s.audioModel = openai.Whisper1
	}
	if config.IsConfiguredKey(cfg.VisionKey) && cfg.VisionModel != "" {
		s.vision = newClient(cfg.VisionKey, cfg.VisionBaseURL)
	}
	if config.IsConfiguredKey(cfg.TranscribeKey) {
		s.audio = newClient(cfg.TranscribeKey, cfg.TranscribeBaseURL)
	}
	return s
}

func newClient(key, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

func (s *Service) CanReadImages() bool { return s != nil && s.vision != nil }

func (s *Service) CanTranscribe() bool { return s != nil && s.audio != nil }

// ReadImage returns the text visible in an image given as a data URI or URL.
func (s *Service) ReadImage(ctx context.Context, imageURI string) (string, error) {
	if !s.CanReadImages() {
		return "", ErrNotConfigured
	}

	req := openai.ChatCompletionRequest{
		Model: s.visionModel,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: imageURI, Detail: openai.ImageURLDetailAuto},
				},
				{Type: openai.ChatMessagePartTypeText, Text: textPrompt},
			},
		}},
		Temperature: 0.2,
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.log.Warn("retrying vision request", "attempt", attempt+1, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * s.retryDelay):
			}
		}

		resp, err := s.vision.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("vision request: %w", err)
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
				return "", lastErr
			}
			continue
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			lastErr = fmt.Errorf("vision api returned empty content (attempt %d/%d)", attempt+1, s.maxRetries+1)
			continue
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}
	return "", fmt.Errorf("vision api failed after %d attempts: %w", s.maxRetries+1, lastErr)
}

// ReadImages reads several page images in order and joins their text.
func (s *Service) ReadImages(ctx context.Context, imageURIs []string, progress ProgressFunc) (string, error) {
	parts := make([]string, 0, len(imageURIs))
	for i, uri := range imageURIs {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := s.ReadImage(ctx, uri)
		if err != nil {
			return "", fmt.Errorf("read page %d of %d: %w", i+1, len(imageURIs), err)
		}
		parts = append(parts, text)
		if progress != nil {
			progress(i+1, len(imageURIs))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// Transcribe converts the speech in an audio file to text.
func (s *Service) Transcribe(ctx context.Context, path string) (string, error) {
	if !s.CanTranscribe() {
		return "", ErrNotConfigured
	}
	resp, err := s.audio.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.audioModel,
		FilePath: path,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", path, err)
	}
	return strings.TrimSpace(resp.Text), nil
}
