package services

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"flash-study/internal/models"
)

// ProgressCallback is called during document processing to report progress
type ProgressCallback func(step, message string, current, total int)

// Generator produces flashcards from text and never fails.
type Generator interface {
	Generate(ctx context.Context, text string) []models.Flashcard
}

// IngestOptions controls what happens after generation. A study set is saved
// only when both UserID and SaveTitle are set.
type IngestOptions struct {
	UserID    string
	SaveTitle string
}

type IngestionResult struct {
	Text       string             `json:"text"`
	Characters int                `json:"characters"`
	Flashcards []models.Flashcard `json:"flashcards"`
	StudySet   *models.StudySet   `json:"studySet,omitempty"`
}

// IngestionService coordinates text extraction, generation and persistence
// for an uploaded document.
type IngestionService struct {
	extraction *ExtractionService
	generator  Generator
	cards      *FlashcardService
	stats      *StatsService
}

func NewIngestionService(
	extraction *ExtractionService,
	generator Generator,
	cards *FlashcardService,
	stats *StatsService,
) *IngestionService {
	return &IngestionService{
		extraction: extraction,
		generator:  generator,
		cards:      cards,
		stats:      stats,
	}
}

func (s *IngestionService) ProcessDocument(ctx context.Context, doc *models.Document, opts IngestOptions) (*IngestionResult, error) {
	return s.ProcessDocumentWithProgress(ctx, doc, opts, nil)
}

func (s *IngestionService) ProcessDocumentWithProgress(ctx context.Context, doc *models.Document, opts IngestOptions, progress ProgressCallback) (*IngestionResult, error) {
	report := func(step, message string, current int) {
		if progress != nil {
			progress(step, message, current, 100)
		}
	}

	report("extract", fmt.Sprintf("Extracting text from %s", doc.OriginalName), 5)
	text, err := s.extraction.Extract(ctx, doc.StoredPath, doc.Kind)
	if err != nil {
		return nil, err
	}

	report("generate", "Generating flashcards", 40)
	cards := s.generator.Generate(ctx, text)
	result := &IngestionResult{
		Text:       text,
		Characters: utf8.RuneCountInString(text),
		Flashcards: cards,
	}

	if opts.UserID != "" && opts.SaveTitle != "" {
		report("save", "Saving flashcards to library", 80)
		set, err := s.cards.SaveGenerated(ctx, opts.UserID, opts.SaveTitle, cards)
		if err != nil {
			return result, fmt.Errorf("save generated set: %w", err)
		}
		result.StudySet = set
		if s.stats != nil {
			if _, _, err := s.stats.RecordSave(ctx, opts.UserID, time.Now().UTC()); err != nil {
				return result, fmt.Errorf("record save: %w", err)
			}
		}
	}

	report("complete", "Processing complete", 100)
	return result, nil
}
