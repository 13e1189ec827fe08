package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-study/internal/models"
	"flash-study/internal/scheduler"
)

type stubGenerator struct {
	got   string
	cards []models.Flashcard
}

func (g *stubGenerator) Generate(_ context.Context, text string) []models.Flashcard {
	g.got = text
	return g.cards
}

type ingestionFixture struct {
	docs      *DocumentService
	sets      *StudySetService
	stats     *StatsService
	generator *stubGenerator
	ingestion *IngestionService
}

func newIngestionFixture(t *testing.T) *ingestionFixture {
	t.Helper()
	conn := newTestDB(t)
	f := &ingestionFixture{
		docs:      NewDocumentService(conn, t.TempDir()),
		sets:      NewStudySetService(conn),
		stats:     NewStatsService(conn),
		generator: &stubGenerator{cards: generatedCards},
	}
	cards := NewFlashcardService(conn, f.sets, scheduler.New())
	f.ingestion = NewIngestionService(NewExtractionService(nil, nil), f.generator, cards, f.stats)
	return f
}

func TestIngestion_GeneratesWithoutSaving(t *testing.T) {
	ctx := t.Context()
	f := newIngestionFixture(t)

	doc, err := f.docs.Create(ctx, "", "notes.txt", strings.NewReader("  Jupiter is the largest planet.  "))
	require.NoError(t, err)

	result, err := f.ingestion.ProcessDocument(ctx, doc, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Jupiter is the largest planet.", f.generator.got)
	assert.Equal(t, "Jupiter is the largest planet.", result.Text)
	assert.Equal(t, len("Jupiter is the largest planet."), result.Characters)
	assert.Equal(t, generatedCards, result.Flashcards)
	assert.Nil(t, result.StudySet)
}

func TestIngestion_SavesAndRewards(t *testing.T) {
	ctx := t.Context()
	f := newIngestionFixture(t)

	doc, err := f.docs.Create(ctx, "user-1", "planets.txt", strings.NewReader("Jupiter is the largest planet."))
	require.NoError(t, err)

	var steps []string
	result, err := f.ingestion.ProcessDocumentWithProgress(ctx, doc, IngestOptions{UserID: "user-1", SaveTitle: "Planets"},
		func(step, _ string, current, total int) {
			assert.Equal(t, 100, total)
			assert.LessOrEqual(t, current, total)
			steps = append(steps, step)
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"extract", "generate", "save", "complete"}, steps)

	require.NotNil(t, result.StudySet)
	assert.Equal(t, "Planets", result.StudySet.Title)
	assert.Equal(t, len(generatedCards), result.StudySet.CardCount)

	sets, err := f.sets.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, sets, 1)

	st, err := f.stats.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, PointsSave, st.Points)
}

func TestIngestion_TitleWithoutUserDoesNotSave(t *testing.T) {
	ctx := t.Context()
	f := newIngestionFixture(t)

	doc, err := f.docs.Create(ctx, "", "notes.txt", strings.NewReader("Text to study."))
	require.NoError(t, err)

	result, err := f.ingestion.ProcessDocument(ctx, doc, IngestOptions{SaveTitle: "Orphan"})
	require.NoError(t, err)
	assert.Nil(t, result.StudySet)
}

func TestIngestion_ExtractionFailureStopsPipeline(t *testing.T) {
	ctx := t.Context()
	f := newIngestionFixture(t)

	doc, err := f.docs.Create(ctx, "", "blank.txt", strings.NewReader("   "))
	require.NoError(t, err)

	_, err = f.ingestion.ProcessDocument(ctx, doc, IngestOptions{})
	assert.ErrorIs(t, err, ErrNoText)
	assert.Empty(t, f.generator.got, "generation must not run without text")
}
