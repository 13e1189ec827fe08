package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"flash-study/internal/models"
	"flash-study/internal/scheduler"
)

// GeneratedSubject is the subject given to study sets saved from generation.
const GeneratedSubject = "Generated Flashcards"

// FlashcardService persists study cards and applies the review schedule.
// Ownership is enforced through the parent study set.
type FlashcardService struct {
	db        *sql.DB
	sets      *StudySetService
	scheduler *scheduler.Scheduler
}

func NewFlashcardService(db *sql.DB, sets *StudySetService, sched *scheduler.Scheduler) *FlashcardService {
	if sched == nil {
		sched = scheduler.New()
	}
	return &FlashcardService{db: db, sets: sets, scheduler: sched}
}

// SaveGenerated creates a study set named title and stores cards in it. The
// set and its cards are written in one transaction.
func (s *FlashcardService) SaveGenerated(ctx context.Context, userID, title string, cards []models.Flashcard) (*models.StudySet, error) {
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: no flashcards to save", ErrInvalidInput)
	}
	var set *models.StudySet
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		created, err := s.sets.create(ctx, tx, userID, StudySetInput{
			Title:       title,
			Subject:     GeneratedSubject,
			Description: fmt.Sprintf("Auto-generated flashcards from text (%d cards)", len(cards)),
		})
		if err != nil {
			return err
		}
		if err := insertCards(ctx, tx, created.ID, cards); err != nil {
			return err
		}
		set = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	set.CardCount = len(cards)
	return set, nil
}

// AddCards appends cards to an existing set owned by userID.
func (s *FlashcardService) AddCards(ctx context.Context, userID string, setID int64, cards []models.Flashcard) error {
	if len(cards) == 0 {
		return fmt.Errorf("%w: no flashcards to save", ErrInvalidInput)
	}
	if _, err := s.sets.Get(ctx, userID, setID); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertCards(ctx, tx, setID, cards)
	})
}

func (s *FlashcardService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertCards(ctx context.Context, tx *sql.Tx, setID int64, cards []models.Flashcard) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flashcards (study_set_id, question, options, answer, ease_factor, repetitions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("prepare card insert: %w", err)
	}
	defer stmt.Close()

	now := utcNow()
	for _, card := range cards {
		question := strings.TrimSpace(card.Question)
		answer := strings.TrimSpace(card.Answer)
		if question == "" || answer == "" {
			return fmt.Errorf("%w: flashcard needs a question and an answer", ErrInvalidInput)
		}
		options, err := encodeOptions(card.Options)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, setID, question, options, answer, models.DefaultEaseFactor, now, now); err != nil {
			return fmt.Errorf("insert card %q: %w", question, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE study_sets SET updated_at = ? WHERE id = ?;`, now, setID); err != nil {
		return fmt.Errorf("touch study set %d: %w", setID, err)
	}
	return nil
}

const cardColumns = `
	SELECT f.id, f.study_set_id, f.question, f.options, f.answer, f.ease_factor, f.repetitions,
	       f.next_review, f.last_reviewed, f.created_at, f.updated_at
	FROM flashcards f
	JOIN study_sets s ON s.id = f.study_set_id`

// ListBySet returns every card of a set in insertion order.
func (s *FlashcardService) ListBySet(ctx context.Context, userID string, setID int64) ([]models.StudyCard, error) {
	if _, err := s.sets.Get(ctx, userID, setID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, cardColumns+`
		WHERE f.study_set_id = ? AND s.user_id = ?
		ORDER BY f.id ASC;
	`, setID, userID)
	if err != nil {
		return nil, fmt.Errorf("list flashcards: %w", err)
	}
	defer rows.Close()

	var cards []models.StudyCard
	for rows.Next() {
		var card models.StudyCard
		if err := scanCard(rows, &card); err != nil {
			return nil, fmt.Errorf("scan flashcard: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flashcards: %w", err)
	}
	return cards, nil
}

// DueBySet returns the cards of a set that are due for review now.
func (s *FlashcardService) DueBySet(ctx context.Context, userID string, setID int64) ([]models.StudyCard, error) {
	cards, err := s.ListBySet(ctx, userID, setID)
	if err != nil {
		return nil, err
	}
	return s.scheduler.Due(cards), nil
}

func (s *FlashcardService) Get(ctx context.Context, userID string, cardID int64) (*models.StudyCard, error) {
	row := s.db.QueryRowContext(ctx, cardColumns+`
		WHERE f.id = ? AND s.user_id = ?;
	`, cardID, userID)
	var card models.StudyCard
	if err := scanCard(row, &card); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("flashcard %d: %w", cardID, ErrNotFound)
		}
		return nil, fmt.Errorf("load flashcard %d: %w", cardID, err)
	}
	return &card, nil
}

// maxReviewAttempts bounds retries when concurrent reviews of one card race.
const maxReviewAttempts = 10

// Review schedules the card from a performance score in [0, 1] and persists
// the new state with lastReviewed set to the review time. The update only
// applies to the state it was computed from; a concurrent review in between
// makes it start over from the fresh row.
func (s *FlashcardService) Review(ctx context.Context, userID string, cardID int64, performance float64) (*models.StudyCard, scheduler.Result, error) {
	for range maxReviewAttempts {
		card, err := s.Get(ctx, userID, cardID)
		if err != nil {
			return nil, scheduler.Result{}, err
		}

		result := s.scheduler.Review(scheduler.State{
			EaseFactor:  card.EaseFactor,
			Repetitions: card.Repetitions,
		}, performance)

		res, err := s.db.ExecContext(ctx, `
			UPDATE flashcards
			SET ease_factor = ?, repetitions = ?, next_review = ?, last_reviewed = ?, updated_at = ?
			WHERE id = ? AND ease_factor = ? AND repetitions = ?;
		`, result.EaseFactor, result.Repetitions, result.NextReview, result.Reviewed, result.Reviewed,
			card.ID, card.EaseFactor, card.Repetitions)
		if err != nil {
			return nil, scheduler.Result{}, fmt.Errorf("update flashcard %d: %w", card.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, scheduler.Result{}, fmt.Errorf("update flashcard %d: %w", card.ID, err)
		}
		if n == 0 {
			continue
		}

		card.EaseFactor = result.EaseFactor
		card.Repetitions = result.Repetitions
		card.NextReview = sql.NullTime{Time: result.NextReview, Valid: true}
		card.LastReviewed = sql.NullTime{Time: result.Reviewed, Valid: true}
		card.UpdatedAt = result.Reviewed
		return card, result, nil
	}
	return nil, scheduler.Result{}, fmt.Errorf("review flashcard %d: %w", cardID, ErrConflict)
}

func scanCard(row rowScanner, card *models.StudyCard) error {
	var options string
	if err := row.Scan(
		&card.ID,
		&card.StudySetID,
		&card.Question,
		&options,
		&card.Answer,
		&card.EaseFactor,
		&card.Repetitions,
		&card.NextReview,
		&card.LastReviewed,
		&card.CreatedAt,
		&card.UpdatedAt,
	); err != nil {
		return err
	}
	opts, err := decodeOptions(options)
	if err != nil {
		return fmt.Errorf("decode options of card %d: %w", card.ID, err)
	}
	card.Options = opts
	return nil
}

func encodeOptions(options []string) (string, error) {
	if len(options) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("encode options: %w", err)
	}
	return string(raw), nil
}

func decodeOptions(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var options []string
	if err := json.Unmarshal([]byte(raw), &options); err != nil {
		return nil, err
	}
	return options, nil
}
