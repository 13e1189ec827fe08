package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"flash-study/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to another user.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks a request the caller must fix.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned when concurrent writers kept winning a race for the same row.
	ErrConflict = errors.New("conflicting update")
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type StudySetInput struct {
	Title       string `json:"title"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

func (in StudySetInput) normalize() (StudySetInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		return in, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return in, nil
}

// StudySetService stores study sets. Every query is scoped to the owning user.
type StudySetService struct {
	db  *sql.DB
	now func() time.Time
}

func NewStudySetService(db *sql.DB) *StudySetService {
	return &StudySetService{db: db, now: utcNow}
}

func (s *StudySetService) Create(ctx context.Context, userID string, in StudySetInput) (*models.StudySet, error) {
	return s.create(ctx, s.db, userID, in)
}

func (s *StudySetService) create(ctx context.Context, db execer, userID string, in StudySetInput) (*models.StudySet, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	now := s.now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO study_sets (user_id, title, subject, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, userID, in.Title, in.Subject, in.Description, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert study set: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("study set id: %w", err)
	}
	return &models.StudySet{
		ID:          id,
		UserID:      userID,
		Title:       in.Title,
		Subject:     in.Subject,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

const studySetColumns = `
	SELECT s.id, s.user_id, s.title, s.subject, s.description, s.created_at, s.updated_at,
	       (SELECT COUNT(*) FROM flashcards f WHERE f.study_set_id = s.id)
	FROM study_sets s`

// List returns the user's study sets, newest first.
func (s *StudySetService) List(ctx context.Context, userID string) ([]models.StudySet, error) {
	rows, err := s.db.QueryContext(ctx, studySetColumns+`
		WHERE s.user_id = ?
		ORDER BY s.created_at DESC, s.id DESC;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list study sets: %w", err)
	}
	defer rows.Close()

	var sets []models.StudySet
	for rows.Next() {
		var set models.StudySet
		if err := scanStudySet(rows, &set); err != nil {
			return nil, fmt.Errorf("scan study set: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate study sets: %w", err)
	}
	return sets, nil
}

func (s *StudySetService) Get(ctx context.Context, userID string, id int64) (*models.StudySet, error) {
	row := s.db.QueryRowContext(ctx, studySetColumns+`
		WHERE s.id = ? AND s.user_id = ?;
	`, id, userID)
	var set models.StudySet
	if err := scanStudySet(row, &set); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("study set %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load study set %d: %w", id, err)
	}
	return &set, nil
}

func (s *StudySetService) Update(ctx context.Context, userID string, id int64, in StudySetInput) (*models.StudySet, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE study_sets SET title = ?, subject = ?, description = ?, updated_at = ?
		WHERE id = ? AND user_id = ?;
	`, in.Title, in.Subject, in.Description, s.now(), id, userID)
	if err != nil {
		return nil, fmt.Errorf("update study set %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("study set %d: %w", id, ErrNotFound)
	}
	return s.Get(ctx, userID, id)
}

// Delete removes the set; its flashcards go with it.
func (s *StudySetService) Delete(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM study_sets WHERE id = ? AND user_id = ?;`, id, userID)
	if err != nil {
		return fmt.Errorf("delete study set %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("study set %d: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudySet(row rowScanner, set *models.StudySet) error {
	return row.Scan(
		&set.ID,
		&set.UserID,
		&set.Title,
		&set.Subject,
		&set.Description,
		&set.CreatedAt,
		&set.UpdatedAt,
		&set.CardCount,
	)
}

func utcNow() time.Time {
	return time.Now().UTC()
}
