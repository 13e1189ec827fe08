package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"flash-study/internal/models"
)

// DocumentService keeps uploaded study material on disk under uuid names.
type DocumentService struct {
	db        *sql.DB
	uploadDir string
	maxBytes  int64
}

// DefaultMaxUploadBytes caps a single stored upload.
const DefaultMaxUploadBytes = 25 << 20

func NewDocumentService(db *sql.DB, uploadDir string) *DocumentService {
	return &DocumentService{db: db, uploadDir: uploadDir, maxBytes: DefaultMaxUploadBytes}
}

// Create stores src and records it. userID may be empty for anonymous uploads.
func (s *DocumentService) Create(ctx context.Context, userID, original string, src io.Reader) (*models.Document, error) {
	kind, err := KindFor(original)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure upload dir: %w", err)
	}

	name := uuid.NewString() + filepath.Ext(original)
	storedPath := filepath.Join(s.uploadDir, name)
	out, err := os.Create(storedPath)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, io.LimitReader(src, s.maxBytes+1))
	if err != nil {
		_ = os.Remove(storedPath)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if written > s.maxBytes {
		_ = os.Remove(storedPath)
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrInvalidInput, original, s.maxBytes)
	}

	owner := sql.NullString{String: userID, Valid: userID != ""}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (user_id, original_name, stored_path, kind, uploaded_at)
		VALUES (?, ?, ?, ?, ?);
	`, owner, original, storedPath, kind, now)
	if err != nil {
		_ = os.Remove(storedPath)
		return nil, fmt.Errorf("insert document: %w", err)
	}
	id, _ := res.LastInsertId()

	return &models.Document{
		ID:           id,
		UserID:       owner,
		OriginalName: original,
		StoredPath:   storedPath,
		Kind:         kind,
		UploadedAt:   now,
	}, nil
}

func (s *DocumentService) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, original_name, stored_path, kind, uploaded_at
		FROM documents WHERE id = ?;
	`, id)
	var doc models.Document
	if err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.OriginalName,
		&doc.StoredPath,
		&doc.Kind,
		&doc.UploadedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

// Remove deletes the stored file and its record.
func (s *DocumentService) Remove(ctx context.Context, doc *models.Document) error {
	if err := os.Remove(doc.StoredPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file %s: %w", doc.StoredPath, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?;`, doc.ID); err != nil {
		return fmt.Errorf("delete document %d: %w", doc.ID, err)
	}
	return nil
}
