package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-study/internal/models"
)

func TestDocumentService_CreateGetRemove(t *testing.T) {
	ctx := t.Context()
	dir := filepath.Join(t.TempDir(), "uploads")
	svc := NewDocumentService(newTestDB(t), dir)

	doc, err := svc.Create(ctx, "user-1", "Lecture Notes.txt", strings.NewReader("Cells divide by mitosis."))
	require.NoError(t, err)
	assert.Equal(t, "Lecture Notes.txt", doc.OriginalName)
	assert.Equal(t, models.SourceText, doc.Kind)
	assert.True(t, doc.UserID.Valid)
	assert.Equal(t, dir, filepath.Dir(doc.StoredPath))
	assert.Equal(t, ".txt", filepath.Ext(doc.StoredPath))
	assert.NotContains(t, filepath.Base(doc.StoredPath), "Lecture")

	data, err := os.ReadFile(doc.StoredPath)
	require.NoError(t, err)
	assert.Equal(t, "Cells divide by mitosis.", string(data))

	got, err := svc.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.StoredPath, got.StoredPath)
	assert.Equal(t, "user-1", got.UserID.String)

	require.NoError(t, svc.Remove(ctx, doc))
	_, err = os.Stat(doc.StoredPath)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = svc.GetByID(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentService_Anonymous(t *testing.T) {
	svc := NewDocumentService(newTestDB(t), t.TempDir())

	doc, err := svc.Create(t.Context(), "", "scan.png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.False(t, doc.UserID.Valid)
	assert.Equal(t, models.SourceImage, doc.Kind)

	got, err := svc.GetByID(t.Context(), doc.ID)
	require.NoError(t, err)
	assert.False(t, got.UserID.Valid)
}

func TestDocumentService_RejectsUnsupportedType(t *testing.T) {
	dir := t.TempDir()
	svc := NewDocumentService(newTestDB(t), dir)

	_, err := svc.Create(t.Context(), "user-1", "virus.exe", strings.NewReader("MZ"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDocumentService_RejectsOversizedUpload(t *testing.T) {
	dir := t.TempDir()
	svc := NewDocumentService(newTestDB(t), dir)
	svc.maxBytes = 8

	_, err := svc.Create(t.Context(), "user-1", "long.txt", strings.NewReader("more than eight bytes"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "oversized uploads are not kept")

	_, err = svc.Create(t.Context(), "user-1", "short.txt", strings.NewReader("8 bytes!"))
	assert.NoError(t, err)
}
