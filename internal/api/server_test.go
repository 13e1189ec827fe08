package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-study/internal/auth"
	"flash-study/internal/db"
	"flash-study/internal/models"
	"flash-study/internal/scheduler"
	"flash-study/internal/services"
)

var stubCards = []models.Flashcard{
	{
		Question: "Which planet is the largest?",
		Options:  []string{"A. Mars", "B. Jupiter", "C. Venus", "D. Mercury"},
		Answer:   "Jupiter",
	},
	{Question: "What is the powerhouse of the cell?", Answer: "Mitochondria"},
}

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, text string) []models.Flashcard {
	return append([]models.Flashcard(nil), stubCards...)
}

type testAPI struct {
	handler  http.Handler
	verifier *auth.Verifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	sets := services.NewStudySetService(conn)
	flashcards := services.NewFlashcardService(conn, sets, scheduler.New())
	profiles := services.NewProfileService(conn)
	stats := services.NewStatsService(conn)
	extraction := services.NewExtractionService(nil, nil)
	verifier := auth.NewVerifier("api-test-secret")

	server := NewServer(Services{
		Generator:  stubGenerator{},
		Sets:       sets,
		Flashcards: flashcards,
		Profiles:   profiles,
		Stats:      stats,
		Payments:   services.NewPaymentService(conn, profiles, services.PaystackConfig{}, nil, nil),
		Documents:  services.NewDocumentService(conn, t.TempDir()),
		Extraction: extraction,
		Ingestion:  services.NewIngestionService(extraction, stubGenerator{}, flashcards, stats),
	}, verifier, nil)

	return &testAPI{handler: server.Handler(), verifier: verifier}
}

func (a *testAPI) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := a.verifier.Issue(userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return token
}

// do sends body as JSON unless it is already a reader.
func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) upload(t *testing.T, path, token, field string, files map[string]string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/health", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestGenerate(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/generate", "", map[string]string{"text": "Jupiter is the largest planet."})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Flashcards []models.Flashcard `json:"flashcards"`
		Count      int                `json:"count"`
	}](t, rec)
	assert.Equal(t, stubCards, body.Flashcards)
	assert.Equal(t, 2, body.Count)

	rec = api.do(t, http.MethodPost, "/api/generate", "", map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/generate", "", strings.NewReader("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequiredForLibrary(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/sets", "/api/stats", "/api/profile"} {
		rec := api.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := api.do(t, http.MethodGet, "/api/sets", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error": "missing or invalid token"}`, rec.Body.String())
}

type setEnvelope struct {
	StudySet struct {
		ID        int64  `json:"id"`
		Title     string `json:"title"`
		Subject   string `json:"subject"`
		CardCount int    `json:"cardCount"`
	} `json:"studySet"`
}

type cardsEnvelope struct {
	Flashcards []struct {
		ID          int64    `json:"id"`
		Question    string   `json:"question"`
		Options     []string `json:"options"`
		Answer      string   `json:"answer"`
		Repetitions int      `json:"repetitions"`
		NextReview  *string  `json:"nextReview"`
	} `json:"flashcards"`
}

func TestStudyFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")

	rec := api.do(t, http.MethodPost, "/api/sets/generated", token, map[string]any{
		"title":      "Astronomy",
		"flashcards": stubCards,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[setEnvelope](t, rec)
	assert.Equal(t, "Astronomy", created.StudySet.Title)
	assert.Equal(t, services.GeneratedSubject, created.StudySet.Subject)
	assert.Equal(t, 2, created.StudySet.CardCount)
	setPath := fmt.Sprintf("/api/sets/%d", created.StudySet.ID)

	rec = api.do(t, http.MethodGet, "/api/sets", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		StudySets []map[string]any `json:"studySets"`
	}](t, rec)
	assert.Len(t, list.StudySets, 1)

	rec = api.do(t, http.MethodGet, setPath+"/due", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	due := decode[cardsEnvelope](t, rec)
	require.Len(t, due.Flashcards, 2)
	assert.Equal(t, []string{"A. Mars", "B. Jupiter", "C. Venus", "D. Mercury"}, due.Flashcards[0].Options)
	assert.Nil(t, due.Flashcards[0].NextReview)

	reviewPath := fmt.Sprintf("/api/cards/%d/review", due.Flashcards[0].ID)
	rec = api.do(t, http.MethodPost, reviewPath, token, map[string]string{"rating": "good"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	review := decode[struct {
		Correct  bool `json:"correct"`
		Schedule struct {
			Repetitions int     `json:"repetitions"`
			EaseFactor  float64 `json:"easeFactor"`
			Interval    int     `json:"interval"`
		} `json:"schedule"`
		Stats struct {
			Points          int `json:"points"`
			TotalFlashcards int `json:"totalFlashcards"`
		} `json:"stats"`
		Unlocked []struct {
			ID string `json:"id"`
		} `json:"unlocked"`
	}](t, rec)
	assert.True(t, review.Correct)
	assert.Equal(t, 1, review.Schedule.Repetitions)
	assert.InDelta(t, 2.6, review.Schedule.EaseFactor, 1e-9)
	assert.Equal(t, scheduler.IntervalFor(1), review.Schedule.Interval)
	assert.Equal(t, 1, review.Stats.TotalFlashcards)
	require.Len(t, review.Unlocked, 1)
	assert.Equal(t, "first-card", review.Unlocked[0].ID)

	rec = api.do(t, http.MethodGet, setPath+"/due", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[cardsEnvelope](t, rec).Flashcards, 1)

	rec = api.do(t, http.MethodPost, setPath+"/flashcards", token, map[string]any{
		"flashcards": []models.Flashcard{{Question: "Closest star?", Answer: "The Sun"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, setPath+"/flashcards", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[cardsEnvelope](t, rec).Flashcards, 3)

	rec = api.do(t, http.MethodGet, "/api/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[struct {
		Stats struct {
			Points       int      `json:"points"`
			Achievements []string `json:"achievements"`
		} `json:"stats"`
		Achievements []struct {
			ID       string `json:"id"`
			Unlocked bool   `json:"unlocked"`
		} `json:"achievements"`
	}](t, rec)
	// Two saves, one correct review and the first-card bonus.
	assert.Equal(t, 2*services.PointsSave+services.PointsCorrect+10, stats.Stats.Points)
	assert.Equal(t, []string{"first-card"}, stats.Stats.Achievements)
	require.Len(t, stats.Achievements, len(services.Achievements))
	assert.True(t, stats.Achievements[0].Unlocked)
	assert.False(t, stats.Achievements[1].Unlocked)

	rec = api.do(t, http.MethodPut, setPath, token, map[string]string{"title": "Planets", "subject": "Science"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Planets", decode[setEnvelope](t, rec).StudySet.Title)

	rec = api.do(t, http.MethodDelete, setPath, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, setPath, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStudySetValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")

	rec := api.do(t, http.MethodPost, "/api/sets", token, map[string]string{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/sets/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/sets/generated", token, map[string]any{"title": "Nothing", "flashcards": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPatch, "/api/sets", token, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestStudySetsAreIsolatedPerUser(t *testing.T) {
	api := newTestAPI(t)
	owner := api.token(t, "owner")
	intruder := api.token(t, "intruder")

	rec := api.do(t, http.MethodPost, "/api/sets", owner, map[string]string{"title": "Private"})
	require.Equal(t, http.StatusCreated, rec.Code)
	setPath := fmt.Sprintf("/api/sets/%d", decode[setEnvelope](t, rec).StudySet.ID)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, setPath, intruder, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, setPath, intruder, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, setPath+"/due", intruder, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, setPath, owner, nil).Code)
}

func TestReviewValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")

	rec := api.do(t, http.MethodPost, "/api/cards/1/review", token, map[string]string{"rating": "meh"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/cards/1/review", token, map[string]float64{"performance": 1.5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/cards/999/review", token, map[string]float64{"performance": 0.9})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewRequestPerformance(t *testing.T) {
	half := 0.5
	tests := []struct {
		name string
		req  reviewRequest
		want float64
	}{
		{name: "easy", req: reviewRequest{Rating: "Easy"}, want: 1.0},
		{name: "good", req: reviewRequest{Rating: "good"}, want: 0.8},
		{name: "hard", req: reviewRequest{Rating: " hard "}, want: 0.5},
		{name: "again", req: reviewRequest{Rating: "again"}, want: 0},
		{name: "raw score wins", req: reviewRequest{Rating: "easy", Performance: &half}, want: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.performance()
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestProfile(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/profile", api.token(t, "ada"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Profile struct {
			ID        string `json:"id"`
			Email     string `json:"email"`
			IsPremium bool   `json:"isPremium"`
		} `json:"profile"`
	}](t, rec)
	assert.Equal(t, "ada", body.Profile.ID)
	assert.Equal(t, "ada@example.com", body.Profile.Email)
	assert.False(t, body.Profile.IsPremium)
}

func TestPaymentsUnavailable(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")

	rec := api.do(t, http.MethodPost, "/api/payments/initialize", token, map[string]string{"plan": "monthly"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/payments/verify", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/payments/verify?reference=abc", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExtract(t *testing.T) {
	api := newTestAPI(t)

	rec := api.upload(t, "/api/extract", "", "file", map[string]string{"notes.txt": "  Mitosis splits a cell in two. "}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Name       string `json:"name"`
		Kind       string `json:"kind"`
		Text       string `json:"text"`
		Characters int    `json:"characters"`
	}](t, rec)
	assert.Equal(t, "notes.txt", body.Name)
	assert.Equal(t, "text", body.Kind)
	assert.Equal(t, "Mitosis splits a cell in two.", body.Text)
	assert.Equal(t, 29, body.Characters)

	rec = api.upload(t, "/api/extract", "", "file", map[string]string{"tool.exe": "MZ"}, nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = api.upload(t, "/api/extract", "", "file", map[string]string{"blank.txt": "   "}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.upload(t, "/api/extract", "", "file", map[string]string{"scan.png": "png"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = api.upload(t, "/api/extract", "", "other", map[string]string{"notes.txt": "text"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerationJob(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")

	rec := api.upload(t, "/api/generate/jobs", token, "files", map[string]string{
		"planets.txt": "Jupiter is the largest planet.",
		"virus.exe":   "MZ",
	}, map[string]string{"save": "true"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job := decode[GenerationJob](t, rec)
	require.NotEmpty(t, job.ID)
	require.Len(t, job.Files, 2)

	statusPath := "/api/generate/jobs/" + job.ID
	require.Eventually(t, func() bool {
		rec := api.do(t, http.MethodGet, statusPath, token, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		job = decode[GenerationJob](t, rec)
		return job.Status == JobStatusComplete || job.Status == JobStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, JobStatusComplete, job.Status)
	byName := map[string]FileProgress{}
	for _, f := range job.Files {
		byName[f.Name] = f
	}

	planets := byName["planets.txt"]
	assert.Equal(t, FileStatusComplete, planets.Status)
	assert.Equal(t, 100, planets.Percent)
	require.NotNil(t, planets.Result)
	assert.Equal(t, stubCards, planets.Result.Flashcards)
	assert.NotZero(t, planets.Result.StudySetID)

	assert.Equal(t, FileStatusError, byName["virus.exe"].Status)
	assert.Contains(t, byName["virus.exe"].Error, "unsupported file type")

	rec = api.do(t, http.MethodGet, "/api/sets", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		StudySets []struct {
			Title string `json:"title"`
		} `json:"studySets"`
	}](t, rec)
	require.Len(t, list.StudySets, 1)
	assert.Equal(t, "planets", list.StudySets[0].Title)

	rec = api.do(t, http.MethodGet, statusPath, api.token(t, "someone-else"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "jobs are private to their owner")
}

func TestGenerationJobValidation(t *testing.T) {
	api := newTestAPI(t)

	rec := api.upload(t, "/api/generate/jobs", "", "files", map[string]string{"notes.txt": "text"}, map[string]string{"save": "true"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.upload(t, "/api/generate/jobs", "", "files", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/generate/jobs/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
