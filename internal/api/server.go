package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"flash-study/internal/auth"
	"flash-study/internal/logger"
	"flash-study/internal/models"
	"flash-study/internal/ocr"
	"flash-study/internal/scheduler"
	"flash-study/internal/services"
)

const (
	maxMultipartMemory = 8 << 20  // 8 MB
	maxUploadBody      = 64 << 20 // 64 MB per request
	maxJSONBody        = 1 << 20
)

// Services groups the collaborators the HTTP layer dispatches to.
type Services struct {
	Generator  services.Generator
	Sets       *services.StudySetService
	Flashcards *services.FlashcardService
	Profiles   *services.ProfileService
	Stats      *services.StatsService
	Payments   *services.PaymentService
	Documents  *services.DocumentService
	Extraction *services.ExtractionService
	Ingestion  *services.IngestionService
}

type Server struct {
	mux      *http.ServeMux
	svc      Services
	verifier *auth.Verifier
	jobs     *JobManager
	log      *logger.Logger
}

func NewServer(svc Services, verifier *auth.Verifier, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		mux:      http.NewServeMux(),
		svc:      svc,
		verifier: verifier,
		jobs:     NewJobManager(),
		log:      log.With("component", "api"),
	}
	s.routes()
	return s
}

// Handler returns the API with token authentication applied when a signing
// secret is configured.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.verifier != nil && s.verifier.Enabled() {
		h = s.verifier.Middleware(h)
	}
	return s.logRequests(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/generate", s.handleGenerate)
	s.mux.HandleFunc("/api/generate/jobs", s.handleCreateJob)
	s.mux.HandleFunc("/api/generate/jobs/{id}", s.handleJobStatus)
	s.mux.HandleFunc("/api/extract", s.handleExtract)
	s.mux.HandleFunc("/api/sets", s.handleSets)
	s.mux.HandleFunc("/api/sets/generated", s.handleSaveGenerated)
	s.mux.HandleFunc("/api/sets/{id}", s.handleSet)
	s.mux.HandleFunc("/api/sets/{id}/flashcards", s.handleSetFlashcards)
	s.mux.HandleFunc("/api/sets/{id}/due", s.handleDueCards)
	s.mux.HandleFunc("/api/cards/{id}/review", s.handleReview)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/profile", s.handleProfile)
	s.mux.HandleFunc("/api/payments/initialize", s.handleInitializePayment)
	s.mux.HandleFunc("/api/payments/verify", s.handleVerifyPayment)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	cards := s.svc.Generator.Generate(r.Context(), payload.Text)
	writeJSON(w, http.StatusOK, map[string]any{
		"flashcards": cards,
		"count":      len(cards),
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	doc, err := s.storeUpload(r.Context(), userID, files[0])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer s.removeDocument(context.WithoutCancel(r.Context()), doc)

	text, err := s.svc.Extraction.Extract(r.Context(), doc.StoredPath, doc.Kind)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":       doc.OriginalName,
		"kind":       doc.Kind,
		"text":       text,
		"characters": utf8.RuneCountInString(text),
	})
}

// handleCreateJob stores every upload before answering so the multipart
// temp files can be released with the request.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	save, _ := strconv.ParseBool(r.FormValue("save"))
	if save && userID == "" {
		writeError(w, http.StatusUnauthorized, "sign in to save flashcards")
		return
	}

	fileNames := make([]string, len(files))
	for i, file := range files {
		fileNames[i] = file.Filename
	}
	job := s.jobs.CreateJob(userID, fileNames)

	docs := make([]*models.Document, len(files))
	for i, file := range files {
		doc, err := s.storeUpload(r.Context(), userID, file)
		if err != nil {
			s.jobs.MarkFileError(job.ID, i, err.Error())
			continue
		}
		docs[i] = doc
	}

	go s.runGenerationJob(context.Background(), job.ID, userID, save, docs)

	snapshot, _ := s.jobs.GetJob(job.ID, userID)
	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	job, ok := s.jobs.GetJob(r.PathValue("id"), userID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) runGenerationJob(ctx context.Context, jobID, userID string, save bool, docs []*models.Document) {
	s.jobs.MarkProcessing(jobID)
	for idx, doc := range docs {
		if doc == nil {
			continue
		}
		s.jobs.MarkFileStarted(jobID, idx)
		progress := func(step, message string, current, total int) {
			s.jobs.UpdateFileProgress(jobID, idx, step, message, current, total)
		}

		opts := services.IngestOptions{UserID: userID}
		if save {
			opts.SaveTitle = titleFromFilename(doc.OriginalName)
		}
		result, err := s.svc.Ingestion.ProcessDocumentWithProgress(ctx, doc, opts, progress)
		s.removeDocument(ctx, doc)
		if err != nil {
			s.log.Warn("job file failed", "job", jobID, "file", doc.OriginalName, "error", err)
			s.jobs.MarkFileError(jobID, idx, err.Error())
			continue
		}

		fileResult := FileResult{
			Name:       doc.OriginalName,
			Kind:       doc.Kind,
			Characters: result.Characters,
			Flashcards: result.Flashcards,
		}
		if result.StudySet != nil {
			fileResult.StudySetID = result.StudySet.ID
		}
		s.jobs.MarkFileComplete(jobID, idx, fileResult)
	}
	s.jobs.MarkCompleted(jobID)
}

func (s *Server) storeUpload(ctx context.Context, userID string, file *multipart.FileHeader) (*models.Document, error) {
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", file.Filename, err)
	}
	defer src.Close()
	return s.svc.Documents.Create(ctx, userID, file.Filename, src)
}

func (s *Server) removeDocument(ctx context.Context, doc *models.Document) {
	if err := s.svc.Documents.Remove(ctx, doc); err != nil {
		s.log.Warn("remove upload", "document", doc.ID, "error", err)
	}
}

type studySetRequest struct {
	Title       string `json:"title"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

func (in studySetRequest) input() services.StudySetInput {
	return services.StudySetInput{Title: in.Title, Subject: in.Subject, Description: in.Description}
}

func (s *Server) handleSets(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		sets, err := s.svc.Sets.List(r.Context(), user.ID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		out := make([]map[string]any, 0, len(sets))
		for _, set := range sets {
			out = append(out, studySetJSON(set))
		}
		writeJSON(w, http.StatusOK, map[string]any{"studySets": out})
	case http.MethodPost:
		var payload studySetRequest
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		set, err := s.svc.Sets.Create(r.Context(), user.ID, payload.input())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"studySet": studySetJSON(*set)})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleSaveGenerated(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload struct {
		Title      string             `json:"title"`
		Flashcards []models.Flashcard `json:"flashcards"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	set, err := s.svc.Flashcards.SaveGenerated(r.Context(), user.ID, payload.Title, payload.Flashcards)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	stats, unlocked, err := s.svc.Stats.RecordSave(r.Context(), user.ID, time.Now().UTC())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"studySet": studySetJSON(*set),
		"stats":    statsJSON(stats),
		"unlocked": unlocked,
	})
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	setID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid study set id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		set, err := s.svc.Sets.Get(r.Context(), user.ID, setID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		cards, err := s.svc.Flashcards.ListBySet(r.Context(), user.ID, setID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"studySet":   studySetJSON(*set),
			"flashcards": studyCardsJSON(cards),
		})
	case http.MethodPut:
		var payload studySetRequest
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		set, err := s.svc.Sets.Update(r.Context(), user.ID, setID, payload.input())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"studySet": studySetJSON(*set)})
	case http.MethodDelete:
		if err := s.svc.Sets.Delete(r.Context(), user.ID, setID); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusNoContent, nil)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (s *Server) handleSetFlashcards(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	setID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid study set id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		cards, err := s.svc.Flashcards.ListBySet(r.Context(), user.ID, setID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"flashcards": studyCardsJSON(cards)})
	case http.MethodPost:
		var payload struct {
			Flashcards []models.Flashcard `json:"flashcards"`
		}
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if err := s.svc.Flashcards.AddCards(r.Context(), user.ID, setID, payload.Flashcards); err != nil {
			s.writeServiceError(w, err)
			return
		}
		stats, unlocked, err := s.svc.Stats.RecordSave(r.Context(), user.ID, time.Now().UTC())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"added":    len(payload.Flashcards),
			"stats":    statsJSON(stats),
			"unlocked": unlocked,
		})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleDueCards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	setID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid study set id")
		return
	}

	cards, err := s.svc.Flashcards.DueBySet(r.Context(), user.ID, setID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if len(cards) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"flashcards": []any{},
			"message":    "No cards due. Come back later!",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flashcards": studyCardsJSON(cards)})
}

type reviewRequest struct {
	Rating      string   `json:"rating"`
	Performance *float64 `json:"performance"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	cardID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid card id")
		return
	}

	var payload reviewRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	performance, err := payload.performance()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	card, result, err := s.svc.Flashcards.Review(r.Context(), user.ID, cardID, performance)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	correct := performance >= scheduler.CorrectThreshold
	stats, unlocked, err := s.svc.Stats.RecordReview(r.Context(), user.ID, correct, result.Reviewed)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"card":     studyCardJSON(*card),
		"schedule": result,
		"correct":  correct,
		"stats":    statsJSON(stats),
		"unlocked": unlocked,
	})
}

// performance accepts either a named rating or a raw score in [0, 1].
func (p reviewRequest) performance() (float64, error) {
	if p.Performance != nil {
		if *p.Performance < 0 || *p.Performance > 1 {
			return 0, fmt.Errorf("performance must be between 0 and 1")
		}
		return *p.Performance, nil
	}
	rating, err := parseRating(p.Rating)
	if err != nil {
		return 0, err
	}
	return scheduler.PerformanceFor(rating), nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	stats, err := s.svc.Stats.Get(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	achievements := make([]map[string]any, 0, len(services.Achievements))
	for _, a := range services.Achievements {
		achievements = append(achievements, map[string]any{
			"id":       a.ID,
			"name":     a.Name,
			"points":   a.Points,
			"unlocked": stats.HasAchievement(a.ID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":        statsJSON(stats),
		"achievements": achievements,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	profile, err := s.svc.Profiles.Ensure(r.Context(), user.ID, user.Email)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": profileJSON(profile, time.Now().UTC())})
}

func (s *Server) handleInitializePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload struct {
		Plan  models.PlanType `json:"plan"`
		Email string          `json:"email"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	email := user.Email
	if email == "" {
		email = payload.Email
	}

	if _, err := s.svc.Profiles.Ensure(r.Context(), user.ID, email); err != nil {
		s.writeServiceError(w, err)
		return
	}
	started, err := s.svc.Payments.Initialize(r.Context(), user.ID, email, payload.Plan)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, started)
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		writeError(w, http.StatusBadRequest, "reference is required")
		return
	}

	result, err := s.svc.Payments.Verify(r.Context(), user.ID, reference)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	out := map[string]any{
		"reference": result.Reference,
		"status":    result.Status,
		"plan":      result.Plan,
	}
	if result.Profile != nil {
		out["profile"] = profileJSON(result.Profile, time.Now().UTC())
	}
	writeJSON(w, http.StatusOK, out)
}

// writeServiceError maps service sentinels onto HTTP statuses. Anything
// unrecognised is logged and reported as an internal error.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrUnsupportedFile):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, services.ErrNoText):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrPaymentNotSuccessful):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, services.ErrPaymentsUnavailable), errors.Is(err, ocr.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requireUser(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return auth.User{}, false
	}
	return user, true
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

func titleFromFilename(name string) string {
	title := strings.TrimSpace(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	if title == "" {
		return services.GeneratedSubject
	}
	return title
}

const timeLayout = time.RFC3339

func parseRating(raw string) (fsrs.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "again":
		return fsrs.Again, nil
	case "hard":
		return fsrs.Hard, nil
	case "good":
		return fsrs.Good, nil
	case "easy":
		return fsrs.Easy, nil
	default:
		return 0, fmt.Errorf("unknown rating %q", raw)
	}
}

func studySetJSON(set models.StudySet) map[string]any {
	return map[string]any{
		"id":          set.ID,
		"title":       set.Title,
		"subject":     set.Subject,
		"description": set.Description,
		"cardCount":   set.CardCount,
		"createdAt":   set.CreatedAt.Format(timeLayout),
		"updatedAt":   set.UpdatedAt.Format(timeLayout),
	}
}

func studyCardJSON(card models.StudyCard) map[string]any {
	return map[string]any{
		"id":           card.ID,
		"studySetId":   card.StudySetID,
		"question":     card.Question,
		"options":      card.Options,
		"answer":       card.Answer,
		"easeFactor":   card.EaseFactor,
		"repetitions":  card.Repetitions,
		"nextReview":   nullTimeToString(card.NextReview),
		"lastReviewed": nullTimeToString(card.LastReviewed),
		"createdAt":    card.CreatedAt.Format(timeLayout),
	}
}

func studyCardsJSON(cards []models.StudyCard) []map[string]any {
	out := make([]map[string]any, 0, len(cards))
	for _, card := range cards {
		out = append(out, studyCardJSON(card))
	}
	return out
}

func statsJSON(stats *models.UserStats) map[string]any {
	achievements := stats.Achievements
	if achievements == nil {
		achievements = []string{}
	}
	return map[string]any{
		"points":          stats.Points,
		"streak":          stats.Streak,
		"totalFlashcards": stats.TotalFlashcards,
		"correctAnswers":  stats.CorrectAnswers,
		"achievements":    achievements,
		"lastStudyDate":   nullTimeToString(stats.LastStudyDate),
	}
}

func profileJSON(p *models.Profile, now time.Time) map[string]any {
	return map[string]any{
		"id":               p.ID,
		"email":            p.Email,
		"isPremium":        p.PremiumActive(now),
		"premiumExpiresAt": nullTimeToString(p.PremiumExpiresAt),
	}
}

func nullTimeToString(t sql.NullTime) *string {
	if t.Valid {
		str := t.Time.Format(timeLayout)
		return &str
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
