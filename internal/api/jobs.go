package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"flash-study/internal/models"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"

	FileStatusPending    = "pending"
	FileStatusProcessing = "processing"
	FileStatusComplete   = "complete"
	FileStatusError      = "error"
)

// GenerationJob tracks extraction and generation for a batch of uploads.
type GenerationJob struct {
	ID        string         `json:"jobId"`
	OwnerID   string         `json:"-"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Files     []FileProgress `json:"files"`
	Error     string         `json:"error,omitempty"`
}

// FileProgress captures per-file progress updates that clients poll.
type FileProgress struct {
	Index   int         `json:"index"`
	Name    string      `json:"name"`
	Status  string      `json:"status"`
	Step    string      `json:"step,omitempty"`
	Message string      `json:"message,omitempty"`
	Current int         `json:"current"`
	Total   int         `json:"total"`
	Percent int         `json:"percent"`
	Result  *FileResult `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// FileResult is the outcome of processing one uploaded file.
type FileResult struct {
	Name       string             `json:"name"`
	Kind       models.SourceKind  `json:"kind,omitempty"`
	Characters int                `json:"characters"`
	Flashcards []models.Flashcard `json:"flashcards,omitempty"`
	StudySetID int64              `json:"studySetId,omitempty"`
}

type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*GenerationJob
	ttl  time.Duration
	now  func() time.Time
}

// DefaultJobTTL is how long finished jobs stay pollable.
const DefaultJobTTL = time.Hour

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*GenerationJob),
		ttl:  DefaultJobTTL,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *JobManager) CreateJob(ownerID string, fileNames []string) *GenerationJob {
	files := make([]FileProgress, len(fileNames))
	for i, name := range fileNames {
		files[i] = FileProgress{
			Index:  i,
			Name:   name,
			Status: FileStatusPending,
		}
	}
	now := m.now()
	job := &GenerationJob{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Files:     files,
	}

	m.mu.Lock()
	m.pruneLocked(now)
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.clone()
}

// GetJob returns a snapshot of the job. Jobs created by a signed-in user are
// only visible to that user.
func (m *JobManager) GetJob(id, requesterID string) (*GenerationJob, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok || (job.OwnerID != "" && job.OwnerID != requesterID) {
		return nil, false
	}
	return job.clone(), true
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusProcessing
	})
}

// MarkCompleted finishes the job. It is failed when no file succeeded.
func (m *JobManager) MarkCompleted(id string) {
	m.withJob(id, func(job *GenerationJob) {
		for _, f := range job.Files {
			if f.Status == FileStatusComplete {
				job.Status = JobStatusComplete
				return
			}
		}
		job.Status = JobStatusFailed
		job.Error = "no file could be processed"
	})
}

func (m *JobManager) MarkFileStarted(id string, index int) {
	m.withJob(id, func(job *GenerationJob) {
		if file := job.file(index); file != nil {
			file.Status = FileStatusProcessing
			file.Step = ""
			file.Message = "Starting"
			file.Current = 0
			file.Total = 100
			file.Percent = 0
			file.Error = ""
		}
	})
}

func (m *JobManager) UpdateFileProgress(id string, index int, step, message string, current, total int) {
	m.withJob(id, func(job *GenerationJob) {
		if file := job.file(index); file != nil {
			file.Status = FileStatusProcessing
			file.Step = step
			file.Message = message
			file.Current = current
			file.Total = total
			file.Percent = percent(current, total)
		}
	})
}

func (m *JobManager) MarkFileComplete(id string, index int, result FileResult) {
	m.withJob(id, func(job *GenerationJob) {
		if file := job.file(index); file != nil {
			file.Status = FileStatusComplete
			file.Step = "complete"
			file.Message = "Processing complete"
			file.Current = 100
			file.Total = 100
			file.Percent = 100
			file.Result = &result
			file.Error = ""
		}
	})
}

func (m *JobManager) MarkFileError(id string, index int, message string) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = "processing error"
	}
	m.withJob(id, func(job *GenerationJob) {
		if file := job.file(index); file != nil {
			file.Status = FileStatusError
			file.Step = "error"
			file.Message = msg
			file.Error = msg
			file.Current = 100
			file.Total = 100
			file.Percent = 100
		}
	})
}

func (m *JobManager) withJob(id string, fn func(job *GenerationJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = m.now()
}

// pruneLocked drops finished jobs that have not changed within the TTL.
func (m *JobManager) pruneLocked(now time.Time) {
	for id, job := range m.jobs {
		finished := job.Status == JobStatusComplete || job.Status == JobStatusFailed
		if finished && now.Sub(job.UpdatedAt) > m.ttl {
			delete(m.jobs, id)
		}
	}
}

func (job *GenerationJob) file(index int) *FileProgress {
	if index < 0 || index >= len(job.Files) {
		return nil
	}
	return &job.Files[index]
}

func (job *GenerationJob) clone() *GenerationJob {
	if job == nil {
		return nil
	}
	copyJob := *job
	if len(job.Files) > 0 {
		copyJob.Files = make([]FileProgress, len(job.Files))
		for i, file := range job.Files {
			copyJob.Files[i] = file
			if file.Result != nil {
				res := *file.Result
				res.Flashcards = append([]models.Flashcard(nil), file.Result.Flashcards...)
				copyJob.Files[i].Result = &res
			}
		}
	}
	return &copyJob
}

func percent(current, total int) int {
	if total <= 0 {
		return min(max(current, 0), 100)
	}
	if current <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	return int((float64(current) / float64(total)) * 100)
}
