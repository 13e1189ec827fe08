package models

import (
	"database/sql"
	"strings"
	"time"
)

// Flashcard is the shape produced by generation. Options are only present on
// multiple-choice cards and carry "A. " style labels.
type Flashcard struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
	Answer   string   `json:"answer"`
}

// StripOptionLabel removes a leading "X. " label from a multiple-choice option.
func StripOptionLabel(option string) string {
	option = strings.TrimSpace(option)
	if len(option) >= 3 && option[0] >= 'A' && option[0] <= 'Z' && option[1] == '.' && option[2] == ' ' {
		return strings.TrimSpace(option[3:])
	}
	return option
}

// AnswerInOptions reports whether the answer equals exactly one label-stripped option.
func (f Flashcard) AnswerInOptions() bool {
	if len(f.Options) == 0 {
		return true
	}
	matches := 0
	for _, opt := range f.Options {
		if StripOptionLabel(opt) == f.Answer {
			matches++
		}
	}
	return matches == 1
}

const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3
)

type StudySet struct {
	ID          int64
	UserID      string
	Title       string
	Subject     string
	Description string
	CardCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StudyCard is a persisted flashcard plus its spaced-repetition state.
// A card without NextReview is new and always due.
type StudyCard struct {
	ID           int64
	StudySetID   int64
	Question     string
	Options      []string
	Answer       string
	EaseFactor   float64
	Repetitions  int
	NextReview   sql.NullTime
	LastReviewed sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanYearly  PlanType = "yearly"
)

func (p PlanType) Valid() bool {
	return p == PlanMonthly || p == PlanYearly
}

type Profile struct {
	ID               string
	Email            string
	IsPremium        bool
	PremiumExpiresAt sql.NullTime
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PremiumActive reports whether the profile has an unexpired premium plan at now.
func (p *Profile) PremiumActive(now time.Time) bool {
	return p.IsPremium && p.PremiumExpiresAt.Valid && p.PremiumExpiresAt.Time.After(now)
}

type UserStats struct {
	UserID          string
	Points          int
	Streak          int
	TotalFlashcards int
	CorrectAnswers  int
	Achievements    []string
	LastStudyDate   sql.NullTime
	UpdatedAt       time.Time
}

func (s *UserStats) HasAchievement(id string) bool {
	for _, a := range s.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

type SourceKind string

const (
	SourceText  SourceKind = "text"
	SourcePDF   SourceKind = "pdf"
	SourceWord  SourceKind = "word"
	SourceImage SourceKind = "image"
	SourceAudio SourceKind = "audio"
)

// Document is an uploaded study-material file kept on disk for extraction.
type Document struct {
	ID           int64
	UserID       sql.NullString
	OriginalName string
	StoredPath   string
	Kind         SourceKind
	UploadedAt   time.Time
}
