// Package scheduler implements the fixed-ladder spaced-repetition schedule used
// for study cards.
package scheduler

import (
	"math"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"flash-study/internal/models"
)

// CorrectThreshold is the lowest performance score that counts as a correct recall.
const CorrectThreshold = 0.8

// Ladder holds review intervals in days, indexed by repetition count.
var Ladder = [...]int{1, 6, 16, 39, 94, 225, 540}

// State is the part of a study card the scheduler reads.
type State struct {
	EaseFactor  float64
	Repetitions int
}

// Result is the updated schedule. Callers persist it together with
// lastReviewed = Reviewed.
type Result struct {
	NextReview  time.Time `json:"nextReview"`
	EaseFactor  float64   `json:"easeFactor"`
	Repetitions int       `json:"repetitions"`
	Interval    int       `json:"interval"`
	Reviewed    time.Time `json:"reviewed"`
}

type Scheduler struct {
	Now func() time.Time
}

func New() *Scheduler {
	return &Scheduler{Now: func() time.Time { return time.Now().UTC() }}
}

func (s *Scheduler) now() time.Time {
	if s == nil || s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// Review applies one self-graded review. performance is expected in [0, 1].
func (s *Scheduler) Review(state State, performance float64) Result {
	ease := state.EaseFactor
	if ease <= 0 {
		ease = models.DefaultEaseFactor
	}
	reps := state.Repetitions
	if reps < 0 {
		reps = 0
	}

	if performance >= CorrectThreshold {
		reps++
		ease = math.Max(models.MinEaseFactor, ease+0.1)
	} else {
		reps = 0
		ease = math.Max(models.MinEaseFactor, ease-0.2)
	}

	interval := IntervalFor(reps)
	now := s.now()
	return Result{
		NextReview:  now.AddDate(0, 0, interval),
		EaseFactor:  ease,
		Repetitions: reps,
		Interval:    interval,
		Reviewed:    now,
	}
}

// IntervalFor returns the days until the next review after reaching reps.
func IntervalFor(reps int) int {
	if reps <= 0 {
		return 1
	}
	return Ladder[min(reps, len(Ladder)-1)]
}

// IsDue reports whether a card should be reviewed at now. New cards are always due.
func IsDue(card models.StudyCard, now time.Time) bool {
	return !card.NextReview.Valid || !card.NextReview.Time.After(now)
}

// Due filters cards down to those due now, preserving order.
func (s *Scheduler) Due(cards []models.StudyCard) []models.StudyCard {
	now := s.now()
	due := make([]models.StudyCard, 0, len(cards))
	for _, card := range cards {
		if IsDue(card, now) {
			due = append(due, card)
		}
	}
	return due
}

// PerformanceFor maps a four-button review rating onto a performance score.
func PerformanceFor(rating fsrs.Rating) float64 {
	switch rating {
	case fsrs.Easy:
		return 1.0
	case fsrs.Good:
		return 0.8
	case fsrs.Hard:
		return 0.5
	default:
		return 0
	}
}
