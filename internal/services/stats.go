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

const (
	PointsCorrect   = 10
	PointsIncorrect = 1
	PointsSave      = 20
)

// Achievement is a one-off reward unlocked when its requirement first holds.
type Achievement struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
	met    func(*models.UserStats) bool
}

var Achievements = []Achievement{
	{ID: "first-card", Name: "First Steps", Points: 10, met: func(s *models.UserStats) bool { return s.TotalFlashcards >= 1 }},
	{ID: "study-streak", Name: "Consistent Learner", Points: 50, met: func(s *models.UserStats) bool { return s.Streak >= 7 }},
	{ID: "perfect-score", Name: "Perfectionist", Points: 100, met: func(s *models.UserStats) bool { return s.CorrectAnswers >= 10 }},
	{ID: "ai-generator", Name: "AI Master", Points: 200, met: func(s *models.UserStats) bool { return s.TotalFlashcards >= 50 }},
}

// StatsService keeps per-user gamification state.
type StatsService struct {
	db *sql.DB
}

func NewStatsService(db *sql.DB) *StatsService {
	return &StatsService{db: db}
}

// Get returns the user's stats; a user with no activity gets zero stats.
func (s *StatsService) Get(ctx context.Context, userID string) (*models.UserStats, error) {
	return s.load(ctx, s.db, userID)
}

// RecordReview counts one studied card and updates the daily streak.
func (s *StatsService) RecordReview(ctx context.Context, userID string, correct bool, now time.Time) (*models.UserStats, []Achievement, error) {
	return s.update(ctx, userID, now, func(st *models.UserStats) {
		st.TotalFlashcards++
		if correct {
			st.CorrectAnswers++
			st.Points += PointsCorrect
		} else {
			st.Points += PointsIncorrect
		}
		st.Streak = nextStreak(st.LastStudyDate, st.Streak, now)
		st.LastStudyDate = sql.NullTime{Time: now, Valid: true}
	})
}

// RecordSave rewards saving a generated set to the library.
func (s *StatsService) RecordSave(ctx context.Context, userID string, now time.Time) (*models.UserStats, []Achievement, error) {
	return s.update(ctx, userID, now, func(st *models.UserStats) {
		st.Points += PointsSave
	})
}

func (s *StatsService) update(ctx context.Context, userID string, now time.Time, mutate func(*models.UserStats)) (stats *models.UserStats, unlocked []Achievement, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stats, err = s.load(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}
	mutate(stats)
	unlocked = awardAchievements(stats)
	stats.UpdatedAt = now

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO user_stats (user_id, points, streak, total_flashcards, correct_answers, achievements, last_study_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			points = excluded.points,
			streak = excluded.streak,
			total_flashcards = excluded.total_flashcards,
			correct_answers = excluded.correct_answers,
			achievements = excluded.achievements,
			last_study_date = excluded.last_study_date,
			updated_at = excluded.updated_at;
	`,
		userID,
		stats.Points,
		stats.Streak,
		stats.TotalFlashcards,
		stats.CorrectAnswers,
		strings.Join(stats.Achievements, ","),
		nullTimePtr(stats.LastStudyDate),
		stats.UpdatedAt,
	); err != nil {
		return nil, nil, fmt.Errorf("save stats for %s: %w", userID, err)
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit stats: %w", err)
	}
	return stats, unlocked, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *StatsService) load(ctx context.Context, q querier, userID string) (*models.UserStats, error) {
	st := &models.UserStats{UserID: userID}
	var achievements string
	err := q.QueryRowContext(ctx, `
		SELECT points, streak, total_flashcards, correct_answers, achievements, last_study_date, updated_at
		FROM user_stats WHERE user_id = ?;
	`, userID).Scan(&st.Points, &st.Streak, &st.TotalFlashcards, &st.CorrectAnswers, &achievements, &st.LastStudyDate, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, nil
		}
		return nil, fmt.Errorf("load stats for %s: %w", userID, err)
	}
	if achievements != "" {
		st.Achievements = strings.Split(achievements, ",")
	}
	return st, nil
}

func awardAchievements(st *models.UserStats) []Achievement {
	var unlocked []Achievement
	for _, a := range Achievements {
		if a.met(st) && !st.HasAchievement(a.ID) {
			st.Achievements = append(st.Achievements, a.ID)
			st.Points += a.Points
			unlocked = append(unlocked, a)
		}
	}
	return unlocked
}

// nextStreak counts consecutive UTC calendar days with at least one review.
func nextStreak(last sql.NullTime, streak int, now time.Time) int {
	if !last.Valid {
		return 1
	}
	today := utcDay(now)
	lastDay := utcDay(last.Time)
	switch {
	case lastDay.Equal(today):
		return max(streak, 1)
	case lastDay.AddDate(0, 0, 1).Equal(today):
		return streak + 1
	default:
		return 1
	}
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nullTimePtr(t sql.NullTime) any {
	if t.Valid {
		return t.Time
	}
	return nil
}
