package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func achievementIDs(list []Achievement) []string {
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestStatsService_NewUserHasZeroStats(t *testing.T) {
	svc := NewStatsService(newTestDB(t))

	st, err := svc.Get(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", st.UserID)
	assert.Zero(t, st.Points)
	assert.Zero(t, st.Streak)
	assert.Empty(t, st.Achievements)
}

func TestStatsService_RecordReview(t *testing.T) {
	ctx := t.Context()
	svc := NewStatsService(newTestDB(t))
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	st, unlocked, err := svc.RecordReview(ctx, "user-1", true, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"first-card"}, achievementIDs(unlocked))
	assert.Equal(t, PointsCorrect+10, st.Points)
	assert.Equal(t, 1, st.TotalFlashcards)
	assert.Equal(t, 1, st.CorrectAnswers)
	assert.Equal(t, 1, st.Streak)

	st, unlocked, err = svc.RecordReview(ctx, "user-1", false, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, unlocked, "achievements are awarded once")
	assert.Equal(t, PointsCorrect+10+PointsIncorrect, st.Points)
	assert.Equal(t, 2, st.TotalFlashcards)
	assert.Equal(t, 1, st.CorrectAnswers)
	assert.Equal(t, 1, st.Streak)

	stored, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, st.Points, stored.Points)
	assert.Equal(t, []string{"first-card"}, stored.Achievements)
	require.True(t, stored.LastStudyDate.Valid)
}

func TestStatsService_RecordSave(t *testing.T) {
	svc := NewStatsService(newTestDB(t))

	st, unlocked, err := svc.RecordSave(t.Context(), "user-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, unlocked)
	assert.Equal(t, PointsSave, st.Points)
	assert.Zero(t, st.TotalFlashcards)
	assert.False(t, st.LastStudyDate.Valid, "saving is not studying")
}

func TestStatsService_PerfectScoreAndStreak(t *testing.T) {
	ctx := t.Context()
	svc := NewStatsService(newTestDB(t))
	day := time.Date(2025, 5, 1, 20, 0, 0, 0, time.UTC)

	var all []string
	for i := range 10 {
		_, unlocked, err := svc.RecordReview(ctx, "user-1", true, day.AddDate(0, 0, i))
		require.NoError(t, err)
		all = append(all, achievementIDs(unlocked)...)
	}

	assert.Equal(t, []string{"first-card", "study-streak", "perfect-score"}, all)

	st, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10, st.Streak)
	assert.Equal(t, 10*PointsCorrect+10+50+100, st.Points)
}

func TestStatsService_AIGeneratorAchievement(t *testing.T) {
	ctx := t.Context()
	svc := NewStatsService(newTestDB(t))
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	var last []Achievement
	for range 50 {
		var err error
		_, last, err = svc.RecordReview(ctx, "user-1", false, now)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"ai-generator"}, achievementIDs(last))
}

func TestNextStreak(t *testing.T) {
	now := time.Date(2025, 5, 10, 0, 30, 0, 0, time.UTC)
	at := func(t time.Time) sql.NullTime { return sql.NullTime{Time: t, Valid: true} }

	tests := []struct {
		name   string
		last   sql.NullTime
		streak int
		want   int
	}{
		{name: "first study day", last: sql.NullTime{}, streak: 0, want: 1},
		{name: "same day keeps streak", last: at(now.Add(-20 * time.Minute)), streak: 4, want: 4},
		{name: "yesterday late evening extends", last: at(time.Date(2025, 5, 9, 23, 59, 0, 0, time.UTC)), streak: 4, want: 5},
		{name: "gap resets", last: at(time.Date(2025, 5, 8, 12, 0, 0, 0, time.UTC)), streak: 4, want: 1},
		{name: "same day with zero streak", last: at(now), streak: 0, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextStreak(tt.last, tt.streak, now))
		})
	}
}
