package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-study/internal/models"
)

func TestPremiumExpiry(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC), PremiumExpiry(models.PlanMonthly, now))
	assert.Equal(t, time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC), PremiumExpiry(models.PlanYearly, now))
}

func TestProfileService_Ensure(t *testing.T) {
	ctx := t.Context()
	svc := NewProfileService(newTestDB(t))

	_, err := svc.Get(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := svc.Ensure(ctx, "user-1", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.False(t, p.IsPremium)

	p, err = svc.Ensure(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", p.Email, "empty email keeps the stored one")

	p, err = svc.Ensure(ctx, "user-1", "ada@lovelace.dev")
	require.NoError(t, err)
	assert.Equal(t, "ada@lovelace.dev", p.Email)

	_, err = svc.Ensure(ctx, "", "x@example.com")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestProfileService_ActivatePremium(t *testing.T) {
	ctx := t.Context()
	svc := NewProfileService(newTestDB(t))
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	premium, err := svc.IsPremium(ctx, "user-1", now)
	require.NoError(t, err)
	assert.False(t, premium, "unknown users are not premium")

	p, err := svc.ActivatePremium(ctx, "user-1", models.PlanMonthly, now)
	require.NoError(t, err)
	assert.True(t, p.IsPremium)
	require.True(t, p.PremiumExpiresAt.Valid)
	assert.True(t, p.PremiumExpiresAt.Time.Equal(now.AddDate(0, 1, 0)))

	premium, err = svc.IsPremium(ctx, "user-1", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, premium)

	premium, err = svc.IsPremium(ctx, "user-1", now.AddDate(0, 1, 0).Add(time.Second))
	require.NoError(t, err)
	assert.False(t, premium, "premium lapses at expiry")

	_, err = svc.ActivatePremium(ctx, "user-1", models.PlanType("weekly"), now)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
