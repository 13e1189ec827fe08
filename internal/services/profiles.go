package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"flash-study/internal/models"
)

type ProfileService struct {
	db  *sql.DB
	now func() time.Time
}

func NewProfileService(db *sql.DB) *ProfileService {
	return &ProfileService{db: db, now: utcNow}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, is_premium, premium_expires_at, created_at, updated_at
		FROM profiles WHERE id = ?;
	`, userID)
	var p models.Profile
	if err := row.Scan(&p.ID, &p.Email, &p.IsPremium, &p.PremiumExpiresAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}
	return &p, nil
}

// Ensure returns the user's profile, creating it on first sight. A non-empty
// email replaces the stored one.
func (s *ProfileService) Ensure(ctx context.Context, userID, email string) (*models.Profile, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := s.now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, is_premium, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE profiles.email END;
	`, userID, email, now, now); err != nil {
		return nil, fmt.Errorf("ensure profile %s: %w", userID, err)
	}
	return s.Get(ctx, userID)
}

// PremiumExpiry returns the expiry of a plan bought at now.
func PremiumExpiry(plan models.PlanType, now time.Time) time.Time {
	if plan == models.PlanYearly {
		return now.AddDate(1, 0, 0)
	}
	return now.AddDate(0, 1, 0)
}

// ActivatePremium marks the profile premium until the plan's expiry counted from now.
func (s *ProfileService) ActivatePremium(ctx context.Context, userID string, plan models.PlanType, now time.Time) (*models.Profile, error) {
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, plan)
	}
	if _, err := s.Ensure(ctx, userID, ""); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET is_premium = 1, premium_expires_at = ?, updated_at = ?
		WHERE id = ?;
	`, PremiumExpiry(plan, now), now, userID); err != nil {
		return nil, fmt.Errorf("activate premium for %s: %w", userID, err)
	}
	return s.Get(ctx, userID)
}

func (s *ProfileService) IsPremium(ctx context.Context, userID string, now time.Time) (bool, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.PremiumActive(now), nil
}
