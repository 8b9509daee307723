// Package services – ProfileService
//
// ProfileService writes and reads user matching profiles. Food tags and time
// windows are sets: entries are trimmed, case-folded, and de-duplicated before
// storage so that scoring compares like with like.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
	"github.com/tbourn/go-mealmate-backend/internal/repo"
)

// ProfileInput is the caller-supplied content of a profile.
type ProfileInput struct {
	DisplayName string
	Region      string
	BudgetMin   *int
	BudgetMax   *int
	FoodTags    []string
	TimeWindows []string
}

// ProfileService manages user profiles.
type ProfileService struct {
	DB *gorm.DB
	// Cache, when set, has its profile generation bumped on every profile
	// change. Any user's list may rank this profile, so all of them go stale.
	Cache RankCache

	// MaxTags caps both tag and window set sizes after normalization.
	MaxTags int
}

// NewProfileService constructs a ProfileService. cache may be nil.
func NewProfileService(db *gorm.DB, cache RankCache) *ProfileService {
	return &ProfileService{DB: db, Cache: cache, MaxTags: 32}
}

// Upsert creates or replaces the profile of userID.
func (s *ProfileService) Upsert(ctx context.Context, userID string, in ProfileInput) (*domain.UserProfile, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if err := validateBudget(in.BudgetMin, in.BudgetMax); err != nil {
		return nil, err
	}

	p := &domain.UserProfile{
		UserID:      userID,
		DisplayName: collapseSpaces(in.DisplayName),
		Region:      collapseSpaces(in.Region),
		BudgetMin:   in.BudgetMin,
		BudgetMax:   in.BudgetMax,
		FoodTags:    datatypes.JSONSlice[string](normalizeSet(in.FoodTags, s.MaxTags)),
		TimeWindows: datatypes.JSONSlice[string](normalizeSet(in.TimeWindows, s.MaxTags)),
	}
	if err := repo.UpsertProfile(ctx, s.DB, p); err != nil {
		return nil, storageErr("upsert profile", err)
	}

	if s.Cache != nil {
		if err := s.Cache.Bump(ctx); err != nil {
			loggerFrom(ctx).Warn().Err(err).Str("user_id", userID).Msg("recommendation cache invalidate failed")
		}
	}
	stored, err := repo.GetProfile(ctx, s.DB, userID)
	if err != nil {
		return nil, storageErr("upsert profile", err)
	}
	return stored, nil
}

// Get returns the profile of userID or ErrProfileNotFound.
func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	p, err := repo.GetProfile(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, storageErr("get profile", err)
	}
	return p, nil
}

func validateBudget(lo, hi *int) error {
	if lo != nil && *lo < 0 {
		return fmt.Errorf("%w: budget_min must be >= 0", ErrInvalidProfile)
	}
	if hi != nil && *hi < 0 {
		return fmt.Errorf("%w: budget_max must be >= 0", ErrInvalidProfile)
	}
	if lo != nil && hi != nil && *lo > *hi {
		return fmt.Errorf("%w: budget_min exceeds budget_max", ErrInvalidProfile)
	}
	return nil
}

// normalizeSet trims and case-folds values, drops empties and repeats, and
// keeps first-seen order. A positive max truncates the result.
func normalizeSet(in []string, max int) []string {
	fold := cases.Fold()
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = fold.String(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
