// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// UserProfile model.
//
// Profiles are written by the profile surface and only read by scoring, so
// the functions here are plain point reads and an upsert keyed by user id.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
)

// UpsertProfile inserts the profile or replaces the mutable columns of an
// existing one with the same user id.
func UpsertProfile(ctx context.Context, db *gorm.DB, p *domain.UserProfile) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name", "region", "budget_min", "budget_max",
				"food_tags", "time_windows", "updated_at",
			}),
		}).
		Create(p).Error
}

// GetProfile fetches the profile of userID, or ErrNotFound.
func GetProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.UserProfile, error) {
	var p domain.UserProfile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfilesExcept returns every profile except the one owned by userID,
// ordered by user id so callers see a stable candidate order.
func ListProfilesExcept(ctx context.Context, db *gorm.DB, userID string) ([]domain.UserProfile, error) {
	var out []domain.UserProfile
	err := db.WithContext(ctx).
		Where("user_id <> ?", userID).
		Order("user_id ASC").
		Find(&out).Error
	return out, err
}
