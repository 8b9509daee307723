// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for interest
// signals and mutual matches.
//
// Both writes are upserts on a natural key: (from, to) for signals and the
// canonical (min, max) pair for matches. Repeating a write is therefore a
// no-op, which lets callers retry without a prior existence check.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
)

// UpsertInterest records that from is interested in to. An existing signal is
// left untouched.
func UpsertInterest(ctx context.Context, db *gorm.DB, from, to string) error {
	sig := &domain.InterestSignal{
		FromUserID: from,
		ToUserID:   to,
		CreatedAt:  time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(sig).Error
}

// HasInterest reports whether a signal from -> to exists.
func HasInterest(ctx context.Context, db *gorm.DB, from, to string) (bool, error) {
	var sig domain.InterestSignal
	err := db.WithContext(ctx).
		Where("from_user_id = ? AND to_user_id = ?", from, to).
		Take(&sig).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpsertMatch stores the match for the unordered pair {a, b} under its
// canonical key and returns the stored row. created is false when the row
// already existed; it is then returned unchanged.
func UpsertMatch(ctx context.Context, db *gorm.DB, a, b string) (m *domain.MutualMatch, created bool, err error) {
	lo, hi := domain.CanonicalPair(a, b)
	row := &domain.MutualMatch{
		ID:        domain.MatchKey(lo, hi),
		UserAID:   lo,
		UserBID:   hi,
		CreatedAt: time.Now().UTC(),
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	var stored domain.MutualMatch
	if err := db.WithContext(ctx).Where("id = ?", row.ID).First(&stored).Error; err != nil {
		return nil, false, err
	}
	return &stored, res.RowsAffected > 0, nil
}

// ListMatches returns every match that includes userID, newest first.
func ListMatches(ctx context.Context, db *gorm.DB, userID string) ([]domain.MutualMatch, error) {
	var out []domain.MutualMatch
	err := db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("created_at DESC, id ASC").
		Find(&out).Error
	return out, err
}
