// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
)

// OpenPostsStats returns the number of open posts and the greatest
// UpdatedAt among them. When there are none, maxUpdatedAt is nil.
func OpenPostsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.MeetupPost{}).Where(openPostsWhere)
	return countAndLatest(q)
}

// ReceivedRequestsStats returns the number of join requests addressed to
// ownerID and the greatest UpdatedAt among them.
func ReceivedRequestsStats(ctx context.Context, db *gorm.DB, ownerID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.JoinRequest{}).Where("to_user_id = ?", ownerID)
	return countAndLatest(q)
}

func countAndLatest(q *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// ORDER BY + LIMIT instead of MAX(): SQLite returns MAX() as TEXT.
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
