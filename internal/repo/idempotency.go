package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
)

// GetIdempotency returns the live retry key (userID, postID, key), or
// ErrNotFound when it was never stored or has expired at now.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, postID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(postID) == "" || key == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND post_id = ? AND key = ?", userID, postID, key).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !rec.Live(now) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// CreateIdempotency stores the join request a retry key produced, valid for
// ttl. A key already stored for the same user and post is ErrDuplicate, and
// the first request wins.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, postID, key, requestID string, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		PostID:    postID,
		Key:       key,
		RequestID: requestID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredIdempotency deletes keys that expired before now and reports
// how many went.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
