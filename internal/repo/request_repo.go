// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for join requests.
//
// Status changes are conditional updates (WHERE status = <expected>) so that
// a request can only leave the pending state once, even under concurrent
// callers. The service layer interprets a zero-row update.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
)

// CreateRequest inserts a pending join request from fromUserID to toUserID.
func CreateRequest(ctx context.Context, db *gorm.DB, postID, fromUserID, toUserID string) (*domain.JoinRequest, error) {
	now := time.Now().UTC()
	r := &domain.JoinRequest{
		ID:         uuid.NewString(),
		PostID:     postID,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     domain.RequestPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetRequest fetches a join request by id, or ErrNotFound.
func GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.JoinRequest, error) {
	var r domain.JoinRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// FindPendingRequest returns the pending request of fromUserID for postID,
// or ErrNotFound.
func FindPendingRequest(ctx context.Context, db *gorm.DB, postID, fromUserID string) (*domain.JoinRequest, error) {
	var r domain.JoinRequest
	err := db.WithContext(ctx).
		Where("post_id = ? AND from_user_id = ? AND status = ?", postID, fromUserID, domain.RequestPending).
		Order("created_at ASC").
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// TransitionRequest moves a request from status `from` to `to`. It reports
// whether a row changed; false means the request is missing or no longer in
// `from`.
func TransitionRequest(ctx context.Context, db *gorm.DB, id string, from, to domain.RequestStatus) (bool, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.JoinRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":       to,
			"updated_at":   now,
			"responded_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeletePendingRequest removes a pending request owned by fromUserID and
// reports whether a row was deleted.
func DeletePendingRequest(ctx context.Context, db *gorm.DB, id, fromUserID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("id = ? AND from_user_id = ? AND status = ?", id, fromUserID, domain.RequestPending).
		Delete(&domain.JoinRequest{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListReceivedRequests returns requests addressed to ownerID, newest first.
func ListReceivedRequests(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.JoinRequest, error) {
	var out []domain.JoinRequest
	err := db.WithContext(ctx).
		Where("to_user_id = ?", ownerID).
		Order("created_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

// ListSentRequests returns requests sent by userID, newest first.
func ListSentRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.JoinRequest, error) {
	var out []domain.JoinRequest
	err := db.WithContext(ctx).
		Where("from_user_id = ?", userID).
		Order("created_at DESC, id ASC").
		Find(&out).Error
	return out, err
}
