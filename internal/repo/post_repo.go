// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for meetup posts
// and their participants.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// Error semantics:
//   - When a post or participant is not found, functions return
//     gorm.ErrRecordNotFound (exported as ErrNotFound).
//   - AddParticipant returns ErrDuplicate when the user already joined.
//   - UpdatePostCounters returns ErrStaleVersion when the post changed since
//     it was read.
//
// Functions:
//
//   - CreatePost(ctx, db, post) -> error
//   - GetPost(ctx, db, id) -> *domain.MeetupPost, error
//   - CountOpenPosts(ctx, db) -> int64, error
//   - ListOpenPostsPage(ctx, db, offset, limit) -> []domain.MeetupPost, error
//   - FilterOpenPosts(ctx, db, filter, limit) -> []domain.MeetupPost, error
//   - AddParticipant(ctx, db, postID, userID) -> error
//   - GetParticipant(ctx, db, postID, userID) -> *domain.Participant, error
//   - ListParticipants(ctx, db, postID) -> []domain.Participant, error
//   - UpdatePostCounters(ctx, db, id, version, count, status) -> error
//
// participants_count and status must only be changed through
// UpdatePostCounters inside the admission transaction.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
)

// openPostsWhere selects posts that still have room according to the stored
// counters, independent of a possibly stale status flag.
const openPostsWhere = "status = 'open' AND (max_participants = 0 OR participants_count < max_participants)"

// CreatePost inserts a new post row.
func CreatePost(ctx context.Context, db *gorm.DB, p *domain.MeetupPost) error {
	return db.WithContext(ctx).Create(p).Error
}

// GetPost fetches a post by id, or ErrNotFound.
func GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.MeetupPost, error) {
	var p domain.MeetupPost
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CountOpenPosts returns the number of posts that accept new participants.
func CountOpenPosts(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.MeetupPost{}).
		Where(openPostsWhere).
		Count(&total).Error
	return total, err
}

// ListOpenPostsPage returns a page of open posts, newest first.
func ListOpenPostsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.MeetupPost, error) {
	var out []domain.MeetupPost
	err := db.WithContext(ctx).
		Where(openPostsWhere).
		Order("created_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// PostFilter narrows FilterOpenPosts. Empty fields match everything.
type PostFilter struct {
	// Category matches case-insensitively and exactly.
	Category string
	// Location matches case-insensitively as a substring.
	Location string
}

// FilterOpenPosts returns up to limit open posts matching f, newest first.
func FilterOpenPosts(ctx context.Context, db *gorm.DB, f PostFilter, limit int) ([]domain.MeetupPost, error) {
	q := db.WithContext(ctx).Where(openPostsWhere)
	if f.Category != "" {
		q = q.Where("LOWER(category) = LOWER(?)", f.Category)
	}
	if f.Location != "" {
		q = q.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(f.Location)+"%")
	}
	var out []domain.MeetupPost
	err := q.Order("created_at DESC, id ASC").Limit(limit).Find(&out).Error
	return out, err
}

// AddParticipant inserts the (postID, userID) participant row. It returns
// ErrDuplicate if the user already joined.
func AddParticipant(ctx context.Context, db *gorm.DB, postID, userID string) error {
	p := &domain.Participant{
		PostID:   postID,
		UserID:   userID,
		JoinedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetParticipant fetches the participant row for (postID, userID), or ErrNotFound.
func GetParticipant(ctx context.Context, db *gorm.DB, postID, userID string) (*domain.Participant, error) {
	var p domain.Participant
	err := db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListParticipants returns the participants of a post in join order.
func ListParticipants(ctx context.Context, db *gorm.DB, postID string) ([]domain.Participant, error) {
	var out []domain.Participant
	err := db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("joined_at ASC, user_id ASC").
		Find(&out).Error
	return out, err
}

// UpdatePostCounters writes participants_count and status and bumps the
// version, but only if the row still carries version. When no row matches,
// it returns ErrStaleVersion.
func UpdatePostCounters(ctx context.Context, db *gorm.DB, id string, version int64, count int, status domain.PostStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.MeetupPost{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]any{
			"participants_count": count,
			"status":             status,
			"version":            gorm.Expr("version + 1"),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	return nil
}
