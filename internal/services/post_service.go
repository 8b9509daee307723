// Package services – PostService
//
// This file implements PostService, which manages meetup posts outside of
// admission: creation (with the owner auto-joined), lookup, the open-post
// listing, and the participant roster.
//
// Counters are written here exactly once, at creation. Every later change to
// participants_count or status goes through AdmissionService.Accept. Posts
// returned to readers carry the status re-derived from their counters
// (domain.MeetupPost.EffectiveStatus), never a cached flag.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
	"github.com/tbourn/go-mealmate-backend/internal/repo"
	"github.com/tbourn/go-mealmate-backend/internal/search"
	"github.com/tbourn/go-mealmate-backend/internal/utils"
)

// PostRepo defines the repository contract required by PostService.
type PostRepo interface {
	// CreatePost inserts a new post row.
	CreatePost(ctx context.Context, db *gorm.DB, p *domain.MeetupPost) error

	// GetPost fetches a post by ID.
	GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.MeetupPost, error)

	// AddParticipant inserts a participant row.
	AddParticipant(ctx context.Context, db *gorm.DB, postID, userID string) error

	// ListParticipants returns a post's participants in join order.
	ListParticipants(ctx context.Context, db *gorm.DB, postID string) ([]domain.Participant, error)

	// CountOpenPosts returns the total number of open posts for pagination.
	CountOpenPosts(ctx context.Context, db *gorm.DB) (int64, error)

	// ListOpenPostsPage returns a page of open posts.
	ListOpenPostsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.MeetupPost, error)

	// FilterOpenPosts returns up to limit open posts matching a filter.
	FilterOpenPosts(ctx context.Context, db *gorm.DB, f repo.PostFilter, limit int) ([]domain.MeetupPost, error)
}

// NewPost is the caller-supplied part of a meetup post.
type NewPost struct {
	Title           string
	Restaurant      string
	Category        string
	Location        string
	Content         string
	MeetAt          *time.Time
	MaxParticipants int
}

// PostQuery is a keyword search over open posts. Text is matched against
// title, restaurant, category, location, and content; the filters narrow the
// candidates first.
type PostQuery struct {
	Text     string
	Category string
	Location string
	Limit    int
}

// PostService provides post-level operations.
type PostService struct {
	DB   *gorm.DB
	Repo PostRepo

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// MaxPageSize caps ListOpen page sizes and search results.
	MaxPageSize int
	// SearchScan caps how many filtered candidates a text search ranks.
	SearchScan int
}

// NewPostService constructs a PostService with default limits.
func NewPostService(db *gorm.DB, r PostRepo) *PostService {
	return &PostService{
		DB:          db,
		Repo:        r,
		TitleMaxLen: 100,
		MaxPageSize: 100,
		SearchScan:  500,
	}
}

// Create stores a new post owned by ownerID. The owner is inserted as the
// first participant in the same transaction, so a fresh post always has
// participants_count == 1. A cap of 1 leaves no room for anyone else and
// the post starts closed; a cap of 0 means unbounded.
func (s *PostService) Create(ctx context.Context, ownerID string, in NewPost) (*domain.MeetupPost, error) {
	ctx, span := otel.Tracer("services/PostService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", ownerID)),
	)
	defer span.End()

	if ownerID == "" {
		return nil, ErrEmptyUserID
	}
	in.Title = s.clip(collapseSpaces(in.Title))
	in.Restaurant = collapseSpaces(in.Restaurant)
	switch {
	case in.Title == "":
		return nil, fmt.Errorf("%w: title is required", ErrInvalidPost)
	case in.Restaurant == "":
		return nil, fmt.Errorf("%w: restaurant is required", ErrInvalidPost)
	case in.MaxParticipants < 0:
		return nil, fmt.Errorf("%w: max_participants must be >= 0", ErrInvalidPost)
	}

	status := domain.PostOpen
	if in.MaxParticipants == 1 {
		status = domain.PostClosed
	}
	now := time.Now().UTC()
	p := &domain.MeetupPost{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		Title:             in.Title,
		Restaurant:        in.Restaurant,
		Category:          strings.TrimSpace(in.Category),
		Location:          strings.TrimSpace(in.Location),
		Content:           strings.TrimSpace(in.Content),
		MeetAt:            in.MeetAt,
		MaxParticipants:   in.MaxParticipants,
		ParticipantsCount: 1,
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.Repo.CreatePost(ctx, tx, p); err != nil {
			return err
		}
		return s.Repo.AddParticipant(ctx, tx, p.ID, ownerID)
	})
	if err != nil {
		return nil, storageErr("create post", err)
	}
	span.SetAttributes(attribute.String("post.id", p.ID))
	return p, nil
}

// Get returns the post with its status derived from its counters.
func (s *PostService) Get(ctx context.Context, id string) (*domain.MeetupPost, error) {
	p, err := s.Repo.GetPost(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, storageErr("get post", err)
	}
	p.Status = p.EffectiveStatus()
	return p, nil
}

// ListOpen returns a page of posts that still accept participants, newest
// first, together with the total number of such posts.
func (s *PostService) ListOpen(ctx context.Context, page, pageSize int) ([]domain.MeetupPost, int64, error) {
	ctx, span := otel.Tracer("services/PostService").Start(ctx, "ListOpen",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, pageSize, offset := utils.Page(page, pageSize, 20, s.MaxPageSize)

	total, err := s.Repo.CountOpenPosts(ctx, s.DB)
	if err != nil {
		return nil, 0, storageErr("list posts", err)
	}
	if total == 0 {
		return []domain.MeetupPost{}, 0, nil
	}

	items, err := s.Repo.ListOpenPostsPage(ctx, s.DB, offset, pageSize)
	if err != nil {
		return nil, 0, storageErr("list posts", err)
	}
	for i := range items {
		items[i].Status = items[i].EffectiveStatus()
	}
	return items, total, nil
}

// Search returns open posts matching q. Without text the filtered posts come
// back newest first; with text only posts sharing a keyword are kept, best
// coverage first and newest first among equals.
func (s *PostService) Search(ctx context.Context, q PostQuery) ([]domain.MeetupPost, error) {
	ctx, span := otel.Tracer("services/PostService").Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("search.category", q.Category),
			attribute.String("search.location", q.Location),
			attribute.Bool("search.text", q.Text != ""),
		),
	)
	defer span.End()

	limit := q.Limit
	if limit <= 0 || limit > s.MaxPageSize {
		limit = s.MaxPageSize
	}
	filter := repo.PostFilter{
		Category: strings.TrimSpace(q.Category),
		Location: strings.TrimSpace(q.Location),
	}
	text := strings.TrimSpace(q.Text)

	scan := limit
	if text != "" {
		scan = s.SearchScan
	}
	candidates, err := s.Repo.FilterOpenPosts(ctx, s.DB, filter, scan)
	if err != nil {
		return nil, storageErr("search posts", err)
	}

	out := candidates
	if text != "" {
		docs := make([]search.Document, len(candidates))
		byID := make(map[string]domain.MeetupPost, len(candidates))
		for i, p := range candidates {
			docs[i] = search.Document{ID: p.ID, Fields: []string{p.Title, p.Restaurant, p.Category, p.Location, p.Content}}
			byID[p.ID] = p
		}
		hits := search.NewIndex(docs).TopK(text, limit)
		out = make([]domain.MeetupPost, 0, len(hits))
		for _, h := range hits {
			out = append(out, byID[h.ID])
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Status = out[i].EffectiveStatus()
	}
	span.SetAttributes(attribute.Int("search.results", len(out)))
	return out, nil
}

// Participants returns the roster of a post, owner first.
func (s *PostService) Participants(ctx context.Context, postID string) ([]domain.Participant, error) {
	if _, err := s.Get(ctx, postID); err != nil {
		return nil, err
	}
	items, err := s.Repo.ListParticipants(ctx, s.DB, postID)
	if err != nil {
		return nil, storageErr("list participants", err)
	}
	return items, nil
}

func (s *PostService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// collapseSpaces trims s and collapses inner whitespace runs to one space.
func collapseSpaces(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

var whitespaceRE = regexp.MustCompile(`\s+`)
