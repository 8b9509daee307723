// Meetup post HTTP handlers.
//
// This file exposes REST endpoints for meetup posts:
//   - POST   /posts                    (create, owner auto-joins)
//   - GET    /posts                    (list open posts, paginated, ETag support)
//   - GET    /posts/{id}               (detail)
//   - GET    /posts/{id}/participants  (roster)
//   - GET    /search/posts             (keyword search with filters)
//
// It also holds the service contracts and helpers shared by every handler in
// this package. Handlers are transport-thin: they validate input, call
// application services, and translate results into HTTP responses
// (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
	"github.com/tbourn/go-mealmate-backend/internal/matching"
	"github.com/tbourn/go-mealmate-backend/internal/repo"
	"github.com/tbourn/go-mealmate-backend/internal/services"
	"github.com/tbourn/go-mealmate-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// PostService defines meetup post operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PostService interface {
	// Create stores a post owned by ownerID; the owner is its first participant.
	Create(ctx context.Context, ownerID string, in services.NewPost) (*domain.MeetupPost, error)
	// Get returns a post by id.
	Get(ctx context.Context, id string) (*domain.MeetupPost, error)
	// ListOpen returns a page of open posts and the total count.
	ListOpen(ctx context.Context, page, pageSize int) ([]domain.MeetupPost, int64, error)
	// Participants returns the roster of a post.
	Participants(ctx context.Context, postID string) ([]domain.Participant, error)
	// Search ranks open posts by keyword, optionally filtered.
	Search(ctx context.Context, q services.PostQuery) ([]domain.MeetupPost, error)
}

// AdmissionService defines the join request lifecycle.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AdmissionService interface {
	// Submit asks to join postID on behalf of fromUserID.
	Submit(ctx context.Context, postID, fromUserID string) (*domain.JoinRequest, error)
	// Accept admits the requester; only the post owner may call it.
	Accept(ctx context.Context, ownerID, requestID string) (*services.AdmissionResult, error)
	// Reject declines a pending request; only the post owner may call it.
	Reject(ctx context.Context, ownerID, requestID string) (*domain.JoinRequest, error)
	// Cancel withdraws the requester's own pending request.
	Cancel(ctx context.Context, requesterID, requestID string) error
	// ListReceived returns requests addressed to ownerID.
	ListReceived(ctx context.Context, ownerID string) ([]domain.JoinRequest, error)
	// ListSent returns requests sent by userID.
	ListSent(ctx context.Context, userID string) ([]domain.JoinRequest, error)
}

// ProfileService defines profile persistence.
type ProfileService interface {
	Upsert(ctx context.Context, userID string, in services.ProfileInput) (*domain.UserProfile, error)
	Get(ctx context.Context, userID string) (*domain.UserProfile, error)
}

// RecommendationService ranks candidate companions for a user.
type RecommendationService interface {
	Recommend(ctx context.Context, userID string) ([]matching.Ranked, error)
}

// InterestService records interest signals and lists mutual matches.
type InterestService interface {
	RecordInterest(ctx context.Context, from, to string) (services.InterestResult, error)
	ListMatches(ctx context.Context, userID string) ([]domain.MutualMatch, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for profiles, matching, posts, and join
// requests. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	posts     PostService
	admission AdmissionService
	profiles  ProfileService
	recs      RecommendationService
	interests InterestService

	// IdempotencyTTL bounds how long a submitted join request can be replayed
	// by its Idempotency-Key.
	IdempotencyTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(posts PostService, admission AdmissionService, profiles ProfileService, recs RecommendationService, interests InterestService) *Handlers {
	return &Handlers{
		posts:          posts,
		admission:      admission,
		profiles:       profiles,
		recs:           recs,
		interests:      interests,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// userID returns the caller resolved by the Auth middleware, or "demo-user"
// when the request is anonymous.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "demo-user"
}

//
// DTOs
//

// CreatePostRequest is the JSON payload for creating a meetup post.
type CreatePostRequest struct {
	Title      string     `json:"title"      binding:"required,max=255" example:"Friday ramen after work"`
	Restaurant string     `json:"restaurant" binding:"required,max=255" example:"Menya Sandaime"`
	Category   string     `json:"category"   example:"japanese"`
	Location   string     `json:"location"   example:"Gangnam station exit 11"`
	Content    string     `json:"content"    example:"Looking for two more people."`
	MeetAt     *time.Time `json:"meet_at"    example:"2026-10-16T19:00:00Z"`
	// MaxParticipants includes the owner; 0 means unbounded.
	MaxParticipants int `json:"max_participants" binding:"min=0" example:"4"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListPostsResponse wraps a page of posts and pagination information.
type ListPostsResponse struct {
	Posts      []domain.MeetupPost `json:"posts"`
	Pagination Pagination          `json:"pagination"`
}

// SearchPostsResponse lists search hits, best first.
type SearchPostsResponse struct {
	Posts []domain.MeetupPost `json:"posts"`
}

// ParticipantsResponse lists the participants of a post.
type ParticipantsResponse struct {
	Participants []domain.Participant `json:"participants"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// validID rejects path ids that are not UUIDs with a 400.
func validID(c *gin.Context, what string) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, what+" id must be a UUID")
		return "", false
	}
	return id, true
}

// notModified sets a weak ETag built from (count, latest update) and reports
// whether the request's If-None-Match already carries it.
func notModified(c *gin.Context, prefix string, count int64, maxTS *time.Time) bool {
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d"`, prefix, count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// postsDB returns the database behind the post service, if it is the
// concrete one.
func (h *Handlers) postsDB() *gorm.DB {
	if svc, ok := h.posts.(*services.PostService); ok {
		return svc.DB
	}
	return nil
}

//
// Handlers
//

// CreatePost godoc
// @ID          createPost
// @Summary     Create a meetup post
// @Description Creates a post owned by the current user. The owner is counted as the first participant; max_participants 0 means unbounded and 1 creates the post already closed.
// @Tags        Posts
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreatePostRequest  true  "Create post payload"
//
// @Success     201  {object}  domain.MeetupPost
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /posts [post]
func (h *Handlers) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title and restaurant required; max_participants must be >= 0")
		return
	}

	p, err := h.posts.Create(c.Request.Context(), userID(c), services.NewPost{
		Title:           req.Title,
		Restaurant:      req.Restaurant,
		Category:        req.Category,
		Location:        req.Location,
		Content:         req.Content,
		MeetAt:          req.MeetAt,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, p)
}

// ListPosts godoc
// @ID          listPosts
// @Summary     List open meetup posts (paginated)
// @Description Returns a page of posts that still accept participants, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Posts
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListPostsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /posts [get]
func (h *Handlers) ListPosts(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if db := h.postsDB(); db != nil {
		if count, maxTS, err := repo.OpenPostsStats(ctx, db); err == nil {
			if notModified(c, fmt.Sprintf("posts:%d:%d", page, pageSize), count, maxTS) {
				return
			}
		}
	}

	items, total, err := h.posts.ListOpen(ctx, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListPostsResponse{
		Posts: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// SearchPosts godoc
// @ID          searchPosts
// @Summary     Search open meetup posts
// @Description Keyword search over title, restaurant, category, location, and content. category matches exactly and location as a substring, both case-insensitively. Without q the filtered posts are returned newest first.
// @Tags        Posts
// @Produce     json
//
// @Param       q         query  string  false "Keywords"            example(ramen gangnam)
// @Param       category  query  string  false "Category filter"     example(japanese)
// @Param       location  query  string  false "Location filter"     example(Gangnam)
// @Param       limit     query  int     false "Max results"         minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.SearchPostsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /search/posts [get]
func (h *Handlers) SearchPosts(c *gin.Context) {
	items, err := h.posts.Search(c.Request.Context(), services.PostQuery{
		Text:     c.Query("q"),
		Category: c.Query("category"),
		Location: c.Query("location"),
		Limit:    utils.AtoiDefault(c.Query("limit"), 20),
	})
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, SearchPostsResponse{Posts: nonNil(items)})
}

// GetPost godoc
// @ID          getPost
// @Summary     Get a meetup post
// @Tags        Posts
// @Produce     json
//
// @Param       id  path  string  true  "Post ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.MeetupPost
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Post not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /posts/{id} [get]
func (h *Handlers) GetPost(c *gin.Context) {
	id, valid := validID(c, "post")
	if !valid {
		return
	}
	p, err := h.posts.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}

// ListParticipants godoc
// @ID          listParticipants
// @Summary     List the participants of a meetup post
// @Description Owner first, then in order of admission.
// @Tags        Posts
// @Produce     json
//
// @Param       id  path  string  true  "Post ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.ParticipantsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Post not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /posts/{id}/participants [get]
func (h *Handlers) ListParticipants(c *gin.Context) {
	id, valid := validID(c, "post")
	if !valid {
		return
	}
	items, err := h.posts.Participants(c.Request.Context(), id)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ParticipantsResponse{Participants: items})
}
