// Profile and matching HTTP handlers.
//
// This file exposes REST endpoints for the caller's profile and for
// companion discovery:
//   - PUT    /profile          (create or replace)
//   - GET    /profile
//   - GET    /recommendations  (ranked candidates)
//   - POST   /interests        (signal interest, may produce a mutual match)
//   - GET    /matches
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mealmate-backend/internal/matching"
	"github.com/tbourn/go-mealmate-backend/internal/services"
)

// ProfileRequest is the JSON payload for PUT /profile.
type ProfileRequest struct {
	DisplayName string   `json:"display_name" binding:"max=100" example:"Jin"`
	Region      string   `json:"region"       binding:"max=100" example:"Gangnam"`
	BudgetMin   *int     `json:"budget_min"   example:"10000"`
	BudgetMax   *int     `json:"budget_max"   example:"30000"`
	FoodTags    []string `json:"food_tags"    example:"korean,cafe"`
	TimeWindows []string `json:"time_windows" example:"weekday-evening"`
}

// InterestRequest is the JSON payload for POST /interests.
type InterestRequest struct {
	ToUserID string `json:"to_user_id" binding:"required" example:"user456"`
}

// RecommendationsResponse lists ranked candidates, best first.
type RecommendationsResponse struct {
	Recommendations []matching.Ranked `json:"recommendations"`
}

// MatchView is a mutual match seen from one side.
type MatchView struct {
	ID          string    `json:"id"           example:"user123:user456"`
	OtherUserID string    `json:"other_user_id" example:"user456"`
	CreatedAt   time.Time `json:"created_at"`
}

// MatchesResponse lists the caller's mutual matches.
type MatchesResponse struct {
	Matches []MatchView `json:"matches"`
}

// PutProfile godoc
// @ID          putProfile
// @Summary     Create or replace my profile
// @Description Tags and time windows are trimmed, case-folded, and de-duplicated. Any cached recommendations for the caller are dropped.
// @Tags        Profile
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.ProfileRequest  true  "Profile"
//
// @Success     200  {object} domain.UserProfile
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /profile [put]
func (h *Handlers) PutProfile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	p, err := h.profiles.Upsert(c.Request.Context(), userID(c), services.ProfileInput{
		DisplayName: req.DisplayName,
		Region:      req.Region,
		BudgetMin:   req.BudgetMin,
		BudgetMax:   req.BudgetMax,
		FoodTags:    req.FoodTags,
		TimeWindows: req.TimeWindows,
	})
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Get my profile
// @Tags        Profile
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object} domain.UserProfile
// @Failure     404  {object} handlers.ErrorResponse "No profile yet"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /profile [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}

// ListRecommendations godoc
// @ID          listRecommendations
// @Summary     Rank companions for me
// @Description Scores every other profile against the caller's and returns the best ones. A caller without a profile gets an empty list.
// @Tags        Matching
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object} handlers.RecommendationsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /recommendations [get]
func (h *Handlers) ListRecommendations(c *gin.Context) {
	items, err := h.recs.Recommend(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, RecommendationsResponse{Recommendations: nonNil(items)})
}

// RecordInterest godoc
// @ID          recordInterest
// @Summary     Signal interest in another user
// @Description Stores the signal. When the other user already signaled the caller, the pair becomes a mutual match and its canonical id is returned. Repeating is harmless.
// @Tags        Matching
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.InterestRequest  true  "Target user"
//
// @Success     200  {object} services.InterestResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /interests [post]
func (h *Handlers) RecordInterest(c *gin.Context) {
	var req InterestRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ToUserID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "to_user_id required")
		return
	}
	res, err := h.interests.RecordInterest(c.Request.Context(), userID(c), strings.TrimSpace(req.ToUserID))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, res)
}

// ListMatches godoc
// @ID          listMatches
// @Summary     List my mutual matches
// @Tags        Matching
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object} handlers.MatchesResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /matches [get]
func (h *Handlers) ListMatches(c *gin.Context) {
	uid := userID(c)
	items, err := h.interests.ListMatches(c.Request.Context(), uid)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	out := make([]MatchView, 0, len(items))
	for _, m := range items {
		out = append(out, MatchView{ID: m.ID, OtherUserID: m.Other(uid), CreatedAt: m.CreatedAt})
	}
	ok(c, http.StatusOK, MatchesResponse{Matches: out})
}
