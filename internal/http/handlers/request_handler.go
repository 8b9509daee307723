// Join request HTTP handlers.
//
// This file exposes REST endpoints for the join request lifecycle:
//   - POST   /posts/{id}/requests     (submit, Idempotency-Key aware)
//   - GET    /requests/received       (owner inbox, ETag support)
//   - GET    /requests/sent           (requester outbox)
//   - POST   /requests/{id}/accept    (owner admits the requester)
//   - POST   /requests/{id}/reject    (owner declines)
//   - DELETE /requests/{id}           (requester withdraws a pending request)
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
	"github.com/tbourn/go-mealmate-backend/internal/http/middleware"
	"github.com/tbourn/go-mealmate-backend/internal/repo"
	"github.com/tbourn/go-mealmate-backend/internal/services"
)

// RequestsResponse lists join requests.
type RequestsResponse struct {
	Requests []domain.JoinRequest `json:"requests"`
}

func (h *Handlers) admissionDB() *gorm.DB {
	if svc, ok := h.admission.(*services.AdmissionService); ok {
		return svc.DB
	}
	return nil
}

// SubmitJoinRequest godoc
// @ID          submitJoinRequest
// @Summary     Ask to join a meetup post
// @Description Creates a pending join request addressed to the post owner. A second submission while one is pending returns the existing request. With an Idempotency-Key, a retried submission replays the original request with 200 and Idempotency-Replayed: true.
// @Tags        Requests
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Client retry key"       example(join-7f3a)
// @Param       id               path    string  true  "Post ID (UUID)"         format(uuid)
//
// @Success     201  {object} domain.JoinRequest
// @Success     200  {object} domain.JoinRequest "Replayed"
// @Failure     400  {object} handlers.ErrorResponse "Bad request or own post"
// @Failure     404  {object} handlers.ErrorResponse "Post not found"
// @Failure     409  {object} handlers.ErrorResponse "meetup_full or meetup_closed"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /posts/{id}/requests [post]
func (h *Handlers) SubmitJoinRequest(c *gin.Context) {
	ctx := c.Request.Context()
	postID, valid := validID(c, "post")
	if !valid {
		return
	}
	uid := userID(c)
	db := h.admissionDB()

	// A replayed key returns the join request it produced the first time,
	// whatever its status is now.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && db != nil {
		rid, replay := middleware.ReplayedRequestID(c)
		if !replay {
			if rec, err := repo.GetIdempotency(ctx, db, uid, postID, idemKey, time.Now().UTC()); err == nil {
				rid, replay = rec.RequestID, true
			}
		}
		if replay {
			if prev, err := repo.GetRequest(ctx, db, rid); err == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, prev)
				return
			}
		}
	}

	req, err := h.admission.Submit(ctx, postID, uid)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}

	if idemKey != "" && db != nil {
		_, err := repo.CreateIdempotency(ctx, db, uid, postID, idemKey, req.ID, h.IdempotencyTTL)
		if err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Str("post_id", postID).Msg("idempotency record not stored")
		}
	}
	ok(c, http.StatusCreated, req)
}

// AcceptJoinRequest godoc
// @ID          acceptJoinRequest
// @Summary     Accept a join request
// @Description Admits the requester into the post. The post closes when this fills its last slot. Accepting a requester who is already a participant returns duplicate=true without changing the count. 202 means the requester was admitted but the request status could not be written yet; accepting again repairs it. 409 invalid_state is returned instead when the request was settled elsewhere in the meantime.
// @Tags        Requests
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Request ID (UUID)"      format(uuid)
//
// @Success     200  {object} services.AdmissionResult
// @Success     202  {object} services.AdmissionResult "Admitted, status write pending"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not the post owner"
// @Failure     404  {object} handlers.ErrorResponse "Request or post not found"
// @Failure     409  {object} handlers.ErrorResponse "meetup_full, meetup_closed, invalid_state, or conflict"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /requests/{id}/accept [post]
func (h *Handlers) AcceptJoinRequest(c *gin.Context) {
	id, valid := validID(c, "request")
	if !valid {
		return
	}
	res, err := h.admission.Accept(c.Request.Context(), userID(c), id)
	if err != nil {
		if services.StatusRepairable(err) && res != nil {
			ok(c, http.StatusAccepted, res)
			return
		}
		if errors.Is(err, services.ErrRequestStatusStale) {
			// Admitted, but the request was settled elsewhere; retrying
			// the accept cannot change it.
			fail(c, http.StatusConflict, ErrCodeInvalidState, err.Error())
			return
		}
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, res)
}

// RejectJoinRequest godoc
// @ID          rejectJoinRequest
// @Summary     Reject a join request
// @Tags        Requests
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Request ID (UUID)"      format(uuid)
//
// @Success     200  {object} domain.JoinRequest
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not the post owner"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Failure     409  {object} handlers.ErrorResponse "invalid_state"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /requests/{id}/reject [post]
func (h *Handlers) RejectJoinRequest(c *gin.Context) {
	id, valid := validID(c, "request")
	if !valid {
		return
	}
	req, err := h.admission.Reject(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, req)
}

// CancelJoinRequest godoc
// @ID          cancelJoinRequest
// @Summary     Withdraw a pending join request
// @Tags        Requests
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Request ID (UUID)"      format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not the requester"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Failure     409  {object} handlers.ErrorResponse "Already answered"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /requests/{id} [delete]
func (h *Handlers) CancelJoinRequest(c *gin.Context) {
	id, valid := validID(c, "request")
	if !valid {
		return
	}
	if err := h.admission.Cancel(c.Request.Context(), userID(c), id); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// ListReceivedRequests godoc
// @ID          listReceivedRequests
// @Summary     List join requests addressed to me
// @Description Newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Requests
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
//
// @Success     200  {object} handlers.RequestsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /requests/received [get]
func (h *Handlers) ListReceivedRequests(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	if db := h.admissionDB(); db != nil {
		if count, maxTS, err := repo.ReceivedRequestsStats(ctx, db, uid); err == nil {
			if notModified(c, "requests:"+uid, count, maxTS) {
				return
			}
		}
	}

	items, err := h.admission.ListReceived(ctx, uid)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, RequestsResponse{Requests: nonNil(items)})
}

// ListSentRequests godoc
// @ID          listSentRequests
// @Summary     List join requests I sent
// @Tags        Requests
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object} handlers.RequestsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /requests/sent [get]
func (h *Handlers) ListSentRequests(c *gin.Context) {
	items, err := h.admission.ListSent(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, RequestsResponse{Requests: nonNil(items)})
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
