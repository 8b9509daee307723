// Package services – AdmissionService
//
// This file implements AdmissionService, the owner of the join request state
// machine:
//
//	pending --accept--> matched
//	pending --reject--> rejected
//
// Both targets are terminal. Accept is the only operation that mutates a
// post's (participants_count, status) pair. It runs as one database
// transaction guarded by the post's version column, so two concurrent
// acceptances racing for the last slot cannot both succeed. Lost races are
// retried with exponential backoff; the business outcomes not found, closed,
// and full are returned as-is and never retried.
//
// The request's matched status is written after the admission commits, in a
// separate write with its own small retry budget. If that write fails the
// inconsistency is logged at error level and reported as
// ErrRequestStatusStale. The capacity transaction is never re-run for it.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
	"github.com/tbourn/go-mealmate-backend/internal/repo"
)

const admissionTracer = "services/AdmissionService"

// Defaults for the retry budgets.
const (
	defaultAdmissionTries = 5
	defaultStatusTries    = 3
	defaultRetryBase      = 10 * time.Millisecond
	maxRetryInterval      = 500 * time.Millisecond
)

// AdmissionService submits, accepts, rejects, and cancels join requests.
type AdmissionService struct {
	DB *gorm.DB

	// MaxRetries is the number of attempts for the admission transaction.
	MaxRetries int
	// StatusRetries is the number of attempts for the post-commit status write.
	StatusRetries int
	// RetryBase is the first backoff interval; later ones grow exponentially.
	RetryBase time.Duration
}

// NewAdmissionService constructs an AdmissionService with default retry budgets.
func NewAdmissionService(db *gorm.DB) *AdmissionService {
	return &AdmissionService{
		DB:            db,
		MaxRetries:    defaultAdmissionTries,
		StatusRetries: defaultStatusTries,
		RetryBase:     defaultRetryBase,
	}
}

// AdmissionResult describes a successful acceptance.
type AdmissionResult struct {
	Request *domain.JoinRequest `json:"request"`
	// Post is the post as committed by the admission transaction.
	Post *domain.MeetupPost `json:"post"`
	// Duplicate is true when the user was already a participant and the
	// count was left unchanged.
	Duplicate bool `json:"duplicate"`
}

// Submit creates a pending join request from fromUserID to the owner of
// postID. If the user already has a pending request for the post, that
// request is returned instead of a new one.
func (s *AdmissionService) Submit(ctx context.Context, postID, fromUserID string) (*domain.JoinRequest, error) {
	ctx, span := otel.Tracer(admissionTracer).Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("post.id", postID),
			attribute.String("user.id", fromUserID),
		),
	)
	defer span.End()

	if fromUserID == "" {
		return nil, ErrEmptyUserID
	}

	post, err := repo.GetPost(ctx, s.DB, postID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, storageErr("submit", err)
	}
	if post.OwnerID == fromUserID {
		return nil, ErrOwnRequest
	}
	if post.EffectiveStatus() == domain.PostClosed {
		if post.Full() {
			return nil, ErrPostFull
		}
		return nil, ErrPostClosed
	}

	existing, err := repo.FindPendingRequest(ctx, s.DB, postID, fromUserID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, repo.ErrNotFound):
		return nil, storageErr("submit", err)
	}

	req, err := repo.CreateRequest(ctx, s.DB, postID, fromUserID, post.OwnerID)
	if err != nil {
		return nil, storageErr("submit", err)
	}
	return req, nil
}

// Accept admits the requester of requestID into the post. Only the post
// owner (the request's recipient) may accept.
//
// Errors:
//   - ErrRequestNotFound, ErrForbidden, ErrInvalidStateTransition: checked
//     before any write.
//   - ErrPostNotFound, ErrPostClosed, ErrPostFull: the admission was refused
//     and nothing changed.
//   - ErrAdmissionConflict: concurrent writers won every attempt.
//   - ErrRequestStatusStale: the user was admitted but the request still
//     reads pending. The result is returned alongside this error. When the
//     cause also matches ErrInvalidStateTransition or ErrRequestNotFound the
//     request left pending some other way and accepting again cannot help;
//     see StatusRepairable.
//   - *StorageError: any other backend failure.
func (s *AdmissionService) Accept(ctx context.Context, ownerID, requestID string) (*AdmissionResult, error) {
	ctx, span := otel.Tracer(admissionTracer).Start(ctx, "Accept",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("user.id", ownerID),
		),
	)
	defer span.End()

	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ToUserID != ownerID {
		return nil, ErrForbidden
	}
	if req.Status.Terminal() {
		return nil, ErrInvalidStateTransition
	}
	span.SetAttributes(attribute.String("post.id", req.PostID))

	res, err := s.admit(ctx, req)
	if err != nil {
		admissionOutcomes.WithLabelValues(outcomeOf(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Request = req

	// The admission is committed; a caller that goes away now must not
	// leave the request pending.
	if err := s.markMatched(context.WithoutCancel(ctx), req); err != nil {
		admissionOutcomes.WithLabelValues(outcomeStatusStale).Inc()
		loggerFrom(ctx).Error().
			Err(err).
			Str("request_id", req.ID).
			Str("post_id", req.PostID).
			Str("participant_id", req.FromUserID).
			Msg("participant admitted but join request status not updated")
		span.RecordError(err)
		return res, fmt.Errorf("%w: %w", ErrRequestStatusStale, err)
	}

	if res.Duplicate {
		admissionOutcomes.WithLabelValues(outcomeDuplicate).Inc()
	} else {
		admissionOutcomes.WithLabelValues(outcomeAdmitted).Inc()
	}
	span.SetAttributes(attribute.Bool("admission.duplicate", res.Duplicate))
	return res, nil
}

// Reject moves a pending request to rejected. Only the post owner may reject.
// The post is not touched. A request whose user was already admitted is
// refused with ErrInvalidStateTransition.
func (s *AdmissionService) Reject(ctx context.Context, ownerID, requestID string) (*domain.JoinRequest, error) {
	ctx, span := otel.Tracer(admissionTracer).Start(ctx, "Reject",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("user.id", ownerID),
		),
	)
	defer span.End()

	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ToUserID != ownerID {
		return nil, ErrForbidden
	}
	if req.Status.Terminal() {
		return nil, ErrInvalidStateTransition
	}

	var ok bool
	err = s.unlessAdmitted(ctx, req, func(tx *gorm.DB) (err error) {
		ok, err = repo.TransitionRequest(ctx, tx, req.ID, domain.RequestPending, domain.RequestRejected)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidStateTransition) {
			return nil, err
		}
		return nil, storageErr("reject", err)
	}
	if !ok {
		// Lost to a concurrent accept, reject, or cancel.
		if _, err := s.loadRequest(ctx, requestID); err != nil {
			return nil, err
		}
		return nil, ErrInvalidStateTransition
	}
	return s.loadRequest(ctx, requestID)
}

// Cancel deletes the caller's own pending request. Like Reject, it refuses
// once the caller was admitted.
func (s *AdmissionService) Cancel(ctx context.Context, requesterID, requestID string) error {
	ctx, span := otel.Tracer(admissionTracer).Start(ctx, "Cancel",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("user.id", requesterID),
		),
	)
	defer span.End()

	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.FromUserID != requesterID {
		return ErrForbidden
	}
	if req.Status.Terminal() {
		return ErrInvalidStateTransition
	}
	var ok bool
	err = s.unlessAdmitted(ctx, req, func(tx *gorm.DB) (err error) {
		ok, err = repo.DeletePendingRequest(ctx, tx, req.ID, requesterID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidStateTransition) {
			return err
		}
		return storageErr("cancel", err)
	}
	if !ok {
		return ErrInvalidStateTransition
	}
	return nil
}

// ListReceived returns the requests addressed to ownerID, newest first.
func (s *AdmissionService) ListReceived(ctx context.Context, ownerID string) ([]domain.JoinRequest, error) {
	items, err := repo.ListReceivedRequests(ctx, s.DB, ownerID)
	if err != nil {
		return nil, storageErr("list received", err)
	}
	return items, nil
}

// ListSent returns the requests sent by userID, newest first.
func (s *AdmissionService) ListSent(ctx context.Context, userID string) ([]domain.JoinRequest, error) {
	items, err := repo.ListSentRequests(ctx, s.DB, userID)
	if err != nil {
		return nil, storageErr("list sent", err)
	}
	return items, nil
}

// unlessAdmitted runs fn in a transaction unless the requester of req is
// already a participant of the post. A pending request whose user is seated
// is an accept whose status write has not landed yet; only Accept may
// finish it.
func (s *AdmissionService) unlessAdmitted(ctx context.Context, req *domain.JoinRequest, fn func(tx *gorm.DB) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		joined, err := isParticipant(ctx, tx, req.PostID, req.FromUserID)
		if err != nil {
			return err
		}
		if joined {
			return fmt.Errorf("%w: requester already joined the meetup", ErrInvalidStateTransition)
		}
		return fn(tx)
	})
}

func (s *AdmissionService) loadRequest(ctx context.Context, id string) (*domain.JoinRequest, error) {
	req, err := repo.GetRequest(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, storageErr("load request", err)
	}
	return req, nil
}

// admit runs the admission transaction until it commits, hits a business
// outcome, or exhausts MaxRetries.
func (s *AdmissionService) admit(ctx context.Context, req *domain.JoinRequest) (*AdmissionResult, error) {
	attempt := 0
	op := func() (*AdmissionResult, error) {
		attempt++
		if attempt > 1 {
			admissionRetries.Inc()
		}
		res, err := s.admitOnce(ctx, req.PostID, req.FromUserID)
		if err == nil {
			return res, nil
		}
		if retryable(err) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(tries(s.MaxRetries, defaultAdmissionTries))),
		backoff.WithNotify(func(err error, next time.Duration) {
			loggerFrom(ctx).Debug().
				Err(err).
				Str("post_id", req.PostID).
				Dur("backoff", next).
				Msg("admission contention, retrying")
		}),
	)
	if err == nil {
		return res, nil
	}
	err = unwrapPermanent(err)

	switch {
	case errors.Is(err, ErrPostNotFound),
		errors.Is(err, ErrPostClosed),
		errors.Is(err, ErrPostFull):
		return nil, err
	case retryable(err):
		loggerFrom(ctx).Warn().
			Err(err).
			Str("post_id", req.PostID).
			Int("attempts", attempt).
			Msg("admission retries exhausted")
		return nil, ErrAdmissionConflict
	default:
		return nil, storageErr("accept", err)
	}
}

// admitOnce is one attempt of the admission transaction:
//
//  1. read the post; absent -> ErrPostNotFound
//  2. participant already present -> duplicate admission, no writes
//  3. closed -> ErrPostClosed
//  4. full -> ErrPostFull
//  5. insert participant, write count+1 and closed when the cap is reached,
//     conditional on the version read in step 1
//
// The participant lookup comes before the capacity checks so that a request
// whose status write was lost can still be repaired after the post filled.
func (s *AdmissionService) admitOnce(ctx context.Context, postID, userID string) (*AdmissionResult, error) {
	var out AdmissionResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := repo.GetPost(ctx, tx, postID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrPostNotFound
			}
			return err
		}
		joined, err := isParticipant(ctx, tx, postID, userID)
		if err != nil {
			return err
		}
		if joined {
			out.Duplicate = true
			out.Post = post
			return nil
		}
		if post.Status == domain.PostClosed {
			return ErrPostClosed
		}
		if post.Full() {
			return ErrPostFull
		}

		if err := repo.AddParticipant(ctx, tx, postID, userID); err != nil {
			return err
		}
		next := post.ParticipantsCount + 1
		status := domain.PostOpen
		if post.MaxParticipants > 0 && next >= post.MaxParticipants {
			status = domain.PostClosed
		}
		if err := repo.UpdatePostCounters(ctx, tx, post.ID, post.Version, next, status); err != nil {
			return err
		}

		post.ParticipantsCount = next
		post.Status = status
		post.Version++
		out.Post = post
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func isParticipant(ctx context.Context, tx *gorm.DB, postID, userID string) (bool, error) {
	_, err := repo.GetParticipant(ctx, tx, postID, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repo.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// markMatched writes pending -> matched for req. A request already matched
// by a concurrent accept counts as success.
func (s *AdmissionService) markMatched(ctx context.Context, req *domain.JoinRequest) error {
	op := func() (domain.RequestStatus, error) {
		ok, err := repo.TransitionRequest(ctx, s.DB, req.ID, domain.RequestPending, domain.RequestMatched)
		if err != nil {
			return "", err
		}
		if ok {
			return domain.RequestMatched, nil
		}
		cur, err := repo.GetRequest(ctx, s.DB, req.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", backoff.Permanent(ErrRequestNotFound)
			}
			return "", err
		}
		if cur.Status == domain.RequestMatched {
			return cur.Status, nil
		}
		return "", backoff.Permanent(fmt.Errorf("%w: request is %s", ErrInvalidStateTransition, cur.Status))
	}

	st, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(tries(s.StatusRetries, defaultStatusTries))),
	)
	if err != nil {
		return unwrapPermanent(err)
	}
	now := time.Now().UTC()
	req.Status = st
	req.UpdatedAt = now
	req.RespondedAt = &now
	return nil
}

func (s *AdmissionService) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.RetryBase
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultRetryBase
	}
	b.MaxInterval = maxRetryInterval
	return b
}

// retryable reports whether err came from a concurrent writer rather than
// from the data itself.
func retryable(err error) bool {
	return repo.IsContention(err) || errors.Is(err, repo.ErrDuplicate)
}

// unwrapPermanent strips the backoff.PermanentError wrapper, which Retry
// leaves in place when the last allowed attempt returned it.
func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}

func tries(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// StatusRepairable reports whether err is an ErrRequestStatusStale that a
// later Accept of the same request can repair.
func StatusRepairable(err error) bool {
	return errors.Is(err, ErrRequestStatusStale) &&
		!errors.Is(err, ErrInvalidStateTransition) &&
		!errors.Is(err, ErrRequestNotFound)
}

// outcomeOf maps an Accept error to its metrics label.
func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrPostFull):
		return outcomeFull
	case errors.Is(err, ErrPostClosed):
		return outcomeClosed
	case errors.Is(err, ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, ErrAdmissionConflict):
		return outcomeConflict
	default:
		return outcomeError
	}
}
