// Package services defines the business logic for profiles, interests,
// meetup posts, and admission of join requests. This file centralizes the
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

// ErrNotFound is the common parent of every "referenced entity is absent"
// error. Use errors.Is(err, ErrNotFound) to test for any of them.
var ErrNotFound = errors.New("not found")

// Lookup errors.
var (
	// ErrPostNotFound indicates that the referenced meetup post does not exist.
	ErrPostNotFound = fmt.Errorf("post %w", ErrNotFound)

	// ErrRequestNotFound indicates that the referenced join request does not
	// exist or is not visible to the caller.
	ErrRequestNotFound = fmt.Errorf("join request %w", ErrNotFound)

	// ErrProfileNotFound indicates that the user has no profile yet.
	ErrProfileNotFound = fmt.Errorf("profile %w", ErrNotFound)
)

// Admission errors.
var (
	// ErrPostClosed is returned when a post no longer accepts participants.
	ErrPostClosed = errors.New("meetup is already closed")

	// ErrPostFull is returned when a post has reached its participant cap.
	ErrPostFull = errors.New("meetup is already full")

	// ErrInvalidStateTransition is returned when acting on a join request
	// that is already matched or rejected.
	ErrInvalidStateTransition = errors.New("join request is no longer pending")

	// ErrAdmissionConflict is returned when the admission transaction kept
	// losing to concurrent writers and the retry budget ran out.
	ErrAdmissionConflict = errors.New("admission conflict, retries exhausted")

	// ErrRequestStatusStale is returned when the participant was admitted but
	// the join request status could not be recorded afterwards. The request
	// still reads pending and needs reconciliation.
	ErrRequestStatusStale = errors.New("participant admitted but request status not updated")
)

// Input and permission errors.
var (
	// ErrSelfInterest is returned when a user signals interest in themselves.
	ErrSelfInterest = errors.New("cannot signal interest in yourself")

	// ErrOwnRequest is returned when a post owner asks to join their own post.
	ErrOwnRequest = errors.New("cannot request to join your own meetup")

	// ErrForbidden is returned when the caller is not allowed to act on the
	// referenced resource (e.g., accepting a request for someone else's post).
	ErrForbidden = errors.New("not allowed")

	// ErrInvalidPost is returned when a new post fails validation.
	ErrInvalidPost = errors.New("invalid post")

	// ErrInvalidProfile is returned when a profile fails validation.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrEmptyUserID is returned when an operation is invoked without a
	// caller or target identity.
	ErrEmptyUserID = errors.New("user id is empty")
)

// ErrStorage is matched by every StorageError via errors.Is.
var ErrStorage = errors.New("storage error")

// StorageError wraps a failure of the backing store. Op names the service
// operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorage, e.Err)
}

// Unwrap exposes the underlying driver error.
func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorage) true for any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// storageErr wraps err as a StorageError unless it is nil or already one.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
