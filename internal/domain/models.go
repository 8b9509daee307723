// Package domain defines the persistence models for profiles, interest
// signals, mutual matches, meetup posts, participants, and join requests.
// These types are mapped with GORM and form the core data layer of the
// meetup application.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// PostStatus is the lifecycle state of a meetup post.
type PostStatus string

const (
	PostOpen   PostStatus = "open"
	PostClosed PostStatus = "closed"
)

// RequestStatus is the state of a join request. Pending is the only
// non-terminal state.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestMatched  RequestStatus = "matched"
	RequestRejected RequestStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestMatched || s == RequestRejected
}

// UserProfile holds the matching preferences of a user. It is written by the
// profile surface and read-only to scoring.
//
// Fields:
//   - UserID: owner identity, primary key.
//   - Region: free-form area name; empty means unknown.
//   - BudgetMin / BudgetMax: optional meal-cost range.
//   - FoodTags / TimeWindows: sets stored as JSON arrays.
type UserProfile struct {
	UserID      string                      `json:"user_id"      gorm:"type:varchar(64);primaryKey"`
	DisplayName string                      `json:"display_name" gorm:"type:varchar(100)"`
	Region      string                      `json:"region"       gorm:"type:varchar(100);index"`
	BudgetMin   *int                        `json:"budget_min,omitempty"`
	BudgetMax   *int                        `json:"budget_max,omitempty"`
	FoodTags    datatypes.JSONSlice[string] `json:"food_tags"`
	TimeWindows datatypes.JSONSlice[string] `json:"time_windows"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// TableName returns the database table name for UserProfile.
func (UserProfile) TableName() string { return "profiles" }

// InterestSignal is a one-directional expression of interest. The ordered
// pair (from, to) is the primary key, so re-signaling is a no-op.
type InterestSignal struct {
	FromUserID string    `json:"from_user_id" gorm:"type:varchar(64);primaryKey"`
	ToUserID   string    `json:"to_user_id"   gorm:"type:varchar(64);primaryKey;index"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for InterestSignal.
func (InterestSignal) TableName() string { return "interests" }

// MutualMatch records that both directions of interest exist between two
// users. UserAID < UserBID always holds, and ID is MatchKey(UserAID, UserBID),
// so there is at most one row per unordered pair.
type MutualMatch struct {
	ID        string    `json:"id"        gorm:"type:varchar(160);primaryKey"`
	UserAID   string    `json:"user_a_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_match_pair,priority:1"`
	UserBID   string    `json:"user_b_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_match_pair,priority:2;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for MutualMatch.
func (MutualMatch) TableName() string { return "matches" }

// Other returns the counterpart of userID in the match, or "" when userID
// is not part of it.
func (m MutualMatch) Other(userID string) string {
	switch userID {
	case m.UserAID:
		return m.UserBID
	case m.UserBID:
		return m.UserAID
	}
	return ""
}

// CanonicalPair orders two user ids so the smaller one comes first.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// MatchKey returns the canonical storage key for the unordered pair {a, b}.
func MatchKey(a, b string) string {
	lo, hi := CanonicalPair(a, b)
	return lo + ":" + hi
}

// MeetupPost is a capacity-bounded invitation to eat together. The owner is
// counted as the first participant.
//
// Fields:
//   - MaxParticipants: cap including the owner; 0 means unbounded.
//   - ParticipantsCount: current number of Participant rows.
//   - Status: open or closed. Mutated together with ParticipantsCount only
//     inside the admission transaction.
//   - Version: optimistic concurrency token bumped on every admission.
type MeetupPost struct {
	ID                string     `json:"id"                 gorm:"type:char(36);primaryKey"`
	OwnerID           string     `json:"owner_id"           gorm:"type:varchar(64);not null;index"`
	Title             string     `json:"title"              gorm:"type:varchar(255);not null"`
	Restaurant        string     `json:"restaurant"         gorm:"type:varchar(255);not null"`
	Category          string     `json:"category,omitempty" gorm:"type:varchar(64)"`
	Location          string     `json:"location,omitempty" gorm:"type:varchar(255)"`
	Content           string     `json:"content,omitempty"  gorm:"type:text"`
	MeetAt            *time.Time `json:"meet_at,omitempty"`
	MaxParticipants   int        `json:"max_participants"   gorm:"not null;default:0;check:max_participants >= 0"`
	ParticipantsCount int        `json:"participants_count" gorm:"not null;default:1"`
	Status            PostStatus `json:"status"             gorm:"type:varchar(16);not null;default:'open';index;check:status IN ('open','closed')"`
	Version           int64      `json:"-"                  gorm:"not null;default:0"`
	CreatedAt         time.Time  `json:"created_at"         gorm:"index"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName returns the database table name for MeetupPost.
func (MeetupPost) TableName() string { return "posts" }

// Full reports whether the post has reached a positive cap.
func (p MeetupPost) Full() bool {
	return p.MaxParticipants > 0 && p.ParticipantsCount >= p.MaxParticipants
}

// EffectiveStatus derives the status from the counters rather than trusting
// the stored flag. Readers outside the admission transaction should display
// this value.
func (p MeetupPost) EffectiveStatus() PostStatus {
	if p.Full() {
		return PostClosed
	}
	return p.Status
}

// Participant is one joined user of a post, keyed by (post, user) so that an
// already-present user cannot be inserted twice.
type Participant struct {
	PostID   string    `json:"post_id"   gorm:"type:char(36);primaryKey"`
	UserID   string    `json:"user_id"   gorm:"type:varchar(64);primaryKey;index"`
	JoinedAt time.Time `json:"joined_at"`

	Post MeetupPost `json:"-" gorm:"foreignKey:PostID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Participant.
func (Participant) TableName() string { return "participants" }

// JoinRequest asks the owner of a post (ToUserID) to admit FromUserID.
type JoinRequest struct {
	ID          string        `json:"id"           gorm:"type:char(36);primaryKey"`
	PostID      string        `json:"post_id"      gorm:"type:char(36);not null;index:idx_request_post_from,priority:1"`
	FromUserID  string        `json:"from_user_id" gorm:"type:varchar(64);not null;index:idx_request_post_from,priority:2;index"`
	ToUserID    string        `json:"to_user_id"   gorm:"type:varchar(64);not null;index"`
	Status      RequestStatus `json:"status"       gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','matched','rejected')"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	RespondedAt *time.Time    `json:"responded_at,omitempty"`

	Post MeetupPost `json:"-" gorm:"foreignKey:PostID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for JoinRequest.
func (JoinRequest) TableName() string { return "requests" }
