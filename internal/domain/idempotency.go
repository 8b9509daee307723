package domain

import "time"

// Idempotency remembers which join request a client retry key produced, so a
// retried submission to the same post returns that request instead of
// creating another. Keys are per (user, post) and expire after ExpiresAt.
type Idempotency struct {
	ID        string    `json:"-" gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:TEXT NOT NULL;uniqueIndex:ux_join_key,priority:1"`
	PostID    string    `json:"post_id"    gorm:"type:TEXT NOT NULL;uniqueIndex:ux_join_key,priority:2"`
	Key       string    `json:"key"        gorm:"type:TEXT NOT NULL;uniqueIndex:ux_join_key,priority:3"`
	RequestID string    `json:"request_id" gorm:"type:TEXT NOT NULL"`
	CreatedAt time.Time `json:"created_at" gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `json:"expires_at" gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "join_request_keys" }

// Live reports whether the key can still be replayed at now.
func (i Idempotency) Live(now time.Time) bool { return now.Before(i.ExpiresAt) }
