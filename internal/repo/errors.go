package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a row with the same unique key already exists.
var ErrDuplicate = errors.New("duplicate")

// ErrStaleVersion is returned by compare-and-set updates when the row was
// modified since it was read.
var ErrStaleVersion = errors.New("stale version")

// IsDuplicate reports whether err is a unique or primary key violation.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "constraint failed: primary key") ||
		strings.Contains(low, "duplicate key")
}

// IsContention reports whether err means a concurrent writer got in the way:
// a lost compare-and-set, or SQLite lock/busy errors (SQLITE_BUSY,
// SQLITE_BUSY_SNAPSHOT, SQLITE_LOCKED in shared-cache mode). Such errors are
// safe to retry from the beginning of the transaction.
func IsContention(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStaleVersion) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "database is locked") ||
		strings.Contains(low, "database table is locked") ||
		strings.Contains(low, "sqlite_busy") ||
		strings.Contains(low, "sqlite_locked") ||
		strings.Contains(low, "could not serialize access") ||
		strings.Contains(low, "deadlock")
}
