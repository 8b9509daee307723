package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedPost(t *testing.T, db *gorm.DB, p domain.MeetupPost) *domain.MeetupPost {
	t.Helper()
	if p.Status == "" {
		p.Status = domain.PostOpen
	}
	if p.ParticipantsCount == 0 {
		p.ParticipantsCount = 1
	}
	if p.OwnerID == "" {
		p.OwnerID = "owner"
	}
	if p.Title == "" {
		p.Title = "lunch"
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed post %s: %v", p.ID, err)
	}
	return &p
}

func TestOpenPostsStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, err := OpenPostsStats(context.Background(), db); err == nil {
		t.Fatalf("expected error due to missing posts table")
	}
}

func TestOpenPostsStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.MeetupPost{})
	count, maxAt, err := OpenPostsStats(context.Background(), db)
	if err != nil {
		t.Fatalf("OpenPostsStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestOpenPostsStats_IgnoresClosedAndFull(t *testing.T) {
	db := newTestDB(t, &domain.MeetupPost{})

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // max among open
	t3 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)   // closed, ignored
	t4 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)   // full but open flag, ignored

	seedPost(t, db, domain.MeetupPost{ID: "p1", MaxParticipants: 4, CreatedAt: t1, UpdatedAt: t1})
	seedPost(t, db, domain.MeetupPost{ID: "p2", MaxParticipants: 0, CreatedAt: t2, UpdatedAt: t2})
	seedPost(t, db, domain.MeetupPost{ID: "p3", MaxParticipants: 4, Status: domain.PostClosed, CreatedAt: t3, UpdatedAt: t3})
	seedPost(t, db, domain.MeetupPost{ID: "p4", MaxParticipants: 2, ParticipantsCount: 2, CreatedAt: t4, UpdatedAt: t4})

	count, maxAt, err := OpenPostsStats(context.Background(), db)
	if err != nil {
		t.Fatalf("OpenPostsStats error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected maxUpdatedAt %v, got %v", t2, maxAt)
	}
}

// Force the second query (SELECT updated_at ...) to fail by renaming the column.
func TestOpenPostsStats_SelectLatest_ErrorPath(t *testing.T) {
	db := newTestDB(t, &domain.MeetupPost{})
	now := time.Now().UTC()
	seedPost(t, db, domain.MeetupPost{ID: "px", CreatedAt: now, UpdatedAt: now})

	if err := db.Exec(`ALTER TABLE posts RENAME COLUMN updated_at TO updated_at_old`).Error; err != nil {
		t.Fatalf("rename column: %v", err)
	}
	if _, _, err := OpenPostsStats(context.Background(), db); err == nil {
		t.Fatalf("expected error from latest-updated select after column rename")
	}
}

func TestReceivedRequestsStats_FilterAndMax(t *testing.T) {
	db := newTestDB(t, &domain.MeetupPost{}, &domain.JoinRequest{})
	seedPost(t, db, domain.MeetupPost{ID: "p1", OwnerID: "o1"})

	t1 := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 4, 1, 12, 5, 0, 0, time.UTC) // max for o1
	t3 := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)  // other owner

	rows := []domain.JoinRequest{
		{ID: "r1", PostID: "p1", FromUserID: "a", ToUserID: "o1", Status: domain.RequestPending, CreatedAt: t1, UpdatedAt: t1},
		{ID: "r2", PostID: "p1", FromUserID: "b", ToUserID: "o1", Status: domain.RequestRejected, CreatedAt: t2, UpdatedAt: t2},
		{ID: "r3", PostID: "p1", FromUserID: "c", ToUserID: "o2", Status: domain.RequestPending, CreatedAt: t3, UpdatedAt: t3},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed %s: %v", rows[i].ID, err)
		}
	}

	count, maxAt, err := ReceivedRequestsStats(context.Background(), db, "o1")
	if err != nil {
		t.Fatalf("ReceivedRequestsStats error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected maxUpdatedAt %v, got %v", t2, maxAt)
	}

	count, maxAt, err = ReceivedRequestsStats(context.Background(), db, "nobody")
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil, nil), got (%d, %v, %v)", count, maxAt, err)
	}
}
