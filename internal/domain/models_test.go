package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(UserProfile{}).TableName():    "profiles",
		(InterestSignal{}).TableName(): "interests",
		(MutualMatch{}).TableName():    "matches",
		(MeetupPost{}).TableName():     "posts",
		(Participant{}).TableName():    "participants",
		(JoinRequest{}).TableName():    "requests",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestCanonicalPair_And_MatchKey(t *testing.T) {
	a, b := CanonicalPair("zed", "amy")
	if a != "amy" || b != "zed" {
		t.Fatalf("CanonicalPair = (%q,%q)", a, b)
	}
	if MatchKey("u2", "u1") != MatchKey("u1", "u2") {
		t.Fatalf("MatchKey must not depend on argument order")
	}
	if got := MatchKey("u2", "u1"); got != "u1:u2" {
		t.Fatalf("MatchKey = %q", got)
	}

	m := MutualMatch{ID: "u1:u2", UserAID: "u1", UserBID: "u2"}
	if m.Other("u1") != "u2" || m.Other("u2") != "u1" || m.Other("u3") != "" {
		t.Fatalf("Other() unexpected")
	}
}

func TestMeetupPost_EffectiveStatus(t *testing.T) {
	p := MeetupPost{MaxParticipants: 2, ParticipantsCount: 1, Status: PostOpen}
	if p.Full() || p.EffectiveStatus() != PostOpen {
		t.Fatalf("expected open post, got %+v", p)
	}

	// stale flag: counters say full, stored status still open
	p.ParticipantsCount = 2
	if !p.Full() || p.EffectiveStatus() != PostClosed {
		t.Fatalf("expected derived closed status, got %q", p.EffectiveStatus())
	}

	// unbounded never fills
	u := MeetupPost{MaxParticipants: 0, ParticipantsCount: 50, Status: PostOpen}
	if u.Full() || u.EffectiveStatus() != PostOpen {
		t.Fatalf("unbounded post should stay open")
	}

	// explicit close survives
	c := MeetupPost{MaxParticipants: 0, ParticipantsCount: 1, Status: PostClosed}
	if c.EffectiveStatus() != PostClosed {
		t.Fatalf("closed flag must be kept")
	}
}

func TestRequestStatus_Terminal(t *testing.T) {
	if RequestPending.Terminal() {
		t.Fatalf("pending must not be terminal")
	}
	if !RequestMatched.Terminal() || !RequestRejected.Terminal() {
		t.Fatalf("matched and rejected must be terminal")
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&UserProfile{}, &InterestSignal{}, &MutualMatch{}, &MeetupPost{}, &Participant{}, &JoinRequest{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&UserProfile{}, &InterestSignal{}, &MutualMatch{}, &MeetupPost{}, &Participant{}, &JoinRequest{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&MutualMatch{}, "ux_match_pair") {
		t.Fatalf("expected unique index ux_match_pair on matches")
	}
	if !m.HasIndex(&JoinRequest{}, "idx_request_post_from") {
		t.Fatalf("expected index idx_request_post_from on requests")
	}

	now := time.Now().UTC()

	// JSON slices round-trip
	lo, hi := 10000, 30000
	prof := &UserProfile{UserID: "u1", Region: "Gangnam", BudgetMin: &lo, BudgetMax: &hi,
		FoodTags: []string{"korean", "cafe"}, TimeWindows: []string{"weekday-evening"}}
	if err := db.Create(prof).Error; err != nil {
		t.Fatalf("insert profile: %v", err)
	}
	var gotProf UserProfile
	if err := db.First(&gotProf, "user_id = ?", "u1").Error; err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if len(gotProf.FoodTags) != 2 || gotProf.FoodTags[1] != "cafe" || *gotProf.BudgetMax != 30000 {
		t.Fatalf("profile round-trip mismatch: %+v", gotProf)
	}

	// Composite primary key rejects a second identical signal
	if err := db.Create(&InterestSignal{FromUserID: "u1", ToUserID: "u2", CreatedAt: now}).Error; err != nil {
		t.Fatalf("insert interest: %v", err)
	}
	if err := db.Create(&InterestSignal{FromUserID: "u1", ToUserID: "u2", CreatedAt: now}).Error; err == nil {
		t.Fatalf("expected primary key violation for duplicate interest")
	}

	post := &MeetupPost{ID: "p1", OwnerID: "owner", Title: "Lunch", Restaurant: "Kimbap", MaxParticipants: 3,
		ParticipantsCount: 1, Status: PostOpen, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(post).Error; err != nil {
		t.Fatalf("insert post: %v", err)
	}
	if err := db.Create(&Participant{PostID: "p1", UserID: "owner", JoinedAt: now}).Error; err != nil {
		t.Fatalf("insert participant: %v", err)
	}
	if err := db.Create(&Participant{PostID: "p1", UserID: "owner", JoinedAt: now}).Error; err == nil {
		t.Fatalf("expected primary key violation for duplicate participant")
	}
	if err := db.Create(&JoinRequest{ID: "r1", PostID: "p1", FromUserID: "u2", ToUserID: "owner", Status: RequestPending}).Error; err != nil {
		t.Fatalf("insert request: %v", err)
	}

	// Status check constraint
	if err := db.Create(&JoinRequest{ID: "r2", PostID: "p1", FromUserID: "u3", ToUserID: "owner", Status: "failed"}).Error; err == nil {
		t.Fatalf("expected check constraint violation for unknown status")
	}

	// CASCADE: deleting the post removes participants and requests
	if err := db.Delete(&MeetupPost{}, "id = ?", "p1").Error; err != nil {
		t.Fatalf("delete post: %v", err)
	}
	var cnt int64
	if err := db.Model(&Participant{}).Where("post_id = ?", "p1").Count(&cnt).Error; err != nil {
		t.Fatalf("count participants: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected participants to cascade-delete, got %d", cnt)
	}
	if err := db.Model(&JoinRequest{}).Where("post_id = ?", "p1").Count(&cnt).Error; err != nil {
		t.Fatalf("count requests: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected requests to cascade-delete, got %d", cnt)
	}
}
