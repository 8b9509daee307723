package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestUpsertProfile_InsertThenReplace(t *testing.T) {
	db := newTestDB(t, &domain.UserProfile{})
	ctx := context.Background()

	p := &domain.UserProfile{
		UserID:    "u1",
		Region:    "Gangnam",
		BudgetMin: intPtr(10000),
		BudgetMax: intPtr(20000),
		FoodTags:  []string{"korean", "bbq"},
	}
	if err := UpsertProfile(ctx, db, p); err != nil {
		t.Fatalf("UpsertProfile insert: %v", err)
	}
	first, err := GetProfile(ctx, db, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}

	p2 := &domain.UserProfile{
		UserID:      "u1",
		Region:      "Mapo",
		FoodTags:    []string{"ramen"},
		TimeWindows: []string{"lunch"},
	}
	if err := UpsertProfile(ctx, db, p2); err != nil {
		t.Fatalf("UpsertProfile update: %v", err)
	}

	got, err := GetProfile(ctx, db, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.Region != "Mapo" || got.BudgetMin != nil || got.BudgetMax != nil {
		t.Fatalf("expected replaced profile, got %+v", got)
	}
	if len(got.FoodTags) != 1 || got.FoodTags[0] != "ramen" {
		t.Fatalf("unexpected tags: %v", got.FoodTags)
	}
	if len(got.TimeWindows) != 1 || got.TimeWindows[0] != "lunch" {
		t.Fatalf("unexpected windows: %v", got.TimeWindows)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at must survive upsert: %v vs %v", got.CreatedAt, first.CreatedAt)
	}

	var n int64
	db.Model(&domain.UserProfile{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected one row, got %d", n)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	db := newTestDB(t, &domain.UserProfile{})
	if _, err := GetProfile(context.Background(), db, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListProfilesExcept_SortedWithoutSelf(t *testing.T) {
	db := newTestDB(t, &domain.UserProfile{})
	ctx := context.Background()
	for _, id := range []string{"c", "a", "self", "b"} {
		if err := UpsertProfile(ctx, db, &domain.UserProfile{UserID: id}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	out, err := ListProfilesExcept(ctx, db, "self")
	if err != nil {
		t.Fatalf("ListProfilesExcept: %v", err)
	}
	var ids []string
	for _, p := range out {
		ids = append(ids, p.UserID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
