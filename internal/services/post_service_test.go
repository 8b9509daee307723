package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
)

func TestPostService_Create_OwnerAutoJoins(t *testing.T) {
	db := newSvcDB(t)
	s := NewPostService(db, postRepo{})
	meet := time.Date(2025, 10, 3, 19, 0, 0, 0, time.UTC)

	p, err := s.Create(context.Background(), "owner", NewPost{
		Title:           "  Friday\t\tramen  ",
		Restaurant:      " Menya ",
		Category:        " japanese ",
		MeetAt:          &meet,
		MaxParticipants: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "Friday ramen", p.Title)
	assert.Equal(t, "Menya", p.Restaurant)
	assert.Equal(t, "japanese", p.Category)
	assert.Equal(t, 1, p.ParticipantsCount)
	assert.Equal(t, domain.PostOpen, p.Status)

	roster, err := s.Participants(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "owner", roster[0].UserID)
}

func TestPostService_Create_SingleSeatStartsClosed(t *testing.T) {
	db := newSvcDB(t)
	s := NewPostService(db, postRepo{})

	p, err := s.Create(context.Background(), "owner", NewPost{Title: "solo", Restaurant: "x", MaxParticipants: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.PostClosed, p.Status)
	assert.Equal(t, domain.PostClosed, reloadPost(t, db, p.ID).Status)
}

func TestPostService_Create_Validation(t *testing.T) {
	db := newSvcDB(t)
	s := NewPostService(db, postRepo{})
	ctx := context.Background()

	cases := []struct {
		name  string
		owner string
		in    NewPost
		want  error
	}{
		{"no owner", "", NewPost{Title: "t", Restaurant: "r"}, ErrEmptyUserID},
		{"blank title", "o", NewPost{Title: "   ", Restaurant: "r"}, ErrInvalidPost},
		{"blank restaurant", "o", NewPost{Title: "t"}, ErrInvalidPost},
		{"negative cap", "o", NewPost{Title: "t", Restaurant: "r", MaxParticipants: -1}, ErrInvalidPost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Create(ctx, tc.owner, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPostService_Create_ClipsTitle(t *testing.T) {
	db := newSvcDB(t)
	s := NewPostService(db, postRepo{})
	s.TitleMaxLen = 5

	p, err := s.Create(context.Background(), "o", NewPost{Title: "비빔밥 모임입니다", Restaurant: "r"})
	require.NoError(t, err)
	assert.Equal(t, "비빔밥 모", p.Title)
}

func TestPostService_GetAndListOpen(t *testing.T) {
	db := newSvcDB(t)
	s := NewPostService(db, postRepo{})
	ctx := context.Background()

	open := mkPost(t, db, "o1", 3)
	unbounded := mkPost(t, db, "o2", 0)
	mkPost(t, db, "o3", 1) // closed on creation

	drifted := mkPost(t, db, "o4", 2)
	require.NoError(t, db.Model(&domain.MeetupPost{}).Where("id = ?", drifted.ID).
		Update("participants_count", 2).Error)

	got, err := s.Get(ctx, drifted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostClosed, got.Status, "status is derived from the counters")

	items, total, err := s.ListOpen(ctx, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	ids := map[string]bool{}
	for _, it := range items {
		ids[it.ID] = true
	}
	assert.True(t, ids[open.ID])
	assert.True(t, ids[unbounded.ID])

	items, total, err = s.ListOpen(ctx, 2, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 1)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrPostNotFound)
	_, err = s.Participants(ctx, "missing")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestPostService_ListOpen_Empty(t *testing.T) {
	db := newSvcDB(t)
	items, total, err := NewPostService(db, postRepo{}).ListOpen(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestPostService_StorageError(t *testing.T) {
	db := newSvcDB(t)
	require.NoError(t, db.Migrator().DropTable(&domain.Participant{}))

	_, err := NewPostService(db, postRepo{}).Create(context.Background(), "o", NewPost{Title: "t", Restaurant: "r"})
	assert.ErrorIs(t, err, ErrStorage)

	// The post insert was rolled back with the failed owner join.
	var n int64
	db.Model(&domain.MeetupPost{}).Count(&n)
	assert.Zero(t, n)
}

func TestPostService_Search(t *testing.T) {
	db := newSvcDB(t)
	s := NewPostService(db, postRepo{})
	ctx := context.Background()

	mk := func(title, restaurant, category, location string, max int) *domain.MeetupPost {
		p, err := s.Create(ctx, "owner", NewPost{Title: title, Restaurant: restaurant, Category: category, Location: location, MaxParticipants: max})
		require.NoError(t, err)
		return p
	}
	ramen := mk("Friday ramen", "Menya", "japanese", "Gangnam station", 4)
	beer := mk("Ramen and beer", "Ichiran", "japanese", "Hongdae", 4)
	bbq := mk("BBQ night", "Maple", "korean", "Gangnam", 4)
	mk("Ramen for one", "Solo", "japanese", "Gangnam", 1) // starts closed

	got, err := s.Search(ctx, PostQuery{Text: "ramen gangnam"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ramen.ID, got[0].ID, "matches both keywords")
	assert.ElementsMatch(t, []string{beer.ID, bbq.ID}, []string{got[1].ID, got[2].ID})

	got, err = s.Search(ctx, PostQuery{Text: "ramen", Location: "hongdae"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, beer.ID, got[0].ID)

	got, err = s.Search(ctx, PostQuery{Category: "KOREAN"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, bbq.ID, got[0].ID)

	got, err = s.Search(ctx, PostQuery{Text: "sushi"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Search(ctx, PostQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
