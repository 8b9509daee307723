package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
	"github.com/tbourn/go-mealmate-backend/internal/matching"
	"github.com/tbourn/go-mealmate-backend/internal/repo"
)

// ---------- test helpers ----------

// newSvcDB opens a private in-memory database with every table migrated.
// Foreign keys are left off so tests can create dangling rows on purpose.
func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newFileDB opens a WAL-mode database file through repo.OpenSQLite, the same
// way the server does, for tests that need real concurrent writers.
func newFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "mealmate.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// postRepo adapts the repo package functions to PostRepo.
type postRepo struct{}

func (postRepo) CreatePost(ctx context.Context, db *gorm.DB, p *domain.MeetupPost) error {
	return repo.CreatePost(ctx, db, p)
}
func (postRepo) GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.MeetupPost, error) {
	return repo.GetPost(ctx, db, id)
}
func (postRepo) AddParticipant(ctx context.Context, db *gorm.DB, postID, userID string) error {
	return repo.AddParticipant(ctx, db, postID, userID)
}
func (postRepo) ListParticipants(ctx context.Context, db *gorm.DB, postID string) ([]domain.Participant, error) {
	return repo.ListParticipants(ctx, db, postID)
}
func (postRepo) CountOpenPosts(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountOpenPosts(ctx, db)
}
func (postRepo) ListOpenPostsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.MeetupPost, error) {
	return repo.ListOpenPostsPage(ctx, db, offset, limit)
}

func (postRepo) FilterOpenPosts(ctx context.Context, db *gorm.DB, f repo.PostFilter, limit int) ([]domain.MeetupPost, error) {
	return repo.FilterOpenPosts(ctx, db, f, limit)
}

// mkPost creates a post through PostService so the owner is auto-joined.
func mkPost(t *testing.T, db *gorm.DB, owner string, max int) *domain.MeetupPost {
	t.Helper()
	p, err := NewPostService(db, postRepo{}).Create(context.Background(), owner, NewPost{
		Title:           "Friday ramen",
		Restaurant:      "Menya",
		MaxParticipants: max,
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	return p
}

func reloadPost(t *testing.T, db *gorm.DB, id string) *domain.MeetupPost {
	t.Helper()
	p, err := repo.GetPost(context.Background(), db, id)
	if err != nil {
		t.Fatalf("reload post: %v", err)
	}
	return p
}

func countParticipants(t *testing.T, db *gorm.DB, postID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.Participant{}).Where("post_id = ?", postID).Count(&n).Error; err != nil {
		t.Fatalf("count participants: %v", err)
	}
	return n
}

func intp(v int) *int { return &v }

// fakeCache is an in-memory RankCache that records calls.
type fakeCache struct {
	mu    sync.Mutex
	gen   int64
	items map[string][]matching.Ranked
	sets  int
	bumps int
	err   error
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[string][]matching.Ranked{}}
}

func fakeKey(gen int64, userID string) string { return fmt.Sprintf("%d:%s", gen, userID) }

func (f *fakeCache) Generation(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen, f.err
}

func (f *fakeCache) Bump(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bumps++
	if f.err != nil {
		return f.err
	}
	f.gen++
	return nil
}

func (f *fakeCache) GetRanked(_ context.Context, gen int64, userID string) ([]matching.Ranked, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	v, ok := f.items[fakeKey(gen, userID)]
	return v, ok, nil
}

func (f *fakeCache) SetRanked(_ context.Context, gen int64, userID string, items []matching.Ranked, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.err != nil {
		return f.err
	}
	f.items[fakeKey(gen, userID)] = items
	return nil
}
