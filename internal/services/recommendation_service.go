// Package services – RecommendationService
//
// RecommendationService ranks every other profiled user against the caller's
// profile with matching.Rank. Ranked lists can be cached per user through a
// RankCache. Every list is ranked against all profiles, so cached lists are
// keyed by a profile generation that any profile write advances. The cache
// is advisory: a cache failure is logged and the list is recomputed from
// storage.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/internal/matching"
	"github.com/tbourn/go-mealmate-backend/internal/repo"
)

// RankCache stores ranked recommendation lists per user and profile
// generation.
type RankCache interface {
	// Generation returns the current profile generation.
	Generation(ctx context.Context) (int64, error)
	// Bump advances the generation so no list cached before it is served.
	Bump(ctx context.Context) error
	// GetRanked returns the list cached under gen and whether it was present.
	GetRanked(ctx context.Context, gen int64, userID string) ([]matching.Ranked, bool, error)
	// SetRanked stores the list under gen for ttl.
	SetRanked(ctx context.Context, gen int64, userID string, items []matching.Ranked, ttl time.Duration) error
}

// RecommendationService produces ranked candidate lists.
type RecommendationService struct {
	DB    *gorm.DB
	Cache RankCache

	// Limit is the list length (matching.DefaultLimit when <= 0).
	Limit int
	// CacheTTL is how long a list is cached; <= 0 disables caching.
	CacheTTL time.Duration
}

// NewRecommendationService constructs a RecommendationService. cache may be nil.
func NewRecommendationService(db *gorm.DB, cache RankCache, limit int, ttl time.Duration) *RecommendationService {
	return &RecommendationService{DB: db, Cache: cache, Limit: limit, CacheTTL: ttl}
}

// Recommend returns the top candidates for userID. A caller without a
// profile gets an empty list.
func (s *RecommendationService) Recommend(ctx context.Context, userID string) ([]matching.Ranked, error) {
	ctx, span := otel.Tracer("services/RecommendationService").Start(ctx, "Recommend",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if userID == "" {
		return nil, ErrEmptyUserID
	}

	// The generation is read before any profile so that a list computed
	// from profiles older than a concurrent write is stored under a
	// generation nobody reads any more.
	var gen int64
	caching := s.Cache != nil && s.CacheTTL > 0
	if caching {
		g, err := s.Cache.Generation(ctx)
		if err != nil {
			loggerFrom(ctx).Warn().Err(err).Str("user_id", userID).Msg("recommendation cache generation read failed")
			caching = false
		}
		gen = g
	}
	if caching {
		items, ok, err := s.Cache.GetRanked(ctx, gen, userID)
		switch {
		case err != nil:
			loggerFrom(ctx).Warn().Err(err).Str("user_id", userID).Msg("recommendation cache read failed")
		case ok:
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return items, nil
		}
	}

	self, err := repo.GetProfile(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return []matching.Ranked{}, nil
		}
		return nil, storageErr("recommend", err)
	}

	others, err := repo.ListProfilesExcept(ctx, s.DB, userID)
	if err != nil {
		return nil, storageErr("recommend", err)
	}
	cands := make([]matching.Candidate, len(others))
	for i := range others {
		cands[i] = matching.Candidate{UserID: others[i].UserID, Profile: &others[i]}
	}
	ranked := matching.Rank(*self, cands, s.Limit)

	if caching {
		if err := s.Cache.SetRanked(ctx, gen, userID, ranked, s.CacheTTL); err != nil {
			loggerFrom(ctx).Warn().Err(err).Str("user_id", userID).Msg("recommendation cache write failed")
		}
	}
	return ranked, nil
}
