// Package services – InterestService
//
// InterestService records one-directional interest signals and turns a pair
// of opposite signals into a mutual match. Each step is an upsert on a
// natural key, so the steps need no transaction: a failure after the signal
// is stored leaves the signal in place, and calling RecordInterest again
// re-derives the same outcome.
package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
	"github.com/tbourn/go-mealmate-backend/internal/repo"
)

// InterestResult is the outcome of RecordInterest.
type InterestResult struct {
	Matched bool `json:"matched"`
	// MatchID is the canonical "<lo>:<hi>" key, set when Matched.
	MatchID string `json:"match_id,omitempty"`
}

// InterestService records interest and derives mutual matches.
type InterestService struct {
	DB *gorm.DB
}

// NewInterestService constructs an InterestService.
func NewInterestService(db *gorm.DB) *InterestService {
	return &InterestService{DB: db}
}

// RecordInterest stores from -> to and reports whether to -> from already
// exists, in which case the pair's match is upserted under its canonical key.
func (s *InterestService) RecordInterest(ctx context.Context, from, to string) (InterestResult, error) {
	ctx, span := otel.Tracer("services/InterestService").Start(ctx, "RecordInterest",
		trace.WithAttributes(
			attribute.String("user.id", from),
			attribute.String("target.id", to),
		),
	)
	defer span.End()

	if from == "" || to == "" {
		return InterestResult{}, ErrEmptyUserID
	}
	if from == to {
		return InterestResult{}, ErrSelfInterest
	}

	if err := repo.UpsertInterest(ctx, s.DB, from, to); err != nil {
		return InterestResult{}, storageErr("record interest", err)
	}
	mutual, err := repo.HasInterest(ctx, s.DB, to, from)
	if err != nil {
		return InterestResult{}, storageErr("record interest", err)
	}
	if !mutual {
		return InterestResult{}, nil
	}

	m, created, err := repo.UpsertMatch(ctx, s.DB, from, to)
	if err != nil {
		return InterestResult{}, storageErr("record interest", err)
	}
	span.SetAttributes(
		attribute.String("match.id", m.ID),
		attribute.Bool("match.created", created),
	)
	if created {
		mutualMatches.Inc()
		loggerFrom(ctx).Info().Str("match_id", m.ID).Msg("mutual match")
	}
	return InterestResult{Matched: true, MatchID: m.ID}, nil
}

// ListMatches returns the mutual matches that include userID, newest first.
func (s *InterestService) ListMatches(ctx context.Context, userID string) ([]domain.MutualMatch, error) {
	items, err := repo.ListMatches(ctx, s.DB, userID)
	if err != nil {
		return nil, storageErr("list matches", err)
	}
	return items, nil
}
