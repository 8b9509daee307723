// Package matching ranks candidate users against a profile using a fixed,
// configuration-free compatibility score. Everything here is pure: no I/O,
// no state, no failure modes.
package matching

import (
	"sort"

	"github.com/tbourn/go-mealmate-backend/internal/domain"
)

// DefaultLimit is the number of candidates returned by Rank when limit <= 0.
const DefaultLimit = 10

// Score weights.
const (
	regionWeight = 2
	budgetWeight = 2
	tagWeight    = 1
	windowWeight = 1
)

// Candidate pairs a user id with its profile. A nil Profile marks a user
// that never filled one in; such candidates are dropped by Rank.
type Candidate struct {
	UserID  string
	Profile *domain.UserProfile
}

// Ranked is a scored candidate.
type Ranked struct {
	UserID  string              `json:"user_id"`
	Score   int                 `json:"score"`
	Profile *domain.UserProfile `json:"profile,omitempty"`
}

// Score returns the compatibility of other with self. Missing optional
// fields contribute zero.
//
//   - region: +2 when both are set and equal
//   - budget: +2 when both ranges are complete and overlap (touching counts)
//   - food tags: +1 per shared tag
//   - time windows: +1 when at least one window is shared
func Score(self, other domain.UserProfile) int {
	s := 0
	if self.Region != "" && other.Region != "" && self.Region == other.Region {
		s += regionWeight
	}
	if budgetOverlap(self.BudgetMin, self.BudgetMax, other.BudgetMin, other.BudgetMax) {
		s += budgetWeight
	}
	s += tagWeight * intersectCount(self.FoodTags, other.FoodTags)
	if intersectCount(self.TimeWindows, other.TimeWindows) > 0 {
		s += windowWeight
	}
	return s
}

// Rank scores every candidate that has a profile, orders them by score
// descending with ties broken by user id ascending, and keeps the first
// limit entries (DefaultLimit when limit <= 0).
func Rank(self domain.UserProfile, candidates []Candidate, limit int) []Ranked {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if c.Profile == nil {
			continue
		}
		out = append(out, Ranked{
			UserID:  c.UserID,
			Score:   Score(self, *c.Profile),
			Profile: c.Profile,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func budgetOverlap(aMin, aMax, bMin, bMax *int) bool {
	if aMin == nil || aMax == nil || bMin == nil || bMax == nil {
		return false
	}
	return min(*aMax, *bMax)-max(*aMin, *bMin) >= 0
}

// intersectCount counts distinct values present in both a and b.
func intersectCount(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	in := make(map[string]struct{}, len(b))
	for _, v := range b {
		in[v] = struct{}{}
	}
	seen := make(map[string]struct{}, len(a))
	n := 0
	for _, v := range a {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		if _, ok := in[v]; ok {
			n++
		}
	}
	return n
}
