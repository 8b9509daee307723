package services

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Admission outcomes, used as the "outcome" label of meetup_admissions_total.
const (
	outcomeAdmitted    = "admitted"
	outcomeDuplicate   = "duplicate"
	outcomeFull        = "full"
	outcomeClosed      = "closed"
	outcomeNotFound    = "not_found"
	outcomeConflict    = "conflict"
	outcomeError       = "error"
	outcomeStatusStale = "status_stale"
)

var (
	// admissionOutcomes counts accept calls by how they ended.
	admissionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetup_admissions_total",
			Help: "Join request acceptances by outcome.",
		},
		[]string{"outcome"},
	)

	// admissionRetries counts admission transactions re-run after contention.
	admissionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meetup_admission_retries_total",
			Help: "Admission transactions retried after a concurrent write.",
		},
	)

	// mutualMatches counts match rows created; repeats of a known pair are
	// not counted.
	mutualMatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mutual_matches_total",
			Help: "Mutual matches created.",
		},
	)
)

func init() {
	prometheus.MustRegister(admissionOutcomes, admissionRetries, mutualMatches)
}

// loggerFrom returns the logger attached to ctx by the HTTP layer, or the
// global logger when none is attached.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
