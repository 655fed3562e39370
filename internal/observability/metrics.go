package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"patchtriage/internal/domain/triage"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_operations_total",
		Help: "Triage operations by operation and outcome",
	}, []string{"operation", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "triage_operation_duration_seconds",
		Help:    "Triage operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"operation"})

	backfillLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_committer_lookups_total",
		Help: "Committer lookups by result",
	}, []string{"result"})
)

// Outcome buckets an operation error into a low-cardinality label.
func Outcome(err error) string {
	var verr *triage.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, triage.ErrNotFound):
		return "not_found"
	case errors.Is(err, triage.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, triage.ErrPatchResolved):
		return "resolved"
	case errors.Is(err, triage.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}

// ObserveOperation records one finished operation. Use with defer:
//
//	defer observability.ObserveOperation("vote", time.Now(), &err)
func ObserveOperation(operation string, started time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	operationsTotal.WithLabelValues(operation, Outcome(err)).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func CountCommitterLookup(result string) {
	backfillLookups.WithLabelValues(result).Inc()
}
