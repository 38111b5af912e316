package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ValidationsTotal counts validation runs by outcome (passed, failed, inconclusive).
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partnergate_validations_total",
			Help: "Total number of validation runs by outcome",
		},
		[]string{"outcome"},
	)

	// ValidationDuration tracks wall time of a full three-layer run.
	ValidationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "partnergate_validation_duration_seconds",
			Help:    "Time spent validating one submission",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ValidationIssues counts findings by layer and kind.
	ValidationIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partnergate_validation_issues_total",
			Help: "Total number of validation findings by layer and kind",
		},
		[]string{"layer", "kind"},
	)

	ReferenceLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partnergate_reference_lookups_total",
			Help: "Reference store lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	// Transitions counts successful moderation state changes.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partnergate_moderation_transitions_total",
			Help: "Total number of moderation queue transitions",
		},
		[]string{"from", "to"},
	)

	// GuardFailures counts rejected workflow operations by kind.
	GuardFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partnergate_moderation_guard_failures_total",
			Help: "Total number of workflow operations refused by a guard",
		},
		[]string{"operation", "kind"},
	)

	OutboxDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partnergate_outbox_deliveries_total",
			Help: "Publication notification deliveries by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partnergate_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
