/**
 * @description
 * Prometheus collectors for the billing engine, exposed on /metrics.
 */
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "estate_billing"

var (
	ObligationsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "obligations_generated_total",
			Help:      "Payment obligations created by the generator",
		},
		[]string{"cycle"},
	)

	GenerationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "obligation_generation_failures_total",
			Help:      "Per-user obligation inserts that failed or were skipped on a reference collision",
		},
		[]string{"cycle"},
	)

	PaymentInitiations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_initiations_total",
			Help:      "Payment initiation attempts by outcome",
		},
		[]string{"outcome"}, // "link_created", "no_payment_due", "in_progress", "gateway_failed", "error"
	)

	GatewayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Duration of hosted payment link requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	WebhooksReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_reconciled_total",
			Help:      "Gateway callbacks applied to obligations by resulting status",
		},
		[]string{"status"},
	)

	WebhooksRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_rejected_total",
			Help:      "Gateway callbacks rejected before reconciliation",
		},
		[]string{"reason"},
	)
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
