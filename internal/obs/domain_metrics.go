package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PriceRecomputeTotal counts recomputation outcomes (ok, not_found, conflict, error).
	PriceRecomputeTotal *prometheus.CounterVec
	// PriceRecomputeDuration records recomputation latency in milliseconds.
	PriceRecomputeDuration prometheus.Histogram
	// CollaboratorDegradedTotal counts competitor and predictor calls that fell back.
	CollaboratorDegradedTotal *prometheus.CounterVec
	// OrdersPlacedTotal counts order placement outcomes.
	OrdersPlacedTotal *prometheus.CounterVec
	// PaymentIntentTotal counts gateway order creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentVerifyTotal counts payment signature verification outcomes.
	PaymentVerifyTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PriceRecomputeTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_recompute_total",
			Help:      "Count of product price recomputations by outcome.",
		}, []string{"result"}))
		PriceRecomputeDuration = registerOrReuse[prometheus.Histogram](reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "price_recompute_duration_ms",
			Help:      "Latency of product price recomputations in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}))
		CollaboratorDegradedTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_degraded_total",
			Help:      "Count of external pricing collaborator calls that degraded to a fallback.",
		}, []string{"collaborator"}))
		OrdersPlacedTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Count of order placement outcomes.",
		}, []string{"result"}))
		PaymentIntentTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment gateway order creation outcomes.",
		}, []string{"provider", "result"}))
		PaymentVerifyTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verify_total",
			Help:      "Count of payment signature verification outcomes.",
		}, []string{"result"}))
	})
}

// ObserveRecompute records one recomputation outcome. Safe before registration.
func ObserveRecompute(result string, took time.Duration) {
	if PriceRecomputeTotal != nil {
		PriceRecomputeTotal.WithLabelValues(result).Inc()
	}
	if PriceRecomputeDuration != nil {
		PriceRecomputeDuration.Observe(DurationMillis(took))
	}
}

// MarkDegraded records a collaborator fallback. Safe before registration.
func MarkDegraded(collaborator string) {
	if CollaboratorDegradedTotal != nil {
		CollaboratorDegradedTotal.WithLabelValues(collaborator).Inc()
	}
}

// CountOrder records an order placement outcome. Safe before registration.
func CountOrder(result string) {
	if OrdersPlacedTotal != nil {
		OrdersPlacedTotal.WithLabelValues(result).Inc()
	}
}

// CountPaymentIntent records a gateway order creation outcome.
func CountPaymentIntent(provider, result string) {
	if PaymentIntentTotal != nil {
		PaymentIntentTotal.WithLabelValues(provider, result).Inc()
	}
}

// CountPaymentVerify records a signature verification outcome.
func CountPaymentVerify(result string) {
	if PaymentVerifyTotal != nil {
		PaymentVerifyTotal.WithLabelValues(result).Inc()
	}
}
