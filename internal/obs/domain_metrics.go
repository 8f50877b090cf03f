package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingDuration records the latency of full cart pricing passes.
	PricingDuration prometheus.Histogram
	// PricingTotal counts pricing passes by result.
	PricingTotal *prometheus.CounterVec
	// NegativeTotalClamps counts grand totals floored at zero. The clamp is
	// defined behavior, but it must stay visible to telemetry.
	NegativeTotalClamps prometheus.Counter
	// PricingLineFailures counts per-line soft failures surfaced as warnings.
	PricingLineFailures *prometheus.CounterVec
	// DiscountApplications counts discount evaluations by kind and outcome.
	DiscountApplications *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_pricing_duration_ms",
			Help:      "Latency of cart pricing passes in milliseconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100},
		})
		PricingTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_pricing_total",
			Help:      "Count of cart pricing passes by result.",
		}, []string{"result"})
		NegativeTotalClamps = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_pricing_negative_total_clamps_total",
			Help:      "Number of grand totals clamped to zero.",
		})
		PricingLineFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_pricing_line_failures_total",
			Help:      "Per-line pricing failures reported as warnings.",
		}, []string{"stage"})
		DiscountApplications = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_applications_total",
			Help:      "Discount evaluations by kind and outcome.",
		}, []string{"kind", "outcome"})

		PricingDuration = registerHistogram(reg, PricingDuration)
		PricingTotal = registerCounterVec(reg, PricingTotal)
		NegativeTotalClamps = registerCounter(reg, NegativeTotalClamps)
		PricingLineFailures = registerCounterVec(reg, PricingLineFailures)
		DiscountApplications = registerCounterVec(reg, DiscountApplications)
	})
}
