package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrderLineConversions counts basket to order-line conversions by outcome.
	OrderLineConversions *prometheus.CounterVec
	// OrderLineConversionLatency records the time spent converting a basket in milliseconds.
	OrderLineConversionLatency *prometheus.HistogramVec
	// StockShortagesTotal counts basket lines rejected by the stock check.
	StockShortagesTotal prometheus.Counter
	// BasketReconcileActions counts basket mutations issued after a shortage.
	BasketReconcileActions *prometheus.CounterVec
	// VatFallbackResolutions counts fallback resolutions by outcome.
	VatFallbackResolutions *prometheus.CounterVec
	// VatFallbackHops counts every hop into a channel's standard VAT table.
	VatFallbackHops prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, buckets []float64, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if len(buckets) == 0 {
			buckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}
		}
		OrderLineConversions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_line_conversions_total",
			Help:      "Count of basket to order-line conversions by outcome.",
		}, []string{"result"})
		OrderLineConversionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_line_conversion_duration_ms",
			Help:      "Latency of basket to order-line conversions in milliseconds.",
			Buckets:   buckets,
		}, []string{"result"})
		StockShortagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_shortages_total",
			Help:      "Number of basket lines rejected for insufficient stock.",
		})
		BasketReconcileActions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "basket_reconcile_actions_total",
			Help:      "Basket line mutations issued after a stock shortage.",
		}, []string{"action"})
		VatFallbackResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vat_fallback_resolutions_total",
			Help:      "Slot resolutions that needed the standard VAT table chain, by result.",
		}, []string{"result"})
		VatFallbackHops = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vat_fallback_hops_total",
			Help:      "Lookups of a channel's standard VAT table during slot resolution.",
		})

		mustRegisterCollector(reg, OrderLineConversions, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderLineConversions = v
			}
		})
		mustRegisterCollector(reg, OrderLineConversionLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				OrderLineConversionLatency = v
			}
		})
		mustRegisterCollector(reg, StockShortagesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				StockShortagesTotal = v
			}
		})
		mustRegisterCollector(reg, BasketReconcileActions, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BasketReconcileActions = v
			}
		})
		mustRegisterCollector(reg, VatFallbackResolutions, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				VatFallbackResolutions = v
			}
		})
		mustRegisterCollector(reg, VatFallbackHops, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				VatFallbackHops = v
			}
		})
	})
}

// RecordConversion observes the outcome and latency of a single conversion.
// It is a no-op until MustRegisterDomainMetrics has run.
func RecordConversion(result string, durationMs float64) {
	if OrderLineConversions != nil {
		OrderLineConversions.WithLabelValues(result).Inc()
	}
	if OrderLineConversionLatency != nil {
		OrderLineConversionLatency.WithLabelValues(result).Observe(durationMs)
	}
}

// RecordStockShortage increments the shortage counter.
func RecordStockShortage() {
	if StockShortagesTotal != nil {
		StockShortagesTotal.Inc()
	}
}

// RecordReconcileAction counts a basket mutation ("delete" or "update").
func RecordReconcileAction(action string) {
	if BasketReconcileActions != nil {
		BasketReconcileActions.WithLabelValues(action).Inc()
	}
}

// RecordVatFallback counts a finished fallback resolution by result.
func RecordVatFallback(result string) {
	if VatFallbackResolutions != nil {
		VatFallbackResolutions.WithLabelValues(result).Inc()
	}
}

// RecordVatFallbackHop counts one standard-table lookup.
func RecordVatFallbackHop() {
	if VatFallbackHops != nil {
		VatFallbackHops.Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
