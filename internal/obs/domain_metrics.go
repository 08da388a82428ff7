package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartTotalsComputed counts cart summaries priced by the engine.
	CartTotalsComputed prometheus.Counter
	// PromoApplyTotal counts promo code submissions by outcome.
	PromoApplyTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// InvoiceIssuedTotal counts invoices persisted after checkout.
	InvoiceIssuedTotal prometheus.Counter
	// InvoiceTotalAmount records the grand total of issued invoices.
	InvoiceTotalAmount prometheus.Histogram
	// DBQueryDuration records invoice database statement latency by operation.
	DBQueryDuration *prometheus.HistogramVec
	// ReceiptEmailsTotal counts receipt deliveries by outcome.
	ReceiptEmailsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartTotalsComputed = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_totals_computed_total",
			Help:      "Number of cart summaries computed.",
		})
		PromoApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_apply_total",
			Help:      "Count of promo code submissions by outcome.",
		}, []string{"result"})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"})
		InvoiceIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_issued_total",
			Help:      "Number of invoices issued.",
		})
		InvoiceTotalAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_total_amount",
			Help:      "Grand total of issued invoices.",
			Buckets:   []float64{1000, 5000, 10000, 25000, 50000, 100000, 250000, 500000, 1000000},
		})
		DBQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_ms",
			Help:      "Database statement latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 1000},
		}, []string{"operation"})
		ReceiptEmailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_emails_total",
			Help:      "Receipt email deliveries by outcome.",
		}, []string{"result"})

		CartTotalsComputed = registerOrReuse(reg, CartTotalsComputed)
		PromoApplyTotal = registerOrReuse(reg, PromoApplyTotal)
		CheckoutTotal = registerOrReuse(reg, CheckoutTotal)
		InvoiceIssuedTotal = registerOrReuse(reg, InvoiceIssuedTotal)
		InvoiceTotalAmount = registerOrReuse(reg, InvoiceTotalAmount)
		DBQueryDuration = registerOrReuse(reg, DBQueryDuration)
		ReceiptEmailsTotal = registerOrReuse(reg, ReceiptEmailsTotal)
	})
}

// IncCartTotals records one computed cart summary. Safe before registration.
func IncCartTotals() {
	if CartTotalsComputed != nil {
		CartTotalsComputed.Inc()
	}
}

// IncPromoApply records a promo submission outcome.
func IncPromoApply(result string) {
	if PromoApplyTotal != nil {
		PromoApplyTotal.WithLabelValues(result).Inc()
	}
}

// IncCheckout records a checkout outcome.
func IncCheckout(result string) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(result).Inc()
	}
}

// ObserveInvoiceIssued records an issued invoice and its grand total.
func ObserveInvoiceIssued(total float64) {
	if InvoiceIssuedTotal != nil {
		InvoiceIssuedTotal.Inc()
	}
	if InvoiceTotalAmount != nil {
		InvoiceTotalAmount.Observe(total)
	}
}

// ObserveDBQuery records the latency of one database statement.
func ObserveDBQuery(operation string, d time.Duration) {
	if DBQueryDuration != nil {
		DBQueryDuration.WithLabelValues(operation).Observe(DurationMillis(d))
	}
}

// IncReceiptEmail records a receipt delivery outcome.
func IncReceiptEmail(result string) {
	if ReceiptEmailsTotal != nil {
		ReceiptEmailsTotal.WithLabelValues(result).Inc()
	}
}
